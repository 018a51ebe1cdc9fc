package scraper

import (
	"context"

	"recall/internal/domain"
)

// Provider turns URLs into content, enumerates links and searches the web.
type Provider interface {
	// Scrape fetches url and returns its content and extracted metadata.
	Scrape(ctx context.Context, url string, opts ScrapeOptions) (Document, error)

	// Map lists links reachable from url.
	Map(ctx context.Context, url string, opts MapOptions) ([]domain.Link, error)

	// Search runs a web search.
	Search(ctx context.Context, query string, opts SearchOptions) ([]domain.SearchResult, error)
}

// ScrapeOptions controls what Scrape extracts.
type ScrapeOptions struct {
	// Formats lists the output formats, e.g. "markdown" and "json".
	Formats []string
	// JSONSchema drives the structured extraction pass when "json" is requested.
	JSONSchema map[string]any
	// OnlyMainContent drops navigation, footers and similar chrome.
	OnlyMainContent bool
}

// MapOptions controls link discovery.
type MapOptions struct {
	Limit     int
	Search    string
	Country   string
	Languages []string
}

// SearchOptions controls web search.
type SearchOptions struct {
	Limit   int
	Country string
	// TBS is a time filter, e.g. "qdr:y" for the past year.
	TBS string
}

// Document is the scraped representation of a page.
type Document struct {
	Markdown string
	Title    string
	OGImage  string
	Extract  Extract
}

// Extract holds the structured fields requested through ExtractSchema.
type Extract struct {
	Author      string `json:"author"`
	PublishedAt string `json:"publishedAt"`
}

// ExtractSchema is the JSON schema for the structured extraction pass.
var ExtractSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"author":      map[string]any{"type": "string"},
		"publishedAt": map[string]any{"type": "string"},
	},
}

// ArticleOptions are the scrape options used for saving an article.
func ArticleOptions() ScrapeOptions {
	return ScrapeOptions{
		Formats:         []string{"markdown", "json"},
		JSONSchema:      ExtractSchema,
		OnlyMainContent: true,
	}
}
