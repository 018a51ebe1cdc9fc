package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"recall/internal/domain"
)

// APIError is a failure reported by the scrape provider.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("firecrawl error %d: %s", e.Status, e.Message)
}

// FirecrawlClient implements Provider against the Firecrawl v2 REST API.
type FirecrawlClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     logrus.FieldLogger
}

var _ Provider = (*FirecrawlClient)(nil)

// NewFirecrawlClient builds a client. timeout bounds each request.
func NewFirecrawlClient(baseURL, apiKey string, timeout time.Duration, logger logrus.FieldLogger) *FirecrawlClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &FirecrawlClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		log:     logger.WithField("component", "firecrawl"),
	}
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string          `json:"markdown"`
		JSON     json.RawMessage `json:"json"`
		Metadata struct {
			Title   string `json:"title"`
			OGImage string `json:"ogImage"`
		} `json:"metadata"`
	} `json:"data"`
}

// Scrape calls POST /v2/scrape.
func (c *FirecrawlClient) Scrape(ctx context.Context, url string, opts ScrapeOptions) (Document, error) {
	formats := make([]any, 0, len(opts.Formats))
	for _, f := range opts.Formats {
		if f == "json" {
			formats = append(formats, map[string]any{"type": "json", "schema": opts.JSONSchema})
			continue
		}
		formats = append(formats, f)
	}

	var resp scrapeResponse
	err := c.post(ctx, "/v2/scrape", map[string]any{
		"url":             url,
		"formats":         formats,
		"onlyMainContent": opts.OnlyMainContent,
	}, &resp)
	if err != nil {
		return Document{}, err
	}
	if !resp.Success {
		return Document{}, &APIError{Status: http.StatusOK, Message: resp.Error}
	}

	doc := Document{
		Markdown: resp.Data.Markdown,
		Title:    resp.Data.Metadata.Title,
		OGImage:  resp.Data.Metadata.OGImage,
	}
	if len(resp.Data.JSON) > 0 && string(resp.Data.JSON) != "null" {
		if err := json.Unmarshal(resp.Data.JSON, &doc.Extract); err != nil {
			c.log.WithError(err).WithField("url", url).Warn("Ignoring malformed extraction payload")
		}
	}
	return doc, nil
}

type mapResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error"`
	Links   []domain.Link `json:"links"`
}

// Map calls POST /v2/map.
func (c *FirecrawlClient) Map(ctx context.Context, url string, opts MapOptions) ([]domain.Link, error) {
	payload := map[string]any{
		"url":   url,
		"limit": opts.Limit,
	}
	if opts.Search != "" {
		payload["search"] = opts.Search
	}
	if opts.Country != "" || len(opts.Languages) > 0 {
		payload["location"] = map[string]any{
			"country":   opts.Country,
			"languages": opts.Languages,
		}
	}

	var resp mapResponse
	if err := c.post(ctx, "/v2/map", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &APIError{Status: http.StatusOK, Message: resp.Error}
	}
	return resp.Links, nil
}

type searchResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Web []domain.SearchResult `json:"web"`
	} `json:"data"`
}

// Search calls POST /v2/search.
func (c *FirecrawlClient) Search(ctx context.Context, query string, opts SearchOptions) ([]domain.SearchResult, error) {
	payload := map[string]any{
		"query": query,
		"limit": opts.Limit,
	}
	if opts.Country != "" {
		payload["location"] = opts.Country
	}
	if opts.TBS != "" {
		payload["tbs"] = opts.TBS
	}

	var resp searchResponse
	if err := c.post(ctx, "/v2/search", payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &APIError{Status: http.StatusOK, Message: resp.Error}
	}
	return resp.Data.Web, nil
}

func (c *FirecrawlClient) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("firecrawl %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
