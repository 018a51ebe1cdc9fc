package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"

	"recall/internal/domain"
)

const defaultSearchURL = "https://html.duckduckgo.com/html/"

// RenderFunc returns the HTML of url after the page has loaded.
type RenderFunc func(ctx context.Context, url string) (string, error)

// BrowserProvider implements Provider without a hosted scraping API.
// Pages are rendered in a headless browser, feeds are read with gofeed
// and search goes through the DuckDuckGo HTML endpoint.
type BrowserProvider struct {
	log       logrus.FieldLogger
	render    RenderFunc
	feeds     *gofeed.Parser
	http      *http.Client
	searchURL string
	timeout   time.Duration
}

var _ Provider = (*BrowserProvider)(nil)

// BrowserOption customizes a BrowserProvider.
type BrowserOption func(*BrowserProvider)

// WithRenderer replaces the headless browser renderer.
func WithRenderer(fn RenderFunc) BrowserOption {
	return func(p *BrowserProvider) { p.render = fn }
}

// WithSearchURL points Search at a different DuckDuckGo-compatible endpoint.
func WithSearchURL(u string) BrowserOption {
	return func(p *BrowserProvider) { p.searchURL = u }
}

// NewBrowserProvider creates the local provider. timeout bounds each page load.
func NewBrowserProvider(timeout time.Duration, logger logrus.FieldLogger, opts ...BrowserOption) *BrowserProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	p := &BrowserProvider{
		log:       logger.WithField("component", "scraper"),
		feeds:     gofeed.NewParser(),
		http:      &http.Client{Timeout: timeout},
		searchURL: defaultSearchURL,
		timeout:   timeout,
	}
	p.render = p.rodRender
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Scrape renders the page and extracts its content.
func (p *BrowserProvider) Scrape(ctx context.Context, pageURL string, opts ScrapeOptions) (Document, error) {
	log := p.log.WithField("url", pageURL)
	log.Info("Attempting to scrape page")

	html, err := p.render(ctx, pageURL)
	if err != nil {
		return Document{}, err
	}

	doc, err := ExtractDocument(pageURL, html, opts.OnlyMainContent)
	if err != nil {
		log.WithError(err).Warn("Content extraction failed")
		return Document{}, err
	}

	log.WithField("title", doc.Title).Info("Page scraped successfully")
	return doc, nil
}

// Map returns the item links when the seed is a feed, otherwise the
// same-host links found on the rendered page.
func (p *BrowserProvider) Map(ctx context.Context, seed string, opts MapOptions) ([]domain.Link, error) {
	log := p.log.WithField("url", seed)

	feed, err := p.feeds.ParseURLWithContext(seed, ctx)
	if err == nil {
		log.WithField("items", len(feed.Items)).Debug("Seed is a feed")
		links := make([]domain.Link, 0, len(feed.Items))
		for _, item := range feed.Items {
			if item.Link == "" {
				continue
			}
			links = append(links, domain.Link{URL: item.Link, Title: item.Title, Description: item.Description})
		}
		return filterLinks(links, opts), nil
	}
	log.WithError(err).Debug("Seed is not a feed, crawling page links")

	html, err := p.render(ctx, seed)
	if err != nil {
		return nil, err
	}
	links, err := pageLinks(seed, html)
	if err != nil {
		return nil, err
	}
	return filterLinks(links, opts), nil
}

// pageLinks collects unique same-host http(s) anchors.
func pageLinks(seed, html string) ([]domain.Link, error) {
	base, err := url.Parse(seed)
	if err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	seen := map[string]struct{}{}
	var links []domain.Link
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		u, err := base.Parse(strings.TrimSpace(href))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host != base.Host {
			return
		}
		u.Fragment = ""
		key := u.String()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		links = append(links, domain.Link{URL: key, Title: normalizeText(s.Text())})
	})
	return links, nil
}

// filterLinks keeps links whose url or title contains opts.Search, up to opts.Limit.
func filterLinks(links []domain.Link, opts MapOptions) []domain.Link {
	needle := strings.ToLower(strings.TrimSpace(opts.Search))
	out := make([]domain.Link, 0, len(links))
	for _, l := range links {
		if needle != "" &&
			!strings.Contains(strings.ToLower(l.URL), needle) &&
			!strings.Contains(strings.ToLower(l.Title), needle) {
			continue
		}
		out = append(out, l)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out
}

// Search queries the DuckDuckGo HTML endpoint.
func (p *BrowserProvider) Search(ctx context.Context, query string, opts SearchOptions) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	if opts.Country != "" {
		params.Set("kl", strings.ToLower(opts.Country)+"-en")
	}
	if opts.TBS == "qdr:y" {
		params.Set("df", "y")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.searchURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; recall/1.0)")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed, status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search html: %w", err)
	}

	var results []domain.SearchResult
	doc.Find(".result").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		a := s.Find("a.result__a").First()
		href := resolveSearchLink(attr(a, "href"))
		if href == "" {
			return true
		}
		results = append(results, domain.SearchResult{
			URL:         href,
			Title:       normalizeText(a.Text()),
			Description: normalizeText(s.Find(".result__snippet").First().Text()),
		})
		return opts.Limit <= 0 || len(results) < opts.Limit
	})
	return results, nil
}

// resolveSearchLink unwraps DuckDuckGo redirect links (…/l/?uddg=<target>).
func resolveSearchLink(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// rodRender launches a browser for each page, matching a one-shot request model.
func (p *BrowserProvider) rodRender(ctx context.Context, pageURL string) (html string, err error) {
	log := p.log.WithField("url", pageURL)

	path, exists := launcher.LookPath()
	if !exists {
		log.Error("Cannot find browser executable for rod")
		return "", errors.New("rod browser dependency not found")
	}
	l := launcher.New().Bin(path)
	controlURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err = browser.Connect(); err != nil {
		log.WithError(err).Error("Failed to connect to rod browser")
		l.Kill()
		return "", fmt.Errorf("failed to connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			log.WithError(closeErr).Error("Error closing rod browser instance")
			l.Kill()
			if err == nil {
				err = fmt.Errorf("error closing browser: %w", closeErr)
			}
		}
	}()

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: pageURL})
	if err != nil {
		log.WithError(err).Error("Failed to create rod page")
		return "", fmt.Errorf("failed to create page: %w", err)
	}

	pageCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	page = page.Context(pageCtx)

	if err = page.WaitLoad(); err != nil {
		if errors.Is(pageCtx.Err(), context.DeadlineExceeded) {
			log.WithError(pageCtx.Err()).Warn("Scraping timed out")
			return "", fmt.Errorf("scraping timed out for %s: %w", pageURL, pageCtx.Err())
		}
		return "", fmt.Errorf("failed waiting for page load: %w", err)
	}

	html, err = page.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	return html, nil
}
