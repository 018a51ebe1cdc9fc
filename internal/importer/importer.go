package importer

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"

	"recall/internal/domain"
	"recall/internal/scraper"
	"recall/internal/storage"
	"recall/internal/summarizer"
)

// Fixed provider hints.
const (
	MapLimit      = 25
	SearchLimit   = 15
	SearchCountry = "US"
	SearchRecency = "qdr:y"
)

var mapLanguages = []string{"en"}

// Deps wires the external collaborators into the Service.
type Deps struct {
	Repository storage.Repository
	Scraper    scraper.Provider
	Summarizer summarizer.Summarizer
	Logger     logrus.FieldLogger
}

// Service coordinates imports, discovery, search and summaries for one owner at a time.
type Service struct {
	repo       storage.Repository
	scraper    scraper.Provider
	summarizer summarizer.Summarizer
	log        logrus.FieldLogger
}

// NewService constructs the orchestrator.
func NewService(deps Deps) *Service {
	return &Service{
		repo:       deps.Repository,
		scraper:    deps.Scraper,
		summarizer: deps.Summarizer,
		log:        deps.Logger.WithField("component", "importer"),
	}
}

// ImportOne saves rawURL for ownerID and scrapes it. A scrape failure is
// recorded on the returned item as FAILED and is not returned as an error.
func (s *Service) ImportOne(ctx context.Context, rawURL, ownerID string) (domain.SavedItem, error) {
	if err := domain.ValidateURL(rawURL); err != nil {
		return domain.SavedItem{}, err
	}
	return s.importURL(ctx, strings.TrimSpace(rawURL), ownerID, domain.StatusProcessing)
}

// importURL runs create, scrape, then exactly one terminal update.
func (s *Service) importURL(ctx context.Context, url, ownerID string, initial domain.Status) (domain.SavedItem, error) {
	item, err := s.repo.CreateItem(ctx, domain.SavedItem{
		URL:    url,
		UserID: ownerID,
		Status: initial,
	})
	if err != nil {
		return domain.SavedItem{}, fmt.Errorf("create item: %w", err)
	}

	log := s.log.WithFields(logrus.Fields{
		"user_id": ownerID,
		"item_id": item.ID,
		"url":     url,
	})

	// The terminal write must land even if the caller went away mid-scrape.
	writeCtx := context.WithoutCancel(ctx)

	doc, err := s.scraper.Scrape(ctx, url, scraper.ArticleOptions())
	if err != nil {
		log.WithError(err).Warn("Scrape failed, marking item as failed")
		item.Status = domain.StatusFailed
		failed, uerr := s.repo.UpdateItem(writeCtx, item)
		if uerr != nil {
			return item, fmt.Errorf("mark item failed: %w", uerr)
		}
		return failed, nil
	}

	item.Status = domain.StatusCompleted
	item.Title = domain.StringPtr(doc.Title)
	item.Content = domain.StringPtr(doc.Markdown)
	item.OGImage = domain.StringPtr(doc.OGImage)
	item.Author = domain.StringPtr(strings.TrimSpace(doc.Extract.Author))
	item.PublishedAt = parsePublishedAt(doc.Extract.PublishedAt)

	updated, err := s.repo.UpdateItem(writeCtx, item)
	if err != nil {
		return item, fmt.Errorf("complete item: %w", err)
	}
	log.Info("Item imported")
	return updated, nil
}

// parsePublishedAt accepts the provider's date only when it parses.
func parsePublishedAt(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}

// DiscoverURLs maps seedURL into candidate links. Nothing is persisted.
func (s *Service) DiscoverURLs(ctx context.Context, seedURL, filter string) ([]domain.Link, error) {
	if err := domain.ValidateURL(seedURL); err != nil {
		return nil, err
	}
	links, err := s.scraper.Map(ctx, strings.TrimSpace(seedURL), scraper.MapOptions{
		Limit:     MapLimit,
		Search:    strings.TrimSpace(filter),
		Country:   SearchCountry,
		Languages: mapLanguages,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: map %s: %w", domain.ErrUpstream, seedURL, err)
	}
	return links, nil
}

// BulkImport validates urls and returns the import as a lazy sequence with
// one Progress per URL, in input order. Items are processed one at a time
// while the sequence is ranged over. The sequence runs once; ranging it
// again yields nothing. Breaking out of the range stops before the next URL.
func (s *Service) BulkImport(ctx context.Context, urls []string, ownerID string) (iter.Seq[domain.Progress], error) {
	if len(urls) == 0 {
		return nil, domain.ErrNoURLs
	}
	cleaned := make([]string, len(urls))
	for i, u := range urls {
		if err := domain.ValidateURL(u); err != nil {
			return nil, err
		}
		cleaned[i] = strings.TrimSpace(u)
	}

	log := s.log.WithFields(logrus.Fields{"user_id": ownerID, "total": len(cleaned)})
	var started atomic.Bool

	return func(yield func(domain.Progress) bool) {
		if !started.CompareAndSwap(false, true) {
			return
		}
		log.Info("Bulk import started")

		for i, u := range cleaned {
			if err := ctx.Err(); err != nil {
				log.WithError(err).WithField("completed", i).Warn("Bulk import cancelled")
				return
			}

			p := domain.Progress{
				Completed: i + 1,
				Total:     len(cleaned),
				URL:       u,
				Status:    domain.OutcomeSuccess,
			}
			item, err := s.importURL(ctx, u, ownerID, domain.StatusPending)
			p.ItemID = item.ID
			if err != nil {
				log.WithError(err).WithField("url", u).Error("Bulk item could not be recorded")
				p.Status = domain.OutcomeFailed
			} else if item.Status != domain.StatusCompleted {
				p.Status = domain.OutcomeFailed
			}

			if !yield(p) {
				return
			}
		}
		log.Info("Bulk import finished")
	}, nil
}

// Search runs a web search. Blank queries are rejected before any provider call.
func (s *Service) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, domain.ErrEmptyQuery
	}
	results, err := s.scraper.Search(ctx, q, scraper.SearchOptions{
		Limit:   SearchLimit,
		Country: SearchCountry,
		TBS:     SearchRecency,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", domain.ErrUpstream, err)
	}
	return results, nil
}

// ListItems returns the owner's items, newest first.
func (s *Service) ListItems(ctx context.Context, ownerID string) ([]domain.SavedItem, error) {
	return s.repo.ListItems(ctx, ownerID)
}

// GetItem returns one owned item or domain.ErrNotFound.
func (s *Service) GetItem(ctx context.Context, ownerID, id string) (domain.SavedItem, error) {
	return s.repo.GetItem(ctx, ownerID, id)
}
