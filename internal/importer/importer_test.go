package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall/internal/domain"
	"recall/internal/scraper"
)

// memRepo is an in-memory storage.Repository that records every write.
type memRepo struct {
	mu        sync.Mutex
	items     map[string]domain.SavedItem
	seq       int
	creates   int
	updates   []domain.SavedItem
	createErr error
	updateErr error
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[string]domain.SavedItem)}
}

func (r *memRepo) CreateItem(_ context.Context, item domain.SavedItem) (domain.SavedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return domain.SavedItem{}, r.createErr
	}
	r.seq++
	r.creates++
	item.ID = fmt.Sprintf("item-%d", r.seq)
	item.CreatedAt = time.Unix(int64(r.seq), 0).UTC()
	item.UpdatedAt = item.CreatedAt
	r.items[item.ID] = item
	return item, nil
}

func (r *memRepo) UpdateItem(_ context.Context, item domain.SavedItem) (domain.SavedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return domain.SavedItem{}, r.updateErr
	}
	existing, ok := r.items[item.ID]
	if !ok || existing.UserID != item.UserID {
		return domain.SavedItem{}, domain.ErrNotFound
	}
	item.CreatedAt = existing.CreatedAt
	r.items[item.ID] = item
	r.updates = append(r.updates, item)
	return item, nil
}

func (r *memRepo) GetItem(_ context.Context, userID, id string) (domain.SavedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.UserID != userID {
		return domain.SavedItem{}, domain.ErrNotFound
	}
	return item, nil
}

func (r *memRepo) ListItems(_ context.Context, userID string) ([]domain.SavedItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SavedItem
	for _, item := range r.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) Close() error { return nil }

func (r *memRepo) writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates + len(r.updates)
}

type fakeScraper struct {
	ScrapeFunc func(ctx context.Context, url string, opts scraper.ScrapeOptions) (scraper.Document, error)
	MapFunc    func(ctx context.Context, url string, opts scraper.MapOptions) ([]domain.Link, error)
	SearchFunc func(ctx context.Context, query string, opts scraper.SearchOptions) ([]domain.SearchResult, error)

	mu      sync.Mutex
	scraped []string
	calls   int
}

func (f *fakeScraper) Scrape(ctx context.Context, url string, opts scraper.ScrapeOptions) (scraper.Document, error) {
	f.mu.Lock()
	f.scraped = append(f.scraped, url)
	f.calls++
	f.mu.Unlock()
	if f.ScrapeFunc == nil {
		return scraper.Document{Markdown: "# " + url, Title: url}, nil
	}
	return f.ScrapeFunc(ctx, url, opts)
}

func (f *fakeScraper) Map(ctx context.Context, url string, opts scraper.MapOptions) ([]domain.Link, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.MapFunc(ctx, url, opts)
}

func (f *fakeScraper) Search(ctx context.Context, query string, opts scraper.SearchOptions) ([]domain.SearchResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.SearchFunc(ctx, query, opts)
}

type fakeSummarizer struct {
	StreamFunc   func(ctx context.Context, system, prompt string) (io.ReadCloser, error)
	CompleteFunc func(ctx context.Context, system, prompt string) (string, error)
}

func (f *fakeSummarizer) Stream(ctx context.Context, system, prompt string) (io.ReadCloser, error) {
	return f.StreamFunc(ctx, system, prompt)
}

func (f *fakeSummarizer) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f.CompleteFunc(ctx, system, prompt)
}

func newTestService(repo *memRepo, sc *fakeScraper, sum *fakeSummarizer) *Service {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewService(Deps{Repository: repo, Scraper: sc, Summarizer: sum, Logger: l})
}

func TestImportOne_Success(t *testing.T) {
	repo := newMemRepo()
	sc := &fakeScraper{ScrapeFunc: func(_ context.Context, _ string, opts scraper.ScrapeOptions) (scraper.Document, error) {
		assert.True(t, opts.OnlyMainContent)
		assert.Equal(t, []string{"markdown", "json"}, opts.Formats)
		return scraper.Document{
			Markdown: "# Hello\n\nBody",
			Title:    "Hello",
			OGImage:  "https://example.com/og.png",
			Extract:  scraper.Extract{Author: "Ada", PublishedAt: "2024-03-05T10:00:00Z"},
		}, nil
	}}
	svc := newTestService(repo, sc, nil)

	item, err := svc.ImportOne(context.Background(), "https://example.com/post", "user-1")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, item.Status)
	assert.Equal(t, "user-1", item.UserID)
	assert.Equal(t, "https://example.com/post", item.URL)
	assert.Equal(t, "Hello", domain.Deref(item.Title))
	assert.Equal(t, "# Hello\n\nBody", domain.Deref(item.Content))
	assert.Equal(t, "https://example.com/og.png", domain.Deref(item.OGImage))
	assert.Equal(t, "Ada", domain.Deref(item.Author))
	require.NotNil(t, item.PublishedAt)
	assert.True(t, item.PublishedAt.Equal(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)))

	// One create followed by exactly one terminal update.
	assert.Equal(t, 1, repo.creates)
	require.Len(t, repo.updates, 1)
	assert.Equal(t, domain.StatusCompleted, repo.updates[0].Status)
}

func TestImportOne_ScrapeFailureMarksItemFailed(t *testing.T) {
	repo := newMemRepo()
	sc := &fakeScraper{ScrapeFunc: func(context.Context, string, scraper.ScrapeOptions) (scraper.Document, error) {
		return scraper.Document{}, errors.New("provider down")
	}}
	svc := newTestService(repo, sc, nil)

	item, err := svc.ImportOne(context.Background(), "https://example.com/broken", "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, item.Status)
	assert.Nil(t, item.Title)
	assert.Nil(t, item.Content)

	stored, err := repo.GetItem(context.Background(), "user-1", item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Len(t, repo.updates, 1)
}

func TestImportOne_EmptyFieldsStayNull(t *testing.T) {
	repo := newMemRepo()
	sc := &fakeScraper{ScrapeFunc: func(context.Context, string, scraper.ScrapeOptions) (scraper.Document, error) {
		return scraper.Document{Markdown: "text", Extract: scraper.Extract{PublishedAt: "sometime last spring"}}, nil
	}}
	svc := newTestService(repo, sc, nil)

	item, err := svc.ImportOne(context.Background(), "https://example.com/a", "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, item.Status)
	assert.Nil(t, item.Title)
	assert.Nil(t, item.OGImage)
	assert.Nil(t, item.Author)
	assert.Nil(t, item.PublishedAt, "unparseable dates are dropped")
}

func TestImportOne_InvalidURL(t *testing.T) {
	repo := newMemRepo()
	sc := &fakeScraper{}
	svc := newTestService(repo, sc, nil)

	for _, raw := range []string{"", "not a url", "ftp://example.com/x", "/relative/path"} {
		_, err := svc.ImportOne(context.Background(), raw, "user-1")
		assert.ErrorIs(t, err, domain.ErrInvalidURL, raw)
	}
	assert.Zero(t, repo.writes())
	assert.Zero(t, sc.calls)
}

func TestImportOne_CancelledScrapeStillWritesTerminalStatus(t *testing.T) {
	repo := newMemRepo()
	ctx, cancel := context.WithCancel(context.Background())
	sc := &fakeScraper{ScrapeFunc: func(ctx context.Context, _ string, _ scraper.ScrapeOptions) (scraper.Document, error) {
		cancel()
		return scraper.Document{}, ctx.Err()
	}}
	svc := newTestService(repo, sc, nil)

	item, err := svc.ImportOne(ctx, "https://example.com/slow", "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, item.Status)
}

func TestBulkImport_EmitsOneEventPerURLInOrder(t *testing.T) {
	repo := newMemRepo()
	sc := &fakeScraper{ScrapeFunc: func(_ context.Context, url string, _ scraper.ScrapeOptions) (scraper.Document, error) {
		if strings.Contains(url, "bad") {
			return scraper.Document{}, errors.New("blocked")
		}
		return scraper.Document{Markdown: "ok"}, nil
	}}
	svc := newTestService(repo, sc, nil)

	urls := []string{"https://a.example/1", "https://b.example/bad", "https://c.example/3"}
	seq, err := svc.BulkImport(context.Background(), urls, "user-1")
	require.NoError(t, err)
	assert.Zero(t, repo.writes(), "nothing happens until the sequence is ranged")

	var events []domain.Progress
	var tally domain.Tally
	for p := range seq {
		events = append(events, p)
		tally.Add(p)
	}

	require.Len(t, events, 3)
	for i, p := range events {
		assert.Equal(t, i+1, p.Completed)
		assert.Equal(t, 3, p.Total)
		assert.Equal(t, urls[i], p.URL)
		assert.NotEmpty(t, p.ItemID)
	}
	assert.Equal(t, domain.OutcomeSuccess, events[0].Status)
	assert.Equal(t, domain.OutcomeFailed, events[1].Status)
	assert.Equal(t, domain.OutcomeSuccess, events[2].Status)
	assert.Equal(t, urls, sc.scraped, "imports run sequentially in input order")

	assert.Equal(t, 2, tally.Succeeded)
	assert.Equal(t, 1, tally.Failed)
	assert.Equal(t, 100, tally.Percent())
	assert.Equal(t, "Imported 2 URLs (1 failed)", tally.Message())

	items, err := repo.ListItems(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	for _, item := range items {
		assert.True(t, item.Status.Terminal())
	}
}

func TestBulkImport_ItemsStartPending(t *testing.T) {
	repo := newMemRepo()
	var seen domain.Status
	sc := &fakeScraper{ScrapeFunc: func(context.Context, string, scraper.ScrapeOptions) (scraper.Document, error) {
		seen = repo.items["item-1"].Status
		return scraper.Document{}, nil
	}}
	svc := newTestService(repo, sc, nil)

	seq, err := svc.BulkImport(context.Background(), []string{"https://example.com/"}, "user-1")
	require.NoError(t, err)
	for range seq {
	}
	assert.Equal(t, domain.StatusPending, seen)
}

func TestBulkImport_RejectsWithoutWrites(t *testing.T) {
	repo := newMemRepo()
	sc := &fakeScraper{}
	svc := newTestService(repo, sc, nil)

	_, err := svc.BulkImport(context.Background(), nil, "user-1")
	assert.ErrorIs(t, err, domain.ErrNoURLs)

	_, err = svc.BulkImport(context.Background(), []string{"https://ok.example/", "nope"}, "user-1")
	assert.ErrorIs(t, err, domain.ErrInvalidURL)

	assert.Zero(t, repo.writes())
	assert.Zero(t, sc.calls)
}

func TestBulkImport_StopsWhenConsumerBreaks(t *testing.T) {
	repo := newMemRepo()
	sc := &fakeScraper{}
	svc := newTestService(repo, sc, nil)

	seq, err := svc.BulkImport(context.Background(), []string{
		"https://example.com/1", "https://example.com/2", "https://example.com/3",
	}, "user-1")
	require.NoError(t, err)

	for p := range seq {
		if p.Completed == 1 {
			break
		}
	}
	assert.Equal(t, 1, repo.creates)
	assert.Len(t, sc.scraped, 1)
}

func TestBulkImport_RunsOnce(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &fakeScraper{}, nil)

	seq, err := svc.BulkImport(context.Background(), []string{"https://example.com/1"}, "user-1")
	require.NoError(t, err)

	first, second := 0, 0
	for range seq {
		first++
	}
	for range seq {
		second++
	}
	assert.Equal(t, 1, first)
	assert.Zero(t, second)
	assert.Equal(t, 1, repo.creates)
}

func TestBulkImport_DatastoreErrorReportsFailedAndContinues(t *testing.T) {
	repo := newMemRepo()
	repo.createErr = errors.New("disk full")
	svc := newTestService(repo, &fakeScraper{}, nil)

	seq, err := svc.BulkImport(context.Background(), []string{"https://example.com/1", "https://example.com/2"}, "user-1")
	require.NoError(t, err)

	var events []domain.Progress
	for p := range seq {
		events = append(events, p)
	}
	require.Len(t, events, 2)
	for _, p := range events {
		assert.Equal(t, domain.OutcomeFailed, p.Status)
		assert.Empty(t, p.ItemID)
	}
}

func TestBulkImport_StopsOnCancelledContext(t *testing.T) {
	repo := newMemRepo()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := newTestService(repo, &fakeScraper{}, nil)

	seq, err := svc.BulkImport(ctx, []string{"https://example.com/1", "https://example.com/2"}, "user-1")
	require.NoError(t, err)

	n := 0
	for range seq {
		n++
		cancel()
	}
	assert.Equal(t, 1, n)
}

func TestDiscoverURLs(t *testing.T) {
	repo := newMemRepo()
	sc := &fakeScraper{MapFunc: func(_ context.Context, url string, opts scraper.MapOptions) ([]domain.Link, error) {
		assert.Equal(t, "https://blog.example.com", url)
		assert.Equal(t, MapLimit, opts.Limit)
		assert.Equal(t, "go", opts.Search)
		assert.Equal(t, "US", opts.Country)
		assert.Equal(t, []string{"en"}, opts.Languages)
		return []domain.Link{{URL: "https://blog.example.com/go-1", Title: "Go 1"}}, nil
	}}
	svc := newTestService(repo, sc, nil)

	links, err := svc.DiscoverURLs(context.Background(), "https://blog.example.com", " go ")
	require.NoError(t, err)
	assert.Len(t, links, 1)
	assert.Zero(t, repo.writes())

	_, err = svc.DiscoverURLs(context.Background(), "blog.example.com", "")
	assert.ErrorIs(t, err, domain.ErrInvalidURL)

	sc.MapFunc = func(context.Context, string, scraper.MapOptions) ([]domain.Link, error) {
		return nil, errors.New("rate limited")
	}
	_, err = svc.DiscoverURLs(context.Background(), "https://blog.example.com", "")
	assert.ErrorIs(t, err, domain.ErrUpstream)
}

func TestSearch(t *testing.T) {
	sc := &fakeScraper{SearchFunc: func(_ context.Context, query string, opts scraper.SearchOptions) ([]domain.SearchResult, error) {
		assert.Equal(t, "golang generics", query)
		assert.Equal(t, SearchLimit, opts.Limit)
		assert.Equal(t, "US", opts.Country)
		assert.Equal(t, "qdr:y", opts.TBS)
		return []domain.SearchResult{{URL: "https://go.dev/blog/intro-generics", Title: "Intro"}}, nil
	}}
	svc := newTestService(newMemRepo(), sc, nil)

	results, err := svc.Search(context.Background(), "  golang generics ")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearch_EmptyQuerySkipsProvider(t *testing.T) {
	sc := &fakeScraper{}
	svc := newTestService(newMemRepo(), sc, nil)

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := svc.Search(context.Background(), q)
		assert.ErrorIs(t, err, domain.ErrEmptyQuery)
	}
	assert.Zero(t, sc.calls)
}

func TestListAndGetItemAreOwnerScoped(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo, &fakeScraper{}, nil)
	ctx := context.Background()

	mine, err := svc.ImportOne(ctx, "https://example.com/mine", "alice")
	require.NoError(t, err)
	_, err = svc.ImportOne(ctx, "https://example.com/theirs", "bob")
	require.NoError(t, err)

	items, err := svc.ListItems(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, mine.ID, items[0].ID)

	_, err = svc.GetItem(ctx, "bob", mine.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
