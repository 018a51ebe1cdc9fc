package importer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recall/internal/domain"
	"recall/internal/summarizer"
)

func seedItem(t *testing.T, repo *memRepo, owner string) domain.SavedItem {
	t.Helper()
	item, err := repo.CreateItem(context.Background(), domain.SavedItem{
		URL:     "https://example.com/a",
		UserID:  owner,
		Status:  domain.StatusCompleted,
		Content: domain.StringPtr("article body"),
	})
	require.NoError(t, err)
	return item
}

func TestStreamSummary(t *testing.T) {
	repo := newMemRepo()
	item := seedItem(t, repo, "alice")
	sum := &fakeSummarizer{StreamFunc: func(_ context.Context, system, prompt string) (io.ReadCloser, error) {
		assert.Equal(t, summarizer.SummarySystemPrompt, system)
		assert.Contains(t, prompt, "article body")
		return io.NopCloser(strings.NewReader("A short summary.")), nil
	}}
	svc := newTestService(repo, &fakeScraper{}, sum)

	rc, err := svc.StreamSummary(context.Background(), "alice", item.ID, "article body")
	require.NoError(t, err)
	defer rc.Close()
	text, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", string(text))

	assert.Equal(t, 1, repo.writes(), "streaming persists nothing")
}

func TestStreamSummary_ForeignItem(t *testing.T) {
	repo := newMemRepo()
	item := seedItem(t, repo, "alice")
	sum := &fakeSummarizer{StreamFunc: func(context.Context, string, string) (io.ReadCloser, error) {
		t.Fatal("summarizer must not be called")
		return nil, nil
	}}
	svc := newTestService(repo, &fakeScraper{}, sum)

	_, err := svc.StreamSummary(context.Background(), "bob", item.ID, "text")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSaveSummary(t *testing.T) {
	repo := newMemRepo()
	item := seedItem(t, repo, "alice")
	sum := &fakeSummarizer{CompleteFunc: func(_ context.Context, system, prompt string) (string, error) {
		assert.Equal(t, summarizer.TagsSystemPrompt, system)
		assert.Contains(t, prompt, "Go is fun.")
		return "Tech, Programming, Web Dev", nil
	}}
	svc := newTestService(repo, &fakeScraper{}, sum)

	saved, err := svc.SaveSummary(context.Background(), "alice", item.ID, "  Go is fun.  ")
	require.NoError(t, err)
	assert.Equal(t, "Go is fun.", domain.Deref(saved.Summary))
	assert.Equal(t, []string{"tech", "programming", "web dev"}, saved.Tags)

	// Summary and tags land together in a single write.
	require.Len(t, repo.updates, 1)
	assert.Equal(t, "Go is fun.", domain.Deref(repo.updates[0].Summary))
	assert.Equal(t, saved.Tags, repo.updates[0].Tags)
}

func TestSaveSummary_TagFailureWritesNothing(t *testing.T) {
	repo := newMemRepo()
	item := seedItem(t, repo, "alice")
	sum := &fakeSummarizer{CompleteFunc: func(context.Context, string, string) (string, error) {
		return "", errors.New("model overloaded")
	}}
	svc := newTestService(repo, &fakeScraper{}, sum)

	_, err := svc.SaveSummary(context.Background(), "alice", item.ID, "A summary.")
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Empty(t, repo.updates)

	stored, err := repo.GetItem(context.Background(), "alice", item.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Summary)
	assert.Nil(t, stored.Tags)
}

func TestSaveSummary_Validation(t *testing.T) {
	repo := newMemRepo()
	item := seedItem(t, repo, "alice")
	called := false
	sum := &fakeSummarizer{CompleteFunc: func(context.Context, string, string) (string, error) {
		called = true
		return "x", nil
	}}
	svc := newTestService(repo, &fakeScraper{}, sum)

	_, err := svc.SaveSummary(context.Background(), "alice", item.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrEmptySummary)

	_, err = svc.SaveSummary(context.Background(), "bob", item.ID, "A summary.")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.SaveSummary(context.Background(), "alice", "missing", "A summary.")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.False(t, called)
	assert.Empty(t, repo.updates)
}

func TestSaveSummary_NoTagsYieldsEmptyList(t *testing.T) {
	repo := newMemRepo()
	item := seedItem(t, repo, "alice")
	sum := &fakeSummarizer{CompleteFunc: func(context.Context, string, string) (string, error) {
		return " , ,", nil
	}}
	svc := newTestService(repo, &fakeScraper{}, sum)

	saved, err := svc.SaveSummary(context.Background(), "alice", item.ID, "A summary.")
	require.NoError(t, err)
	assert.NotNil(t, saved.Tags)
	assert.Empty(t, saved.Tags)
}
