package importer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"recall/internal/domain"
	"recall/internal/summarizer"
)

// StreamSummary streams a generated summary of prompt for an owned item.
// Nothing is persisted; the caller saves the final text with SaveSummary.
func (s *Service) StreamSummary(ctx context.Context, ownerID, itemID, prompt string) (io.ReadCloser, error) {
	if _, err := s.repo.GetItem(ctx, ownerID, itemID); err != nil {
		return nil, err
	}

	stream, err := s.summarizer.Stream(ctx, summarizer.SummarySystemPrompt, summarizer.SummaryPrompt(prompt))
	if err != nil {
		return nil, fmt.Errorf("%w: summary stream: %w", domain.ErrUpstream, err)
	}
	return stream, nil
}

// SaveSummary derives tags from summary and stores both on the owned item
// in a single update. Nothing is written if tag generation fails.
func (s *Service) SaveSummary(ctx context.Context, ownerID, itemID, summary string) (domain.SavedItem, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return domain.SavedItem{}, domain.ErrEmptySummary
	}

	item, err := s.repo.GetItem(ctx, ownerID, itemID)
	if err != nil {
		return domain.SavedItem{}, err
	}

	text, err := s.summarizer.Complete(ctx, summarizer.TagsSystemPrompt, summarizer.TagsPrompt(summary))
	if err != nil {
		return domain.SavedItem{}, fmt.Errorf("%w: tags: %w", domain.ErrUpstream, err)
	}

	item.Summary = &summary
	item.Tags = summarizer.ParseTags(text)

	updated, err := s.repo.UpdateItem(ctx, item)
	if err != nil {
		return domain.SavedItem{}, fmt.Errorf("save summary: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id": ownerID,
		"item_id": itemID,
		"tags":    updated.Tags,
	}).Info("Summary saved")
	return updated, nil
}
