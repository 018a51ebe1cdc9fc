package domain

import "time"

// Status is the import lifecycle state of a SavedItem.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further import transitions happen from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// SavedItem represents one imported URL and the content scraped from it.
type SavedItem struct {
	// ID is generated when the item is created.
	ID string `json:"id"`

	// URL is the page the item was imported from.
	URL string `json:"url"`

	// UserID owns the item. Every read and write is scoped to it.
	UserID string `json:"userId"`

	Status Status `json:"status"`

	// Scraped fields, nil until a scrape completes.
	Title       *string    `json:"title"`
	Content     *string    `json:"content"`
	OGImage     *string    `json:"ogImage"`
	Author      *string    `json:"author"`
	PublishedAt *time.Time `json:"publishedAt"`

	// Summary and Tags are written by a separate, user-triggered action.
	Summary *string  `json:"summary"`
	Tags    []string `json:"tags"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StringPtr returns nil for an empty string and a pointer to s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
