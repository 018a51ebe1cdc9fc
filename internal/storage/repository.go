package storage

import (
	"context"

	"recall/internal/domain"
)

// Repository defines the interface for saved item persistence.
// Every lookup is scoped to the owning user; an item that exists under another
// owner is reported as domain.ErrNotFound, same as a missing one.
type Repository interface {
	// CreateItem stores a new item. A missing ID or timestamps are filled in.
	CreateItem(ctx context.Context, item domain.SavedItem) (domain.SavedItem, error)

	// UpdateItem replaces an existing item owned by item.UserID.
	UpdateItem(ctx context.Context, item domain.SavedItem) (domain.SavedItem, error)

	// GetItem returns one item owned by userID.
	GetItem(ctx context.Context, userID, id string) (domain.SavedItem, error)

	// ListItems returns the user's items, newest first.
	ListItems(ctx context.Context, userID string) ([]domain.SavedItem, error)

	// Close gracefully shuts down the repository connection.
	Close() error
}
