package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"recall/internal/domain"
)

// BadgerRepository implements the Repository interface using BadgerDB.
type BadgerRepository struct {
	db  *badger.DB
	log logrus.FieldLogger
	now func() time.Time
}

var _ Repository = (*BadgerRepository)(nil)

// NewBadgerRepository opens (or creates) the database at dbPath.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger) (*BadgerRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerRepository{
		db:  db,
		log: logger.WithField("component", "repository"),
		now: time.Now,
	}, nil
}

// Close closes the BadgerDB database connection.
func (r *BadgerRepository) Close() error {
	r.log.Info("Closing BadgerDB...")
	err := r.db.Close()
	if err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	r.log.Info("BadgerDB closed.")
	return nil
}

// itemKey format: user:{userID}:item:{itemID}
func itemKey(userID, itemID string) []byte {
	return []byte(fmt.Sprintf("user:%s:item:%s", userID, itemID))
}

// userPrefix format: user:{userID}:item:
func userPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("user:%s:item:", userID))
}

// CreateItem stores a new item.
func (r *BadgerRepository) CreateItem(ctx context.Context, item domain.SavedItem) (domain.SavedItem, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := r.now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	log := r.log.WithFields(logrus.Fields{
		"user_id": item.UserID,
		"item_id": item.ID,
		"url":     item.URL,
	})

	val, err := json.Marshal(item)
	if err != nil {
		return domain.SavedItem{}, fmt.Errorf("failed to marshal item: %w", err)
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(itemKey(item.UserID, item.ID), val))
	})
	if err != nil {
		log.WithError(err).Error("Failed to create item in BadgerDB")
		return domain.SavedItem{}, fmt.Errorf("failed to create item: %w", err)
	}

	log.WithField("status", item.Status).Debug("Item created")
	return item, nil
}

// UpdateItem replaces an existing item, keeping its creation time.
func (r *BadgerRepository) UpdateItem(ctx context.Context, item domain.SavedItem) (domain.SavedItem, error) {
	log := r.log.WithFields(logrus.Fields{
		"user_id": item.UserID,
		"item_id": item.ID,
	})
	key := itemKey(item.UserID, item.ID)

	err := r.db.Update(func(txn *badger.Txn) error {
		existing, err := getItem(txn, key, item.UserID)
		if err != nil {
			return err
		}
		item.CreatedAt = existing.CreatedAt
		item.UpdatedAt = r.now().UTC()

		val, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item: %w", err)
		}
		return txn.SetEntry(badger.NewEntry(key, val))
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.WithError(err).Error("Failed to update item in BadgerDB")
		}
		return domain.SavedItem{}, fmt.Errorf("failed to update item %s: %w", item.ID, err)
	}

	log.WithField("status", item.Status).Debug("Item updated")
	return item, nil
}

// GetItem returns a single item owned by userID.
func (r *BadgerRepository) GetItem(ctx context.Context, userID, id string) (domain.SavedItem, error) {
	var item domain.SavedItem
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		item, err = getItem(txn, itemKey(userID, id), userID)
		return err
	})
	if err != nil {
		return domain.SavedItem{}, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	return item, nil
}

// getItem loads the item at key. Keys of different owners can collide when an
// owner id contains ":item:", so the stored owner must match userID as well.
func getItem(txn *badger.Txn, key []byte, userID string) (domain.SavedItem, error) {
	var item domain.SavedItem
	entry, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return item, domain.ErrNotFound
	}
	if err != nil {
		return item, err
	}
	err = entry.Value(func(val []byte) error {
		return json.Unmarshal(val, &item)
	})
	if err != nil {
		return item, fmt.Errorf("failed to unmarshal item for key %s: %w", string(key), err)
	}
	if item.UserID != userID {
		return domain.SavedItem{}, domain.ErrNotFound
	}
	return item, nil
}

// ListItems retrieves all items for a user, newest first.
func (r *BadgerRepository) ListItems(ctx context.Context, userID string) ([]domain.SavedItem, error) {
	log := r.log.WithField("user_id", userID)

	items := []domain.SavedItem{}
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := userPrefix(userID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			entry := it.Item()
			err := entry.Value(func(val []byte) error {
				var item domain.SavedItem
				if err := json.Unmarshal(val, &item); err != nil {
					log.WithError(err).WithField("key", string(entry.Key())).Error("Failed to unmarshal item from DB")
					return fmt.Errorf("failed to unmarshal item for key %s: %w", string(entry.Key()), err)
				}
				// Prefixes can collide when a user ID itself contains ":item:".
				if item.UserID == userID {
					items = append(items, item)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to list items from BadgerDB")
		return nil, fmt.Errorf("failed to list items for user %s: %w", userID, err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	log.WithField("item_count", len(items)).Debug("Items listed")
	return items, nil
}

// RunGC periodically reclaims value log space until ctx is cancelled.
func (r *BadgerRepository) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := r.db.RunValueLogGC(0.7)
			switch {
			case err == nil:
				r.log.Info("BadgerDB GC completed successfully")
			case errors.Is(err, badger.ErrNoRewrite):
				r.log.Debug("BadgerDB GC: No rewrite needed")
			case errors.Is(err, badger.ErrDBClosed):
				return
			default:
				r.log.WithError(err).Error("BadgerDB GC failed")
			}
		case <-ctx.Done():
			r.log.Info("Stopping BadgerDB GC routine")
			return
		}
	}
}

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
