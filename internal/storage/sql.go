package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"recall/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS saved_items (
    id           TEXT PRIMARY KEY,
    user_id      TEXT NOT NULL,
    url          TEXT NOT NULL,
    status       TEXT NOT NULL,
    title        TEXT,
    content      TEXT,
    og_image     TEXT,
    author       TEXT,
    published_at TIMESTAMP,
    summary      TEXT,
    tags         TEXT,
    created_at   TIMESTAMP NOT NULL,
    updated_at   TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saved_items_user_created ON saved_items(user_id, created_at DESC);
`

var itemColumns = []string{
	"id", "user_id", "url", "status",
	"title", "content", "og_image", "author", "published_at",
	"summary", "tags", "created_at", "updated_at",
}

// SQLRepository persists saved items in SQLite (modernc) or Postgres (lib/pq).
type SQLRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
	log     logrus.FieldLogger
	now     func() time.Time
}

var _ Repository = (*SQLRepository)(nil)

// NewSQLRepository opens the database for driver ("sqlite" or "postgres")
// and creates the schema if needed.
func NewSQLRepository(driver, dsn string, logger logrus.FieldLogger) (*SQLRepository, error) {
	placeholder, err := placeholderFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.WithField("driver", driver).Info("SQL repository ready")

	return &SQLRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(placeholder),
		log:     logger.WithField("component", "repository"),
		now:     time.Now,
	}, nil
}

// placeholderFor returns the bind-parameter style of driver.
func placeholderFor(driver string) (sq.PlaceholderFormat, error) {
	switch driver {
	case "sqlite":
		return sq.Question, nil
	case "postgres":
		return sq.Dollar, nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// Close closes the underlying connection pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// CreateItem inserts a new row.
func (r *SQLRepository) CreateItem(ctx context.Context, item domain.SavedItem) (domain.SavedItem, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	now := r.now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	tags, err := encodeTags(item.Tags)
	if err != nil {
		return domain.SavedItem{}, err
	}

	query, args, err := r.builder.Insert("saved_items").
		Columns(itemColumns...).
		Values(
			item.ID, item.UserID, item.URL, string(item.Status),
			item.Title, item.Content, item.OGImage, item.Author, nullTime(item.PublishedAt),
			item.Summary, tags, item.CreatedAt.UTC(), item.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return domain.SavedItem{}, fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.log.WithError(err).WithField("item_id", item.ID).Error("Failed to insert item")
		return domain.SavedItem{}, fmt.Errorf("failed to create item: %w", err)
	}
	return item, nil
}

// UpdateItem overwrites the mutable columns of an owned row.
func (r *SQLRepository) UpdateItem(ctx context.Context, item domain.SavedItem) (domain.SavedItem, error) {
	tags, err := encodeTags(item.Tags)
	if err != nil {
		return domain.SavedItem{}, err
	}
	updatedAt := r.now().UTC()

	query, args, err := r.builder.Update("saved_items").
		SetMap(map[string]any{
			"url":          item.URL,
			"status":       string(item.Status),
			"title":        item.Title,
			"content":      item.Content,
			"og_image":     item.OGImage,
			"author":       item.Author,
			"published_at": nullTime(item.PublishedAt),
			"summary":      item.Summary,
			"tags":         tags,
			"updated_at":   updatedAt,
		}).
		Where(sq.Eq{"id": item.ID, "user_id": item.UserID}).
		ToSql()
	if err != nil {
		return domain.SavedItem{}, fmt.Errorf("build update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.WithError(err).WithField("item_id", item.ID).Error("Failed to update item")
		return domain.SavedItem{}, fmt.Errorf("failed to update item %s: %w", item.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.SavedItem{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.SavedItem{}, fmt.Errorf("failed to update item %s: %w", item.ID, domain.ErrNotFound)
	}

	// Read back so CreatedAt reflects the stored row.
	return r.GetItem(ctx, item.UserID, item.ID)
}

// GetItem returns one owned row.
func (r *SQLRepository) GetItem(ctx context.Context, userID, id string) (domain.SavedItem, error) {
	query, args, err := r.builder.Select(itemColumns...).
		From("saved_items").
		Where(sq.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return domain.SavedItem{}, fmt.Errorf("build select: %w", err)
	}

	item, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SavedItem{}, fmt.Errorf("failed to get item %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.SavedItem{}, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	return item, nil
}

// ListItems returns the user's rows ordered by creation time, newest first.
func (r *SQLRepository) ListItems(ctx context.Context, userID string) ([]domain.SavedItem, error) {
	query, args, err := r.builder.Select(itemColumns...).
		From("saved_items").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []domain.SavedItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (domain.SavedItem, error) {
	var (
		item                                  domain.SavedItem
		status                                string
		title, content, ogImage, author, summ sql.NullString
		tags                                  sql.NullString
		publishedAt                           sql.NullTime
	)
	err := row.Scan(
		&item.ID, &item.UserID, &item.URL, &status,
		&title, &content, &ogImage, &author, &publishedAt,
		&summ, &tags, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return domain.SavedItem{}, err
	}

	item.Status = domain.Status(status)
	item.Title = fromNull(title)
	item.Content = fromNull(content)
	item.OGImage = fromNull(ogImage)
	item.Author = fromNull(author)
	item.Summary = fromNull(summ)
	if publishedAt.Valid {
		t := publishedAt.Time
		item.PublishedAt = &t
	}
	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &item.Tags); err != nil {
			return domain.SavedItem{}, fmt.Errorf("decode tags: %w", err)
		}
	}
	return item, nil
}

func fromNull(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func encodeTags(tags []string) (sql.NullString, error) {
	if tags == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode tags: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
