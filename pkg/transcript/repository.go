package transcript

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DBProvider hands out gorm handles. frame's datastore pool satisfies it.
type DBProvider interface {
	DB(ctx context.Context, readOnly bool) *gorm.DB
}

// Repository stores and lists transcript entries.
type Repository struct {
	pool DBProvider
}

// NewRepository creates a new transcript repository.
func NewRepository(pool DBProvider) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// Migrate creates or updates the transcript table.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db(ctx, false).AutoMigrate(&Entry{})
}

// Append stores an entry. Redelivered events with a known EventID are
// ignored.
func (r *Repository) Append(ctx context.Context, e *Entry) error {
	return r.db(ctx, false).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(e).Error
}

// ListBySession returns the entries of a session, oldest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]Entry, error) {
	var entries []Entry
	q := r.db(ctx, true).
		Where("session_id = ?", sessionID).
		Order("occurred_at ASC").
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	err := q.Find(&entries).Error
	return entries, err
}

// CountBySession returns how many entries a session has.
func (r *Repository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := r.db(ctx, true).Model(&Entry{}).Where("session_id = ?", sessionID).Count(&n).Error
	return n, err
}
