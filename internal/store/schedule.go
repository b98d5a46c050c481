package store

import (
	"context"

	"github.com/phrazzld/pitchside/internal/domain"
)

// ScheduleConfigStore defines the interface for persisted scheduler
// configuration. These rows are the source of truth; the scheduler's
// in-memory job table is rebuilt from them on every change.
type ScheduleConfigStore interface {
	// GetAll returns every stored schedule config, enabled or not.
	GetAll(ctx context.Context) ([]domain.ScheduleConfig, error)

	// SaveAll validates and upserts the given configs. Validation happens
	// here, at save time: a config with an unparsable time point rejects
	// the whole batch and nothing is written.
	SaveAll(ctx context.Context, configs []domain.ScheduleConfig) error
}

// AccuracyStore defines the interface for persisted accuracy records.
type AccuracyStore interface {
	// Upsert replaces the stored record for the record's tier.
	Upsert(ctx context.Context, record domain.AccuracyRecord) error

	// GetAll returns the stored record per tier.
	GetAll(ctx context.Context) (map[domain.Tier]domain.AccuracyRecord, error)
}
