package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/phrazzld/pitchside/internal/domain"
)

// MatchFilter narrows a MatchStore.Query call. Zero-value fields are
// ignored.
type MatchFilter struct {
	// GroupKey restricts results to one betting group.
	GroupKey string

	// ActiveOnly drops matches deactivated by a newer schedule pull.
	ActiveOnly bool

	// KickoffAfter / KickoffBefore bound the kickoff time window.
	KickoffAfter  time.Time
	KickoffBefore time.Time

	// UnresolvedOnly keeps only matches without a recorded final score.
	UnresolvedOnly bool

	// DeepSelectedOnly keeps only matches marked for deep analysis.
	DeepSelectedOnly bool
}

// ResultUpdate reports the outcome of recording one final score.
type ResultUpdate struct {
	// GroupKey is the betting group the match belongs to.
	GroupKey string

	// GroupCompleted is true only on the false-to-true transition of the
	// group's completion flag. Recording a result for a match whose group
	// was already complete reports false, which keeps downstream accuracy
	// recomputes idempotent.
	GroupCompleted bool
}

// MatchStore defines the interface for match persistence.
type MatchStore interface {
	// UpsertSchedule writes a freshly scraped schedule batch. Every match
	// in the batch becomes active; previously active matches absent from
	// the batch are deactivated, never deleted, so resolved history stays
	// available for accuracy accounting. Matches missing a group key are
	// rejected with a validation error before anything is written.
	UpsertSchedule(ctx context.Context, matches []domain.Match) (int, error)

	// RecordResult stores the final (and optional half-time) score for the
	// match with the given code and re-evaluates its group's completion
	// state. Returns ErrMatchNotFound for unknown codes.
	RecordResult(ctx context.Context, code, score, halfScore string) (ResultUpdate, error)

	// ArchiveResult stores the raw scraped result row for a match. The
	// archive keeps whatever the result source reported even when the
	// match itself is unknown, so re-scrapes can be reconciled later.
	ArchiveResult(ctx context.Context, result domain.Result) error

	// MarkDeepSelection replaces the current deep-analysis selection with
	// the given match codes. Passing an empty slice clears the selection.
	MarkDeepSelection(ctx context.Context, codes []string) error

	// Query returns matches satisfying the filter, ordered by kickoff time.
	Query(ctx context.Context, filter MatchFilter) ([]domain.Match, error)

	// GetByCode retrieves a single match by its unique code.
	GetByCode(ctx context.Context, code string) (*domain.Match, error)

	// WithTx returns a new MatchStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) MatchStore
}
