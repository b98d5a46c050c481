package store

import (
	"context"
	"database/sql"

	"github.com/phrazzld/pitchside/internal/domain"
)

// PredictionStore defines the interface for prediction persistence.
// At most one prediction row exists per match code.
type PredictionStore interface {
	// Save upserts the prediction for its match code. Deep-tier writes
	// always replace the stored row; a quick-tier write against an
	// existing deep-tier row is a no-op (deep is authoritative) and
	// returns false. Returns true when the row was written.
	Save(ctx context.Context, prediction *domain.Prediction) (bool, error)

	// GetByCode retrieves the prediction for a match code.
	// Returns ErrPredictionNotFound if no prediction exists.
	GetByCode(ctx context.Context, code string) (*domain.Prediction, error)

	// GetForCodes retrieves predictions for the given match codes, keyed
	// by code. Codes without a prediction are simply absent from the map.
	GetForCodes(ctx context.Context, codes []string) (map[string]domain.Prediction, error)

	// WithTx returns a new PredictionStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) PredictionStore
}
