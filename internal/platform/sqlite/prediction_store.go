package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/platform/logger"
	"github.com/phrazzld/pitchside/internal/store"
)

// SQLitePredictionStore implements the store.PredictionStore interface
// using the embedded SQLite database as the storage backend.
type SQLitePredictionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSQLitePredictionStore creates a new SQLite implementation of the
// PredictionStore interface. If logger is nil, a default logger will be used.
func NewSQLitePredictionStore(db store.DBTX, logger *slog.Logger) *SQLitePredictionStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SQLitePredictionStore{
		db:     db,
		logger: logger.With(slog.String("component", "prediction_store")),
	}
}

// Ensure SQLitePredictionStore implements store.PredictionStore interface
var _ store.PredictionStore = (*SQLitePredictionStore)(nil)

// Save implements store.PredictionStore.Save.
// Deep-tier rows are authoritative: a quick-tier write against an existing
// deep-tier row is skipped and reported with a false return. The guard
// lives in the statement itself so concurrent quick and deep batches
// cannot interleave a stale tier check with the write.
func (s *SQLitePredictionStore) Save(ctx context.Context, prediction *domain.Prediction) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := prediction.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	scoresJSON, err := json.Marshal(prediction.Scores)
	if err != nil {
		return false, store.NewStoreError("prediction", "save", "failed to encode scores", err)
	}

	query := `
		INSERT INTO predictions (code, tier, scores_json, reason, predicted_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			tier = excluded.tier,
			scores_json = excluded.scores_json,
			reason = excluded.reason,
			predicted_at = excluded.predicted_at
		WHERE predictions.tier != ? OR excluded.tier = ?
	`

	var affected int64
	err = withBusyRetry(ctx, func() error {
		result, execErr := s.db.ExecContext(ctx, query,
			prediction.Code,
			string(prediction.Tier),
			string(scoresJSON),
			prediction.Reason,
			prediction.PredictedAt.UTC(),
			string(domain.TierDeep),
			string(domain.TierDeep),
		)
		if execErr != nil {
			return execErr
		}
		affected, execErr = result.RowsAffected()
		return execErr
	})
	if err != nil {
		log.Error("failed to save prediction",
			"code", prediction.Code, "tier", prediction.Tier, "error", err)
		return false, store.NewStoreError("prediction", "save", "failed to save prediction", err)
	}

	if affected == 0 {
		log.Debug("skipped quick prediction over deep analysis",
			"code", prediction.Code)
		return false, nil
	}
	return true, nil
}

// GetByCode implements store.PredictionStore.GetByCode.
func (s *SQLitePredictionStore) GetByCode(ctx context.Context, code string) (*domain.Prediction, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	row := s.db.QueryRowContext(ctx,
		"SELECT code, tier, scores_json, reason, predicted_at FROM predictions WHERE code = ?",
		code)

	prediction, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPredictionNotFound
		}
		log.Error("failed to get prediction", "code", code, "error", err)
		return nil, store.NewStoreError("prediction", "get_by_code", "failed to get prediction", err)
	}

	return prediction, nil
}

// GetForCodes implements store.PredictionStore.GetForCodes.
func (s *SQLitePredictionStore) GetForCodes(ctx context.Context, codes []string) (map[string]domain.Prediction, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	predictions := make(map[string]domain.Prediction, len(codes))
	if len(codes) == 0 {
		return predictions, nil
	}

	placeholders := make([]string, len(codes))
	args := make([]interface{}, len(codes))
	for i, code := range codes {
		placeholders[i] = "?"
		args[i] = code
	}

	query := "SELECT code, tier, scores_json, reason, predicted_at FROM predictions WHERE code IN (" +
		strings.Join(placeholders, ", ") + ")"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query predictions", "error", err)
		return nil, store.NewStoreError("prediction", "get_for_codes", "failed to query predictions", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		prediction, err := scanPrediction(rows)
		if err != nil {
			log.Error("failed to scan prediction row", "error", err)
			return nil, store.NewStoreError("prediction", "get_for_codes", "failed to scan prediction row", err)
		}
		predictions[prediction.Code] = *prediction
	}
	if err := rows.Err(); err != nil {
		log.Error("error iterating prediction rows", "error", err)
		return nil, store.NewStoreError("prediction", "get_for_codes", "error iterating prediction rows", err)
	}

	return predictions, nil
}

// WithTx implements store.PredictionStore.WithTx.
func (s *SQLitePredictionStore) WithTx(tx *sql.Tx) store.PredictionStore {
	return &SQLitePredictionStore{
		db:     tx,
		logger: s.logger,
	}
}

func scanPrediction(row rowScanner) (*domain.Prediction, error) {
	var p domain.Prediction
	var tier string
	var scoresJSON string

	err := row.Scan(&p.Code, &tier, &scoresJSON, &p.Reason, &p.PredictedAt)
	if err != nil {
		return nil, err
	}

	p.Tier = domain.Tier(tier)
	if err := json.Unmarshal([]byte(scoresJSON), &p.Scores); err != nil {
		return nil, fmt.Errorf("malformed scores payload for %s: %w", p.Code, err)
	}

	return &p, nil
}
