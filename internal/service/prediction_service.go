package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/events"
	"github.com/phrazzld/pitchside/internal/platform/logger"
	"github.com/phrazzld/pitchside/internal/store"
)

// DefaultDeepSelectionSize is how many matches the selection stage picks
// for deep analysis when the schedule config does not override it.
const DefaultDeepSelectionSize = 3

// PredictionService owns match and prediction persistence workflows:
// schedule ingestion, result recording with group completion events, and
// the per-tier prediction write rules.
type PredictionService struct {
	db              *sql.DB
	matchStore      store.MatchStore
	predictionStore store.PredictionStore
	emitter         events.EventEmitter
	logger          *slog.Logger
	now             func() time.Time
	rng             *rand.Rand
}

// PredictionServiceOption configures a PredictionService.
type PredictionServiceOption func(*PredictionService)

// WithClock replaces the service clock, for tests.
func WithClock(now func() time.Time) PredictionServiceOption {
	return func(s *PredictionService) { s.now = now }
}

// WithRand replaces the selection randomness source, for tests.
func WithRand(rng *rand.Rand) PredictionServiceOption {
	return func(s *PredictionService) { s.rng = rng }
}

// NewPredictionService creates a PredictionService. All dependencies are
// required except logger; if logger is nil, a default logger will be used.
func NewPredictionService(
	db *sql.DB,
	matchStore store.MatchStore,
	predictionStore store.PredictionStore,
	emitter events.EventEmitter,
	logger *slog.Logger,
	opts ...PredictionServiceOption,
) *PredictionService {
	if db == nil {
		panic("db cannot be nil")
	}
	if matchStore == nil {
		panic("matchStore cannot be nil")
	}
	if predictionStore == nil {
		panic("predictionStore cannot be nil")
	}
	if emitter == nil {
		panic("emitter cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &PredictionService{
		db:              db,
		matchStore:      matchStore,
		predictionStore: predictionStore,
		emitter:         emitter,
		logger:          logger.With(slog.String("component", "prediction_service")),
		now:             time.Now,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestSchedule writes a scraped schedule batch atomically: either the
// whole batch lands (with absent matches deactivated) or nothing changes.
func (s *PredictionService) IngestSchedule(ctx context.Context, matches []domain.Match) (int, error) {
	var count int
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		var txErr error
		count, txErr = s.matchStore.WithTx(tx).UpsertSchedule(ctx, matches)
		return txErr
	})
	if err != nil {
		return 0, NewServiceError("ingest_schedule", "failed to ingest schedule batch", err)
	}
	return count, nil
}

// IngestResults records a batch of scraped results. Every result is
// archived as scraped; results for unknown matches stop there. Group
// completion transitions detected while recording fire exactly one
// GroupCompletedEvent per group, after the write committed.
func (s *PredictionService) IngestResults(ctx context.Context, results []domain.Result) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	recorded := 0
	completed := make(map[string]struct{})

	for _, result := range results {
		if err := s.matchStore.ArchiveResult(ctx, result); err != nil {
			return recorded, NewServiceError("ingest_results", "failed to archive result", err)
		}

		var update store.ResultUpdate
		err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
			var txErr error
			update, txErr = s.matchStore.WithTx(tx).RecordResult(ctx, result.Code, result.Score, result.HalfScore)
			return txErr
		})
		if err != nil {
			if errors.Is(err, store.ErrMatchNotFound) {
				log.Debug("result for unknown match archived only", "code", result.Code)
				continue
			}
			return recorded, NewServiceError("ingest_results", "failed to record result", err)
		}

		recorded++
		if update.GroupCompleted {
			completed[update.GroupKey] = struct{}{}
		}
	}

	for groupKey := range completed {
		if err := s.emitter.EmitEvent(ctx, events.NewGroupCompletedEvent(groupKey)); err != nil {
			log.Error("group completion handler failed",
				"group_key", groupKey,
				"error", err)
		}
	}

	log.Info("results ingested",
		"scraped", len(results),
		"recorded", recorded,
		"groups_completed", len(completed))

	return recorded, nil
}

// SavePrediction persists a prediction under the tier precedence rules.
// Returns true when the row was written, false when a quick write was
// skipped because a deep analysis already exists.
func (s *PredictionService) SavePrediction(ctx context.Context, prediction *domain.Prediction) (bool, error) {
	written, err := s.predictionStore.Save(ctx, prediction)
	if err != nil {
		return false, NewServiceError("save_prediction", "failed to save prediction", err)
	}
	return written, nil
}

// GetPrediction returns the stored prediction for a match code.
func (s *PredictionService) GetPrediction(ctx context.Context, code string) (*domain.Prediction, error) {
	prediction, err := s.predictionStore.GetByCode(ctx, code)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, err
		}
		return nil, NewServiceError("get_prediction", "failed to load prediction", err)
	}
	return prediction, nil
}

// MatchesWithinWindow returns active, unresolved matches kicking off
// within the next windowHours.
func (s *PredictionService) MatchesWithinWindow(ctx context.Context, windowHours int) ([]domain.Match, error) {
	now := s.now().UTC()
	matches, err := s.matchStore.Query(ctx, store.MatchFilter{
		ActiveOnly:     true,
		UnresolvedOnly: true,
		KickoffAfter:   now,
		KickoffBefore:  now.Add(time.Duration(windowHours) * time.Hour),
	})
	if err != nil {
		return nil, NewServiceError("matches_within_window", "failed to query window", err)
	}
	return matches, nil
}

// SelectForDeepAnalysis randomly picks up to n matches from the upcoming
// window and persists the selection for the generation stage. The
// previous selection is replaced.
func (s *PredictionService) SelectForDeepAnalysis(ctx context.Context, windowHours, n int) ([]domain.Match, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if n < 1 {
		n = DefaultDeepSelectionSize
	}

	candidates, err := s.MatchesWithinWindow(ctx, windowHours)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		if err := s.matchStore.MarkDeepSelection(ctx, nil); err != nil {
			return nil, NewServiceError("select_for_deep_analysis", "failed to clear selection", err)
		}
		return nil, nil
	}

	s.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > n {
		candidates = candidates[:n]
	}

	codes := make([]string, len(candidates))
	for i, m := range candidates {
		codes[i] = m.Code
	}
	if err := s.matchStore.MarkDeepSelection(ctx, codes); err != nil {
		return nil, NewServiceError("select_for_deep_analysis", "failed to persist selection", err)
	}

	log.Info("deep analysis selection made",
		"candidates", len(codes),
		"codes", codes)

	return candidates, nil
}

// DeepSelection returns the currently selected, still unresolved matches.
func (s *PredictionService) DeepSelection(ctx context.Context) ([]domain.Match, error) {
	matches, err := s.matchStore.Query(ctx, store.MatchFilter{
		ActiveOnly:       true,
		UnresolvedOnly:   true,
		DeepSelectedOnly: true,
	})
	if err != nil {
		return nil, NewServiceError("deep_selection", "failed to load selection", err)
	}
	return matches, nil
}
