package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/events"
	"github.com/phrazzld/pitchside/internal/platform/logger"
	"github.com/phrazzld/pitchside/internal/store"
)

// AccuracyTracker recomputes per-tier hit statistics from scratch over a
// lookback window. Recomputes are wholesale, never incremental, so running
// one twice over the same data yields identical records.
type AccuracyTracker struct {
	matchStore      store.MatchStore
	predictionStore store.PredictionStore
	accuracyStore   store.AccuracyStore
	lookbackDays    int
	logger          *slog.Logger
	now             func() time.Time
}

// NewAccuracyTracker creates an AccuracyTracker. If logger is nil, a
// default logger will be used.
func NewAccuracyTracker(
	matchStore store.MatchStore,
	predictionStore store.PredictionStore,
	accuracyStore store.AccuracyStore,
	lookbackDays int,
	logger *slog.Logger,
) *AccuracyTracker {
	if matchStore == nil {
		panic("matchStore cannot be nil")
	}
	if predictionStore == nil {
		panic("predictionStore cannot be nil")
	}
	if accuracyStore == nil {
		panic("accuracyStore cannot be nil")
	}
	if lookbackDays < 1 {
		lookbackDays = 30
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &AccuracyTracker{
		matchStore:      matchStore,
		predictionStore: predictionStore,
		accuracyStore:   accuracyStore,
		lookbackDays:    lookbackDays,
		logger:          logger.With(slog.String("component", "accuracy_tracker")),
		now:             time.Now,
	}
}

// Ensure AccuracyTracker reacts to group completion events
var _ events.EventHandler = (*AccuracyTracker)(nil)

// HandleEvent implements events.EventHandler. Group completion triggers a
// full recompute; the event itself carries no data the recompute needs.
func (t *AccuracyTracker) HandleEvent(ctx context.Context, event *events.GroupCompletedEvent) error {
	log := logger.FromContextOrDefault(ctx, t.logger)
	log.Info("recomputing accuracy after group completion",
		"group_key", event.GroupKey,
		"event_id", event.ID)
	return t.Recompute(ctx)
}

// Recompute tallies hits for every resolved match within the lookback
// window that has a stored prediction, and replaces both per-tier records.
// A hit is an exact normalized score match; a direction hit counts a
// prediction whose win/draw/loss direction was right.
func (t *AccuracyTracker) Recompute(ctx context.Context) error {
	log := logger.FromContextOrDefault(ctx, t.logger)

	cutoff := t.now().UTC().AddDate(0, 0, -t.lookbackDays)
	matches, err := t.matchStore.Query(ctx, store.MatchFilter{KickoffAfter: cutoff})
	if err != nil {
		return NewServiceError("recompute_accuracy", "failed to load matches", err)
	}

	resolved := matches[:0]
	codes := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Resolved() {
			resolved = append(resolved, m)
			codes = append(codes, m.Code)
		}
	}

	predictions, err := t.predictionStore.GetForCodes(ctx, codes)
	if err != nil {
		return NewServiceError("recompute_accuracy", "failed to load predictions", err)
	}

	type tally struct{ total, hits, directionHits int }
	tallies := map[domain.Tier]*tally{
		domain.TierQuick: {},
		domain.TierDeep:  {},
	}

	for _, m := range resolved {
		prediction, ok := predictions[m.Code]
		if !ok {
			continue
		}
		counts, ok := tallies[prediction.Tier]
		if !ok {
			continue
		}

		counts.total++
		if prediction.Hit(m.ActualScore) {
			counts.hits++
		}
		if directionHit(prediction.Scores, m.ActualScore) {
			counts.directionHits++
		}
	}

	for tier, counts := range tallies {
		record := domain.NewAccuracyRecord(tier, counts.total, counts.hits, counts.directionHits)
		if err := t.accuracyStore.Upsert(ctx, record); err != nil {
			return NewServiceError("recompute_accuracy", "failed to store record", err)
		}
		log.Info("accuracy recomputed",
			"tier", tier,
			"total", record.Total,
			"hits", record.Hits,
			"direction_hits", record.DirectionHits,
			"hit_rate", record.HitRate)
	}

	return nil
}

// Records returns the stored per-tier accuracy records.
func (t *AccuracyTracker) Records(ctx context.Context) (map[domain.Tier]domain.AccuracyRecord, error) {
	records, err := t.accuracyStore.GetAll(ctx)
	if err != nil {
		return nil, NewServiceError("get_accuracy", "failed to load records", err)
	}
	return records, nil
}

// directionHit reports whether any candidate score predicts the same
// win/draw/loss direction as the actual score.
func directionHit(scores []string, actualScore string) bool {
	actualDir, ok := scoreDirection(actualScore)
	if !ok {
		return false
	}
	for _, s := range scores {
		if dir, ok := scoreDirection(s); ok && dir == actualDir {
			return true
		}
	}
	return false
}

// scoreDirection returns -1, 0 or 1 for away win, draw and home win.
func scoreDirection(score string) (int, bool) {
	parts := strings.SplitN(domain.NormalizeScore(score), "-", 2)
	if len(parts) != 2 {
		return 0, false
	}
	home, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, false
	}
	away, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, false
	}

	switch {
	case home > away:
		return 1, true
	case home < away:
		return -1, true
	default:
		return 0, true
	}
}
