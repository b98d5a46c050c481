package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/events"
)

func newTestTracker(t *testing.T, env *testEnv, lookbackDays int) *AccuracyTracker {
	t.Helper()
	return NewAccuracyTracker(env.matches, env.preds, env.accuracy, lookbackDays, nil)
}

func savePrediction(t *testing.T, env *testEnv, code string, tier domain.Tier, scores ...string) {
	t.Helper()

	p, err := domain.NewPrediction(code, tier, scores, "")
	require.NoError(t, err)
	_, err = env.preds.Save(context.Background(), p)
	require.NoError(t, err)
}

func TestScoreDirection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score string
		dir   int
		ok    bool
	}{
		{"2-1", 1, true},
		{"0-0", 0, true},
		{"1-3", -1, true},
		{"2：1", 1, true},
		{"not a score", 0, false},
		{"", 0, false},
		{"2-x", 0, false},
	}

	for _, tc := range tests {
		dir, ok := scoreDirection(tc.score)
		assert.Equal(t, tc.ok, ok, "score %q", tc.score)
		if tc.ok {
			assert.Equal(t, tc.dir, dir, "score %q", tc.score)
		}
	}
}

func TestRecomputeTalliesPerTier(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	tracker := newTestTracker(t, env, 30)
	ctx := context.Background()

	kickoff := time.Now().UTC().Add(-24 * time.Hour)
	env.seedSchedule(t,
		match(t, "q1", "2026-03-13", kickoff),
		match(t, "q2", "2026-03-13", kickoff),
		match(t, "q3", "2026-03-13", kickoff),
		match(t, "d1", "2026-03-13", kickoff),
	)

	// q1: exact hit. q2: direction hit only (2-1 predicted, 3-1 actual).
	// q3: complete miss. d1: exact hit on the second candidate.
	savePrediction(t, env, "q1", domain.TierQuick, "2-1")
	savePrediction(t, env, "q2", domain.TierQuick, "2-1")
	savePrediction(t, env, "q3", domain.TierQuick, "1-0")
	savePrediction(t, env, "d1", domain.TierDeep, "1-1", "0-2")

	_, err := env.service.IngestResults(ctx, []domain.Result{
		result("q1", "2-1"),
		result("q2", "3-1"),
		result("q3", "0-2"),
		result("d1", "0-2"),
	})
	require.NoError(t, err)

	require.NoError(t, tracker.Recompute(ctx))

	records, err := tracker.Records(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	quick := records[domain.TierQuick]
	assert.Equal(t, 3, quick.Total)
	assert.Equal(t, 1, quick.Hits)
	assert.Equal(t, 2, quick.DirectionHits, "exact hit counts as a direction hit too")
	assert.InDelta(t, 100.0/3.0, quick.HitRate, 0.01)

	deep := records[domain.TierDeep]
	assert.Equal(t, 1, deep.Total)
	assert.Equal(t, 1, deep.Hits)
	assert.Equal(t, 1, deep.DirectionHits)
	assert.InDelta(t, 100.0, deep.HitRate, 0.001)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	tracker := newTestTracker(t, env, 30)
	ctx := context.Background()

	kickoff := time.Now().UTC().Add(-24 * time.Hour)
	env.seedSchedule(t, match(t, "q1", "2026-03-13", kickoff))
	savePrediction(t, env, "q1", domain.TierQuick, "1-0")

	_, err := env.service.IngestResults(ctx, []domain.Result{result("q1", "1-0")})
	require.NoError(t, err)

	require.NoError(t, tracker.Recompute(ctx))
	first, err := tracker.Records(ctx)
	require.NoError(t, err)

	require.NoError(t, tracker.Recompute(ctx))
	second, err := tracker.Records(ctx)
	require.NoError(t, err)

	assert.Equal(t, first[domain.TierQuick].Total, second[domain.TierQuick].Total)
	assert.Equal(t, first[domain.TierQuick].Hits, second[domain.TierQuick].Hits,
		"recomputing over unchanged data must not accumulate")
}

func TestRecomputeSkipsUnresolvedAndUnpredicted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	tracker := newTestTracker(t, env, 30)
	ctx := context.Background()

	kickoff := time.Now().UTC().Add(-24 * time.Hour)
	env.seedSchedule(t,
		match(t, "resolved_predicted", "2026-03-13", kickoff),
		match(t, "resolved_unpredicted", "2026-03-13", kickoff),
		match(t, "unresolved", "2026-03-13", kickoff),
	)

	savePrediction(t, env, "resolved_predicted", domain.TierQuick, "1-0")
	savePrediction(t, env, "unresolved", domain.TierQuick, "1-0")

	_, err := env.service.IngestResults(ctx, []domain.Result{
		result("resolved_predicted", "1-0"),
		result("resolved_unpredicted", "2-2"),
	})
	require.NoError(t, err)

	require.NoError(t, tracker.Recompute(ctx))

	records, err := tracker.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, records[domain.TierQuick].Total,
		"only resolved matches with predictions count")
}

func TestRecomputeRespectsLookback(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	tracker := newTestTracker(t, env, 7)
	ctx := context.Background()

	recent := time.Now().UTC().Add(-24 * time.Hour)
	ancient := time.Now().UTC().AddDate(0, 0, -30)

	env.seedSchedule(t,
		match(t, "recent", "2026-03-13", recent),
		match(t, "ancient", "2026-02-12", ancient),
	)
	savePrediction(t, env, "recent", domain.TierQuick, "1-0")
	savePrediction(t, env, "ancient", domain.TierQuick, "1-0")

	_, err := env.service.IngestResults(ctx, []domain.Result{
		result("recent", "1-0"),
		result("ancient", "1-0"),
	})
	require.NoError(t, err)

	require.NoError(t, tracker.Recompute(ctx))

	records, err := tracker.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, records[domain.TierQuick].Total,
		"matches outside the lookback window are excluded")
}

func TestHandleEventTriggersRecompute(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	tracker := newTestTracker(t, env, 30)
	ctx := context.Background()

	kickoff := time.Now().UTC().Add(-24 * time.Hour)
	env.seedSchedule(t, match(t, "q1", "2026-03-13", kickoff))
	savePrediction(t, env, "q1", domain.TierQuick, "2-0")

	_, err := env.service.IngestResults(ctx, []domain.Result{result("q1", "2-0")})
	require.NoError(t, err)

	require.NoError(t, tracker.HandleEvent(ctx, events.NewGroupCompletedEvent("2026-03-13")))

	records, err := tracker.Records(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, records[domain.TierQuick].Hits)
}
