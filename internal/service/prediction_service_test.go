package service

import (
	"context"
	"database/sql"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/events"
	"github.com/phrazzld/pitchside/internal/platform/sqlite"
	"github.com/phrazzld/pitchside/internal/store"
)

// testEnv bundles a migrated database with real stores for service tests.
type testEnv struct {
	db        *sql.DB
	matches   store.MatchStore
	preds     store.PredictionStore
	accuracy  store.AccuracyStore
	configs   store.ScheduleConfigStore
	emitter   *events.InMemoryEventEmitter
	service   *PredictionService
	clockTime time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "service_test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.Migrate(db))

	env := &testEnv{
		db:        db,
		matches:   sqlite.NewSQLiteMatchStore(db, nil),
		preds:     sqlite.NewSQLitePredictionStore(db, nil),
		accuracy:  sqlite.NewSQLiteAccuracyStore(db, nil),
		configs:   sqlite.NewSQLiteScheduleConfigStore(db, nil),
		emitter:   events.NewInMemoryEventEmitter(testLogger()),
		clockTime: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}

	env.service = NewPredictionService(db, env.matches, env.preds, env.emitter, nil,
		WithClock(func() time.Time { return env.clockTime }),
		WithRand(rand.New(rand.NewSource(42))),
	)
	return env
}

func (e *testEnv) seedSchedule(t *testing.T, matches ...domain.Match) {
	t.Helper()

	_, err := e.service.IngestSchedule(context.Background(), matches)
	require.NoError(t, err)
}

func match(t *testing.T, code, groupKey string, kickoff time.Time) domain.Match {
	t.Helper()

	m, err := domain.NewMatch(code, "Home "+code, "Away "+code, "League", groupKey, kickoff)
	require.NoError(t, err)
	return *m
}

func result(code, score string) domain.Result {
	return domain.Result{
		Code:      code,
		Score:     score,
		ScrapedAt: time.Now().UTC(),
	}
}

// countingHandler records how many group completion events it saw.
type countingHandler struct {
	mu     sync.Mutex
	events []*events.GroupCompletedEvent
}

func (h *countingHandler) HandleEvent(ctx context.Context, event *events.GroupCompletedEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return nil
}

func (h *countingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestIngestScheduleRoundTrip(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	kickoff := env.clockTime.Add(3 * time.Hour)

	count, err := env.service.IngestSchedule(context.Background(), []domain.Match{
		match(t, "sat001", "2026-03-14", kickoff),
		match(t, "sat002", "2026-03-14", kickoff.Add(time.Hour)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	stored, err := env.matches.Query(context.Background(), store.MatchFilter{ActiveOnly: true})
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestIngestScheduleRejectsBadBatchAtomically(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	kickoff := env.clockTime.Add(3 * time.Hour)

	bad := match(t, "sat002", "2026-03-14", kickoff)
	bad.GroupKey = ""

	_, err := env.service.IngestSchedule(context.Background(), []domain.Match{
		match(t, "sat001", "2026-03-14", kickoff),
		bad,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrInvalidEntity)

	stored, err := env.matches.Query(context.Background(), store.MatchFilter{})
	require.NoError(t, err)
	assert.Empty(t, stored, "a rejected batch must leave nothing behind")
}

func TestIngestResultsEmitsGroupCompletionExactlyOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	handler := &countingHandler{}
	env.emitter.RegisterHandler(handler)

	kickoff := env.clockTime.Add(3 * time.Hour)
	env.seedSchedule(t,
		match(t, "sat001", "2026-03-14", kickoff),
		match(t, "sat002", "2026-03-14", kickoff.Add(time.Hour)),
	)

	ctx := context.Background()

	recorded, err := env.service.IngestResults(ctx, []domain.Result{result("sat001", "2-1")})
	require.NoError(t, err)
	assert.Equal(t, 1, recorded)
	assert.Zero(t, handler.count(), "group with a pending match must not complete")

	recorded, err = env.service.IngestResults(ctx, []domain.Result{result("sat002", "0-0")})
	require.NoError(t, err)
	assert.Equal(t, 1, recorded)
	assert.Equal(t, 1, handler.count(), "last result completes the group exactly once")

	// A later re-scrape of the same results must not fire again.
	recorded, err = env.service.IngestResults(ctx, []domain.Result{
		result("sat001", "2-1"),
		result("sat002", "0-0"),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, recorded)
	assert.Equal(t, 1, handler.count(), "re-recording must not re-fire the completion event")
}

func TestIngestResultsBatchCompletingOneGroupFiresOneEvent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	handler := &countingHandler{}
	env.emitter.RegisterHandler(handler)

	kickoff := env.clockTime.Add(3 * time.Hour)
	env.seedSchedule(t,
		match(t, "sat001", "2026-03-14", kickoff),
		match(t, "sat002", "2026-03-14", kickoff.Add(time.Hour)),
		match(t, "sat003", "2026-03-14", kickoff.Add(2*time.Hour)),
	)

	// One batch resolves the whole group; one event, not three.
	recorded, err := env.service.IngestResults(context.Background(), []domain.Result{
		result("sat001", "1-0"),
		result("sat002", "2-2"),
		result("sat003", "0-3"),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, recorded)
	assert.Equal(t, 1, handler.count())
}

func TestIngestResultsUnknownMatchIsArchivedOnly(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	handler := &countingHandler{}
	env.emitter.RegisterHandler(handler)

	recorded, err := env.service.IngestResults(context.Background(), []domain.Result{
		result("ghost", "5-0"),
	})
	require.NoError(t, err)
	assert.Zero(t, recorded)
	assert.Zero(t, handler.count())
}

func TestMatchesWithinWindow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	now := env.clockTime

	env.seedSchedule(t,
		match(t, "past", "2026-03-13", now.Add(-2*time.Hour)),
		match(t, "soon", "2026-03-14", now.Add(3*time.Hour)),
		match(t, "later", "2026-03-14", now.Add(10*time.Hour)),
		match(t, "tomorrow", "2026-03-15", now.Add(30*time.Hour)),
	)

	matches, err := env.service.MatchesWithinWindow(context.Background(), 12)
	require.NoError(t, err)

	codes := make([]string, len(matches))
	for i, m := range matches {
		codes[i] = m.Code
	}
	assert.Equal(t, []string{"soon", "later"}, codes)
}

func TestMatchesWithinWindowSkipsResolved(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	now := env.clockTime

	env.seedSchedule(t,
		match(t, "sat001", "2026-03-14", now.Add(3*time.Hour)),
		match(t, "sat002", "2026-03-14", now.Add(4*time.Hour)),
	)

	_, err := env.service.IngestResults(context.Background(), []domain.Result{result("sat001", "1-1")})
	require.NoError(t, err)

	matches, err := env.service.MatchesWithinWindow(context.Background(), 12)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "sat002", matches[0].Code)
}

func TestSelectForDeepAnalysis(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	now := env.clockTime

	env.seedSchedule(t,
		match(t, "sat001", "2026-03-14", now.Add(2*time.Hour)),
		match(t, "sat002", "2026-03-14", now.Add(3*time.Hour)),
		match(t, "sat003", "2026-03-14", now.Add(4*time.Hour)),
		match(t, "sat004", "2026-03-14", now.Add(5*time.Hour)),
		match(t, "sat005", "2026-03-14", now.Add(6*time.Hour)),
	)

	ctx := context.Background()

	selected, err := env.service.SelectForDeepAnalysis(ctx, 12, 3)
	require.NoError(t, err)
	assert.Len(t, selected, 3)

	persisted, err := env.service.DeepSelection(ctx)
	require.NoError(t, err)
	require.Len(t, persisted, 3)

	// A second selection replaces the first.
	selected, err = env.service.SelectForDeepAnalysis(ctx, 12, 2)
	require.NoError(t, err)
	assert.Len(t, selected, 2)

	persisted, err = env.service.DeepSelection(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted, 2)
}

func TestSelectForDeepAnalysisFewerCandidatesThanRequested(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	now := env.clockTime

	env.seedSchedule(t,
		match(t, "sat001", "2026-03-14", now.Add(2*time.Hour)),
	)

	selected, err := env.service.SelectForDeepAnalysis(context.Background(), 12, 3)
	require.NoError(t, err)
	assert.Len(t, selected, 1)
}

func TestSelectForDeepAnalysisEmptyWindowClearsSelection(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	now := env.clockTime

	env.seedSchedule(t,
		match(t, "sat001", "2026-03-14", now.Add(2*time.Hour)),
	)

	ctx := context.Background()
	_, err := env.service.SelectForDeepAnalysis(ctx, 12, 3)
	require.NoError(t, err)

	// Window moves past the only candidate.
	env.clockTime = now.Add(20 * time.Hour)

	selected, err := env.service.SelectForDeepAnalysis(ctx, 12, 3)
	require.NoError(t, err)
	assert.Empty(t, selected)

	persisted, err := env.service.DeepSelection(ctx)
	require.NoError(t, err)
	assert.Empty(t, persisted, "stale selection must be cleared")
}
