package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/pitchside/internal/domain"
)

// stubSource fails a configurable number of times before succeeding.
type stubSource struct {
	mu       sync.Mutex
	name     string
	content  string
	failures int
	err      error
	calls    int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context, match domain.Match) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.calls <= s.failures {
		if s.err != nil {
			return "", s.err
		}
		return "", errors.New("temporary outage")
	}
	return s.content, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// noSleep skips backoff delays and records them.
func noSleep(delays *[]time.Duration, mu *sync.Mutex) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		*delays = append(*delays, d)
		mu.Unlock()
		return nil
	}
}

func testMatch(t *testing.T) domain.Match {
	t.Helper()

	match, err := domain.NewMatch("sat001", "Arsenal", "Chelsea", "Premier League",
		"2026-03-14", time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	return *match
}

func TestCollectAllSourcesSucceed(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	var mu sync.Mutex

	c := New([]Source{
		&stubSource{name: "official", content: "league table"},
		&stubSource{name: "web_search", content: "recent news"},
		&stubSource{name: "screenshot", content: "odds movement"},
	}, 3, nil, WithSleep(noSleep(&delays, &mu)))

	report, err := c.Collect(context.Background(), testMatch(t))
	require.NoError(t, err)

	assert.Equal(t, QualityHigh, report.Quality)
	assert.Len(t, report.Sections, 3)
	assert.Equal(t, "league table", report.Sections["official"])
	assert.Empty(t, report.Failed)
	assert.Empty(t, delays, "no retries means no backoff")
}

func TestCollectOneSourceDownStaysHigh(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	var mu sync.Mutex

	broken := &stubSource{name: "web_search", failures: 99}
	c := New([]Source{
		&stubSource{name: "official", content: "table"},
		broken,
		&stubSource{name: "screenshot", content: "odds"},
	}, 3, nil, WithSleep(noSleep(&delays, &mu)))

	report, err := c.Collect(context.Background(), testMatch(t))
	require.NoError(t, err)

	assert.Equal(t, QualityHigh, report.Quality, "two surviving sources still grade high")
	assert.Len(t, report.Sections, 2)
	assert.Contains(t, report.Failed, "web_search")
	assert.Equal(t, 3, broken.callCount(), "failing source gets the full attempt budget")
}

func TestCollectQualityGrades(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		working  int
		expected Quality
	}{
		{"no sources respond", 0, QualityLow},
		{"one source responds", 1, QualityMedium},
		{"two sources respond", 2, QualityHigh},
		{"all three respond", 3, QualityHigh},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var delays []time.Duration
			var mu sync.Mutex

			names := []string{"official", "web_search", "screenshot"}
			sources := make([]Source, 0, 3)
			for i, name := range names {
				s := &stubSource{name: name, content: "data"}
				if i >= tc.working {
					s.failures = 99
				}
				sources = append(sources, s)
			}

			c := New(sources, 2, nil, WithSleep(noSleep(&delays, &mu)))

			report, err := c.Collect(context.Background(), testMatch(t))
			require.NoError(t, err)
			assert.Equal(t, tc.expected, report.Quality)
			assert.Len(t, report.Sections, tc.working)
		})
	}
}

func TestCollectRetriesWithLinearBackoff(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	var mu sync.Mutex

	flaky := &stubSource{name: "official", content: "table", failures: 2}
	c := New([]Source{flaky}, 3, nil, WithSleep(noSleep(&delays, &mu)))

	report, err := c.Collect(context.Background(), testMatch(t))
	require.NoError(t, err)

	assert.Equal(t, QualityMedium, report.Quality)
	assert.Equal(t, "table", report.Sections["official"])
	assert.Equal(t, 3, flaky.callCount())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, delays,
		"backoff grows linearly with the attempt number")
}

func TestCollectNotAvailableSkipsRetries(t *testing.T) {
	t.Parallel()

	var delays []time.Duration
	var mu sync.Mutex

	missing := &stubSource{name: "screenshot", failures: 99, err: ErrNotAvailable}
	c := New([]Source{
		&stubSource{name: "official", content: "table"},
		missing,
	}, 3, nil, WithSleep(noSleep(&delays, &mu)))

	report, err := c.Collect(context.Background(), testMatch(t))
	require.NoError(t, err)

	assert.Equal(t, 1, missing.callCount(), "a source with no data must not be retried")
	assert.ErrorIs(t, report.Failed["screenshot"], ErrNotAvailable)
	assert.Empty(t, delays)
}

func TestCollectContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New([]Source{
		&stubSource{name: "official", failures: 99},
	}, 3, nil, WithSleep(defaultSleep))

	_, err := c.Collect(ctx, testMatch(t))
	assert.ErrorIs(t, err, context.Canceled)
}
