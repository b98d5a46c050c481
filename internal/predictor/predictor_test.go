package predictor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/pitchside/internal/ai"
	"github.com/phrazzld/pitchside/internal/collector"
	"github.com/phrazzld/pitchside/internal/domain"
)

// stubCompleter returns a canned response and records the last prompt.
type stubCompleter struct {
	response   string
	err        error
	lastPrompt string
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

// stubCollectorSource always succeeds with fixed content.
type stubCollectorSource struct {
	name    string
	content string
	err     error
}

func (s *stubCollectorSource) Name() string { return s.name }

func (s *stubCollectorSource) Fetch(ctx context.Context, match domain.Match) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.content, nil
}

func testMatch(t *testing.T) domain.Match {
	t.Helper()

	match, err := domain.NewMatch("sat001", "Arsenal", "Chelsea", "Premier League",
		"2026-03-14", time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	return *match
}

func noopSleep(ctx context.Context, d time.Duration) error { return nil }

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		scores  []string
		wantErr bool
	}{
		{
			name:   "clean JSON",
			raw:    `{"scores": ["2-1", "1-1"], "reason": "home form"}`,
			scores: []string{"2-1", "1-1"},
		},
		{
			name:   "markdown fenced",
			raw:    "```json\n{\"scores\": [\"0-0\"], \"reason\": \"tight game\"}\n```",
			scores: []string{"0-0"},
		},
		{
			name:   "leading prose",
			raw:    "Here is my prediction:\n{\"scores\": [\"3-1\"], \"reason\": \"\"}",
			scores: []string{"3-1"},
		},
		{
			name:   "extra scores are trimmed to the limit",
			raw:    `{"scores": ["2-1", "1-1", "1-0", "0-0"], "reason": ""}`,
			scores: []string{"2-1", "1-1"},
		},
		{
			name:    "no scores",
			raw:     `{"scores": [], "reason": "cannot tell"}`,
			wantErr: true,
		},
		{
			name:    "no JSON at all",
			raw:     "I am unable to predict this match.",
			wantErr: true,
		},
		{
			name:    "malformed JSON",
			raw:     `{"scores": ["2-1",`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			parsed, err := parseResponse(tc.raw)
			if tc.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ai.ErrInvalidResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.scores, parsed.Scores)
		})
	}
}

func TestQuickPredict(t *testing.T) {
	t.Parallel()

	t.Run("produces a validated quick prediction", func(t *testing.T) {
		t.Parallel()

		completer := &stubCompleter{
			response: `{"scores": ["2:1", "1-1"], "reason": "strong home form"}`,
		}
		p := NewQuickPredictor(completer, nil)

		prediction, err := p.Predict(context.Background(), testMatch(t))
		require.NoError(t, err)

		assert.Equal(t, "sat001", prediction.Code)
		assert.Equal(t, domain.TierQuick, prediction.Tier)
		assert.Equal(t, []string{"2-1", "1-1"}, prediction.Scores, "scores are normalized")
		assert.Equal(t, "strong home form", prediction.Reason)
		assert.Contains(t, completer.lastPrompt, "Arsenal vs Chelsea")
	})

	t.Run("truncates an overlong reason instead of failing", func(t *testing.T) {
		t.Parallel()

		long := strings.Repeat("very ", 30) + "long reason"
		completer := &stubCompleter{
			response: `{"scores": ["1-0"], "reason": "` + long + `"}`,
		}
		p := NewQuickPredictor(completer, nil)

		prediction, err := p.Predict(context.Background(), testMatch(t))
		require.NoError(t, err)
		assert.Len(t, []rune(prediction.Reason), domain.MaxQuickReasonLength)
	})

	t.Run("wraps completer failures", func(t *testing.T) {
		t.Parallel()

		completer := &stubCompleter{err: errors.New("rate limited")}
		p := NewQuickPredictor(completer, nil)

		_, err := p.Predict(context.Background(), testMatch(t))
		assert.ErrorIs(t, err, domain.ErrPredictionFailed)
	})

	t.Run("wraps unparsable responses", func(t *testing.T) {
		t.Parallel()

		completer := &stubCompleter{response: "no idea"}
		p := NewQuickPredictor(completer, nil)

		_, err := p.Predict(context.Background(), testMatch(t))
		assert.ErrorIs(t, err, domain.ErrPredictionFailed)
	})
}

func TestDeepAnalyze(t *testing.T) {
	t.Parallel()

	t.Run("embeds collected material and quality in the prompt", func(t *testing.T) {
		t.Parallel()

		c := collector.New([]collector.Source{
			&stubCollectorSource{name: "official", content: "league standings"},
			&stubCollectorSource{name: "web_search", content: "injury news"},
		}, 1, nil, collector.WithSleep(noopSleep))

		completer := &stubCompleter{
			response: `{"scores": ["0-2"], "reason": "away side in better shape"}`,
		}
		a := NewDeepAnalyzer(c, completer, nil)

		prediction, err := a.Analyze(context.Background(), testMatch(t))
		require.NoError(t, err)

		assert.Equal(t, domain.TierDeep, prediction.Tier)
		assert.Equal(t, []string{"0-2"}, prediction.Scores)
		assert.Contains(t, completer.lastPrompt, "league standings")
		assert.Contains(t, completer.lastPrompt, "injury news")
		assert.Contains(t, completer.lastPrompt, "quality: high")
	})

	t.Run("proceeds on degraded collection", func(t *testing.T) {
		t.Parallel()

		c := collector.New([]collector.Source{
			&stubCollectorSource{name: "official", err: errors.New("down")},
			&stubCollectorSource{name: "web_search", err: errors.New("down")},
		}, 1, nil, collector.WithSleep(noopSleep))

		completer := &stubCompleter{
			response: `{"scores": ["1-1"], "reason": "general knowledge only"}`,
		}
		a := NewDeepAnalyzer(c, completer, nil)

		prediction, err := a.Analyze(context.Background(), testMatch(t))
		require.NoError(t, err)
		assert.Equal(t, []string{"1-1"}, prediction.Scores)
		assert.Contains(t, completer.lastPrompt, "quality: low")
		assert.Contains(t, completer.lastPrompt, "No source material was available.")
	})

	t.Run("deep reasons are not length-limited", func(t *testing.T) {
		t.Parallel()

		c := collector.New([]collector.Source{
			&stubCollectorSource{name: "official", content: "data"},
		}, 1, nil, collector.WithSleep(noopSleep))

		long := strings.Repeat("analysis ", 40)
		completer := &stubCompleter{
			response: `{"scores": ["2-0"], "reason": "` + long + `"}`,
		}
		a := NewDeepAnalyzer(c, completer, nil)

		prediction, err := a.Analyze(context.Background(), testMatch(t))
		require.NoError(t, err)
		assert.Greater(t, len(prediction.Reason), domain.MaxQuickReasonLength)
	})
}
