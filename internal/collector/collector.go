// Package collector gathers match intelligence from multiple independent
// sources before a deep analysis runs. Source failures are soft: the
// collection succeeds with whatever subset responded, and the report's
// quality grade tells the caller how much it can trust the material.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/platform/logger"
)

// ErrNotAvailable is returned by a Source when the upstream has no data
// for the match, as opposed to being unreachable. It is permanent for the
// collection and is not retried.
var ErrNotAvailable = errors.New("source has no data for this match")

// Source is one independent provider of match intelligence.
type Source interface {
	// Name identifies the source in reports and logs.
	Name() string

	// Fetch returns the source's textual material for the match.
	Fetch(ctx context.Context, match domain.Match) (string, error)
}

// Quality grades how much source material backs a report.
type Quality string

// Quality grades by number of sources that responded.
const (
	QualityHigh   Quality = "high"   // two or more sources
	QualityMedium Quality = "medium" // exactly one source
	QualityLow    Quality = "low"    // nothing responded
)

// qualityFor maps a success count to a grade.
func qualityFor(successes int) Quality {
	switch {
	case successes >= 2:
		return QualityHigh
	case successes == 1:
		return QualityMedium
	default:
		return QualityLow
	}
}

// Report is the outcome of collecting one match.
type Report struct {
	MatchCode string

	// Sections holds the material per source name, in source order.
	Sections map[string]string

	// Failed lists sources that produced nothing, with their final error.
	Failed map[string]error

	Quality Quality
}

// SleepFunc waits out a backoff delay. It returns early with the context
// error when ctx is cancelled. Injectable so tests run without real
// sleeps.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Collector fans out to its sources concurrently and retries each one
// independently with linear backoff.
type Collector struct {
	sources  []Source
	attempts int
	sleep    SleepFunc
	logger   *slog.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(sleep SleepFunc) Option {
	return func(c *Collector) { c.sleep = sleep }
}

// New creates a Collector over the given sources. attempts is the
// per-source try budget; values below 1 fall back to 1. If logger is nil,
// a default logger will be used.
func New(sources []Source, attempts int, logger *slog.Logger, opts ...Option) *Collector {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Collector{
		sources:  sources,
		attempts: attempts,
		sleep:    defaultSleep,
		logger:   logger.With(slog.String("component", "collector")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect gathers material for one match from every source concurrently.
// It never fails outright: an error is returned only when the context is
// cancelled mid-collection.
func (c *Collector) Collect(ctx context.Context, match domain.Match) (*Report, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	type outcome struct {
		name    string
		content string
		err     error
	}

	outcomes := make([]outcome, len(c.sources))

	var wg sync.WaitGroup
	for i, source := range c.sources {
		wg.Add(1)
		go func(i int, source Source) {
			defer wg.Done()
			content, err := c.fetchWithRetry(ctx, source, match)
			outcomes[i] = outcome{name: source.Name(), content: content, err: err}
		}(i, source)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	report := &Report{
		MatchCode: match.Code,
		Sections:  make(map[string]string),
		Failed:    make(map[string]error),
	}

	successes := 0
	for _, o := range outcomes {
		if o.err != nil {
			report.Failed[o.name] = o.err
			continue
		}
		report.Sections[o.name] = o.content
		successes++
	}
	report.Quality = qualityFor(successes)

	log.Info("collection finished",
		"code", match.Code,
		"sources_ok", successes,
		"sources_failed", len(report.Failed),
		"quality", report.Quality)

	return report, nil
}

// fetchWithRetry tries one source up to the attempt budget, sleeping
// 2s, 4s, 6s... between tries. ErrNotAvailable is permanent and returned
// immediately.
func (c *Collector) fetchWithRetry(ctx context.Context, source Source, match domain.Match) (string, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		content, err := source.Fetch(ctx, match)
		if err == nil {
			return content, nil
		}
		if errors.Is(err, ErrNotAvailable) {
			log.Debug("source has no data",
				"source", source.Name(),
				"code", match.Code)
			return "", err
		}

		lastErr = err
		log.Warn("source fetch failed",
			"source", source.Name(),
			"code", match.Code,
			"attempt", attempt,
			"error", err)

		if attempt == c.attempts {
			break
		}
		if err := c.sleep(ctx, time.Duration(attempt)*2*time.Second); err != nil {
			return "", err
		}
	}
	return "", lastErr
}
