// Package scrape defines the interfaces through which the engine consumes
// the external browser-automation scraper. The engine never drives a
// browser itself; it only ingests what these capabilities return.
package scrape

import (
	"context"
	"errors"

	"github.com/phrazzld/pitchside/internal/domain"
)

// ErrSourceUnavailable is the soft-failure signal a source reports when the
// upstream site is reachable in principle but returned nothing usable.
// Callers treat it exactly like a hard error: log, back off, retry.
var ErrSourceUnavailable = errors.New("source unavailable")

// ScheduleSource fetches the currently offered match schedule.
type ScheduleSource interface {
	// FetchSchedule returns every match in the current betting program.
	FetchSchedule(ctx context.Context) ([]domain.Match, error)
}

// ResultSource fetches final scores for recently concluded matches.
type ResultSource interface {
	// FetchResults returns results for matches concluded within the
	// lookback window.
	FetchResults(ctx context.Context, lookbackDays int) ([]domain.Result, error)
}
