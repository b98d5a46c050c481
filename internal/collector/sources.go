package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/phrazzld/pitchside/internal/ai"
	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/scrape"
)

// OfficialSource pulls the match's row from the current schedule scrape
// and renders its official listing data as source material.
type OfficialSource struct {
	schedule scrape.ScheduleSource
}

// NewOfficialSource creates an OfficialSource over a schedule source.
func NewOfficialSource(schedule scrape.ScheduleSource) *OfficialSource {
	if schedule == nil {
		panic("schedule cannot be nil")
	}
	return &OfficialSource{schedule: schedule}
}

func (s *OfficialSource) Name() string { return "official" }

// Fetch returns the official listing for the match, or ErrNotAvailable
// when the match is no longer on the schedule.
func (s *OfficialSource) Fetch(ctx context.Context, match domain.Match) (string, error) {
	matches, err := s.schedule.FetchSchedule(ctx)
	if err != nil {
		return "", fmt.Errorf("schedule lookup failed: %w", err)
	}

	for _, m := range matches {
		if m.Code == match.Code {
			return fmt.Sprintf("%s vs %s\nLeague: %s\nKickoff: %s\nListed under: %s",
				m.HomeTeam, m.AwayTeam, m.League,
				m.KickoffTime.Format("2006-01-02 15:04 MST"), m.GroupKey), nil
		}
	}
	return "", fmt.Errorf("%w: %s not on current schedule", ErrNotAvailable, match.Code)
}

const webSearchPromptTemplate = `Summarize what is publicly known about the upcoming %s match
%s vs %s (kickoff %s).

Cover recent form, head-to-head record, injuries and suspensions, and any
lineup or managerial news. Plain text, no more than 300 words. If you know
nothing about these teams, reply with exactly: NO_DATA`

// WebSearchSource asks the language model for recent public knowledge
// about the fixture.
type WebSearchSource struct {
	completer ai.Completer
}

// NewWebSearchSource creates a WebSearchSource over a completer.
func NewWebSearchSource(completer ai.Completer) *WebSearchSource {
	if completer == nil {
		panic("completer cannot be nil")
	}
	return &WebSearchSource{completer: completer}
}

func (s *WebSearchSource) Name() string { return "web_search" }

func (s *WebSearchSource) Fetch(ctx context.Context, match domain.Match) (string, error) {
	prompt := fmt.Sprintf(webSearchPromptTemplate,
		match.League, match.HomeTeam, match.AwayTeam,
		match.KickoffTime.Format("2006-01-02 15:04"))

	content, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if content == "NO_DATA" {
		return "", fmt.Errorf("%w: model has no material on this fixture", ErrNotAvailable)
	}
	return content, nil
}

const screenshotPrompt = `This screenshot shows a statistics page for an upcoming match.
Extract the odds, standings, and any form or head-to-head tables you can
read, as plain text.`

// ScreenshotSource analyzes the odds-page screenshot the external scraper
// deposited for the match, when one exists.
type ScreenshotSource struct {
	dir      string
	analyzer ai.ImageAnalyzer
}

// NewScreenshotSource creates a ScreenshotSource reading from dir, where
// screenshots are stored as <code>.png.
func NewScreenshotSource(dir string, analyzer ai.ImageAnalyzer) *ScreenshotSource {
	if analyzer == nil {
		panic("analyzer cannot be nil")
	}
	return &ScreenshotSource{dir: dir, analyzer: analyzer}
}

func (s *ScreenshotSource) Name() string { return "screenshot" }

func (s *ScreenshotSource) Fetch(ctx context.Context, match domain.Match) (string, error) {
	path := filepath.Join(s.dir, match.Code+".png")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: no screenshot for %s", ErrNotAvailable, match.Code)
		}
		return "", fmt.Errorf("failed to stat screenshot: %w", err)
	}
	return s.analyzer.AnalyzeImage(ctx, path, screenshotPrompt)
}
