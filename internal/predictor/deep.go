package predictor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/phrazzld/pitchside/internal/ai"
	"github.com/phrazzld/pitchside/internal/collector"
	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/platform/logger"
)

const deepPromptTemplate = `You are a football analyst producing a score prediction
from collected source material.

Match: %s vs %s
League: %s
Kickoff: %s
Source material quality: %s

%s

Weigh the material above. If quality is low, fall back to general knowledge
about both sides and say so in the reason.

Respond with a single JSON object and nothing else:
{"scores": ["<most likely score as H-A>", "<second most likely score>"], "reason": "<your analysis summary>"}`

// DeepAnalyzer produces a deep-tier prediction: it first collects source
// material for the match, then runs a model analysis over it.
type DeepAnalyzer struct {
	collector *collector.Collector
	completer ai.Completer
	logger    *slog.Logger
}

// NewDeepAnalyzer creates a DeepAnalyzer. If logger is nil, a default
// logger will be used.
func NewDeepAnalyzer(c *collector.Collector, completer ai.Completer, logger *slog.Logger) *DeepAnalyzer {
	if c == nil {
		panic("collector cannot be nil")
	}
	if completer == nil {
		panic("completer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &DeepAnalyzer{
		collector: c,
		completer: completer,
		logger:    logger.With(slog.String("component", "deep_analyzer")),
	}
}

// Analyze collects source material for the match and generates a deep-tier
// prediction from it. Collection failures degrade the material, never the
// operation: the analysis proceeds on whatever was gathered.
func (a *DeepAnalyzer) Analyze(ctx context.Context, match domain.Match) (*domain.Prediction, error) {
	log := logger.FromContextOrDefault(ctx, a.logger)

	report, err := a.collector.Collect(ctx, match)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrPredictionFailed, match.Code, err)
	}

	prompt := fmt.Sprintf(deepPromptTemplate,
		match.HomeTeam,
		match.AwayTeam,
		match.League,
		match.KickoffTime.Format("2006-01-02 15:04"),
		report.Quality,
		formatSections(report),
	)

	raw, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrPredictionFailed, match.Code, err)
	}

	parsed, err := parseResponse(raw)
	if err != nil {
		log.Warn("unusable deep analysis response",
			"code", match.Code,
			"error", err)
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrPredictionFailed, match.Code, err)
	}

	prediction, err := domain.NewPrediction(match.Code, domain.TierDeep, parsed.Scores, parsed.Reason)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrPredictionFailed, match.Code, err)
	}

	log.Info("deep analysis generated",
		"code", match.Code,
		"scores", prediction.Scores,
		"quality", report.Quality)

	return prediction, nil
}

// formatSections renders the collected material, one titled block per
// source, in stable order.
func formatSections(report *collector.Report) string {
	if len(report.Sections) == 0 {
		return "No source material was available."
	}

	names := make([]string, 0, len(report.Sections))
	for name := range report.Sections {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "=== %s ===\n%s\n\n", name, report.Sections[name])
	}
	return strings.TrimSpace(b.String())
}
