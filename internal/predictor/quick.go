package predictor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/pitchside/internal/ai"
	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/platform/logger"
)

const quickPromptTemplate = `You are a football score prediction assistant.
Predict the final score of this match:

Match: %s vs %s
League: %s
Kickoff: %s

Respond with a single JSON object and nothing else:
{"scores": ["<most likely score as H-A>", "<second most likely score>"], "reason": "<one short sentence, at most 50 characters>"}`

// QuickPredictor produces a fast, single-call prediction for one match.
type QuickPredictor struct {
	completer ai.Completer
	logger    *slog.Logger
}

// NewQuickPredictor creates a QuickPredictor. If logger is nil, a default
// logger will be used.
func NewQuickPredictor(completer ai.Completer, logger *slog.Logger) *QuickPredictor {
	if completer == nil {
		panic("completer cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &QuickPredictor{
		completer: completer,
		logger:    logger.With(slog.String("component", "quick_predictor")),
	}
}

// Predict generates a quick-tier prediction for the match. The reason is
// truncated rather than rejected when the model overruns the length limit.
func (p *QuickPredictor) Predict(ctx context.Context, match domain.Match) (*domain.Prediction, error) {
	log := logger.FromContextOrDefault(ctx, p.logger)

	prompt := fmt.Sprintf(quickPromptTemplate,
		match.HomeTeam,
		match.AwayTeam,
		match.League,
		match.KickoffTime.Format("2006-01-02 15:04"),
	)

	raw, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrPredictionFailed, match.Code, err)
	}

	parsed, err := parseResponse(raw)
	if err != nil {
		log.Warn("unusable quick prediction response",
			"code", match.Code,
			"error", err)
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrPredictionFailed, match.Code, err)
	}

	reason := truncateReason(parsed.Reason, domain.MaxQuickReasonLength)

	prediction, err := domain.NewPrediction(match.Code, domain.TierQuick, parsed.Scores, reason)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrPredictionFailed, match.Code, err)
	}

	log.Debug("quick prediction generated",
		"code", match.Code,
		"scores", prediction.Scores)

	return prediction, nil
}
