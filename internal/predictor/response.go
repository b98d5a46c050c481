// Package predictor turns language-model completions into validated
// predictions. It owns prompt construction and response parsing for both
// tiers; persistence and tier precedence live in the service layer.
package predictor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/phrazzld/pitchside/internal/ai"
	"github.com/phrazzld/pitchside/internal/domain"
)

// responseSchema is the JSON shape both prompts ask the model for.
type responseSchema struct {
	Scores []string `json:"scores"`
	Reason string   `json:"reason"`
}

// parseResponse extracts the prediction payload from raw model output.
// Models routinely wrap JSON in markdown fences or lead with prose, so the
// parser finds the first JSON object in the text instead of demanding a
// clean document.
func parseResponse(raw string) (*responseSchema, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: no JSON object in model output", ai.ErrInvalidResponse)
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrInvalidResponse, err)
	}

	if len(parsed.Scores) == 0 {
		return nil, fmt.Errorf("%w: response carries no scores", ai.ErrInvalidResponse)
	}
	if len(parsed.Scores) > domain.MaxPredictionScores {
		parsed.Scores = parsed.Scores[:domain.MaxPredictionScores]
	}

	return &parsed, nil
}

// truncateReason bounds the free-text reason for quick predictions.
func truncateReason(reason string, limit int) string {
	runes := []rune(strings.TrimSpace(reason))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit])
}
