package domain

import (
	"errors"
	"time"
)

// Tier identifies which prediction pipeline produced a prediction.
type Tier string

// Possible prediction tiers. Deep-tier predictions are authoritative:
// a deep write supersedes a quick write for the same match code, never
// the other way around.
const (
	TierQuick Tier = "quick"
	TierDeep  Tier = "deep"
)

// MaxPredictionScores is the number of candidate scores a single
// prediction may carry.
const MaxPredictionScores = 2

// MaxQuickReasonLength bounds the free-text reason on quick-tier
// predictions.
const MaxQuickReasonLength = 50

// Common validation errors for Prediction
var (
	ErrInvalidTier      = errors.New("invalid prediction tier")
	ErrNoScores         = errors.New("prediction must contain at least one score")
	ErrTooManyScores    = errors.New("prediction carries too many candidate scores")
	ErrReasonTooLong    = errors.New("quick prediction reason exceeds length limit")
	ErrEmptyMatchRef    = errors.New("prediction must reference a match code")
	ErrMalformedScore   = errors.New("candidate score is empty after normalization")
	ErrPredictionFailed = errors.New("prediction generation failed")
)

// Prediction holds the candidate scores one of the two pipelines produced
// for a match. At most one prediction exists per match code.
type Prediction struct {
	Code        string    `json:"code"`
	Tier        Tier      `json:"tier"`
	Scores      []string  `json:"scores"`
	Reason      string    `json:"reason"`
	PredictedAt time.Time `json:"predicted_at"`
}

// NewPrediction creates a Prediction for the given match code, normalizing
// every candidate score. Returns an error if validation fails.
func NewPrediction(code string, tier Tier, scores []string, reason string) (*Prediction, error) {
	normalized := make([]string, 0, len(scores))
	for _, s := range scores {
		normalized = append(normalized, NormalizeScore(s))
	}

	p := &Prediction{
		Code:        code,
		Tier:        tier,
		Scores:      normalized,
		Reason:      reason,
		PredictedAt: time.Now().UTC(),
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// Validate checks if the Prediction has valid data.
func (p *Prediction) Validate() error {
	if p.Code == "" {
		return ErrEmptyMatchRef
	}

	if !isValidTier(p.Tier) {
		return ErrInvalidTier
	}

	if len(p.Scores) == 0 {
		return ErrNoScores
	}

	if len(p.Scores) > MaxPredictionScores {
		return ErrTooManyScores
	}

	for _, s := range p.Scores {
		if s == "" {
			return ErrMalformedScore
		}
	}

	if p.Tier == TierQuick && len([]rune(p.Reason)) > MaxQuickReasonLength {
		return ErrReasonTooLong
	}

	return nil
}

// Hit reports whether any candidate score matches the actual score after
// normalization.
func (p *Prediction) Hit(actualScore string) bool {
	actual := NormalizeScore(actualScore)
	if actual == "" {
		return false
	}

	for _, s := range p.Scores {
		if NormalizeScore(s) == actual {
			return true
		}
	}
	return false
}

// isValidTier checks if the given tier is a valid Tier.
func isValidTier(tier Tier) bool {
	switch tier {
	case TierQuick, TierDeep:
		return true
	default:
		return false
	}
}
