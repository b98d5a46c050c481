package domain

import (
	"errors"
	"strings"
	"time"
)

// Common validation errors for Match
var (
	ErrEmptyMatchCode  = errors.New("match code cannot be empty")
	ErrMissingGroupKey = errors.New("match is missing its group key")
	ErrEmptyTeamName   = errors.New("team name cannot be empty")
)

// Match represents a single scheduled sporting event pulled from the
// upstream schedule. The GroupKey is the betting-batch date the event was
// offered under, which is not necessarily the kickoff date.
type Match struct {
	Code           string    `json:"code"`
	HomeTeam       string    `json:"home_team"`
	AwayTeam       string    `json:"away_team"`
	League         string    `json:"league"`
	KickoffTime    time.Time `json:"kickoff_time"`
	GroupKey       string    `json:"group_key"`
	Active         bool      `json:"active"`
	ActualScore    string    `json:"actual_score"`
	HalfScore      string    `json:"half_score"`
	GroupCompleted bool      `json:"group_completed"`
	DeepSelected   bool      `json:"deep_selected"`
	ScrapedAt      time.Time `json:"scraped_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewMatch creates an active Match from schedule data.
// Returns an error if validation fails; schedule rows without a group key
// are considered malformed, not recoverable.
func NewMatch(code, homeTeam, awayTeam, league, groupKey string, kickoff time.Time) (*Match, error) {
	match := &Match{
		Code:        code,
		HomeTeam:    homeTeam,
		AwayTeam:    awayTeam,
		League:      league,
		KickoffTime: kickoff,
		GroupKey:    groupKey,
		Active:      true,
		ScrapedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	if err := match.Validate(); err != nil {
		return nil, err
	}

	return match, nil
}

// Validate checks if the Match has valid data.
func (m *Match) Validate() error {
	if strings.TrimSpace(m.Code) == "" {
		return ErrEmptyMatchCode
	}

	if strings.TrimSpace(m.GroupKey) == "" {
		return ErrMissingGroupKey
	}

	if strings.TrimSpace(m.HomeTeam) == "" || strings.TrimSpace(m.AwayTeam) == "" {
		return ErrEmptyTeamName
	}

	return nil
}

// Resolved reports whether the match has a recorded final score.
func (m *Match) Resolved() bool {
	return m.ActualScore != ""
}

// Result is a final score scraped for a concluded match.
type Result struct {
	Code      string    `json:"code"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	League    string    `json:"league"`
	Score     string    `json:"score"`
	HalfScore string    `json:"half_score"`
	ScrapedAt time.Time `json:"scraped_at"`
}

// NormalizeScore canonicalizes a score string so predicted and actual
// scores compare reliably: full-width and ASCII colons both become a
// hyphen, surrounding whitespace is dropped.
func NormalizeScore(score string) string {
	normalized := strings.TrimSpace(score)
	normalized = strings.ReplaceAll(normalized, "：", ":")
	normalized = strings.ReplaceAll(normalized, ":", "-")
	return normalized
}
