package domain

import "time"

// AccuracyRecord holds per-tier hit statistics. Records are always
// recomputed wholesale from the matches/predictions join, never mutated
// incrementally, so repeated recomputes over the same data cannot drift.
type AccuracyRecord struct {
	Tier  Tier `json:"tier"`
	Total int  `json:"total"`
	Hits  int  `json:"hits"`

	// DirectionHits counts predictions whose win/draw/loss direction was
	// right even when the exact score was not. It is a secondary metric
	// and never contributes to HitRate.
	DirectionHits int `json:"direction_hits"`

	HitRate     float64   `json:"hit_rate"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewAccuracyRecord builds a record for the given tier, deriving HitRate
// as a percentage of Total. A zero Total yields a zero rate.
func NewAccuracyRecord(tier Tier, total, hits, directionHits int) AccuracyRecord {
	record := AccuracyRecord{
		Tier:          tier,
		Total:         total,
		Hits:          hits,
		DirectionHits: directionHits,
		LastUpdated:   time.Now().UTC(),
	}
	if total > 0 {
		record.HitRate = float64(hits) / float64(total) * 100
	}
	return record
}
