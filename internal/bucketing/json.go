package bucketing

import (
	"encoding/json"

	"github.com/gkobilansky/abgoat/internal/stats"
)

// MarshalJSON encodes an infinite score as null.
func (c Candidate) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Seed  string   `json:"seed"`
		Score *float64 `json:"score"`
		Order int      `json:"order"`
	}{c.Seed, stats.Finite(c.Score), c.Order})
}

// MarshalJSON encodes infinite scores as null.
func (r Result) MarshalJSON() ([]byte, error) {
	all := make([]*float64, len(r.AllScores))
	for i, s := range r.AllScores {
		all[i] = stats.Finite(s)
	}
	return json.Marshal(struct {
		BestSeed  string      `json:"best_seed"`
		BestScore *float64    `json:"best_score"`
		TopSeeds  []Candidate `json:"top_seeds"`
		AllScores []*float64  `json:"all_scores"`
		Evaluated int         `json:"evaluated"`
		Skipped   int         `json:"skipped"`
	}{r.BestSeed, stats.Finite(r.BestScore), r.TopSeeds, all, r.Evaluated, r.Skipped})
}
