package store

import (
	"time"

	"github.com/gkobilansky/abgoat/internal/bucketing"
)

type ExperimentState string

const (
	StateDraft     ExperimentState = "draft"
	StateRunning   ExperimentState = "running"
	StatePaused    ExperimentState = "paused"
	StateCompleted ExperimentState = "completed"
)

// ParseState validates a state name.
func ParseState(s string) (ExperimentState, bool) {
	switch st := ExperimentState(s); st {
	case StateDraft, StateRunning, StatePaused, StateCompleted:
		return st, true
	}
	return "", false
}

// CanTransition reports whether an experiment may move from one state to
// another. Completed is final.
func CanTransition(from, to ExperimentState) bool {
	return from != StateCompleted || to == StateCompleted
}

// SameGroups reports whether p matches the experiment's groups in order.
func (e *Experiment) SameGroups(p bucketing.Proportions) bool {
	if len(p) != len(e.Proportions) {
		return false
	}
	for i := range p {
		if p[i] != e.Proportions[i] {
			return false
		}
	}
	return true
}

// Experiment is a registered assignment: the seed chosen for a set of groups
// and the metrics it was balanced on.
type Experiment struct {
	ID          int64                 `json:"id"`
	UUID        string                `json:"uuid"`
	Name        string                `json:"name"`
	IDColumn    string                `json:"id_column"`
	Seed        string                `json:"seed"`
	Hasher      string                `json:"hasher"`
	Proportions bucketing.Proportions `json:"proportions"`
	Metrics     []string              `json:"metrics"`    // metric specs, e.g. "revenue" or "clicks/views"
	Iterations  int                   `json:"iterations"` // size of the search that picked Seed
	BestScore   *float64              `json:"best_score"` // nil when not searched or infinite
	State       ExperimentState       `json:"state"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// Candidate is one ranked seed kept from a search.
type Candidate struct {
	Rank      int       `json:"rank"`
	Seed      string    `json:"seed"`
	Score     *float64  `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// CandidatesFrom ranks the top seeds of a search for RecordCandidates.
func CandidatesFrom(res *bucketing.Result) []Candidate {
	out := make([]Candidate, len(res.TopSeeds))
	for i, c := range res.TopSeeds {
		out[i] = Candidate{Rank: i + 1, Seed: c.Seed, Score: finite(c.Score)}
	}
	return out
}
