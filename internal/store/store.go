package store

import "context"

// Store defines the interface for the experiment registry
type Store interface {
	// Experiment operations
	CreateExperiment(ctx context.Context, exp *Experiment) (*Experiment, error)
	GetExperiment(ctx context.Context, name string) (*Experiment, error)
	ListExperiments(ctx context.Context) ([]*Experiment, error)
	UpdateExperimentSeed(ctx context.Context, name, seed string, bestScore float64, iterations int) error
	UpdateExperimentState(ctx context.Context, name string, state ExperimentState) error
	DeleteExperiment(ctx context.Context, name string) error

	// Candidate operations
	RecordCandidates(ctx context.Context, name string, candidates []Candidate) error
	GetCandidates(ctx context.Context, name string) ([]Candidate, error)

	// Lifecycle
	Close() error
}
