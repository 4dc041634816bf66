package store_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/gkobilansky/abgoat/internal/bucketing"
	"github.com/gkobilansky/abgoat/internal/store"
)

// setupTestStore opens a store in a temp dir that is closed on cleanup.
func setupTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

func newExperiment(name string) *store.Experiment {
	score := 0.42
	return &store.Experiment{
		Name:        name,
		IDColumn:    "user_id",
		Seed:        "rr123",
		Proportions: bucketing.Proportions{{Name: "control", Percent: 50}, {Name: "treatment", Percent: 50}},
		Metrics:     []string{"revenue", "clicks/views"},
		Iterations:  1000,
		BestScore:   &score,
	}
}

func TestCreateExperiment(t *testing.T) {
	s := setupTestStore(t)

	exp, err := s.CreateExperiment(context.Background(), newExperiment("checkout"))
	if err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}

	if exp.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if exp.UUID == "" {
		t.Error("expected a uuid")
	}
	if exp.State != store.StateDraft {
		t.Errorf("got State %s, want draft", exp.State)
	}
	if exp.Hasher != "rolling" {
		t.Errorf("got Hasher %s, want rolling", exp.Hasher)
	}
}

func TestCreateExperiment_DuplicateName(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateExperiment(ctx, newExperiment("checkout")); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}
	_, err := s.CreateExperiment(ctx, newExperiment("checkout"))
	if !errors.Is(err, store.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetExperiment(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	created, err := s.CreateExperiment(ctx, newExperiment("checkout"))
	if err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}

	got, err := s.GetExperiment(ctx, "checkout")
	if err != nil {
		t.Fatalf("failed to get experiment: %v", err)
	}

	if got.UUID != created.UUID {
		t.Errorf("got UUID %s, want %s", got.UUID, created.UUID)
	}
	if got.Seed != "rr123" || got.IDColumn != "user_id" {
		t.Errorf("unexpected seed/id column: %s/%s", got.Seed, got.IDColumn)
	}
	if len(got.Proportions) != 2 || got.Proportions[1].Name != "treatment" || got.Proportions[1].Percent != 50 {
		t.Errorf("unexpected proportions: %+v", got.Proportions)
	}
	if len(got.Metrics) != 2 || got.Metrics[1] != "clicks/views" {
		t.Errorf("unexpected metrics: %v", got.Metrics)
	}
	if got.BestScore == nil || *got.BestScore != 0.42 {
		t.Errorf("unexpected best score: %v", got.BestScore)
	}
}

func TestGetExperiment_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetExperiment(context.Background(), "nope")
	if err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListExperiments(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		if _, err := s.CreateExperiment(ctx, newExperiment(name)); err != nil {
			t.Fatalf("failed to create experiment: %v", err)
		}
	}

	list, err := s.ListExperiments(ctx)
	if err != nil {
		t.Fatalf("failed to list experiments: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d experiments, want 3", len(list))
	}
	// Newest first.
	if list[0].Name != "c" {
		t.Errorf("got first experiment %s, want c", list[0].Name)
	}
}

func TestUpdateExperimentState(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateExperiment(ctx, newExperiment("checkout")); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}

	if err := s.UpdateExperimentState(ctx, "checkout", store.StateRunning); err != nil {
		t.Fatalf("failed to update state: %v", err)
	}
	got, _ := s.GetExperiment(ctx, "checkout")
	if got.State != store.StateRunning {
		t.Errorf("got State %s, want running", got.State)
	}

	if err := s.UpdateExperimentState(ctx, "missing", store.StateRunning); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateExperimentSeed(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateExperiment(ctx, newExperiment("checkout")); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}

	if err := s.UpdateExperimentSeed(ctx, "checkout", "rr999", math.Inf(1), 50); err != nil {
		t.Fatalf("failed to update seed: %v", err)
	}
	got, _ := s.GetExperiment(ctx, "checkout")
	if got.Seed != "rr999" || got.Iterations != 50 {
		t.Errorf("got seed %s iterations %d", got.Seed, got.Iterations)
	}
	if got.BestScore != nil {
		t.Errorf("expected infinite score to be stored as null, got %v", *got.BestScore)
	}
}

func TestCandidates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateExperiment(ctx, newExperiment("checkout")); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}

	a, b := 0.1, 0.2
	if err := s.RecordCandidates(ctx, "checkout", []store.Candidate{
		{Seed: "rr1", Score: &a},
		{Seed: "rr2", Score: &b},
		{Seed: "rr3"},
	}); err != nil {
		t.Fatalf("failed to record candidates: %v", err)
	}

	got, err := s.GetCandidates(ctx, "checkout")
	if err != nil {
		t.Fatalf("failed to get candidates: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
	if got[0].Rank != 1 || got[0].Seed != "rr1" || *got[0].Score != 0.1 {
		t.Errorf("unexpected first candidate: %+v", got[0])
	}
	if got[2].Score != nil {
		t.Errorf("expected nil score, got %v", *got[2].Score)
	}

	// Recording again replaces the previous run.
	if err := s.RecordCandidates(ctx, "checkout", []store.Candidate{{Seed: "rr9", Score: &a}}); err != nil {
		t.Fatalf("failed to record candidates: %v", err)
	}
	got, _ = s.GetCandidates(ctx, "checkout")
	if len(got) != 1 || got[0].Seed != "rr9" {
		t.Errorf("expected candidates to be replaced, got %+v", got)
	}

	if err := s.RecordCandidates(ctx, "missing", nil); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteExperiment(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateExperiment(ctx, newExperiment("checkout")); err != nil {
		t.Fatalf("failed to create experiment: %v", err)
	}
	score := 1.0
	if err := s.RecordCandidates(ctx, "checkout", []store.Candidate{{Seed: "rr1", Score: &score}}); err != nil {
		t.Fatalf("failed to record candidates: %v", err)
	}

	if err := s.DeleteExperiment(ctx, "checkout"); err != nil {
		t.Fatalf("failed to delete experiment: %v", err)
	}
	if _, err := s.GetExperiment(ctx, "checkout"); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	got, _ := s.GetCandidates(ctx, "checkout")
	if len(got) != 0 {
		t.Errorf("expected candidates to be deleted, got %d", len(got))
	}

	if err := s.DeleteExperiment(ctx, "checkout"); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestParseState(t *testing.T) {
	if st, ok := store.ParseState("running"); !ok || st != store.StateRunning {
		t.Errorf("expected running, got %s %v", st, ok)
	}
	if _, ok := store.ParseState("exploded"); ok {
		t.Error("expected unknown state to be rejected")
	}
}

func TestCanTransition(t *testing.T) {
	if !store.CanTransition(store.StateDraft, store.StateRunning) {
		t.Error("expected draft -> running to be allowed")
	}
	if !store.CanTransition(store.StatePaused, store.StateCompleted) {
		t.Error("expected paused -> completed to be allowed")
	}
	if store.CanTransition(store.StateCompleted, store.StateRunning) {
		t.Error("expected completed -> running to be rejected")
	}
}
