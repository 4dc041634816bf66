package server

import (
	"net/http"
	"time"

	"github.com/gkobilansky/abgoat/internal/bucketing"
	"github.com/gkobilansky/abgoat/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	experiments, err := s.store.ListExperiments(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Get database size
	var dbSize int64
	row := s.store.DB().QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	if err := row.Scan(&dbSize); err != nil {
		dbSize = -1
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if experiments == nil {
		experiments = []*store.Experiment{}
	}
	writeJSON(w, http.StatusOK, experiments)
}

type experimentResponse struct {
	*store.Experiment
	Candidates []store.Candidate `json:"candidates"`
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.store.GetExperiment(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	candidates, err := s.store.GetCandidates(r.Context(), exp.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if candidates == nil {
		candidates = []store.Candidate{}
	}
	writeJSON(w, http.StatusOK, experimentResponse{Experiment: exp, Candidates: candidates})
}

type AssignResponse struct {
	Experiment string `json:"experiment"`
	ID         string `json:"id"`
	Seed       string `json:"seed"`
	Bucket     int    `json:"bucket"`
	Group      string `json:"group"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeError(w, badRequest("id parameter required"))
		return
	}

	exp, err := s.store.GetExperiment(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	h, ok := bucketing.HasherByName(exp.Hasher)
	if !ok {
		s.writeError(w, badRequest("experiment uses unknown hasher %q", exp.Hasher))
		return
	}

	writeJSON(w, http.StatusOK, AssignResponse{
		Experiment: exp.Name,
		ID:         id,
		Seed:       exp.Seed,
		Bucket:     h.Bucket(exp.Seed, id),
		Group:      exp.Proportions.Assign(h, exp.Seed, id),
	})
}

type stateRequest struct {
	State string `json:"state"`
}

func (s *Server) handleUpdateState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	state, ok := store.ParseState(req.State)
	if !ok {
		s.writeError(w, badRequest("unknown state %q", req.State))
		return
	}
	exp, err := s.store.GetExperiment(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !store.CanTransition(exp.State, state) {
		writeErrorMessage(w, http.StatusConflict, "completed experiments cannot be reopened")
		return
	}
	if err := s.store.UpdateExperimentState(r.Context(), exp.Name, state); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteExperiment(r.Context(), r.PathValue("name")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
