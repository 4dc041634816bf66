package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT UNIQUE NOT NULL,
    name TEXT UNIQUE NOT NULL,
    id_column TEXT NOT NULL,
    seed TEXT NOT NULL,
    hasher TEXT NOT NULL DEFAULT 'rolling',
    proportions TEXT NOT NULL,
    metrics TEXT NOT NULL,
    iterations INTEGER NOT NULL DEFAULT 0,
    best_score REAL,
    state TEXT NOT NULL DEFAULT 'draft',
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_name ON experiments(name);
CREATE INDEX IF NOT EXISTS idx_experiments_state ON experiments(state);

CREATE TABLE IF NOT EXISTS candidates (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_name TEXT NOT NULL,
    rank INTEGER NOT NULL,
    seed TEXT NOT NULL,
    score REAL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (experiment_name) REFERENCES experiments(name)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_candidates_rank ON candidates(experiment_name, rank);
`

const experimentColumns = `id, uuid, name, id_column, seed, hasher, proportions, metrics, iterations, best_score, state, created_at, updated_at`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) (*Experiment, error) {
	if exp.Name == "" {
		return nil, errors.New("experiment name is required")
	}

	proportionsJSON, err := json.Marshal(exp.Proportions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proportions: %w", err)
	}
	metrics := exp.Metrics
	if metrics == nil {
		metrics = []string{}
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metrics: %w", err)
	}

	out := *exp
	out.UUID = uuid.NewString()
	out.Metrics = metrics
	if out.Hasher == "" {
		out.Hasher = "rolling"
	}
	if out.State == "" {
		out.State = StateDraft
	}

	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO experiments (uuid, name, id_column, seed, hasher, proportions, metrics, iterations, best_score, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.UUID, out.Name, out.IDColumn, out.Seed, out.Hasher, string(proportionsJSON), string(metricsJSON),
		out.Iterations, nullableFloat(out.BestScore), string(out.State), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("experiment %q: %w", out.Name, ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to insert experiment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	out.ID = id
	out.CreatedAt = time.Unix(now, 0)
	out.UpdatedAt = time.Unix(now, 0)
	return &out, nil
}

func (s *SQLiteStore) GetExperiment(ctx context.Context, name string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE name = ?`, name)

	exp, err := scanExperiment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}
	return exp, nil
}

func (s *SQLiteStore) ListExperiments(ctx context.Context) ([]*Experiment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}

	return experiments, nil
}

func (s *SQLiteStore) UpdateExperimentSeed(ctx context.Context, name, seed string, bestScore float64, iterations int) error {
	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET seed = ?, best_score = ?, iterations = ?, updated_at = ? WHERE name = ?`,
		seed, nullableFloat(finite(bestScore)), iterations, now, name,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment seed: %w", err)
	}
	return requireAffected(result)
}

func (s *SQLiteStore) UpdateExperimentState(ctx context.Context, name string, state ExperimentState) error {
	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET state = ?, updated_at = ? WHERE name = ?`,
		string(state), now, name,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment state: %w", err)
	}
	return requireAffected(result)
}

func (s *SQLiteStore) DeleteExperiment(ctx context.Context, name string) error {
	// First delete related candidates
	_, err := s.db.ExecContext(ctx, `DELETE FROM candidates WHERE experiment_name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete candidates: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM experiments WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}
	return requireAffected(result)
}

// RecordCandidates replaces the stored candidates of an experiment.
func (s *SQLiteStore) RecordCandidates(ctx context.Context, name string, candidates []Candidate) error {
	if _, err := s.GetExperiment(ctx, name); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM candidates WHERE experiment_name = ?`, name); err != nil {
		return fmt.Errorf("failed to clear candidates: %w", err)
	}

	now := time.Now().Unix()
	for i, c := range candidates {
		rank := c.Rank
		if rank == 0 {
			rank = i + 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO candidates (experiment_name, rank, seed, score, created_at) VALUES (?, ?, ?, ?, ?)`,
			name, rank, c.Seed, nullableFloat(c.Score), now,
		); err != nil {
			return fmt.Errorf("failed to record candidate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit candidates: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCandidates(ctx context.Context, name string) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rank, seed, score, created_at FROM candidates WHERE experiment_name = ? ORDER BY rank`,
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get candidates: %w", err)
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		var score sql.NullFloat64
		var createdAt int64
		if err := rows.Scan(&c.Rank, &c.Seed, &score, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		if score.Valid {
			v := score.Float64
			c.Score = &v
		}
		c.CreatedAt = time.Unix(createdAt, 0)
		candidates = append(candidates, c)
	}

	return candidates, rows.Err()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExperiment(row scanner) (*Experiment, error) {
	var exp Experiment
	var proportionsJSON, metricsJSON string
	var bestScore sql.NullFloat64
	var createdAt, updatedAt int64

	err := row.Scan(&exp.ID, &exp.UUID, &exp.Name, &exp.IDColumn, &exp.Seed, &exp.Hasher,
		&proportionsJSON, &metricsJSON, &exp.Iterations, &bestScore, &exp.State, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(proportionsJSON), &exp.Proportions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal proportions: %w", err)
	}
	if err := json.Unmarshal([]byte(metricsJSON), &exp.Metrics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}
	if bestScore.Valid {
		v := bestScore.Float64
		exp.BestScore = &v
	}

	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)
	return &exp, nil
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
