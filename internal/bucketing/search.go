package bucketing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gkobilansky/abgoat/internal/dataset"
)

// ErrNoValidCandidate is returned when every candidate seed was skipped.
var ErrNoValidCandidate = errors.New("no valid seeds found")

const (
	DefaultProgressEvery = 100
	DefaultTopK          = 3
)

// SearchInput is the read-only data a search runs over.
type SearchInput struct {
	Rows        []dataset.Row
	IDColumn    string
	Metrics     []dataset.Metric
	Proportions Proportions
	Iterations  int
}

// Candidate is one scored seed. Order is its generation index.
type Candidate struct {
	Seed  string  `json:"seed"`
	Score float64 `json:"score"`
	Order int     `json:"order"`
}

// Result holds the ranked outcome of a search. AllScores is in generation
// order and only contains scored candidates.
type Result struct {
	BestSeed  string      `json:"best_seed"`
	BestScore float64     `json:"best_score"`
	TopSeeds  []Candidate `json:"top_seeds"`
	AllScores []float64   `json:"all_scores"`
	Evaluated int         `json:"evaluated"`
	Skipped   int         `json:"skipped"`
}

// ProgressFunc receives a percentage in [0, 100]. Calls are serialized and
// never decrease.
type ProgressFunc func(percent float64)

// Searcher finds the seed whose assignment minimizes the largest absolute
// balance statistic across metrics. The zero value is ready to use.
type Searcher struct {
	Hasher        Hasher
	Logger        *zap.Logger
	Workers       int // candidates evaluated concurrently; <= 1 is sequential
	ProgressEvery int
	TopK          int
	NewSeed       func() string
}

// NewSeed returns "rr" followed by a random hex fragment.
func NewSeed() string {
	return "rr" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

func (s *Searcher) defaults() (Hasher, *zap.Logger, int, int, int, func() string) {
	h := s.Hasher
	if h == nil {
		h = DefaultHasher
	}
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := s.Workers
	if workers < 1 {
		workers = 1
	}
	every := s.ProgressEvery
	if every < 1 {
		every = DefaultProgressEvery
	}
	topK := s.TopK
	if topK < 1 {
		topK = DefaultTopK
	}
	newSeed := s.NewSeed
	if newSeed == nil {
		newSeed = NewSeed
	}
	return h, logger, workers, every, topK, newSeed
}

// Search evaluates in.Iterations fresh seeds. A candidate is skipped when any
// metric lacks enough values on the control side or in every other group.
// Cancelling ctx stops the search and returns the context error.
func (s *Searcher) Search(ctx context.Context, in SearchInput, onProgress ProgressFunc) (*Result, error) {
	start := time.Now()
	hasher, logger, workers, every, topK, newSeed := s.defaults()

	if err := validateSearch(in); err != nil {
		searchTotal.WithLabelValues("invalid").Inc()
		return nil, err
	}

	logger.Info("starting seed search",
		zap.Int("rows", len(in.Rows)),
		zap.Int("metrics", len(in.Metrics)),
		zap.Int("iterations", in.Iterations),
		zap.Int("workers", workers),
		zap.String("groups", in.Proportions.String()))

	prepared := prepare(in)
	seeds := make([]string, in.Iterations)
	for i := range seeds {
		seeds[i] = newSeed()
	}

	progress := newProgressReporter(onProgress, in.Iterations, every)
	progress.report(0)

	scores := make([]float64, len(seeds))
	scored := make([]bool, len(seeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, seed := range seeds {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			score, err := prepared.score(hasher, seed)
			if err != nil {
				logger.Debug("skipping seed", zap.String("seed", seed), zap.Error(err))
			} else {
				scores[i], scored[i] = score, true
			}
			progress.done()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		searchTotal.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("seed search: %w", err)
	}
	if err := ctx.Err(); err != nil {
		searchTotal.WithLabelValues("cancelled").Inc()
		return nil, fmt.Errorf("seed search: %w", err)
	}
	progress.report(100)

	res := &Result{}
	candidates := make([]Candidate, 0, len(seeds))
	for i, seed := range seeds {
		if !scored[i] {
			res.Skipped++
			continue
		}
		candidates = append(candidates, Candidate{Seed: seed, Score: scores[i], Order: i})
		res.AllScores = append(res.AllScores, scores[i])
	}
	res.Evaluated = len(candidates)
	candidateTotal.WithLabelValues("scored").Add(float64(res.Evaluated))
	candidateTotal.WithLabelValues("skipped").Add(float64(res.Skipped))

	if len(candidates) == 0 {
		searchTotal.WithLabelValues("no_candidate").Inc()
		logger.Warn("seed search found no valid candidate", zap.Int("skipped", res.Skipped))
		return nil, ErrNoValidCandidate
	}

	Rank(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	res.TopSeeds = candidates
	res.BestSeed = candidates[0].Seed
	res.BestScore = candidates[0].Score

	searchTotal.WithLabelValues("ok").Inc()
	searchDuration.Observe(time.Since(start).Seconds())
	if !math.IsInf(res.BestScore, 0) {
		bestScore.Observe(res.BestScore)
	}
	logger.Info("seed search finished",
		zap.String("best_seed", res.BestSeed),
		zap.Float64("best_score", res.BestScore),
		zap.Int("evaluated", res.Evaluated),
		zap.Int("skipped", res.Skipped),
		zap.Duration("elapsed", time.Since(start)))

	return res, nil
}

// Rank sorts candidates by ascending score, breaking ties by generation order.
func Rank(candidates []Candidate) {
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].Score != candidates[b].Score {
			return candidates[a].Score < candidates[b].Score
		}
		return candidates[a].Order < candidates[b].Order
	})
}

func validateSearch(in SearchInput) error {
	if len(in.Rows) == 0 {
		return fmt.Errorf("%w: no rows", ErrInvalidInput)
	}
	if len(in.Metrics) == 0 {
		return fmt.Errorf("%w: no metrics", ErrInvalidInput)
	}
	if in.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be at least 1, got %d", ErrInvalidInput, in.Iterations)
	}
	if in.IDColumn == "" {
		return fmt.Errorf("%w: id column is required", ErrInvalidInput)
	}
	if err := in.Proportions.Validate(); err != nil {
		return err
	}
	if _, ok := in.Rows[0].Get(in.IDColumn); !ok {
		return fmt.Errorf("%w: id column %q not found", ErrInvalidInput, in.IDColumn)
	}
	for _, m := range in.Metrics {
		if err := m.Validate(in.Rows); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return nil
}

type progressReporter struct {
	mu    sync.Mutex
	fn    ProgressFunc
	total int
	every int
	count int
	last  float64
}

func newProgressReporter(fn ProgressFunc, total, every int) *progressReporter {
	return &progressReporter{fn: fn, total: total, every: every, last: -1}
}

func (p *progressReporter) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	if p.count%p.every == 0 && p.count < p.total {
		p.emit(float64(p.count) / float64(p.total) * 100)
	}
}

func (p *progressReporter) report(pct float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emit(pct)
}

func (p *progressReporter) emit(pct float64) {
	if p.fn == nil || pct <= p.last {
		return
	}
	p.last = pct
	p.fn(pct)
}
