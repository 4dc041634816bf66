package server

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/gkobilansky/abgoat/internal/analysis"
	"github.com/gkobilansky/abgoat/internal/bucketing"
	"github.com/gkobilansky/abgoat/internal/dataset"
	"github.com/gkobilansky/abgoat/internal/samplesize"
	"github.com/gkobilansky/abgoat/internal/stats"
	"github.com/gkobilansky/abgoat/internal/store"
)

func (s *Server) handleSampleSize(w http.ResponseWriter, r *http.Request) {
	var p samplesize.Params
	if err := decodeJSON(w, r, &p); err != nil {
		s.writeError(w, err)
		return
	}
	applyPlanDefaults(&p)

	rows, err := samplesize.Plan(p)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if rows == nil {
		rows = []samplesize.Row{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"params": p, "rows": rows})
}

// applyPlanDefaults fills the fields a caller usually leaves out.
func applyPlanDefaults(p *samplesize.Params) {
	if p.MetricType == "" {
		p.MetricType = samplesize.Continuous
	}
	if p.Alpha == 0 {
		p.Alpha = 0.05
	}
	if p.Power == 0 {
		p.Power = 0.8
	}
	if p.K == 0 {
		p.K = 1
	}
	if p.GroupNum == 0 {
		p.GroupNum = 2
	}
	if p.SampleRatio == 0 {
		p.SampleRatio = 1
	}
}

// SignificanceRequest carries raw observations, or aggregated counts for a
// proportion test.
type SignificanceRequest struct {
	MetricType  dataset.MetricType `json:"metric_type"`
	Alpha       float64            `json:"alpha"`
	Alternative stats.Alternative  `json:"alternative"`

	Control   []float64 `json:"control"`
	Treatment []float64 `json:"treatment"`

	// Ratio metrics: Control/Treatment hold numerators.
	ControlDenominator   []float64 `json:"control_denominator"`
	TreatmentDenominator []float64 `json:"treatment_denominator"`

	ControlConversions   *int `json:"control_conversions"`
	ControlN             int  `json:"control_n"`
	TreatmentConversions *int `json:"treatment_conversions"`
	TreatmentN           int  `json:"treatment_n"`
}

func (s *Server) handleSignificance(w http.ResponseWriter, r *http.Request) {
	var req SignificanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	opts := stats.Options{Alpha: req.Alpha, Alternative: req.Alternative}
	if opts.Alpha == 0 {
		opts.Alpha = 0.05
	}

	var res *stats.TestResult
	var err error
	switch req.MetricType {
	case dataset.MetricMean, "":
		res, err = stats.MeanTest(req.Control, req.Treatment, opts)
	case dataset.MetricProportion:
		if req.ControlConversions != nil && req.TreatmentConversions != nil {
			res, err = stats.ProportionTestCounts(*req.ControlConversions, req.ControlN, *req.TreatmentConversions, req.TreatmentN, opts)
		} else {
			res, err = stats.ProportionTest(req.Control, req.Treatment, opts)
		}
	case dataset.MetricRatio:
		res, err = stats.RatioTest(req.Control, req.ControlDenominator, req.Treatment, req.TreatmentDenominator, opts)
	default:
		err = badRequest("unknown metric type %q", req.MetricType)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DataRequest is the dataset part shared by rerandomize and analyze. Exactly
// one of CSV and Rows is used.
type DataRequest struct {
	CSV         string                `json:"csv"`
	Rows        []map[string]any      `json:"rows"`
	IDColumn    string                `json:"id_column"`
	Metrics     []string              `json:"metrics"`
	Proportions string                `json:"proportions"`
	Groups      bucketing.Proportions `json:"groups"`
}

func (d DataRequest) load() ([]dataset.Row, []dataset.Metric, bucketing.Proportions, error) {
	var rows []dataset.Row
	var err error
	switch {
	case d.CSV != "" && len(d.Rows) > 0:
		return nil, nil, nil, badRequest("send either csv or rows, not both")
	case d.CSV != "":
		rows, err = dataset.LoadCSV(strings.NewReader(d.CSV))
		if err != nil {
			return nil, nil, nil, badRequest("%v", err)
		}
	default:
		rows = rowsFromJSON(d.Rows)
	}

	metrics, err := dataset.ParseMetrics(d.Metrics)
	if err != nil {
		return nil, nil, nil, badRequest("%v", err)
	}

	p := d.Groups
	if d.Proportions != "" {
		p, err = bucketing.ParseProportions(d.Proportions)
		if err != nil {
			return nil, nil, nil, err
		}
	} else if len(p) > 0 && p.Total() != bucketing.Buckets {
		return nil, nil, nil, bucketing.ErrProportionSum
	}
	return rows, metrics, p, nil
}

// rowsFromJSON converts decoded objects to rows. Object key order is not
// preserved by JSON decoding, so columns are sorted by name.
func rowsFromJSON(objects []map[string]any) []dataset.Row {
	rows := make([]dataset.Row, 0, len(objects))
	for _, obj := range objects {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		row := dataset.NewRow()
		for _, k := range keys {
			switch v := obj[k].(type) {
			case float64:
				row.Set(k, dataset.Number(v))
			case string:
				row.Set(k, dataset.ParseValue(v))
			case bool:
				if v {
					row.Set(k, dataset.Number(1))
				} else {
					row.Set(k, dataset.Number(0))
				}
			default:
				row.Set(k, dataset.Text(""))
			}
		}
		rows = append(rows, row)
	}
	return rows
}

type RerandomizeRequest struct {
	DataRequest
	Iterations int    `json:"iterations"`
	TopK       int    `json:"top_k"`
	Bins       int    `json:"bins"`
	Hasher     string `json:"hasher"`
	Name       string `json:"name"`
	Save       bool   `json:"save"`
}

type RerandomizeResponse struct {
	Result     *bucketing.Result `json:"result"`
	Histogram  []bucketing.Bin   `json:"histogram"`
	Experiment *store.Experiment `json:"experiment,omitempty"`
}

func (s *Server) handleRerandomize(w http.ResponseWriter, r *http.Request) {
	var req RerandomizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Save {
		if !s.authorized(r) {
			writeErrorMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if req.Name == "" {
			s.writeError(w, badRequest("name is required to save an experiment"))
			return
		}
	}

	rows, metrics, p, err := req.load()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Iterations == 0 {
		req.Iterations = s.opts.Iterations
	}
	if req.Iterations > s.opts.MaxIterations {
		s.writeError(w, badRequest("iterations must be at most %d", s.opts.MaxIterations))
		return
	}
	hasher := s.opts.Hasher
	if req.Hasher != "" {
		h, ok := bucketing.HasherByName(req.Hasher)
		if !ok {
			s.writeError(w, badRequest("unknown hasher %q", req.Hasher))
			return
		}
		hasher = h
	}
	topK := req.TopK
	if topK == 0 {
		topK = s.opts.TopK
	}

	searcher := &bucketing.Searcher{
		Hasher:  hasher,
		Logger:  s.logger.With(zap.String("request", "rerandomize")),
		Workers: s.opts.Workers,
		TopK:    topK,
	}
	res, err := searcher.Search(r.Context(), bucketing.SearchInput{
		Rows:        rows,
		IDColumn:    req.IDColumn,
		Metrics:     metrics,
		Proportions: p,
		Iterations:  req.Iterations,
	}, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}

	bins := req.Bins
	if bins <= 0 {
		bins = s.opts.HistogramBins
	}
	resp := RerandomizeResponse{Result: res, Histogram: res.Histogram(bins)}

	if req.Save {
		exp, err := saveSearch(r, s.store, req, bucketing.HasherName(hasher), p, res)
		if err != nil {
			s.writeError(w, err)
			return
		}
		resp.Experiment = exp
	}

	writeJSON(w, http.StatusOK, resp)
}

// saveSearch registers the winning seed, replacing the seed of an existing
// experiment with the same name.
func saveSearch(r *http.Request, st store.Store, req RerandomizeRequest, hasher string, p bucketing.Proportions, res *bucketing.Result) (*store.Experiment, error) {
	ctx := r.Context()
	exp, err := st.CreateExperiment(ctx, &store.Experiment{
		Name:        req.Name,
		IDColumn:    req.IDColumn,
		Seed:        res.BestSeed,
		Hasher:      hasher,
		Proportions: p,
		Metrics:     req.Metrics,
		Iterations:  req.Iterations,
		BestScore:   stats.Finite(res.BestScore),
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		existing, getErr := st.GetExperiment(ctx, req.Name)
		if getErr != nil {
			return nil, getErr
		}
		if !existing.SameGroups(p) {
			return nil, fmt.Errorf("%w: experiment %q uses groups %s", store.ErrAlreadyExists, req.Name, existing.Proportions)
		}
		if err := st.UpdateExperimentSeed(ctx, req.Name, res.BestSeed, res.BestScore, req.Iterations); err != nil {
			return nil, err
		}
		exp, err = st.GetExperiment(ctx, req.Name)
	}
	if err != nil {
		return nil, err
	}

	if err := st.RecordCandidates(ctx, exp.Name, store.CandidatesFrom(res)); err != nil {
		return nil, err
	}
	return exp, nil
}

type AnalyzeRequest struct {
	DataRequest
	Experiment  string            `json:"experiment"`
	Seed        string            `json:"seed"`
	GroupColumn string            `json:"group_column"`
	Alpha       float64           `json:"alpha"`
	Alternative stats.Alternative `json:"alternative"`
	Correct     bool              `json:"correct"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	rows, metrics, p, err := req.load()
	if err != nil {
		s.writeError(w, err)
		return
	}

	hasher := s.opts.Hasher
	if req.Experiment != "" {
		exp, err := s.store.GetExperiment(r.Context(), req.Experiment)
		if err != nil {
			s.writeError(w, err)
			return
		}
		req.Seed, p = exp.Seed, exp.Proportions
		if req.IDColumn == "" {
			req.IDColumn = exp.IDColumn
		}
		if len(metrics) == 0 {
			if metrics, err = dataset.ParseMetrics(exp.Metrics); err != nil {
				s.writeError(w, badRequest("%v", err))
				return
			}
		}
		if h, ok := bucketing.HasherByName(exp.Hasher); ok {
			hasher = h
		}
	}
	if req.Seed == "" && req.GroupColumn == "" {
		s.writeError(w, badRequest("one of experiment, seed or group_column is required"))
		return
	}

	alpha := req.Alpha
	if alpha == 0 {
		alpha = 0.05
	}
	report, err := analysis.Run(rows, req.IDColumn, req.Seed, p, metrics, analysis.Options{
		Test:        stats.Options{Alpha: alpha, Alternative: req.Alternative},
		Correct:     req.Correct,
		GroupColumn: req.GroupColumn,
		Hasher:      hasher,
		Logger:      s.logger,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
