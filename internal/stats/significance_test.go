package stats_test

import (
	"errors"
	"testing"

	"github.com/gkobilansky/abgoat/internal/stats"
)

func TestProportionTestCounts_ClearWinner(t *testing.T) {
	// Control: 5% conversion (50/1000)
	// Treatment: 10% conversion (100/1000)
	r, err := stats.ProportionTestCounts(50, 1000, 100, 1000, stats.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !r.Significant {
		t.Errorf("expected significant result, got p=%f", r.PValue)
	}
	if r.Statistic <= 0 {
		t.Errorf("expected positive statistic, got %f", r.Statistic)
	}
}

func TestProportionTestCounts_NoSignificance(t *testing.T) {
	r, err := stats.ProportionTestCounts(50, 1000, 50, 1000, stats.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Significant {
		t.Errorf("expected no significance for equal rates, got p=%f", r.PValue)
	}
	if r.PValue != 1 {
		t.Errorf("expected p-value 1 for equal rates, got %f", r.PValue)
	}
}

func TestProportionTestCounts_SmallSample(t *testing.T) {
	// Small samples should not show significance even with different rates
	r, err := stats.ProportionTestCounts(2, 20, 5, 20, stats.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Significant {
		t.Errorf("expected no significance for small sample, got p=%f", r.PValue)
	}
}

func TestProportionTestCounts_ZeroTrials(t *testing.T) {
	_, err := stats.ProportionTestCounts(0, 0, 0, 0, stats.DefaultOptions())
	if !errors.Is(err, stats.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestProportionTestCounts_OnlyOneVariantHasTrials(t *testing.T) {
	_, err := stats.ProportionTestCounts(10, 100, 0, 0, stats.DefaultOptions())
	if !errors.Is(err, stats.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestProportionTestCounts_InvalidCounts(t *testing.T) {
	_, err := stats.ProportionTestCounts(120, 100, 10, 100, stats.DefaultOptions())
	if !errors.Is(err, stats.ErrDomain) {
		t.Errorf("expected ErrDomain, got %v", err)
	}
}

func TestProportionTestCounts_AllConverted(t *testing.T) {
	// Both groups at 100%: zero standard error, no difference
	r, err := stats.ProportionTestCounts(10, 10, 10, 10, stats.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Statistic != 0 || r.PValue != 1 {
		t.Errorf("expected statistic 0 and p-value 1, got %f and %f", r.Statistic, r.PValue)
	}
}

func TestProportionTest_RejectsValuesOutsideUnitInterval(t *testing.T) {
	_, err := stats.ProportionTest([]float64{3, 5, 4}, []float64{1, 2, 2}, stats.DefaultOptions())
	if !errors.Is(err, stats.ErrDomain) {
		t.Errorf("expected ErrDomain, got %v", err)
	}

	_, err = stats.ProportionTest([]float64{0, 1, 1}, []float64{1, 0, -1}, stats.DefaultOptions())
	if !errors.Is(err, stats.ErrDomain) {
		t.Errorf("expected ErrDomain for negative value, got %v", err)
	}
}

func TestProportionTest_Indicators(t *testing.T) {
	control := []float64{1, 0, 0, 0, 1, 0, 0, 0, 0, 0}
	treatment := []float64{1, 1, 0, 1, 0, 1, 1, 0, 1, 0}

	r, err := stats.ProportionTest(control, treatment, stats.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.ControlMean != 0.2 || r.TreatmentMean != 0.6 {
		t.Errorf("got rates %v and %v, want 0.2 and 0.6", r.ControlMean, r.TreatmentMean)
	}
	if r.PValue < 0 || r.PValue > 1 {
		t.Errorf("p-value %v outside [0, 1]", r.PValue)
	}
}
