package stats

import (
	"encoding/json"
	"math"
)

// Finite returns nil for NaN and ±Inf so the value encodes as JSON null.
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// MarshalJSON encodes non-finite fields (open CI bounds, an undefined
// relative difference, an infinite statistic) as null.
func (r TestResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Method             string      `json:"method"`
		Alternative        Alternative `json:"alternative"`
		Alpha              float64     `json:"alpha"`
		ControlN           int         `json:"control_n"`
		TreatmentN         int         `json:"treatment_n"`
		ControlMean        float64     `json:"control_mean"`
		TreatmentMean      float64     `json:"treatment_mean"`
		Difference         float64     `json:"difference"`
		RelativeDifference *float64    `json:"relative_difference"`
		Statistic          *float64    `json:"statistic"`
		DegreesOfFreedom   *float64    `json:"degrees_of_freedom"`
		StandardError      float64     `json:"standard_error"`
		PValue             float64     `json:"p_value"`
		Significant        bool        `json:"significant"`
		Label              string      `json:"label"`
		CILower            *float64    `json:"ci_lower"`
		CIUpper            *float64    `json:"ci_upper"`
	}{
		Method:             r.Method,
		Alternative:        r.Alternative,
		Alpha:              r.Alpha,
		ControlN:           r.ControlN,
		TreatmentN:         r.TreatmentN,
		ControlMean:        r.ControlMean,
		TreatmentMean:      r.TreatmentMean,
		Difference:         r.Difference,
		RelativeDifference: Finite(r.RelativeDifference),
		Statistic:          Finite(r.Statistic),
		DegreesOfFreedom:   Finite(r.DegreesOfFreedom),
		StandardError:      r.StandardError,
		PValue:             r.PValue,
		Significant:        r.Significant,
		Label:              r.Label(),
		CILower:            Finite(r.CILower),
		CIUpper:            Finite(r.CIUpper),
	})
}
