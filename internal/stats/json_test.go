package stats_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkobilansky/abgoat/internal/stats"
)

func TestTestResult_MarshalJSONNonFinite(t *testing.T) {
	r := stats.TestResult{
		Method:             stats.MethodWelch,
		ControlMean:        0,
		TreatmentMean:      1,
		Difference:         1,
		RelativeDifference: math.NaN(),
		Statistic:          2,
		DegreesOfFreedom:   math.Inf(1),
		PValue:             0.01,
		Significant:        true,
		CILower:            0.4,
		CIUpper:            math.Inf(1),
	}

	data, err := json.Marshal(r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Nil(t, got["relative_difference"])
	assert.Nil(t, got["ci_upper"])
	assert.Nil(t, got["degrees_of_freedom"])
	assert.Equal(t, 0.4, got["ci_lower"])
	assert.Equal(t, "significant", got["label"])

	// Pointers marshal through the value method too.
	_, err = json.Marshal(&r)
	assert.NoError(t, err)
}
