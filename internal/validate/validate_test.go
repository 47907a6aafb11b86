package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_CleanOutputProducesNoFindings(t *testing.T) {
	findings := Evaluate("survey", map[string]any{
		"mean_wind_speed":   7.2,
		"data_coverage_pct": 93.5,
		"ruggedness_index":  0.3,
	})
	assert.Empty(t, findings)
}

func TestEvaluate_MissingRequiredField(t *testing.T) {
	findings := Evaluate("survey", map[string]any{
		"data_coverage_pct": 90.0,
	})
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityWarning, findings[0].Severity)
	assert.Equal(t, "mean_wind_speed", findings[0].Field)
	assert.Contains(t, findings[0].Message, "missing")
}

func TestEvaluate_OutOfRangeBounds(t *testing.T) {
	findings := Evaluate("simulation", map[string]any{
		"capacity_factor": 0.71,
		"aep_gwh":         400.0,
		"wake_loss_pct":   18.2,
	})
	require.Len(t, findings, 2)

	byField := map[string]string{}
	for _, f := range findings {
		byField[f.Field] = f.Message
	}
	assert.Contains(t, byField["capacity_factor"], "above 0.65")
	assert.Contains(t, byField["wake_loss_pct"], "respacing")
}

func TestEvaluate_CoordinatesOutOfRange(t *testing.T) {
	findings := Evaluate("survey", map[string]any{
		"mean_wind_speed":   7.0,
		"data_coverage_pct": 90.0,
		"lat":               95.2,
		"lon":               -181.0,
	})
	require.Len(t, findings, 2)

	byField := map[string]string{}
	for _, f := range findings {
		byField[f.Field] = f.Message
	}
	assert.Contains(t, byField["lat"], "above 90")
	assert.Contains(t, byField["lon"], "below -180")
}

func TestEvaluate_IntValuesCoerce(t *testing.T) {
	findings := Evaluate("layout", map[string]any{
		"turbine_count": 24,
		"capacity_mw":   120.0,
		"spacing_m":     620.0,
	})
	assert.Empty(t, findings)

	findings = Evaluate("layout", map[string]any{
		"turbine_count": 0,
		"capacity_mw":   0.0,
		"spacing_m":     620.0,
	})
	require.Len(t, findings, 1)
	assert.Equal(t, "turbine_count", findings[0].Field)
}

func TestEvaluate_NonNumericBoundedFieldIsInfo(t *testing.T) {
	findings := Evaluate("survey", map[string]any{
		"mean_wind_speed":   "brisk",
		"data_coverage_pct": 90.0,
	})
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityInfo, findings[0].Severity)
	assert.Contains(t, findings[0].Message, "not numeric")
}

func TestEvaluate_UnknownStage(t *testing.T) {
	assert.Empty(t, Evaluate("decommission", map[string]any{"x": 1.0}))
}

func TestEvaluate_SeverityOverride(t *testing.T) {
	findings := Evaluate("report", map[string]any{
		"report_markdown": "# Short",
		"word_count":      12,
	})
	require.Len(t, findings, 1)
	assert.Equal(t, SeverityInfo, findings[0].Severity)
	assert.Contains(t, findings[0].Message, "unusually short")
}
