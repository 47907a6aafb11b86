package unit

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/aerostat-labs/windscout/internal/artifact"
)

// SimulationUnit estimates annual energy production from the survey and
// layout results. Needs BOTH prior stages from the project context, not
// just the immediately preceding one.
type SimulationUnit struct{}

var _ Unit = (*SimulationUnit)(nil)

func (SimulationUnit) Name() string { return "simulation" }

func (SimulationUnit) Execute(ctx context.Context, in Input) (*Output, error) {
	survey, ok := stageOutput(in.ProjectContext, "survey")
	if !ok {
		return reject("simulation requires survey results in the project context"), nil
	}
	layout, ok := stageOutput(in.ProjectContext, "layout")
	if !ok {
		return reject("simulation requires layout results in the project context"), nil
	}

	meanWind, _ := paramFloat(survey, "mean_wind_speed")
	count, _ := paramFloat(layout, "turbine_count")
	ratedMW, _ := paramFloat(layout, "turbine_mw")
	spacing, _ := paramFloat(layout, "spacing_m")
	if count <= 0 || ratedMW <= 0 {
		return reject("layout results are missing turbine figures"), nil
	}

	cf := capacityFactor(meanWind)
	wakeLoss := wakeLossPct(spacing)
	gross := count * ratedMW * 8760 * cf / 1000 // GWh
	net := gross * (1 - wakeLoss/100)

	return &Output{
		Success: true,
		StageOutput: map[string]any{
			"capacity_factor": round2(cf),
			"wake_loss_pct":   round1(wakeLoss),
			"gross_aep_gwh":   round1(gross),
			"aep_gwh":         round1(net),
			"p50_gwh":         round1(net),
			"p90_gwh":         round1(net * 0.87),
		},
		Artifacts: []artifact.Ref{
			{Type: "production-table", Locator: "art://production-table/" + uuid.NewString()},
			{Type: "wake-map", Locator: "art://wake-map/" + uuid.NewString()},
		},
	}, nil
}

// capacityFactor approximates the rated-power fraction for a mean wind
// speed, clamped to a plausible band.
func capacityFactor(meanWind float64) float64 {
	cf := 0.12 + (meanWind-4.0)*0.055
	return math.Min(0.55, math.Max(0.10, cf))
}

// wakeLossPct grows as spacing tightens below eight rotor diameters.
func wakeLossPct(spacingM float64) float64 {
	if spacingM <= 0 {
		return 12
	}
	ratio := (8 * 140) / spacingM
	loss := 4 * ratio * ratio
	return math.Min(20, math.Max(2, loss))
}
