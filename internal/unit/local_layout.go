package unit

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/aerostat-labs/windscout/internal/artifact"
)

// turbineMW is the rated capacity of the reference turbine model.
const turbineMW = 5.0

// LayoutUnit places turbines on the surveyed site for a target
// capacity. Needs the survey stage's results from the project context.
type LayoutUnit struct{}

var _ Unit = (*LayoutUnit)(nil)

func (LayoutUnit) Name() string { return "layout" }

func (LayoutUnit) Execute(ctx context.Context, in Input) (*Output, error) {
	survey, ok := stageOutput(in.ProjectContext, "survey")
	if !ok {
		return reject("layout requires survey results in the project context"), nil
	}

	capacity, ok := paramFloat(in.StageParameters, "capacity_mw")
	if !ok && in.ProjectContext != nil && in.ProjectContext.CapacityMW > 0 {
		capacity = in.ProjectContext.CapacityMW
		ok = true
	}
	if !ok || capacity <= 0 {
		capacity = 100
	}

	ruggedness, _ := paramFloat(survey, "ruggedness_index")

	count := int(math.Ceil(capacity / turbineMW))
	rows := int(math.Floor(math.Sqrt(float64(count))))
	if rows < 1 {
		rows = 1
	}
	cols := (count + rows - 1) / rows

	// Rotor diameter 140 m; rough terrain needs wider spacing.
	spacing := round1(4 * 140 * (1 + ruggedness))
	footprint := round2(float64(rows) * float64(cols) * spacing * spacing / 1e6)

	return &Output{
		Success: true,
		StageOutput: map[string]any{
			"turbine_count": count,
			"turbine_mw":    turbineMW,
			"rows":          rows,
			"cols":          cols,
			"spacing_m":     spacing,
			"footprint_km2": footprint,
			"capacity_mw":   round1(float64(count) * turbineMW),
		},
		Artifacts: []artifact.Ref{
			{Type: "layout-map", Locator: "art://layout-map/" + uuid.NewString()},
		},
	}, nil
}
