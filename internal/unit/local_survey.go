package unit

import (
	"context"

	"github.com/google/uuid"

	"github.com/aerostat-labs/windscout/internal/artifact"
)

// SurveyUnit characterizes a site: wind resource, terrain ruggedness,
// dominant direction. First stage of the feasibility pipeline and also
// the backend of single-shot site analysis.
type SurveyUnit struct{}

var _ Unit = (*SurveyUnit)(nil)

func (SurveyUnit) Name() string { return "survey" }

func (SurveyUnit) Execute(ctx context.Context, in Input) (*Output, error) {
	lat, lon, ok := siteCoords(in)
	if !ok {
		return reject("survey requires site coordinates (lat, lon)"), nil
	}

	meanWind := round2(5.5 + 4.0*siteFrac(lat, lon, "wind"))
	ruggedness := round2(0.1 + 0.5*siteFrac(lat, lon, "terrain"))
	elevation := round1(200 + 1400*siteFrac(lat, lon, "elevation"))
	dominant := compassPoints[int(siteFrac(lat, lon, "direction")*16)%16]
	coverage := round1(88 + 12*siteFrac(lat, lon, "coverage"))

	return &Output{
		Success: true,
		StageOutput: map[string]any{
			"lat":                lat,
			"lon":                lon,
			"mean_wind_speed":    meanWind,
			"ruggedness_index":   ruggedness,
			"elevation_m":        elevation,
			"dominant_direction": dominant,
			"data_coverage_pct":  coverage,
		},
		Artifacts: []artifact.Ref{
			{Type: "terrain-map", Locator: "art://terrain-map/" + uuid.NewString()},
			{Type: "wind-resource-grid", Locator: "art://wind-resource-grid/" + uuid.NewString()},
		},
	}, nil
}
