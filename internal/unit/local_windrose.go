package unit

import (
	"context"

	"github.com/google/uuid"

	"github.com/aerostat-labs/windscout/internal/artifact"
)

// WindRoseUnit produces a wind rose for a site. Single-shot capability,
// not part of the staged pipeline.
type WindRoseUnit struct{}

var _ Unit = (*WindRoseUnit)(nil)

func (WindRoseUnit) Name() string { return "windrose" }

func (WindRoseUnit) Execute(ctx context.Context, in Input) (*Output, error) {
	lat, lon, ok := siteCoords(in)
	if !ok {
		return reject("wind rose requires site coordinates (lat, lon)"), nil
	}

	dominant := compassPoints[int(siteFrac(lat, lon, "direction")*16)%16]
	calm := round1(2 + 6*siteFrac(lat, lon, "calm"))

	return &Output{
		Success: true,
		StageOutput: map[string]any{
			"dominant_direction": dominant,
			"calm_pct":           calm,
			"sectors":            16,
		},
		Artifacts: []artifact.Ref{
			{Type: "wind-rose", Locator: "art://wind-rose/" + uuid.NewString()},
		},
	}, nil
}
