package unit

import (
	"fmt"
	"hash/fnv"
	"math"

	"github.com/aerostat-labs/windscout/internal/project"
)

// Local units compute deterministic synthetic results so the system
// runs end to end without remote workers. The numbers are derived from
// the site coordinates, not measured; they are placeholders with
// plausible magnitudes.

var compassPoints = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// siteFrac maps a site plus a salt onto [0, 1), stable across runs.
func siteFrac(lat, lon float64, salt string) float64 {
	h := fnv.New32a()
	fmt.Fprintf(h, "%.6f:%.6f:%s", lat, lon, salt)
	return float64(h.Sum32()) / float64(math.MaxUint32)
}

func paramFloat(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func paramString(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// siteCoords resolves the site for a call: explicit parameters first,
// then the project's stored location.
func siteCoords(in Input) (lat, lon float64, ok bool) {
	lat, latOK := paramFloat(in.StageParameters, "lat")
	lon, lonOK := paramFloat(in.StageParameters, "lon")
	if latOK && lonOK {
		return lat, lon, true
	}
	if in.ProjectContext != nil && in.ProjectContext.Location != nil {
		loc := in.ProjectContext.Location
		return loc.Lat, loc.Lon, true
	}
	return 0, 0, false
}

// stageOutput returns the latest successful output for a stage from the
// accumulated context.
func stageOutput(pc *project.Context, stage string) (map[string]any, bool) {
	if pc == nil {
		return nil, false
	}
	res := pc.Latest(stage)
	if res == nil || res.Status != project.StatusSuccess {
		return nil, false
	}
	return res.Output, true
}

// reject builds the unit-level failure Output for unusable input.
func reject(format string, args ...any) *Output {
	return &Output{Success: false, ErrorMessage: fmt.Sprintf(format, args...)}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
