package report

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aerostat-labs/windscout/internal/project"
)

// FromContext flattens a project context into template variables. Each
// stage's latest successful output is exported under stage-prefixed
// names (survey_mean_wind_speed, layout_turbine_count, ...), so the
// conditional blocks in the templates track pipeline progress.
func FromContext(pc *project.Context) Vars {
	vars := Vars{
		"project_id":   pc.ID,
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if pc.Name != "" {
		vars["project_name"] = pc.Name
	}
	if pc.Location != nil {
		vars["lat"] = strconv.FormatFloat(pc.Location.Lat, 'f', 6, 64)
		vars["lon"] = strconv.FormatFloat(pc.Location.Lon, 'f', 6, 64)
		if pc.Location.Place != "" {
			vars["place"] = pc.Location.Place
		}
	}
	if pc.CapacityMW > 0 {
		vars["capacity_mw"] = formatValue(pc.CapacityMW)
	}

	for _, stage := range []string{"survey", "layout", "simulation"} {
		res := pc.Latest(stage)
		if res == nil || res.Status != project.StatusSuccess {
			continue
		}
		for k, v := range res.Output {
			vars[stage+"_"+k] = formatValue(v)
		}
	}

	vars["assessment"] = assessment(pc)
	if !pc.HasSuccess("simulation") {
		vars["pending_note"] = fmt.Sprintf("pipeline incomplete (%d of 4 stages done)", stagesDone(pc))
	}
	return vars
}

func formatValue(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case int:
		return strconv.Itoa(n)
	case bool:
		return strconv.FormatBool(n)
	}
	return fmt.Sprintf("%v", v)
}

// assessment summarizes viability from the simulated capacity factor.
func assessment(pc *project.Context) string {
	sim := pc.Latest("simulation")
	if sim == nil || sim.Status != project.StatusSuccess {
		return "Pipeline incomplete: run the remaining stages for a full assessment."
	}
	cf, _ := sim.Output["capacity_factor"].(float64)
	switch {
	case cf >= 0.35:
		return fmt.Sprintf("Strong candidate site: simulated capacity factor %.2f.", cf)
	case cf >= 0.25:
		return fmt.Sprintf("Viable with caveats: simulated capacity factor %.2f.", cf)
	default:
		return fmt.Sprintf("Marginal site: simulated capacity factor %.2f.", cf)
	}
}

func stagesDone(pc *project.Context) int {
	done := 0
	for _, stage := range []string{"survey", "layout", "simulation", "report"} {
		if pc.HasSuccess(stage) {
			done++
		}
	}
	return done
}
