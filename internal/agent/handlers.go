package agent

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"

	"github.com/aerostat-labs/windscout/internal/intent"
	"github.com/aerostat-labs/windscout/internal/project"
	"github.com/aerostat-labs/windscout/internal/unit"
	"github.com/aerostat-labs/windscout/internal/workflow"
)

// Pipeline is the slice of the workflow orchestrator the capability
// handlers use.
type Pipeline interface {
	RunStage(ctx context.Context, sessionID, projectID, stageName string, params map[string]any) (*project.Context, *project.StageResult, error)
	Run(ctx context.Context, sessionID, projectID string, params map[string]any) (*workflow.RunResult, error)
}

var _ Pipeline = (*workflow.Orchestrator)(nil)

// DefaultHandlers wires the standard capability set: the four pipeline
// stages, the end-to-end feasibility workflow and the single-shot
// lookups. The store may be nil when no durable project source exists
// for coordinate lookups.
func DefaultHandlers(p Pipeline, inv Invoker, store project.Store) []Handler {
	return []Handler{
		NewFeasibilityHandler(p),
		NewStageHandler(intent.CapSurvey, "survey", p),
		NewStageHandler(intent.CapLayout, "layout", p),
		NewStageHandler(intent.CapSimulation, "simulation", p),
		NewStageHandler(intent.CapReport, "report", p),
		NewWindRoseHandler(inv, store),
		TurbineStatusHandler{},
		GeoSearchHandler{},
		QAHandler{},
	}
}

// --- Pipeline capabilities ---

// StageHandler exposes one pipeline stage as a capability of its own.
type StageHandler struct {
	capability string
	stage      string
	pipeline   Pipeline
}

var _ Handler = (*StageHandler)(nil)

// NewStageHandler maps a capability name onto a named pipeline stage.
func NewStageHandler(capability, stage string, p Pipeline) *StageHandler {
	return &StageHandler{capability: capability, stage: stage, pipeline: p}
}

func (h *StageHandler) Capability() string { return h.capability }

func (h *StageHandler) Handle(ctx context.Context, ask Ask) (*Result, error) {
	projectID := ask.ProjectID()
	pc, sr, err := h.pipeline.RunStage(ctx, ask.SessionID, projectID, h.stage, ask.Params)
	if err != nil {
		return nil, err
	}

	ask.Artifacts.Add(h.stage, sr.Artifacts)

	msg := fmt.Sprintf("%s stage complete for %s (attempt %d)", h.stage, pc.ID, sr.Attempt)
	if n := len(sr.Findings); n > 0 {
		msg += fmt.Sprintf(" with %d finding(s)", n)
	}
	data := map[string]any{
		"stage":   h.stage,
		"attempt": sr.Attempt,
		"output":  sr.Output,
	}
	if len(sr.Findings) > 0 {
		data["findings"] = sr.Findings
	}
	return &Result{Message: msg, ProjectID: pc.ID, Data: data}, nil
}

// FeasibilityHandler runs the whole pipeline end to end.
type FeasibilityHandler struct {
	pipeline Pipeline
}

var _ Handler = (*FeasibilityHandler)(nil)

// NewFeasibilityHandler builds the full-pipeline capability.
func NewFeasibilityHandler(p Pipeline) *FeasibilityHandler {
	return &FeasibilityHandler{pipeline: p}
}

func (h *FeasibilityHandler) Capability() string { return intent.CapFeasibility }

func (h *FeasibilityHandler) Handle(ctx context.Context, ask Ask) (*Result, error) {
	projectID := ask.ProjectID()
	rr, err := h.pipeline.Run(ctx, ask.SessionID, projectID, ask.Params)
	if err != nil {
		return nil, err
	}

	for _, sr := range rr.Results {
		ask.Artifacts.Add(sr.Stage, sr.Artifacts)
	}

	data := map[string]any{
		"completed": rr.Completed,
		"results":   rr.Results,
	}
	msg := fmt.Sprintf("feasibility study complete for %s (%d stages)", rr.ProjectID, len(rr.Completed))
	for _, sr := range rr.Results {
		if sr.Stage != "report" {
			continue
		}
		if md, ok := sr.Output["report_markdown"].(string); ok {
			data["report_markdown"] = md
		}
	}
	return &Result{Message: msg, ProjectID: rr.ProjectID, Data: data}, nil
}

// --- Single-shot capabilities ---

// WindRoseHandler produces a wind rose via the windrose compute unit.
// Coordinates come from the request parameters, falling back to the
// stored location of the named project.
type WindRoseHandler struct {
	invoker Invoker
	store   project.Store
}

var _ Handler = (*WindRoseHandler)(nil)

// NewWindRoseHandler builds the wind-rose capability. The store is
// optional.
func NewWindRoseHandler(inv Invoker, store project.Store) *WindRoseHandler {
	return &WindRoseHandler{invoker: inv, store: store}
}

func (h *WindRoseHandler) Capability() string { return intent.CapWindRose }

func (h *WindRoseHandler) Handle(ctx context.Context, ask Ask) (*Result, error) {
	var pc *project.Context
	if _, ok := ask.Params["lat"]; !ok && ask.Request.ProjectID != "" && h.store != nil {
		if loaded, err := h.store.Load(ctx, ask.Request.ProjectID); err == nil {
			pc = loaded
		}
	}

	out, err := h.invoker.Invoke(ctx, "windrose", unit.Input{
		ProjectContext:  pc,
		StageParameters: ask.Params,
	})
	if err != nil {
		return nil, err
	}

	ask.Artifacts.Add("windrose", out.Artifacts)

	msg := "wind rose ready"
	if dir, ok := out.StageOutput["dominant_direction"].(string); ok {
		msg = fmt.Sprintf("wind rose ready: dominant direction %s", dir)
	}
	return &Result{Message: msg, ProjectID: ask.Request.ProjectID, Data: out.StageOutput}, nil
}

// TurbineStatusHandler reports the operational state of a single
// turbine or met mast. Readings are synthetic, derived from the unit
// identifier the same way the local compute units derive site numbers.
type TurbineStatusHandler struct{}

var _ Handler = TurbineStatusHandler{}

func (TurbineStatusHandler) Capability() string { return intent.CapTurbine }

func (TurbineStatusHandler) Handle(ctx context.Context, ask Ask) (*Result, error) {
	id, _ := ask.Params["unit_id"].(string)
	if id == "" {
		return nil, fmt.Errorf("no turbine or mast identifier found in request")
	}

	frac := idFrac(id, "state")
	states := []string{"online", "online", "online", "curtailed", "maintenance"}
	state := states[int(frac*float64(len(states)))%len(states)]

	availability := math.Round((92+7*idFrac(id, "avail"))*10) / 10
	power := 0.0
	if state == "online" {
		power = math.Round((0.4+2.8*idFrac(id, "power"))*100) / 100
	}

	data := map[string]any{
		"unit_id":          id,
		"status":           state,
		"availability_pct": availability,
		"power_mw":         power,
	}
	msg := fmt.Sprintf("%s is %s (availability %.1f%%)", id, state, availability)
	if state == "online" {
		msg = fmt.Sprintf("%s is online at %.2f MW (availability %.1f%%)", id, power, availability)
	}
	return &Result{Message: msg, Data: data}, nil
}

// idFrac maps an identifier plus a salt onto [0, 1), stable across runs.
func idFrac(id, salt string) float64 {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s:%s", id, salt)
	return float64(h.Sum32()) / float64(math.MaxUint32)
}

// GeoSearchHandler looks candidate sites up in the built-in catalog,
// by place name or by proximity to a coordinate pair.
type GeoSearchHandler struct{}

var _ Handler = GeoSearchHandler{}

type catalogSite struct {
	Name     string  `json:"name"`
	Region   string  `json:"region"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	MeanWind float64 `json:"mean_wind_mps"`
}

// siteCatalog is a small static index of well-known wind development
// areas, enough to exercise search without an external geocoder.
var siteCatalog = []catalogSite{
	{Name: "Columbia Gorge East", Region: "Oregon", Lat: 45.65, Lon: -120.94, MeanWind: 8.1},
	{Name: "Tehachapi Pass", Region: "California", Lat: 35.1, Lon: -118.29, MeanWind: 8.9},
	{Name: "San Gorgonio Pass", Region: "California", Lat: 33.92, Lon: -116.68, MeanWind: 8.4},
	{Name: "Texas Panhandle North", Region: "Texas", Lat: 35.22, Lon: -101.83, MeanWind: 8.6},
	{Name: "Gulf Coast Papalote", Region: "Texas", Lat: 28.03, Lon: -97.58, MeanWind: 7.4},
	{Name: "Dodge City Plains", Region: "Kansas", Lat: 37.75, Lon: -100.02, MeanWind: 8.2},
	{Name: "Medicine Bow", Region: "Wyoming", Lat: 41.9, Lon: -106.2, MeanWind: 9.3},
	{Name: "Limon High Plains", Region: "Colorado", Lat: 39.26, Lon: -103.69, MeanWind: 8.0},
	{Name: "Buffalo Ridge", Region: "Minnesota", Lat: 44.24, Lon: -96.05, MeanWind: 7.9},
	{Name: "Block Island Sound", Region: "Rhode Island", Lat: 41.11, Lon: -71.52, MeanWind: 9.8},
}

func (GeoSearchHandler) Capability() string { return intent.CapGeoSearch }

func (GeoSearchHandler) Handle(ctx context.Context, ask Ask) (*Result, error) {
	place, _ := ask.Params["place"].(string)
	lat, latOK := ask.Params["lat"].(float64)
	lon, lonOK := ask.Params["lon"].(float64)

	var hits []catalogSite
	var msg string
	switch {
	case place != "":
		needle := strings.ToLower(place)
		for _, s := range siteCatalog {
			if strings.Contains(strings.ToLower(s.Name), needle) ||
				strings.Contains(strings.ToLower(s.Region), needle) {
				hits = append(hits, s)
			}
		}
		msg = fmt.Sprintf("found %d candidate site(s) matching %q", len(hits), place)
	case latOK && lonOK:
		hits = append(hits, siteCatalog...)
		sort.Slice(hits, func(i, j int) bool {
			return distanceKm(lat, lon, hits[i].Lat, hits[i].Lon) < distanceKm(lat, lon, hits[j].Lat, hits[j].Lon)
		})
		if len(hits) > 5 {
			hits = hits[:5]
		}
		msg = fmt.Sprintf("%d nearest catalog sites to %.4f, %.4f", len(hits), lat, lon)
	default:
		hits = append(hits, siteCatalog...)
		sort.Slice(hits, func(i, j int) bool { return hits[i].MeanWind > hits[j].MeanWind })
		if len(hits) > 5 {
			hits = hits[:5]
		}
		msg = fmt.Sprintf("top %d catalog sites by mean wind speed", len(hits))
	}

	if hits == nil {
		hits = []catalogSite{}
	}
	data := map[string]any{"sites": hits, "count": len(hits)}
	if place != "" {
		data["query"] = place
	}
	return &Result{Message: msg, Data: data}, nil
}

// distanceKm is the haversine great-circle distance.
func distanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// QAHandler answers open-ended questions from a small topic table and
// otherwise describes what the assistant can do. It is the fallback
// capability, so it also absorbs requests nothing else matched.
type QAHandler struct{}

var _ Handler = QAHandler{}

var qaTopics = []struct {
	tokens []string
	answer string
}{
	{
		tokens: []string{"hub height"},
		answer: "Hub height is the distance from the ground to the rotor axis. Modern onshore turbines run 90 to 130 m; taller hubs reach steadier wind but raise transport and crane costs.",
	},
	{
		tokens: []string{"spacing", "setback"},
		answer: "Turbine spacing is usually 3 to 5 rotor diameters crosswind and 7 to 10 downwind. Tighter spacing raises wake losses, which the simulation stage quantifies per layout.",
	},
	{
		tokens: []string{"curtailment", "curtailed"},
		answer: "Curtailment is deliberately reducing output below what the wind allows, usually for grid limits, noise rules or wildlife windows. It shows up as lost energy in the production numbers.",
	},
	{
		tokens: []string{"met mast", "measurement campaign"},
		answer: "A met mast campaign measures wind speed and direction at several heights, typically for a year or more, to anchor the long-term resource estimate used by the survey stage.",
	},
	{
		tokens: []string{"icing", "cold climate"},
		answer: "Icing degrades blade aerodynamics and can force shutdowns. Cold-climate sites budget 2 to 10% annual production loss and often add blade heating.",
	},
}

func (QAHandler) Capability() string { return intent.CapQA }

func (QAHandler) Handle(ctx context.Context, ask Ask) (*Result, error) {
	text := strings.ToLower(ask.Request.Text)
	for _, topic := range qaTopics {
		for _, tok := range topic.tokens {
			if strings.Contains(text, tok) {
				return &Result{
					Message: topic.answer,
					Data:    map[string]any{"topic": tok},
				}, nil
			}
		}
	}

	msg := "I can survey a site, design a turbine layout, run an energy simulation, build a feasibility report, draw a wind rose, check turbine status or search for candidate sites. Ask for a feasibility study to run the whole pipeline."
	return &Result{Message: msg, Data: map[string]any{"question": ask.Request.Text}}, nil
}
