package intent

// Capability names shared by the rule table, the router's handler
// registry, and the workflow stage handlers.
const (
	CapFeasibility = "feasibility-workflow"
	CapSurvey      = "survey-analysis"
	CapLayout      = "layout-design"
	CapSimulation  = "simulation-run"
	CapReport      = "report-build"
	CapWindRose    = "wind-rose"
	CapTurbine     = "turbine-status"
	CapGeoSearch   = "geo-search"
	CapQA          = "qa"
)

// MustClassifier is NewClassifier that panics on an invalid table.
// Intended for static tables known at compile time.
func MustClassifier(groups []Group, fallback string) *Classifier {
	c, err := NewClassifier(groups, fallback)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the built-in wind-farm rule table. Group order is the
// priority order: domain workflows, then site analysis, then geography
// search, then open-ended questions. Anything that matches nothing
// falls back to Q&A with confidence 0.
func Default() *Classifier {
	return MustClassifier(DefaultGroups(), CapQA)
}

// DefaultGroups builds the rule groups for Default. Exposed so tests
// and alternate deployments can extend the table before compiling it.
func DefaultGroups() []Group {
	return []Group{
		{
			Name: "workflows",
			Rules: []Rule{
				{
					ID:         "feasibility-study",
					Capability: CapFeasibility,
					Pattern:    `\bfeasibility\s+(study|assessment|workflow|pipeline)\b|\b(full|complete|end.to.end)\s+(study|assessment|analysis|workflow|pipeline)\b`,
					Confidence: 90,
					Extract:    MergeExtractors(ExtractCoordinates, ExtractCapacityMW, ExtractPlace),
				},
				{
					// Keyed on "rose" alone this rule would fire for any
					// compass-rose mention; the companion token pins it
					// to the wind domain.
					ID:         "wind-rose",
					Capability: CapWindRose,
					Pattern:    `\brose\b`,
					Companions: []string{"wind"},
					Confidence: 85,
					Extract:    MergeExtractors(ExtractCoordinates, ExtractPlace),
				},
				{
					ID:         "wake-map",
					Capability: CapSimulation,
					Pattern:    `\bwake\s+(map|loss|losses|analysis|effects?)\b`,
					Confidence: 80,
					Extract:    ExtractCoordinates,
				},
			},
		},
		{
			Name: "analysis",
			Rules: []Rule{
				{
					ID:         "site-analysis",
					Capability: CapSurvey,
					Pattern:    `\b(analy[sz]e|assess|evaluate|survey)\b[^.?!]*\b(site|location|terrain|parcel|area)\b|\bsite\s+(survey|assessment|analysis)\b`,
					Confidence: 80,
					Extract:    MergeExtractors(ExtractCoordinates, ExtractPlace),
				},
				{
					ID:         "layout-design",
					Capability: CapLayout,
					Pattern:    `\b(optimi[sz]e|design|plan)\b[^.?!]*\b(layout|placement)\b|\bturbine\s+(layout|placement|spacing)\b|\bmicrositing\b`,
					Confidence: 78,
					Extract:    ExtractCapacityMW,
				},
				{
					ID:         "run-simulation",
					Capability: CapSimulation,
					Pattern:    `\b(run|start|execute)\b[^.?!]*\bsimulat\w+\b|\b(annual\s+energy|energy\s+production|aep|yield)\b`,
					Confidence: 75,
					Extract:    ExtractCapacityMW,
				},
				{
					ID:         "build-report",
					Capability: CapReport,
					Pattern:    `\b(generate|build|create|write|produce)\b[^.?!]*\breport\b|\b(feasibility|summary)\s+report\b`,
					Confidence: 72,
				},
				{
					ID:         "turbine-status",
					Capability: CapTurbine,
					Pattern:    `\b(wtg|mast|turbine)[\s#-]*\d{1,4}\b`,
					Confidence: 82,
					Extract:    ExtractUnitID,
				},
			},
		},
		{
			Name: "geography",
			Rules: []Rule{
				{
					ID:         "geo-search",
					Capability: CapGeoSearch,
					Pattern:    `\b(find|search|locate|show)\b[^.?!]*\b(sites?|locations?|areas?|parcels?)\b|\bwhere\s+(is|are)\b`,
					Confidence: 70,
					Extract:    MergeExtractors(ExtractPlace, ExtractCoordinates),
				},
			},
		},
		{
			Name: "questions",
			Rules: []Rule{
				{
					ID:         "open-question",
					Capability: CapQA,
					Pattern:    `^\s*(what|how|why|when|which|who|explain|tell\s+me|describe)\b`,
					Confidence: 60,
				},
			},
		},
	}
}
