package validate

// stageRules holds the default expectations per pipeline stage. Bounds
// mark outputs an operator should look at, not outputs to reject.
var stageRules = map[string][]Rule{
	"survey": {
		{Field: "mean_wind_speed", Required: true, Min: bound(0), Max: bound(25),
			Message: "outside the plausible range for a surface site"},
		{Field: "lat", Min: bound(-90), Max: bound(90)},
		{Field: "lon", Min: bound(-180), Max: bound(180)},
		{Field: "data_coverage_pct", Min: bound(60),
			Message: "low coverage weakens every downstream estimate"},
		{Field: "ruggedness_index", Max: bound(0.8),
			Message: "very complex terrain; flow-model error grows"},
	},
	"layout": {
		{Field: "turbine_count", Required: true, Min: bound(1)},
		{Field: "capacity_mw", Required: true},
		{Field: "spacing_m", Min: bound(300),
			Message: "tight spacing drives up wake losses"},
	},
	"simulation": {
		{Field: "capacity_factor", Required: true, Min: bound(0.05), Max: bound(0.65)},
		{Field: "aep_gwh", Required: true},
		{Field: "wake_loss_pct", Max: bound(15),
			Message: "consider respacing the layout"},
	},
	"report": {
		{Field: "report_markdown", Required: true},
		{Field: "word_count", Min: bound(50), Severity: SeverityInfo,
			Message: "report is unusually short"},
	},
}
