package report

// Template names accepted by LoadTemplate.
const (
	TemplateFeasibility = "feasibility.md"
	TemplateSummary     = "summary.md"
)

var builtinTemplates = map[string]string{
	TemplateFeasibility: `# Wind Farm Feasibility Report

Project: {{project_id}}{{#if project_name}} ({{project_name}}){{/if}}
Generated: {{generated_at}}
{{#if place}}Area: {{place}}
{{/if}}{{#if lat}}Site: {{lat}}, {{lon}}
{{/if}}
{{#if survey_mean_wind_speed}}## Site Survey

- Mean wind speed: {{survey_mean_wind_speed}} m/s
- Dominant direction: {{survey_dominant_direction}}
- Terrain ruggedness index: {{survey_ruggedness_index}}
- Elevation: {{survey_elevation_m}} m

{{/if}}{{#if layout_turbine_count}}## Layout

- Turbines: {{layout_turbine_count}} x {{layout_turbine_mw}} MW
- Grid: {{layout_rows}} rows x {{layout_cols}} columns at {{layout_spacing_m}} m spacing
- Footprint: {{layout_footprint_km2}} km2
- Installed capacity: {{layout_capacity_mw}} MW

{{/if}}{{#if simulation_aep_gwh}}## Performance Simulation

- Net annual energy production: {{simulation_aep_gwh}} GWh (P50)
- P90: {{simulation_p90_gwh}} GWh
- Capacity factor: {{simulation_capacity_factor}}
- Wake losses: {{simulation_wake_loss_pct}} %

{{/if}}## Assessment

{{assessment}}
`,

	TemplateSummary: `{{project_id}}: {{#if simulation_aep_gwh}}{{layout_turbine_count}} turbines, {{simulation_aep_gwh}} GWh/yr at {{survey_mean_wind_speed}} m/s mean wind.{{/if}}{{#if pending_note}}{{pending_note}}{{/if}}
`,
}
