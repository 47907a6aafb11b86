package validate

import (
	"fmt"

	"github.com/aerostat-labs/windscout/internal/project"
)

// Finding severities.
const (
	SeverityWarning = "warning"
	SeverityInfo    = "info"
)

// Rule is one declarative expectation about a stage output field.
// Findings produced by rules never gate the pipeline; they ride along
// on the stage result for reports and operators.
type Rule struct {
	Field    string
	Required bool
	Min      *float64
	Max      *float64
	Severity string // defaults to warning
	Message  string // appended to the finding when set
}

func bound(v float64) *float64 { return &v }

// Evaluate runs the stage's rule set against an output map. Unknown
// stages produce no findings.
func Evaluate(stage string, output map[string]any) []project.Finding {
	var findings []project.Finding
	for _, r := range stageRules[stage] {
		if f := r.apply(output); f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}

func (r Rule) apply(output map[string]any) *project.Finding {
	severity := r.Severity
	if severity == "" {
		severity = SeverityWarning
	}

	raw, ok := output[r.Field]
	if !ok {
		if !r.Required {
			return nil
		}
		return &project.Finding{
			Severity: severity,
			Field:    r.Field,
			Message:  fmt.Sprintf("expected field %q missing from output", r.Field),
		}
	}
	if r.Min == nil && r.Max == nil {
		return nil
	}

	val, numeric := toFloat(raw)
	if !numeric {
		return &project.Finding{
			Severity: SeverityInfo,
			Field:    r.Field,
			Message:  fmt.Sprintf("field %q is not numeric (%T)", r.Field, raw),
		}
	}
	if r.Min != nil && val < *r.Min {
		return r.finding(severity, fmt.Sprintf("%s=%v is below %v", r.Field, val, *r.Min))
	}
	if r.Max != nil && val > *r.Max {
		return r.finding(severity, fmt.Sprintf("%s=%v is above %v", r.Field, val, *r.Max))
	}
	return nil
}

func (r Rule) finding(severity, msg string) *project.Finding {
	if r.Message != "" {
		msg = msg + ": " + r.Message
	}
	return &project.Finding{Severity: severity, Field: r.Field, Message: msg}
}

func toFloat(v any) (float64, bool) {
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
