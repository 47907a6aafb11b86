package unit

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/aerostat-labs/windscout/internal/artifact"
	"github.com/aerostat-labs/windscout/internal/report"
)

// ReportUnit renders the feasibility report from the full accumulated
// context. Final stage of the pipeline.
type ReportUnit struct {
	// TemplateDir overrides the built-in templates when set.
	TemplateDir string
}

var _ Unit = (*ReportUnit)(nil)

func (ReportUnit) Name() string { return "report" }

func (u ReportUnit) Execute(ctx context.Context, in Input) (*Output, error) {
	if in.ProjectContext == nil {
		return reject("report requires a project context"), nil
	}
	if _, ok := stageOutput(in.ProjectContext, "survey"); !ok {
		return reject("report requires survey results in the project context"), nil
	}

	tmpl, err := report.LoadTemplate(report.TemplateFeasibility, u.TemplateDir)
	if err != nil {
		return nil, err
	}
	rendered, err := report.Render(tmpl, report.FromContext(in.ProjectContext))
	if err != nil {
		return nil, err
	}

	return &Output{
		Success: true,
		StageOutput: map[string]any{
			"report_markdown": rendered,
			"word_count":      len(strings.Fields(rendered)),
			"headline":        firstLine(rendered),
		},
		Artifacts: []artifact.Ref{
			{Type: "feasibility-report", Locator: "art://feasibility-report/" + uuid.NewString()},
		},
	}, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimLeft(s, "# ")
}
