package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aerostat-labs/windscout/internal/project"
	"github.com/aerostat-labs/windscout/internal/report"
	"github.com/aerostat-labs/windscout/internal/workflow"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Inspect analysis projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		env, err := buildApp(cmd.Context(), 0)
		if err != nil {
			return err
		}
		defer env.cleanup()

		contexts, err := env.store.List(cmd.Context())
		if err != nil {
			return err
		}

		if format == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(contexts)
		}

		if len(contexts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No projects found.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSITE\tCAPACITY\tSTAGES\tUPDATED")
		for _, pc := range contexts {
			site := ""
			if pc.Location != nil {
				site = fmt.Sprintf("%.4f, %.4f", pc.Location.Lat, pc.Location.Lon)
			}
			capacity := ""
			if pc.CapacityMW > 0 {
				capacity = fmt.Sprintf("%.0f MW", pc.CapacityMW)
			}
			name := pc.Name
			if name == "" {
				name = "(unnamed)"
			}
			done := 0
			for _, stage := range workflow.StageOrder {
				if pc.HasSuccess(stage) {
					done++
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
				pc.ID, name, site, capacity, done, len(workflow.StageOrder),
				pc.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project-id>",
	Short: "Show a project's site state and stage rollup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		env, err := buildApp(cmd.Context(), 0)
		if err != nil {
			return err
		}
		defer env.cleanup()

		pc, stages, err := env.orch.Status(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, project.ErrNotFound) {
				return fmt.Errorf("no project %q", args[0])
			}
			return err
		}

		if format == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"project": pc, "stages": stages})
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Project:  %s\n", pc.ID)
		if pc.Name != "" {
			fmt.Fprintf(w, "Name:     %s\n", pc.Name)
		}
		if pc.Location != nil {
			fmt.Fprintf(w, "Site:     %.6f, %.6f\n", pc.Location.Lat, pc.Location.Lon)
		}
		if pc.CapacityMW > 0 {
			fmt.Fprintf(w, "Capacity: %.0f MW\n", pc.CapacityMW)
		}
		fmt.Fprintf(w, "Updated:  %s\n", pc.UpdatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintln(w)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STAGE\tSTATUS\tATTEMPTS\tDURATION\tERROR")
		for _, st := range stages {
			dur := ""
			if st.DurationMs > 0 {
				dur = fmt.Sprintf("%.1fs", float64(st.DurationMs)/1000)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", st.Stage, st.Status, st.Attempts, dur, st.Error)
		}
		return tw.Flush()
	},
}

var projectHistoryCmd = &cobra.Command{
	Use:   "history <project-id>",
	Short: "Show the stage event history for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		events, err := d.GetStageHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if format == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		}

		if len(events) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No events recorded for project %s\n", args[0])
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tSTAGE\tEVENT\tATTEMPT\tDURATION\tDETAIL")
		for _, e := range events {
			dur := ""
			if e.DurationMs > 0 {
				dur = fmt.Sprintf("%.1fs", float64(e.DurationMs)/1000)
			}
			detail := e.Detail
			if len(detail) > 50 {
				detail = detail[:47] + "..."
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
				e.CreatedAt.Format("2006-01-02 15:04:05"), e.Stage, e.Event, e.Attempt, dur, detail)
		}
		return tw.Flush()
	},
}

var projectReportCmd = &cobra.Command{
	Use:   "report <project-id>",
	Short: "Render the feasibility report for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, _ := cmd.Flags().GetBool("summary")

		env, err := buildApp(cmd.Context(), 0)
		if err != nil {
			return err
		}
		defer env.cleanup()

		pc, err := env.store.Load(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, project.ErrNotFound) {
				return fmt.Errorf("no project %q", args[0])
			}
			return err
		}

		name := report.TemplateFeasibility
		if summary {
			name = report.TemplateSummary
		}
		tmpl, err := report.LoadTemplate(name, env.cfg.Report.TemplateDir)
		if err != nil {
			return fmt.Errorf("load report template: %w", err)
		}
		out, err := report.Render(tmpl, report.FromContext(pc))
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}

		// Templates carry their own trailing newline.
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	projectListCmd.Flags().String("format", "table", "Output format: table or json")
	projectShowCmd.Flags().String("format", "table", "Output format: table or json")
	projectHistoryCmd.Flags().String("format", "table", "Output format: table or json")
	projectReportCmd.Flags().Bool("summary", false, "Render the one-line summary instead of the full report")

	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectHistoryCmd)
	projectCmd.AddCommand(projectReportCmd)
}
