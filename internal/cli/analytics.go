package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aerostat-labs/windscout/internal/analytics"
	"github.com/aerostat-labs/windscout/internal/db"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Query workflow and routing analytics",
	Long: `Report on stage performance, capability usage, and queue throughput.

Analytics are computed from the postgres event tables, so these
commands require the postgres backend.`,
}

// analyticsDB opens the database for a read-only analytics query.
func analyticsDB(cmd *cobra.Command) (*db.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openDB(cmd.Context(), cfg)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var analyticsStageDurationCmd = &cobra.Command{
	Use:   "stage-duration",
	Short: "Average and percentile durations per stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		since, _ := cmd.Flags().GetString("since")

		d, err := analyticsDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		rows, err := analytics.QueryStageDurations(d, since)
		if err != nil {
			return err
		}

		if format == "json" {
			return encodeJSON(cmd.OutOrStdout(), rows)
		}

		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No completed stage runs recorded")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STAGE\tRUNS\tAVG\tP50\tP95")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%.1fs\t%.1fs\t%.1fs\n", r.Stage, r.Count, r.Avg, r.P50, r.P95)
		}
		return w.Flush()
	},
}

var analyticsStageOutcomesCmd = &cobra.Command{
	Use:   "stage-outcomes",
	Short: "Success and retry rates per stage",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		since, _ := cmd.Flags().GetString("since")

		d, err := analyticsDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		rows, err := analytics.QueryStageOutcomes(d, since)
		if err != nil {
			return err
		}

		if format == "json" {
			return encodeJSON(cmd.OutOrStdout(), rows)
		}

		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No stage runs recorded")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STAGE\tSTARTED\tCOMPLETED\tFAILED\tSKIPPED\tSUCCESS%\tRETRY%")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.1f\t%.1f\n",
				r.Stage, r.Started, r.Completed, r.Failed, r.Skipped, r.SuccessPct, r.RetryPct)
		}
		return w.Flush()
	},
}

var analyticsCapabilitiesCmd = &cobra.Command{
	Use:   "capabilities",
	Short: "How often each capability handles an ask",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		since, _ := cmd.Flags().GetString("since")

		d, err := analyticsDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		rows, err := analytics.QueryCapabilityDistribution(d, since)
		if err != nil {
			return err
		}

		if format == "json" {
			return encodeJSON(cmd.OutOrStdout(), rows)
		}

		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No routed asks recorded")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CAPABILITY\tTOTAL\tFAILED\tFAILURE%")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%.1f\n", r.Capability, r.Total, r.Failed, r.FailurePct)
		}
		return w.Flush()
	},
}

var analyticsThroughputCmd = &cobra.Command{
	Use:   "throughput",
	Short: "Queued asks added, completed, and failed per day",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		since, _ := cmd.Flags().GetString("since")

		d, err := analyticsDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		rows, err := analytics.QueryAskThroughput(d, since)
		if err != nil {
			return err
		}

		if format == "json" {
			return encodeJSON(cmd.OutOrStdout(), rows)
		}

		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No queue activity recorded")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DAY\tADDED\tCOMPLETED\tFAILED\tAVG HANDLING")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.1fs\n", r.Period, r.Added, r.Completed, r.Failed, r.AvgHandling)
		}
		return w.Flush()
	},
}

var analyticsSessionCmd = &cobra.Command{
	Use:   "session <session-id>",
	Short: "Chronological event timeline for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		d, err := analyticsDB(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		events, err := analytics.QuerySessionDetail(d, args[0])
		if err != nil {
			return err
		}

		if format == "json" {
			return encodeJSON(cmd.OutOrStdout(), events)
		}

		if len(events) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No events recorded for session %s\n", args[0])
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tTYPE\tEVENT\tDETAIL")
		for _, e := range events {
			detail := e.Detail
			if len(detail) > 60 {
				detail = detail[:57] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp, e.Type, e.Event, detail)
		}
		return w.Flush()
	},
}

func init() {
	for _, c := range []*cobra.Command{
		analyticsStageDurationCmd,
		analyticsStageOutcomesCmd,
		analyticsCapabilitiesCmd,
		analyticsThroughputCmd,
	} {
		c.Flags().String("since", "", "Only include events on or after this date (YYYY-MM-DD)")
		c.Flags().String("format", "table", "Output format: table or json")
	}
	analyticsSessionCmd.Flags().String("format", "table", "Output format: table or json")

	analyticsCmd.AddCommand(analyticsStageDurationCmd)
	analyticsCmd.AddCommand(analyticsStageOutcomesCmd)
	analyticsCmd.AddCommand(analyticsCapabilitiesCmd)
	analyticsCmd.AddCommand(analyticsThroughputCmd)
	analyticsCmd.AddCommand(analyticsSessionCmd)
}
