package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var thoughtsCmd = &cobra.Command{
	Use:   "thoughts <session-id>",
	Short: "Show the reasoning trace for a session",
	Long: `Print the recorded thought steps of a session in sequence order.

Requires the postgres backend: with the file store, thought steps are
kept in process memory and are returned inline on each ask instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		after, _ := cmd.Flags().GetInt("after")
		format, _ := cmd.Flags().GetString("format")

		env, err := buildApp(cmd.Context(), 0)
		if err != nil {
			return err
		}
		defer env.cleanup()

		if env.db == nil {
			return fmt.Errorf("thought history requires the postgres backend (store.backend: postgres)")
		}

		steps, err := env.recorder.ReadAfter(cmd.Context(), args[0], after)
		if err != nil {
			return err
		}

		if format == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(steps)
		}

		if len(steps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No thought steps recorded.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tTYPE\tSTATUS\tTITLE\tSUMMARY")
		for _, st := range steps {
			summary := st.Summary
			if len(summary) > 60 {
				summary = summary[:57] + "..."
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", st.Seq, st.Type, st.Status, st.Title, summary)
		}
		return w.Flush()
	},
}

func init() {
	thoughtsCmd.Flags().Int("after", 0, "Only show steps with a sequence number above this")
	thoughtsCmd.Flags().String("format", "table", "Output format: table or json")
}
