package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aerostat-labs/windscout/internal/agent"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant a question or start an analysis",
	Long: `Route one request through the assistant and print the response with
its reasoning trace.

Examples:
  windscout ask "analyze the site at 35.067482, -101.395466"
  windscout ask "run a feasibility study for a 120 MW farm at 45.6, -121.2"
  windscout ask --project proj-a1b2c3 "show me the wind rose"
  windscout ask --directive layout-design --project proj-a1b2c3 "place the turbines"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		projectID, _ := cmd.Flags().GetString("project")
		directive, _ := cmd.Flags().GetString("directive")
		format, _ := cmd.Flags().GetString("format")

		env, err := buildApp(cmd.Context(), 0)
		if err != nil {
			return err
		}
		defer env.cleanup()

		resp := env.router.Ask(cmd.Context(), agent.Request{
			SessionID: sessionID,
			ProjectID: projectID,
			Text:      strings.Join(args, " "),
			Directive: directive,
		})

		if format == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
		} else {
			printResponse(cmd.OutOrStdout(), resp)
		}

		if !resp.Success {
			return fmt.Errorf("ask failed (%s)", resp.Capability)
		}
		return nil
	},
}

func printResponse(w io.Writer, resp *agent.Response) {
	fmt.Fprintf(w, "%s\n\n", resp.Message)

	outcome := "ok"
	if !resp.Success {
		outcome = "failed"
	}
	fmt.Fprintf(w, "Capability: %s (confidence %d, %s)\n", resp.Capability, resp.Confidence, outcome)
	fmt.Fprintf(w, "Session:    %s\n", resp.SessionID)
	if resp.ProjectID != "" {
		fmt.Fprintf(w, "Project:    %s\n", resp.ProjectID)
	}

	if len(resp.Artifacts) > 0 {
		fmt.Fprintln(w, "\nArtifacts:")
		for _, a := range resp.Artifacts {
			fmt.Fprintf(w, "  [%s] %s: %s\n", a.Stage, a.Type, a.Locator)
		}
	}

	if len(resp.ThoughtSteps) > 0 {
		fmt.Fprintln(w, "\nReasoning:")
		for _, st := range resp.ThoughtSteps {
			fmt.Fprintf(w, "  %2d. [%s] %s: %s\n", st.Seq, st.Status, st.Title, st.Summary)
		}
	}
}

func init() {
	askCmd.Flags().String("session", "", "Session ID (continues an existing reasoning trace)")
	askCmd.Flags().String("project", "", "Project ID (reuses stored site state)")
	askCmd.Flags().String("directive", "", "Capability to dispatch to, bypassing classification")
	askCmd.Flags().String("format", "table", "Output format: table or json")
}
