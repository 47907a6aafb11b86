package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aerostat-labs/windscout/internal/config"
	"github.com/aerostat-labs/windscout/internal/queue"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the deferred ask queue",
	Long: `Queue questions for later processing and work through them.

The queue lives in postgres, so these commands require store.backend
to be postgres (or a DSN via store.dsn / WINDSCOUT_DB_DSN).`,
}

var queueAddCmd = &cobra.Command{
	Use:   "add <question>...",
	Short: "Queue a question for later processing",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := cmd.Flags().GetString("session")
		directive, _ := cmd.Flags().GetString("directive")

		if session == "" {
			session = uuid.NewString()
			fmt.Fprintf(cmd.OutOrStdout(), "Session: %s\n", session)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		question := strings.Join(args, " ")
		id, err := d.QueueAdd(cmd.Context(), session, question, directive)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Queued ask #%d\n", id)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List items in the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		status, _ := cmd.Flags().GetString("status")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		items, err := d.QueueList(cmd.Context(), status)
		if err != nil {
			return err
		}

		if format == "json" {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		}

		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tCAPABILITY\tQUESTION\tADDED")
		for _, item := range items {
			question := item.Question
			if len(question) > 50 {
				question = question[:47] + "..."
			}
			capability := item.Capability
			if capability == "" {
				capability = "(none)"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
				item.ID, item.Status, capability, question, item.AddedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var queueShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one queued ask, including its answer once processed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid queue id %q: must be a positive integer", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		item, err := d.QueueGet(cmd.Context(), id)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("no queued ask #%d", id)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Ask:       #%d (%s)\n", item.ID, item.Status)
		fmt.Fprintf(w, "Session:   %s\n", item.SessionID)
		fmt.Fprintf(w, "Question:  %s\n", item.Question)
		if item.Directive != "" && item.Directive != "auto" {
			fmt.Fprintf(w, "Directive: %s\n", item.Directive)
		}
		fmt.Fprintf(w, "Added:     %s\n", item.AddedAt.Format("2006-01-02 15:04:05"))
		if !item.FinishedAt.IsZero() {
			fmt.Fprintf(w, "Finished:  %s\n", item.FinishedAt.Format("2006-01-02 15:04:05"))
		}
		if item.Capability != "" {
			fmt.Fprintf(w, "Handled by: %s\n", item.Capability)
		}
		if item.Answer != "" {
			fmt.Fprintf(w, "\n%s\n", item.Answer)
		}
		if item.Error != "" {
			fmt.Fprintf(w, "\nError: %s\n", item.Error)
		}
		return nil
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a pending item from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid queue id %q: must be a positive integer", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.QueueRemove(cmd.Context(), id); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed ask #%d from the queue\n", id)
		return nil
	},
}

var queueRequeueCmd = &cobra.Command{
	Use:   "requeue <id>",
	Short: "Reset a stuck active item back to pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid queue id %q: must be a positive integer", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.QueueRequeue(cmd.Context(), id); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Requeued ask #%d\n", id)
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete finished items from the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("use --confirm to delete all finished queue items")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		count, err := d.QueueClear(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d finished item(s) from the queue\n", count)
		return nil
	},
}

var queueWorkCmd = &cobra.Command{
	Use:   "work",
	Short: "Process queued asks",
	Long: `Claim pending asks and route them through the assistant.

By default this polls until interrupted. With --once it drains the
items that are pending right now and exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")

		env, err := buildApp(cmd.Context(), 0)
		if err != nil {
			return err
		}
		defer env.cleanup()

		if env.db == nil {
			return fmt.Errorf("the ask queue requires the postgres backend (store.backend: postgres)")
		}

		runner := queue.NewRunner(env.db, env.router)
		runner.SetWorkers(env.cfg.Queue.Workers)
		runner.SetPollInterval(config.Duration(env.cfg.Queue.PollInterval, 2*time.Second))
		runner.SetProgress(cmd.ErrOrStderr())

		if once {
			actions, err := runner.DrainOnce(cmd.Context())
			if err != nil {
				return err
			}
			if len(actions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
				return nil
			}
			for _, a := range actions {
				fmt.Fprintf(cmd.OutOrStdout(), "ask #%d %s (%s)\n", a.ID, a.Action, a.Capability)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Processed %d ask(s)\n", len(actions))
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprintf(cmd.OutOrStdout(), "Working the queue with %d worker(s), ctrl-c to stop\n", env.cfg.Queue.Workers)
		return runner.Run(ctx)
	},
}

func init() {
	queueAddCmd.Flags().String("session", "", "Session to attribute the ask to (minted when empty)")
	queueAddCmd.Flags().String("directive", "", "Capability directive, bypassing intent detection")
	queueListCmd.Flags().String("format", "table", "Output format: table or json")
	queueListCmd.Flags().String("status", "", "Only show items with this status")
	queueClearCmd.Flags().Bool("confirm", false, "Confirm deleting finished queue items")
	queueWorkCmd.Flags().Bool("once", false, "Drain currently pending items and exit")

	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueShowCmd)
	queueCmd.AddCommand(queueRemoveCmd)
	queueCmd.AddCommand(queueRequeueCmd)
	queueCmd.AddCommand(queueClearCmd)
	queueCmd.AddCommand(queueWorkCmd)
}
