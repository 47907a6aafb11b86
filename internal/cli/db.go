package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date")
		return nil
	},
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the database (destructive!)",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("use --confirm to drop and recreate all tables")
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

		if err := d.Reset(cmd.Context()); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Database reset")
		return nil
	},
}

var dbDSNCmd = &cobra.Command{
	Use:   "dsn",
	Short: "Show the resolved database DSN with the password masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store.DSN == "" {
			return fmt.Errorf("no database DSN configured: set store.dsn or WINDSCOUT_DB_DSN")
		}
		fmt.Fprintln(cmd.OutOrStdout(), maskDSN(cfg.Store.DSN))
		return nil
	},
}

func init() {
	dbResetCmd.Flags().Bool("confirm", false, "Confirm dropping all data")

	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbResetCmd)
	dbCmd.AddCommand(dbDSNCmd)
}
