// Command msia runs the MSI-A WhatsApp intake service and its operator tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:          "msia",
		Short:        "MSI-A intake: WhatsApp field collection and human hand-off",
		Long:         "msia receives helpdesk webhooks for vehicle homologation requests, gates them against the kill switch and human hand-offs, and drives field collection from the element catalog.",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initializeLogger(flags.debug)
		},
	}

	cfg := loadEnvironmentConfig()
	cmd.PersistentFlags().StringVar(&flags.stateDir, "state-dir", cfg.StateDir, "state directory for the SQLite database (overrides $MSIA_STATE_DIR)")
	cmd.PersistentFlags().StringVar(&flags.dbDSN, "db-dsn", cfg.DSN, "database DSN, Postgres URL or SQLite path; \"memory\" keeps state in process (overrides $MSIA_DB_DSN or $DATABASE_URL)")
	cmd.PersistentFlags().BoolVar(&flags.debug, "debug", cfg.Debug, "enable debug logging (overrides $MSIA_DEBUG)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(cfg, &flags))
	cmd.AddCommand(newCatalogCmd(cfg))
	cmd.AddCommand(newKillSwitchCmd(&flags))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "msia %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
