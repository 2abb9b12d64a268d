package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// OsExit is replaced in tests.
var OsExit = os.Exit

// PrintVersion returns the version line.
func PrintVersion() string {
	return fmt.Sprintf("modkit v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	envFile    string
	logLevel   string
	name       string
}

// NewRootCommand creates the root command for the modkit CLI
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "modkit",
		Short: "modkit - run and inspect modular applications",
		Long: `modkit hosts an application built from the scheduler, status server,
config watcher and event logger modules.

Configuration is read from an optional YAML, TOML or JSON file, then from
.env files and MODKIT_* environment variables. Module sections use their own
prefixes: MODKIT_SCHEDULER_*, MODKIT_STATUS_*, MODKIT_WATCH_* and
MODKIT_EVENTS_*.`,
		Version:       PrintVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Configuration file (.yaml, .yml, .toml or .json)")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "Dotenv file read before the environment")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.name, "name", "", "Application name override")

	cmd.AddCommand(NewRunCommand(flags))
	cmd.AddCommand(NewModeCommand(flags))
	cmd.AddCommand(NewTreeCommand(flags))

	return cmd
}
