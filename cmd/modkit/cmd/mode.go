package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modkit"
	"github.com/GoCodeAlone/modkit/logging"
)

// NewModeCommand creates the mode command
func NewModeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mode",
		Short: "Print the deployment mode and the default log level",
		Long: `Print the deployment mode read from the mode variable (APP_ENV unless
app.modeVariable says otherwise) and the log level it implies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}
			app, err := NewApplication(cfg, modkit.WithLogger(logging.NewNop()))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "mode: %s\nvariable: %s\nlog level: %s\n",
				app.Mode(), app.Config().ModeVariable, app.DefaultLogLevel())
			return err
		},
	}
}
