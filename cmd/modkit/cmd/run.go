package cmd

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"syscall"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/modkit"
)

// NewRunCommand creates the run command
func NewRunCommand(flags *globalFlags) *cobra.Command {
	var watchConfig bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the application until interrupted",
		Long: `Start the application and block until SIGINT or SIGTERM, then stop it.

With --watch-config the configuration file is watched and a config changed
event is published whenever it is modified.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(cmd.Context(), flags)
			if err != nil {
				return err
			}
			if watchConfig && flags.configFile != "" && !slices.Contains(cfg.Watch.Paths, flags.configFile) {
				cfg.Watch.Paths = append(cfg.Watch.Paths, flags.configFile)
			}

			app, err := NewApplication(cfg)
			if err != nil {
				return err
			}
			err = app.RegisterObserver(modkit.NewFunctionalObserver("cli.config", func(ctx context.Context, event cloudevents.Event) error {
				app.Logger().Warn("Configuration changed; restart to apply", "source", event.Source())
				return nil
			}), modkit.EventTypeConfigChanged)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}

	cmd.Flags().BoolVarP(&watchConfig, "watch-config", "w", false, "Publish an event when the config file changes")
	return cmd
}
