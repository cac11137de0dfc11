package main

import (
	"context"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/filmbot/core/cmd"
	"github.com/m3rciful/filmbot/internal/app"
	"github.com/m3rciful/filmbot/internal/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return corecmd.Run(cmd.Context(), corecmd.Options{
			ConfigPath: configPath(cmd),
			LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
				cfg, err := config.Load(path)
				if err != nil {
					return nil, err
				}
				return cfg, nil
			},
			Bootstrap: func(ctx context.Context, c corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
				return app.Build(ctx, c.(*config.Config))
			},
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
