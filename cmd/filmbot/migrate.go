package main

import (
	"fmt"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/filmbot/core/cmd"
	"github.com/m3rciful/filmbot/core/logger"
	"github.com/m3rciful/filmbot/internal/app"
	"github.com/m3rciful/filmbot/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations and seed the default genres",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadStorage(corecmd.ResolveConfigPath(configPath(cmd), "", ""))
		if err != nil {
			return err
		}
		db, err := app.Setup(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Shutdown() }()
		if err := db.Close(); err != nil {
			return fmt.Errorf("db close: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
