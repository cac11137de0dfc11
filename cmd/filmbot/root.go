package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "filmbot",
	Short:         "Telegram bot for a film catalog",
	Long:          `filmbot keeps a PostgreSQL catalog of films and lets Telegram users add, search, update and delete entries through guided dialogs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command selected on the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "YAML config file (default $CONFIG_PATH, otherwise environment only)")
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
