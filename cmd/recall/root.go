package main

import (
	"github.com/spf13/cobra"
)

var (
	flagConfig string
	flagUser   string
)

var rootCmd = &cobra.Command{
	Use:           "recall",
	Short:         "Save, import and search articles",
	Long:          "recall saves web articles as clean markdown, imports whole sites in bulk, searches the web and summarizes what you saved.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "./configs", "directory containing config.yaml")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "local", "owner id used by CLI commands")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(bulkCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(configCmd)
}
