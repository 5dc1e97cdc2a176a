package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskboard/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "taskboard",
		Short: "Task dashboard backend",
		Long: `taskboard serves a task dashboard grouped by category.

Tasks live in a document store (sqlite, postgres or mongo) with the flat
tasks-config.json file as the migration source and read fallback.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newMigrateCmd(a))
	root.AddCommand(newVerifyCmd(a))
	root.AddCommand(newExportCmd(a))
	return root
}
