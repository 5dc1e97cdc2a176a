package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"taskboard/internal/migration"
)

func newMigrateCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the data file into the document store once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			if e.store == nil {
				return errFileBackend
			}

			out := cmd.OutOrStdout()
			if dryRun {
				snap := e.file.Load()
				if snap.Empty() {
					return migration.ErrNoSourceData
				}
				res := migration.New(e.store, e.logger).Preview(snap)
				fmt.Fprintf(out, "would migrate %d categories and %d tasks from %s\n", res.CategoriesMigrated, res.TasksMigrated, e.file.Path())
				return nil
			}

			res, err := e.repo.Migrate(cmd.Context())
			if err != nil {
				return err
			}
			if res.Skipped {
				fmt.Fprintf(out, "nothing to do: %s\n", res.Reason)
				return nil
			}
			fmt.Fprintf(out, "migrated %d categories and %d tasks (run %s)\n", res.CategoriesMigrated, res.TasksMigrated, res.RunID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be migrated without writing")
	return cmd
}

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Print categories and task counts from the document store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			if e.store == nil {
				return errFileBackend
			}

			engine := migration.New(e.store, e.logger)
			status, err := engine.Status(cmd.Context())
			if err != nil {
				return err
			}
			report, err := engine.Verify(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "migration: %s\n", status.State)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tCOLOR\tTASKS")
			for _, c := range report.Categories {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Name, c.Color, c.Tasks)
			}
			for name, n := range report.Orphans {
				fmt.Fprintf(tw, "%s\t(missing)\t%d\n", name, n)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "total: %d categories, %d tasks\n", len(report.Categories), report.Tasks)
			return nil
		},
	}
}
