package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"taskboard/internal/configstore"
)

func newExportCmd(a *app) *cobra.Command {
	var (
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump the document store in the data file layout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unknown format %q, want json or yaml", format)
			}
			e, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			snap, err := e.repo.ExportSnapshot(cmd.Context())
			if err != nil {
				return err
			}

			if out == "" {
				return writeSnapshot(cmd.OutOrStdout(), snap, format)
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := writeSnapshot(f, snap, format); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or yaml")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func writeSnapshot(w io.Writer, snap configstore.Snapshot, format string) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
