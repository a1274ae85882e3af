package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/config"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/export"
	"github.com/MaxwellCole9/Digital-Promise-PRISM/internal/records"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the full study table to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := cm.Get()
		logger := slog.Default()

		store := records.NewClient(records.ClientConfig{
			APIKey: config.ResolveEnvVars(cfg.Airtable.APIKey),
			BaseID: config.ResolveEnvVars(cfg.Airtable.BaseID),
			Table:  cfg.Airtable.Table,
			Logger: logger,
		})

		recs, err := store.AllRecords(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to fetch records: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No records found to export.")
			return nil
		}

		data, err := export.NewService(logger).WorkbookXLSX(recs)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.Export.Dir, 0o755); err != nil {
			return err
		}
		path := filepath.Join(cfg.Export.Dir, export.Filename(time.Now()))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}

		fmt.Printf("Exported %d records to %s\n", len(recs), path)
		return nil
	},
}
