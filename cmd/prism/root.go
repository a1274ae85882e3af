package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MaxwellCole9/Digital-Promise-PRISM/version"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "prism",
	Short: "Research insight extraction pipeline for academic PDFs",
	Long: `PRISM pulls structured research insights out of academic paper PDFs
and writes them back into an Airtable study database.

The pipeline includes:
  - PDF text extraction with zone segmentation (abstract, body, end matter)
  - Declarative field configuration grouped into LLM call batches
  - Rate-limited model invocation with retry and per-call usage auditing
  - Spreadsheet export of the full study table`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.prism/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	}

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(initConfigCmd)
	rootCmd.AddCommand(versionCmd)
}
