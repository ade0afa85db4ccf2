package main

import (
	"github.com/spf13/cobra"

	"github.com/folio-health/folio/internal/api"
	"github.com/folio-health/folio/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Clinical document extraction pipeline",
	Long: `Folio extracts structured clinical data from uploaded documents
(lab reports, embryology sheets, prescriptions) using region detection
and OCR.

The pipeline includes:
  - PDF and image ingestion with per-page rasterization
  - Region detection and per-region text recognition
  - Taxonomy-driven field mapping and normalization
  - Validation flags and confidence scoring
  - Append-only versioned structured records`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.folio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "folio home directory (default: ~/.folio)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
