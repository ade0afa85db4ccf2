package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/folio-health/folio/internal/config"
	"github.com/folio-health/folio/internal/home"
	"github.com/folio-health/folio/internal/taxonomy"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write default config and taxonomy files",
	Long: `Initialize the Folio home directory with a default config.yaml
and taxonomy.yaml. Existing files are not overwritten.

Examples:
  folio config init                 # Initialize ~/.folio
  folio config init --home ./data   # Initialize a custom home directory`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		if h.ConfigExists() {
			fmt.Printf("config already exists: %s\n", h.ConfigPath())
		} else {
			if err := config.WriteDefault(h.ConfigPath()); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Printf("wrote %s\n", h.ConfigPath())
		}

		if _, err := os.Stat(h.TaxonomyPath()); err == nil {
			fmt.Printf("taxonomy already exists: %s\n", h.TaxonomyPath())
		} else {
			if err := taxonomy.WriteDefault(h.TaxonomyPath()); err != nil {
				return fmt.Errorf("failed to write taxonomy: %w", err)
			}
			fmt.Printf("wrote %s\n", h.TaxonomyPath())
		}

		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
