package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/mrtstat/internal/analyser"
)

var analyseCmd = &cobra.Command{
	Use:   "analyse",
	Short: "Compare attribute totals of the two latest runs",
	Long:  `Reads the counts stored by 'run' and, for each kind, compares per-attribute totals and the largest group changes between the latest two completed runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := analyser.RunAnalysis(cmd.Context(), getDB(), cmd.OutOrStdout(), getLogger()); err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		return nil
	},
}
