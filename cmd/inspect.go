package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/mrtstat/internal/inspector"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Summarise the parquet reports in --report-dir",
	Long:  `Uses DuckDB to show the schema, row and run counts, and the most frequent names of every parquet report written by 'run --report-dir'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		if cfg.ReportDir == "" {
			return fmt.Errorf("--report-dir is required")
		}
		if err := inspector.InspectReports(cmd.Context(), getDB(), cfg.ReportDir, cmd.OutOrStdout(), getLogger()); err != nil {
			return fmt.Errorf("inspection failed: %w", err)
		}
		return nil
	},
}
