package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/brensch/mrtstat/internal/saver"
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Export the state database tables to parquet",
	Long:  `Saves each table of the DuckDB state database into a separate parquet file in --output-dir.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		if cfg.OutputDir == "" {
			return fmt.Errorf("--output-dir is required")
		}

		paths, err := saver.SaveTablesToParquet(cmd.Context(), getDB(), cfg.OutputDir, logger)
		if err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		logger.Info("Tables saved", slog.Int("files", len(paths)), slog.String("output_dir", cfg.OutputDir))
		return nil
	},
}
