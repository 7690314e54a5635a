package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/brensch/mrtstat/internal/app"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive menu with live per-source progress",
	Long:  `Runs the statistics pass, report inspection and run comparison from a terminal UI. Send logs to a file with --log-output to keep the display clean.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		model := app.NewAppModel(getConfig(), getDB(), getLogger())
		if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
			return fmt.Errorf("tui failed: %w", err)
		}
		return nil
	},
}
