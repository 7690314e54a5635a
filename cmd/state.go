package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brensch/mrtstat/internal/catalog"
	"github.com/brensch/mrtstat/internal/db"
)

var stateLimit int
var stateFilterEvent string

var stateCmd = &cobra.Command{
	Use:   "state [update|rib]",
	Short: "View the per-source event log",
	Long: `Queries the DuckDB event log and displays the most recent source events.
Specify 'update' or 'rib' to filter by archive kind.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		kindFilter := ""
		if len(args) > 0 {
			kind := catalog.ParseKind(strings.ToLower(args[0]))
			if kind == catalog.KindUnknown {
				return fmt.Errorf("invalid kind filter: %s (use 'update' or 'rib')", args[0])
			}
			kindFilter = string(kind)
		}

		logger.Debug("Querying database event log", "kind_filter", kindFilter, "event_filter", stateFilterEvent, "limit", stateLimit)
		return db.DisplaySourceHistory(cmd.Context(), getDB(), cmd.OutOrStdout(), kindFilter, stateFilterEvent, stateLimit)
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of log records displayed")
	stateCmd.Flags().StringVarP(&stateFilterEvent, "event", "e", "", fmt.Sprintf("Filter by event (%s)",
		strings.Join([]string{db.EventDiscovered, db.EventFetchOK, db.EventFetchError, db.EventDecodeOK, db.EventDecodeFatal}, ", ")))
}
