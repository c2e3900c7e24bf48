package cli

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/urlmon/internal/monitor"
	"github.com/BenjaminSRussell/urlmon/internal/storage"
	"github.com/BenjaminSRussell/urlmon/internal/types"
)

func newStatsCmd(stdout io.Writer) *cobra.Command {
	var (
		dbPath string
		filter storage.VisitFilter
		kind   string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize visits stored in SQLite",
		Long: `Summarize visits stored in SQLite. With --url, --kind or --status the
matching visits are listed as report blocks instead.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 || dbPath == "" {
				return usageError(cmd)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// sqlite3 would create an empty database for a mistyped path
			if _, err := os.Stat(dbPath); err != nil {
				return failure("Error opening database: %v", err)
			}

			db, err := storage.NewSQLiteStorage(dbPath)
			if err != nil {
				return failure("Error opening database: %v", err)
			}
			defer db.Close()

			filter.Kind = types.Kind(kind)
			if filter.URL != "" || filter.Kind != "" || filter.StatusCode != 0 {
				visits, err := db.QueryVisits(filter)
				if err != nil {
					return failure("Error reading visits: %v", err)
				}
				for _, v := range visits {
					if err := monitor.WriteReport(stdout, v); err != nil {
						return failure("Error: %v", err)
					}
				}
				return nil
			}

			stats, err := db.GetStats()
			if err != nil {
				return failure("Error reading stats: %v", err)
			}

			writeStats(stdout, stats)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database written with --sqlite")
	cmd.Flags().StringVar(&filter.URL, "url", "", "List visits of this URL")
	cmd.Flags().StringVar(&kind, "kind", "", "List visits of this kind, e.g. network or parse")
	cmd.Flags().IntVar(&filter.StatusCode, "status", 0, "List visits with this status code")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Maximum visits to list")

	return cmd
}

func writeStats(w io.Writer, stats storage.Stats) {
	fmt.Fprintf(w, "Visits: %d\n", stats.TotalVisits)
	fmt.Fprintf(w, "Distinct URLs: %d\n", stats.DistinctURL)
	fmt.Fprintf(w, "Successful: %d\n", stats.Successful)
	fmt.Fprintf(w, "Redirects: %d\n", stats.Redirects)
	fmt.Fprintf(w, "Failed: %d\n", stats.Failed)

	kinds := make([]string, 0, len(stats.ByKind))
	for k := range stats.ByKind {
		kinds = append(kinds, string(k))
	}
	slices.Sort(kinds)

	for _, k := range kinds {
		kind := types.Kind(k)
		fmt.Fprintf(w, "  %s: %d\n", kind.Label(), stats.ByKind[kind])
	}
}
