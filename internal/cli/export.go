package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/urlmon/internal/export"
)

func newExportCmd(stdout io.Writer) *cobra.Command {
	var (
		dataDir    string
		format     string
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded visits",
		Long:  `Export the JSONL visit log of a data directory as JSON, CSV or an XML sitemap of live pages`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageError(cmd)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := export.Export(dataDir, format, outputFile)
			if err != nil {
				return failure("Export failed: %v", err)
			}

			fmt.Fprintf(stdout, "Exported %d entries to %s\n", count, outputFile)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "./data", "Data directory holding visits.jsonl")
	cmd.Flags().StringVar(&format, "format", export.FormatJSON, "Output format: json/csv/sitemap")
	cmd.Flags().StringVar(&outputFile, "output", "visits.json", "Output file path")

	return cmd
}
