package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/BenjaminSRussell/urlmon/internal/config"
	"github.com/BenjaminSRussell/urlmon/internal/storage"
)

func newConfigCmd(stdout io.Writer) *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the configuration a recorded run used",
		Long: `Print the configuration saved in a data directory as YAML. The output
can be passed back with --config to repeat the run.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 || dataDir == "" {
				return usageError(cmd)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := storage.LoadConfig(dataDir)
			if err != nil {
				return failure("Error loading config: %v", err)
			}

			data, err := config.Marshal(cfg)
			if err != nil {
				return failure("Error: %v", err)
			}

			stdout.Write(data)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Data directory written with --data-dir")

	return cmd
}
