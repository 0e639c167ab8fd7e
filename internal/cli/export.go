package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/domainkit/internal/sqlite"
)

func newExportCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every entity type to JSONL files",
		Long: "Export the rows of every table backed entity type to <entity>.jsonl files.\n" +
			"The files can be loaded by the sqlite backend as its data directory.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.logger.Sync() //nolint:errcheck

			d, err := e.loadDomain()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			repo, err := e.open(ctx, d)
			if err != nil {
				return err
			}
			defer repo.close(ctx) //nolint:errcheck

			dir, err := filepath.Abs(outDir)
			if err != nil {
				return sysError("%w", err)
			}
			if err := sqlite.ExportAll(ctx, repo.store, dir); err != nil {
				return sysError("export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s to %s\n", d.ID(), dir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "export", "output directory")
	return cmd
}
