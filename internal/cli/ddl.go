package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/domainkit/internal/store"
)

func newDDLCmd() *cobra.Command {
	var dialect string
	cmd := &cobra.Command{
		Use:   "ddl",
		Short: "Print the CREATE TABLE statements of the schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			defer e.logger.Sync() //nolint:errcheck

			if dialect == "" {
				dialect = e.cfg.Backend
			}
			dl, err := store.DialectByName(dialect)
			if err != nil {
				return userError("%w", err)
			}
			d, err := e.loadDomain()
			if err != nil {
				return err
			}
			stmts, err := store.SchemaSQL(dl, d)
			if err != nil {
				return userError("%w", err)
			}
			if flags.jsonMode {
				return writeJSON(cmd, stmts)
			}
			for _, stmt := range stmts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s;\n\n", stmt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dialect, "dialect", "", "sqlite or postgres (default: configured backend)")
	return cmd
}
