package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/domainkit/internal/api"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load the schema and report whether it is valid",
		Args:  cobra.NoArgs,
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.logger.Sync() //nolint:errcheck

	out := cmd.OutOrStdout()
	d, err := e.loadDomain()
	if err != nil {
		if !flags.jsonMode {
			failColor.Fprintf(out, "✗ %s\n", e.schemaPath)
		}
		return err
	}
	if flags.jsonMode {
		return writeJSON(cmd, api.DescribeDomain(d))
	}

	okColor.Fprintf(out, "✓ %s: domain %s\n", e.schemaPath, d.ID())
	for _, def := range d.Definitions() {
		source := def.TableName()
		if def.SelectQueryText() != "" {
			source = "select query"
		}
		fmt.Fprintf(out, "  %s ", def.EntityID())
		dimColor.Fprintf(out, "(%s, %d properties, key %s)\n", source, len(def.Properties()), def.KeyGenerator().Type())
	}
	return nil
}
