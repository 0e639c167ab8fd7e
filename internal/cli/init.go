package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/domainkit/internal/config"
	"github.com/mesh-intelligence/domainkit/internal/paths"
)

// exampleSchema is written by init when no schema file exists.
const exampleSchema = `# domainkit schema
domain: example
entities:
  - id: category
    table: categories
    order_by: name
    static_data: true
    properties:
      - {id: code, type: string, primary_key_index: 0, max_length: 8}
      - {id: name, type: string, nullable: false, max_length: 40}

  - id: item
    table: items
    order_by: name
    key_generator: {type: automatic, source: items}
    properties:
      - {id: id, type: integer, primary_key_index: 0}
      - {id: name, type: string, nullable: false, max_length: 80}
      - {id: price, type: double, min: 0, fraction_digits: 2}
      - {id: active, type: boolean, default: true}
      - {id: category_code, type: string}
      - {id: category_fk, kind: foreign_key, entity: category, references: [category_code]}
      - {id: category_name, kind: denormalized_view, foreign_key: category_fk, source: name}
      - {id: created_at, kind: audit_time, action: insert}
      - {id: updated_by, kind: audit_user, action: update}
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration, schema and storage",
		Long: "Create the configuration directory with a default config.yaml and an example\n" +
			"schema when missing, then create the tables of the schema in the configured backend.",
		Args: cobra.NoArgs,
		RunE: runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return sysError("resolve config dir: %w", err)
	}
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return sysError("create config directory: %w", err)
	}
	if err := config.WriteDefault(configDir); err != nil {
		return sysError("write config: %w", err)
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.logger.Sync() //nolint:errcheck

	created, err := writeIfMissing(e.schemaPath, exampleSchema)
	if err != nil {
		return sysError("write schema: %w", err)
	}
	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "wrote example schema %s\n", e.schemaPath)
	}

	d, err := e.loadDomain()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	repo, err := e.open(ctx, d)
	if err != nil {
		return err
	}
	if err := repo.close(ctx); err != nil {
		return sysError("finalize storage: %w", err)
	}

	okColor.Fprintf(cmd.OutOrStdout(), "domainkit initialized: %d entity types in %s\n", len(d.Definitions()), e.cfg.Backend)
	return nil
}

func writeIfMissing(path, content string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	return true, os.WriteFile(path, []byte(content), 0o644)
}
