package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/domainkit/internal/api"
	"github.com/mesh-intelligence/domainkit/pkg/domain"
)

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe [entity...]",
		Short: "Describe entity definitions of the schema",
		Long:  "Print the properties of the named entity types, or of every entity type.",
		RunE:  runDescribe,
	}
}

func runDescribe(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.logger.Sync() //nolint:errcheck

	d, err := e.loadDomain()
	if err != nil {
		return err
	}

	var defs []*domain.Definition
	if len(args) == 0 {
		defs = d.Definitions()
	}
	for _, id := range args {
		def, err := d.Definition(id)
		if err != nil {
			return userError("%w", err)
		}
		defs = append(defs, def)
	}

	infos := make([]api.EntityInfo, 0, len(defs))
	for _, def := range defs {
		infos = append(infos, api.DescribeEntity(def))
	}
	if flags.jsonMode {
		return writeJSON(cmd, infos)
	}
	out := cmd.OutOrStdout()
	for i, info := range infos {
		if i > 0 {
			fmt.Fprintln(out)
		}
		printEntity(out, info)
	}
	return nil
}

func printEntity(out io.Writer, info api.EntityInfo) {
	headColor.Fprintf(out, "%s", info.ID)
	fmt.Fprintf(out, "  table %s, key %s (%s)", info.Table, strings.Join(info.PrimaryKey, ", "), info.KeyGenerator)
	var flagsText []string
	if info.ReadOnly {
		flagsText = append(flagsText, "read only")
	}
	if info.StaticData {
		flagsText = append(flagsText, "static data")
	}
	if info.SmallDataset {
		flagsText = append(flagsText, "small dataset")
	}
	if len(flagsText) > 0 {
		dimColor.Fprintf(out, " [%s]", strings.Join(flagsText, ", "))
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, p := range info.Properties {
		var notes []string
		if !p.Nullable {
			notes = append(notes, "not null")
		}
		if p.ReadOnly {
			notes = append(notes, "read only")
		}
		if p.References != "" {
			notes = append(notes, fmt.Sprintf("-> %s(%s)", p.References, strings.Join(p.ForeignKeys, ", ")))
		}
		if p.MaxLength > 0 {
			notes = append(notes, fmt.Sprintf("max %d chars", p.MaxLength))
		}
		if p.Default != nil {
			notes = append(notes, fmt.Sprintf("default %v", p.Default))
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", p.ID, p.Type, p.Kind, strings.Join(notes, ", "))
	}
	tw.Flush()
}
