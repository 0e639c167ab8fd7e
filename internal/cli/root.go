// Package cli implements the domainkit command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	schema    string
	jsonMode  bool
	verbose   bool
}

var flags rootFlags

// NewRootCmd creates the top-level "domainkit" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "domainkit",
		Short: "Declare entity domains in YAML and store them in SQL databases",
		Long: "domainkit loads an entity domain from a YAML schema, checks and describes it,\n" +
			"creates its tables in SQLite or PostgreSQL and serves its rows over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "sqlite data directory (default: .domainkit-db)")
	root.PersistentFlags().StringVar(&flags.schema, "schema", "", "schema file (default: schema.yaml in the config directory)")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "development logging at debug level")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newCheckCmd(),
		newDescribeCmd(),
		newDDLCmd(),
		newExportCmd(),
		newServeCmd(),
	)
	return root
}

// Execute runs the root command and exits with the code of the error.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitSuccess)
}

// codeError carries the exit code of a failed command.
type codeError struct {
	code int
	err  error
}

func (e *codeError) Error() string { return e.err.Error() }
func (e *codeError) Unwrap() error { return e.err }

func userError(format string, args ...any) error {
	return &codeError{code: exitUserError, err: fmt.Errorf(format, args...)}
}

func sysError(format string, args ...any) error {
	return &codeError{code: exitSysError, err: fmt.Errorf(format, args...)}
}

// exitCode maps err to an exit code. Errors without a code, such as flag
// parsing errors from cobra, are user errors.
func exitCode(err error) int {
	var ce *codeError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitUserError
}
