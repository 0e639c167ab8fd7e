package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/domainkit/internal/api"
)

func newServeCmd() *cobra.Command {
	var listen string
	var metadataOnly bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve metadata, validation and rows over HTTP",
		Args:  cobra.NoArgs,
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
			if listen == "" {
				listen = e.cfg.Listen
			}
			if !flags.verbose {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var repo api.Repository
			if !metadataOnly {
				r, err := e.open(ctx, d)
				if err != nil {
					return err
				}
				defer r.close(cmd.Context()) //nolint:errcheck
				repo = r
			}
			if err := api.Serve(ctx, listen, api.NewRouter(d, repo, e.logger), e.logger); err != nil {
				return sysError("serve: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default: listen from config.yaml)")
	cmd.Flags().BoolVar(&metadataOnly, "metadata-only", false, "serve metadata and validation without opening storage")
	return cmd
}
