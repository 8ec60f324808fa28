package cmd

import (
	"i2cflash/internal/server"

	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newServeCmd(o *options) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:	"serve",
		Short:	"Expose the engine over HTTP",
		Args:	cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.open()
			if err != nil {
				return err
			}
			defer s.close()

			l, err := net.Listen("tcp", listen)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(s.Engine, o.log).Serve(ctx, l)
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", envOr(ENV_LISTEN, "127.0.0.1:8254"), "address to listen on")
	return cmd
}
