package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/me/stardis/internal/config"
	"github.com/me/stardis/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read-only job status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore()
			if err != nil {
				return fmt.Errorf("open job ledger: %w", err)
			}
			defer st.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(st, logger).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", config.DefaultCLIConfig().Addr, "Listen address")

	return cmd
}
