package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tanpawarit/Chative-Support-Router/pkg/config"
	"github.com/tanpawarit/Chative-Support-Router/server"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the support router over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		httpCfg, err := config.New[server.Config]("HTTP")
		if err != nil {
			return fmt.Errorf("http config: %w", err)
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := a.Close(closeCtx); err != nil {
				log.Error().Err(err).Msg("close resources")
			}
		}()

		var opts []server.Option
		if a.qstash != nil {
			opts = append(opts, server.WithCallbackVerifier(a.qstash))
		}
		srv, err := server.New(*httpCfg, a.orch, opts...)
		if err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			log.Info().Msg("shutting down http server")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
