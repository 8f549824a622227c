package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.BindAddr = addr
			}
			res, err := c.build(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer c.cleanup(res)

			httpServer := &http.Server{
				Addr:              c.cfg.BindAddr,
				Handler:           res.API.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			runCtx, runCancel := context.WithCancel(cmd.Context())
			defer runCancel()
			res.Sessions.StartJanitor(runCtx, 5*time.Second)

			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				c.logger.Info("server listening",
					zap.String("addr", c.cfg.BindAddr),
					zap.Bool("online", res.Mode.Online()),
					zap.String("generation", res.Backends),
					zap.String("voice", res.Voice),
				)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				c.logger.Info("shutdown signal received")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					c.logger.Warn("graceful shutdown failed", zap.Error(err))
					_ = httpServer.Close()
				}
				return nil
			})

			err = g.Wait()
			c.logger.Info("shutdown complete")
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from APP_BIND_ADDR)")
	return cmd
}
