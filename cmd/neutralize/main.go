package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ent0n29/neutralize/internal/app"
	"github.com/ent0n29/neutralize/internal/config"
	"github.com/ent0n29/neutralize/internal/observability"
)

// cli holds state shared by every subcommand.
type cli struct {
	verbose bool
	offline bool

	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "neutralize",
		Short: "Gender-bias analysis, neutral job descriptions and a live speech interpreter",
		Long: `neutralize detects and corrects gender bias in text, writes gender-neutral job
descriptions and interprets a spoken conversation between two languages.

Generation uses the remote model while online (API key present and network reachable)
and the local model otherwise.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			logger, err := observability.NewLogger(cfg.LogLevel, c.verbose)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&c.offline, "offline", false, "skip the connectivity probe and use local backends only")

	root.AddCommand(
		c.serveCmd(),
		c.analyzeCmd(),
		c.jobdescCmd(),
		c.translateCmd(),
		c.listenCmd(),
		c.sayCmd(),
		c.interpretCmd(),
		c.modeCmd(),
		c.historyCmd(),
	)
	return root
}

func (c *cli) build(ctx context.Context, microphone bool) (*app.BuildResult, error) {
	res, err := app.Build(ctx, c.cfg, c.logger, app.Options{
		Microphone: microphone,
		SkipProbe:  c.offline,
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("backends resolved",
		zap.String("generation", res.Backends),
		zap.String("voice", res.Voice),
	)
	return res, nil
}

func (c *cli) cleanup(res *app.BuildResult) {
	if err := res.Cleanup(); err != nil {
		c.logger.Warn("cleanup failed", zap.Error(err))
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
