// Package servecmder provides the serve command for running the API server.
package servecmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/capsule/api"
	"github.com/papercomputeco/capsule/cmd/capsule/setup"
	"github.com/papercomputeco/capsule/pkg/config"
	"github.com/papercomputeco/capsule/pkg/logger"
)

var flagKeys = []string{
	config.FlagListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagLogFile,
}

type serveCommander struct {
	flags struct {
		listen, storage, sqlite, postgres, logFile string
	}

	cfg       *config.Config
	configDir string
	debug     bool
	out       io.Writer
	logger    *slog.Logger
}

const serveLongDesc string = `Run the capsule API server.

The server exposes the stored conversation DAG read-only over HTTP:
  GET /ping                  Health check
  GET /dag/stats             Node, root and leaf counts
  GET /dag/node/:hash        A single node
  GET /dag/history           Every conversation branch
  GET /dag/history/:hash     The conversation up to a node
  GET /dag/branch/:hash      The tree below a node

Logs go to stdout, and also to --log-file as JSON when it is set.

Examples:
  capsule serve
  capsule serve --listen :9090 --log-file capsule.log`

const serveShortDesc string = "Run the capsule API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.cfg, err = setup.LoadConfig(cmd, flagKeys...)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir = setup.ConfigDir(cmd)
			cmder.debug = setup.Debug(cmd)
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.flags.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.flags.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.flags.sqlite)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.flags.postgres)
	config.AddStringFlag(cmd, config.Flags, config.FlagLogFile, &cmder.flags.logFile)

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	c.logger = setup.Logger(c.out, c.debug)

	if c.cfg.Log.File != "" {
		fileLogger, closer, err := setup.FileLogger(c.cfg.Log.File, c.debug)
		if err != nil {
			return err
		}
		defer closer.Close()
		c.logger = logger.Multi(c.logger, fileLogger)
	}

	driver, err := setup.OpenDriver(ctx, c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	server := api.NewServer(api.Config{ListenAddr: c.cfg.API.Listen}, driver, c.logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Run(); err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		c.logger.Info("shutting down API server")
		return server.Shutdown()
	})

	return g.Wait()
}
