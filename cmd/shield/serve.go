package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/NeuralTrust/EdgeShield/pkg/config"
	"github.com/NeuralTrust/EdgeShield/pkg/dependency_container"
	infraLogger "github.com/NeuralTrust/EdgeShield/pkg/infra/logger"
	"github.com/NeuralTrust/EdgeShield/pkg/server"
	"github.com/NeuralTrust/EdgeShield/pkg/server/router"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the shield and metrics listeners",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}

	logger := infraLogger.NewLogger("shield")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := dependency_container.NewContainer(ctx, dependency_container.ContainerDI{
		Cfg:    cfg,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.WithError(err).Warn("error releasing dependencies")
		}
	}()

	shieldRouter := router.NewShieldRouter(
		container.MiddlewareTransport,
		container.HandlerTransport,
		container.PolicyManager,
		cfg,
		logger,
	)
	shield, err := server.NewShieldServer(server.ShieldServerDI{
		Config:  cfg,
		Logger:  logger,
		Routers: []router.ServerRouter{shieldRouter},
	})
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	servers := []server.Server{shield}
	if cfg.Metrics.Enabled {
		servers = append(servers, server.NewMetricsServer(cfg, logger))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(srv.Run)
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server gracefully stopped")
	return nil
}
