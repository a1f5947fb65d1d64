// Command cacheforge-server runs a standalone CacheForge cache server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cacheforge/cacheforge/internal/metrics"
	"github.com/cacheforge/cacheforge/internal/server"
	"github.com/cacheforge/cacheforge/pkg/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	root := buildCommand()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildCommand registers the config flags on cobra's flag set up front so
// --help output, flag parsing, and three-tier precedence all come from one
// definition; RunE resolves the final config after cobra has parsed.
func buildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cacheforge-server",
		Short:        "Run the CacheForge cache server",
		SilenceUsage: true,
	}

	config.RegisterServerFlags(cmd.Flags())

	cmd.RunE = func(c *cobra.Command, args []string) error {
		cfg, err := config.ResolveServerConfig(c.Flags())
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		return runServer(cfg)
	}

	return cmd
}

func runServer(cfg *config.ServerConfig) error {
	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	srv := server.New(server.Config{
		Port:       cfg.Port,
		NumThreads: cfg.Threads,
		AOFEnabled: cfg.AOFEnabled,
		AOFPath:    cfg.AOFPath,
		MaxKeys:    cfg.MaxKeys,
	}, logger)

	var metricsCancel context.CancelFunc
	if cfg.MetricsAddr != "" {
		registry := metrics.NewRegistry(srv.Dispatcher())
		var ctx context.Context
		ctx, metricsCancel = context.WithCancel(context.Background())
		go func() {
			if err := registry.Serve(ctx, cfg.MetricsAddr); err != nil {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		logger.Info("metrics endpoint enabled", zap.String("addr", cfg.MetricsAddr))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- srv.Run()
	}()

	select {
	case err := <-runErrCh:
		if metricsCancel != nil {
			metricsCancel()
		}
		if err != nil {
			logger.Error("server exited", zap.Error(err))
			return err
		}
		return nil
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		srv.Stop()
		if metricsCancel != nil {
			metricsCancel()
		}
		<-runErrCh
		return nil
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	return cfg.Build()
}
