package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/fixrouter/internal/fixgateway/application"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/expreval"
	"github.com/wyfcoding/fixrouter/internal/fixgateway/infrastructure/routingconfig"
	httpinterface "github.com/wyfcoding/fixrouter/interfaces/http"
	"github.com/wyfcoding/fixrouter/pkg/config"
	"github.com/wyfcoding/fixrouter/pkg/logger"
	"github.com/wyfcoding/fixrouter/pkg/metrics"
)

var configPath = flag.String("config", "configs/fixrouter/config.toml", "config file path")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level: cfg.Logger.Level, Format: cfg.Logger.Format, Output: cfg.Logger.Output,
		FilePath: cfg.Logger.FilePath, MaxSize: cfg.Logger.MaxSize, MaxBackups: cfg.Logger.MaxBackups,
		MaxAge: cfg.Logger.MaxAge, Compress: cfg.Logger.Compress, WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(cfg.ServiceName)
	if cfg.Metrics.Enabled {
		if err := m.Register(); err != nil {
			logger.Error(ctx, "failed to register metrics", "error", err)
			os.Exit(1)
		}
		metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	evaluator := expreval.New()
	routingPath := config.ResolveRoutingConfigPath(cfg.Routing)
	routingCfg, err := routingconfig.Load(ctx, routingPath, evaluator)
	if err != nil {
		logger.Error(ctx, "startup health check failed: could not load routing configuration",
			"path", routingPath, "error", err)
		os.Exit(1)
	}
	logger.Info(ctx, "routing configuration loaded", "path", routingPath, "route_count", len(routingCfg.Routes))

	sessionTimeout := time.Duration(cfg.Kafka.SessionTimeout) * time.Second
	requestTimeout := time.Duration(cfg.Kafka.RequestTimeout) * time.Second

	supervisor := application.NewSupervisor(cfg.Kafka.Brokers, routingCfg, evaluator, m, sessionTimeout, requestTimeout)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: httpinterface.NewRouter(routingCfg),
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return supervisor.Run(groupCtx)
	})

	g.Go(func() error {
		logger.Info(groupCtx, "http introspection server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error(ctx, "service exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info(ctx, "clean shutdown complete")
}
