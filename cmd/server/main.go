package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/tenantkit/internal/server"
	"github.com/iota-uz/tenantkit/pkg/configuration"
	"github.com/iota-uz/tenantkit/pkg/logging"
	"github.com/iota-uz/tenantkit/pkg/metrics"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pool, err := server.OpenPool(connectCtx, conf, logger)
	cancel()
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	rdb, err := server.NewRedis(conf)
	if err != nil {
		panic(err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	app, err := server.NewApplication(&server.AppOptions{
		Configuration: conf,
		Logger:        logger,
		Pool:          pool,
		Redis:         rdb,
	})
	if err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if err := server.VerifySchema(ctx, app, conf); err != nil {
		log.Fatalf("schema check failed: %v", err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	workers, closer, err := server.OutboxWorkers(conf, app)
	if err != nil {
		log.Fatalf("failed to configure outbox: %v", err)
	}
	defer closer.Close()

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Listening on: %s", conf.SocketAddress)
		return serverInstance.Serve(gctx, conf.SocketAddress)
	})
	for _, w := range workers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server stopped: %v", err)
	}
}
