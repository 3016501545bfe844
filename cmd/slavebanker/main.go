package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"slavebanker/internal/banker"
	"slavebanker/internal/config"
	"slavebanker/internal/observability"
	"slavebanker/internal/server"
	"slavebanker/internal/transport"
)

func main() {
	flags, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatalf("FATAL: parse flags: %v", err)
	}

	bankerCfg, err := flags.ToBankerConfig()
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	logger := observability.NewLogger("slavebanker")
	metrics := observability.NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	app, closeApp, err := buildApplicationLayer(flags, logger, metrics)
	if err != nil {
		log.Fatalf("FATAL: build application layer: %v", err)
	}
	defer closeApp()

	slave, err := banker.New(app, bankerCfg, logger)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	slave.SetMetrics(metrics)

	healthChecker := observability.NewHealthChecker()
	healthChecker.SetIndicatorSource(slave)

	admin := server.New(flags.HTTPAddr, server.Deps{
		Budget:        slave.Budget,
		HealthChecker: healthChecker,
	})

	errChan := make(chan error, 4)

	slave.Start(ctx)

	go func() {
		errChan <- admin.Start(ctx)
	}()

	healthChecker.SetReady(true)
	logger.Info().Str("accountSuffix", bankerCfg.AccountSuffix).Str("httpAddr", flags.HTTPAddr).Msg("slave banker ready")

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := slave.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown wait did not complete cleanly")
	}
}

// buildApplicationLayer constructs the HTTP or message-bus application
// layer per --use-http-banker, returning a no-op closer for the
// variant that doesn't hold a connection to release.
func buildApplicationLayer(flags config.Flags, logger zerolog.Logger, metrics *observability.Metrics) (transport.ApplicationLayer, func(), error) {
	if flags.UseHTTPBanker {
		layer := transport.NewHTTPLayer(flags.MasterAddr, nil, logger.With().Str("subcomponent", "transport").Logger())
		layer.SetMetrics(metrics)
		return layer, func() {}, nil
	}

	conn, err := nats.Connect(flags.NATSAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats at %s: %w", flags.NATSAddr, err)
	}
	layer := transport.NewBusLayer(conn, logger.With().Str("subcomponent", "transport").Logger())
	layer.SetMetrics(metrics)
	return layer, conn.Close, nil
}
