package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"grid_trader/internal/config"
	"grid_trader/internal/engine/gridengine"
	"grid_trader/internal/exchange"
	"grid_trader/internal/telemetry"
	"grid_trader/pkg/logging"
)

var version = "dev"

var (
	configFile  = flag.String("config", "configs/config.yaml", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("grid_trader %s\n", version)
		return
	}

	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		*configFile = envConfig
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configFile, err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting grid trader",
		"version", version,
		"product", cfg.App.Product,
		"config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.EnableMetrics {
		metricsServer := telemetry.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsServer.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Stop(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", "error", err)
			}
		}()
	}

	gateway, err := exchange.NewGateway(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize gateway", "error", err)
	}

	engine, err := gridengine.New(gateway, gridengine.Config{
		Symbol:     cfg.Trading.Symbol,
		GapPercent: decimal.NewFromFloat(cfg.Trading.GapPercent),
		Quantity:   decimal.NewFromFloat(cfg.Trading.Quantity),
		MaxOrders:  cfg.Trading.MaxOrders,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize grid engine", "error", err)
	}

	driver := gridengine.NewDriver(engine, gateway,
		time.Duration(cfg.System.PollIntervalSeconds)*time.Second,
		time.Duration(cfg.System.FaultBackoffSeconds)*time.Second,
		cfg.CancelOnStart(),
		logger)

	if err := driver.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("grid loop exited", "error", err)
	}
	logger.Info("grid trader shut down")
}
