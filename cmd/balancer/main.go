package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/meshroute/balancer/internal/config"
	"github.com/meshroute/balancer/internal/health"
	"github.com/meshroute/balancer/internal/inventory"
	"github.com/meshroute/balancer/internal/metrics"
	"github.com/meshroute/balancer/internal/model"
	"github.com/meshroute/balancer/internal/probe"
	"github.com/meshroute/balancer/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting load-distribution engine")

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.Duration("check_interval", cfg.Monitor.CheckInterval),
		zap.Duration("probe_timeout", cfg.Monitor.ProbeTimeout),
		zap.String("probe_kind", cfg.Probe.Kind),
		zap.String("inventory_mode", cfg.Inventory.Mode))

	// Initialize metrics
	m := metrics.NewMetrics()
	logger.Info("Metrics initialized")

	// Build the prober
	prober, grpcProber := buildProber(cfg, logger)
	if grpcProber != nil {
		defer grpcProber.Close()
	}

	// Build the inventory provider
	provider, gossipProvider, err := buildInventory(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize inventory provider", zap.Error(err))
	}
	if gossipProvider != nil {
		defer func() {
			if err := gossipProvider.Shutdown(); err != nil {
				logger.Warn("Gossip shutdown failed", zap.Error(err))
			}
		}()
	}

	// Wire and start the engine
	engine := service.NewEngine(cfg, prober, provider, m, logger)
	engine.StartMonitoring()
	logger.Info("Engine started")

	// Start metrics server
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, promhttp.Handler())
			addr := fmt.Sprintf(":%d", cfg.Metrics.Port)
			logger.Info("Starting metrics server", zap.String("address", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Start health check server
	healthChecker := health.NewHealthChecker(engine, provider, logger)
	go func() {
		if err := health.StartHealthServer(healthChecker, cfg.Health.Port, logger); err != nil {
			logger.Error("Health check server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal", zap.String("signal", sig.String()))

	// Graceful shutdown: stop the timer, let the in-flight cycle finish
	logger.Info("Shutting down gracefully")
	engine.Shutdown()

	logger.Info("Engine stopped")
}

// buildProber constructs the configured prober, optionally wrapped in a
// per-node circuit breaker
func buildProber(cfg *config.Config, logger *zap.Logger) (probe.Prober, *probe.GRPCProber) {
	var (
		prober     probe.Prober
		grpcProber *probe.GRPCProber
	)

	switch cfg.Probe.Kind {
	case "grpc":
		grpcProber = probe.NewGRPCProber(cfg.Probe.Service, logger)
		prober = grpcProber
	default:
		prober = probe.NewHTTPProber(cfg.Probe.Path, logger)
	}

	if cfg.Probe.Breaker.Enabled {
		prober = probe.NewBreakerProber(prober, cfg.Probe.Breaker.MaxFailures, cfg.Probe.Breaker.OpenTimeout, logger)
	}

	return prober, grpcProber
}

// buildInventory constructs the configured inventory provider
func buildInventory(cfg *config.Config, logger *zap.Logger) (inventory.Provider, *inventory.GossipProvider, error) {
	if cfg.Inventory.Mode == "gossip" {
		gp, err := inventory.NewGossipProvider(&inventory.GossipConfig{
			NodeName:       cfg.Gossip.NodeName,
			BindPort:       cfg.Gossip.BindPort,
			SeedNodes:      cfg.Gossip.SeedNodes,
			GossipInterval: cfg.Gossip.GossipInterval,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return gp, gp, nil
	}

	nodes := make([]*model.Node, 0, len(cfg.Inventory.Nodes))
	for _, n := range cfg.Inventory.Nodes {
		nodes = append(nodes, &model.Node{
			ID:      n.ID,
			Address: n.Address,
			Status:  model.NodeStatusActive,
		})
	}
	return inventory.NewStaticProvider(nodes...), nil, nil
}
