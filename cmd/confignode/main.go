package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/devrev/tsdb/confignode/internal/config"
	"github.com/devrev/tsdb/confignode/internal/handler"
	cnhealth "github.com/devrev/tsdb/confignode/internal/health"
	"github.com/devrev/tsdb/confignode/internal/loadcache"
	"github.com/devrev/tsdb/confignode/internal/metrics"
	"github.com/devrev/tsdb/confignode/internal/service"
	"github.com/devrev/tsdb/confignode/internal/store"
	"github.com/devrev/tsdb/confignode/internal/transport"
	"github.com/devrev/tsdb/confignode/internal/util/workerpool"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting ConfigNode cluster health service",
		zap.String("node_id", cfg.Server.NodeID),
		zap.Int("port", cfg.Server.Port),
		zap.Int("grpc_port", cfg.Server.GRPCPort),
		zap.Duration("heartbeat_interval", cfg.Heartbeat.Interval),
		zap.String("topology_source", cfg.Topology.Source))

	ctx := context.Background()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)

	registry, err := loadcache.NewRegistry(cfg.LoadCacheOptions(), logger)
	if err != nil {
		logger.Fatal("Failed to create load cache registry", zap.Error(err))
	}

	topologyStore, err := newTopologyStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize topology store", zap.Error(err))
	}
	logger.Info("Topology store initialized", zap.String("source", cfg.Topology.Source))

	statisticsStore, err := newStatisticsStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize statistics store", zap.Error(err))
	}
	logger.Info("Statistics store initialized", zap.Bool("redis", cfg.Redis.Enabled))

	// Services
	topologyService := service.NewTopologyService(topologyStore, statisticsStore, registry, cfg.ConsistencyFor, logger)
	if _, err := topologyService.Bootstrap(ctx); err != nil {
		logger.Fatal("Failed to bootstrap region groups", zap.Error(err))
	}

	ingestPool := workerpool.NewWorkerPool(workerpool.Config{
		Name:       "heartbeat-ingest",
		MaxWorkers: cfg.Heartbeat.IngestWorkers,
		QueueSize:  cfg.Heartbeat.IngestQueueSize,
		Logger:     logger,
	})
	heartbeatService := service.NewHeartbeatService(registry, ingestPool, m, logger)

	grpcHealth := health.NewServer()
	statisticsService := service.NewLoadStatisticsService(
		registry,
		cfg.Heartbeat.RecomputeInterval,
		cfg.Heartbeat.RecomputeParallelism,
		m,
		logger,
	)
	statisticsService.AddListener(service.NewStatisticsPublisher(
		statisticsStore,
		cfg.Redis.StatisticsTTL,
		cfg.Redis.FullSyncEvery,
		m,
		logger,
	))
	statisticsService.AddListener(handler.NewGRPCHealthReporter(grpcHealth, logger))
	statisticsService.Start()

	var gossip *transport.GossipReceiver
	if cfg.Gossip.Enabled {
		gossip = transport.NewGossipReceiver(heartbeatService, cfg.Server.NodeID, logger)
		err := gossip.Start(transport.GossipConfig{
			NodeName:       cfg.Gossip.NodeName,
			BindAddr:       cfg.Gossip.BindAddr,
			BindPort:       cfg.Gossip.BindPort,
			AdvertiseAddr:  cfg.Gossip.AdvertiseAddr,
			AdvertisePort:  cfg.Gossip.AdvertisePort,
			SeedNodes:      cfg.Gossip.SeedNodes,
			GossipInterval: time.Duration(cfg.Gossip.GossipInterval) * time.Millisecond,
		})
		if err != nil {
			logger.Fatal("Failed to start gossip receiver", zap.Error(err))
		}
	}

	// HTTP API
	apiMux := http.NewServeMux()
	handler.NewRegionHandler(heartbeatService, topologyService, registry, m, logger).Register(apiMux)
	apiServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// gRPC health
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, grpcHealth)
	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: mux}
	}

	healthChecker := cnhealth.NewHealthChecker(
		topologyStore,
		statisticsStore,
		registry,
		statisticsService,
		cfg.Health.CheckTimeout,
		logger,
	)
	healthServer := cnhealth.NewHealthServer(healthChecker, cfg.Health.Port, logger)

	serverErrors := make(chan error, 4)
	serveHTTP := func(name string, server *http.Server) {
		logger.Info("Starting HTTP server", zap.String("server", name), zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("%s server: %w", name, err)
		}
	}
	go serveHTTP("api", apiServer)
	go serveHTTP("health", healthServer)
	if metricsServer != nil {
		go serveHTTP("metrics", metricsServer)
	}

	if cfg.Server.GRPCPort > 0 {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort)
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			logger.Fatal("Failed to create gRPC listener", zap.Error(err))
		}
		logger.Info("Starting gRPC health server", zap.String("address", addr))
		go func() {
			if err := grpcServer.Serve(listener); err != nil {
				serverErrors <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
	}

	// Graceful shutdown
	logger.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	grpcHealth.Shutdown()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API server shutdown failed", zap.Error(err))
	}

	if gossip != nil {
		if err := gossip.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
			logger.Warn("Gossip receiver shutdown failed", zap.Error(err))
		}
	}
	if err := ingestPool.Stop(cfg.Server.ShutdownTimeout); err != nil {
		logger.Warn("Heartbeat ingestion did not drain", zap.Error(err))
	}
	statisticsService.Stop()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
		logger.Info("gRPC server stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("gRPC server stop timeout, forcing shutdown")
		grpcServer.Stop()
	}

	if metricsServer != nil {
		metricsServer.Shutdown(shutdownCtx)
	}
	healthServer.Shutdown(shutdownCtx)

	topologyStore.Close()
	if err := statisticsStore.Close(); err != nil {
		logger.Warn("Failed to close statistics store", zap.Error(err))
	}

	logger.Info("ConfigNode cluster health service stopped")
}

// newTopologyStore opens the configured topology source
func newTopologyStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.TopologyStore, error) {
	if cfg.Topology.Source == config.TopologySourceFile {
		s, err := store.LoadTopologyFile(cfg.Topology.FilePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := store.NewPostgresTopologyStore(ctx, store.PostgresOptions{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Database,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		MaxConnections:  cfg.Database.MaxConnections,
		MinConnections:  cfg.Database.MinConnections,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// newStatisticsStore returns Redis when enabled and an in-process store otherwise
func newStatisticsStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.StatisticsStore, error) {
	if !cfg.Redis.Enabled {
		return store.NewInMemoryStatisticsStore(logger), nil
	}
	s, err := store.NewRedisStatisticsStore(ctx, store.RedisOptions{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		KeyPrefix:    cfg.Redis.KeyPrefix,
	}, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}
