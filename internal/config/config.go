package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/devrev/tsdb/confignode/internal/loadcache"
	"github.com/devrev/tsdb/confignode/internal/model"
)

// Topology sources
const (
	TopologySourcePostgres = "postgres"
	TopologySourceFile     = "file"
)

// Config represents the config node service configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Consensus ConsensusConfig `mapstructure:"consensus"`
	Topology  TopologyConfig  `mapstructure:"topology"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Gossip    GossipConfig    `mapstructure:"gossip"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Health    HealthConfig    `mapstructure:"health"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents the HTTP API and gRPC health server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	GRPCPort        int           `mapstructure:"grpc_port"`
	NodeID          string        `mapstructure:"node_id"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HeartbeatConfig represents heartbeat ingestion and load cache configuration
type HeartbeatConfig struct {
	Interval             time.Duration `mapstructure:"interval"`
	StalenessHorizon     time.Duration `mapstructure:"staleness_horizon"`
	WindowSize           int           `mapstructure:"window_size"`
	Retention            time.Duration `mapstructure:"retention"`
	RecomputeInterval    time.Duration `mapstructure:"recompute_interval"`
	RecomputeParallelism int           `mapstructure:"recompute_parallelism"`
	IngestWorkers        int           `mapstructure:"ingest_workers"`
	IngestQueueSize      int           `mapstructure:"ingest_queue_size"`
}

// ConsensusConfig names the consensus protocol of each region type
type ConsensusConfig struct {
	DataRegionProtocol   string `mapstructure:"data_region_protocol"`
	SchemaRegionProtocol string `mapstructure:"schema_region_protocol"`
}

// TopologyConfig selects where region groups are loaded from
type TopologyConfig struct {
	Source   string `mapstructure:"source"`
	FilePath string `mapstructure:"file_path"`
}

// DatabaseConfig represents PostgreSQL topology store configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig represents Redis statistics store configuration
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	MaxRetries    int           `mapstructure:"max_retries"`
	PoolSize      int           `mapstructure:"pool_size"`
	MinIdleConns  int           `mapstructure:"min_idle_conns"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	StatisticsTTL time.Duration `mapstructure:"statistics_ttl"`
	FullSyncEvery int           `mapstructure:"full_sync_every"`
}

// GossipConfig represents memberlist heartbeat transport configuration
type GossipConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	NodeName       string   `mapstructure:"node_name"`
	BindAddr       string   `mapstructure:"bind_addr"`
	BindPort       int      `mapstructure:"bind_port"`
	AdvertiseAddr  string   `mapstructure:"advertise_addr"`
	AdvertisePort  int      `mapstructure:"advertise_port"`
	SeedNodes      []string `mapstructure:"seed_nodes"`
	GossipInterval int      `mapstructure:"gossip_interval_ms"`
}

// MetricsConfig represents Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig represents health check server configuration
type HealthConfig struct {
	Port         int           `mapstructure:"port"`
	CheckTimeout time.Duration `mapstructure:"check_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return errors.New("server.grpc_port must be between 0 and 65535")
	}
	if c.Server.NodeID == "" {
		return errors.New("server.node_id is required")
	}
	if c.Heartbeat.Interval <= 0 {
		return errors.New("heartbeat.interval must be positive")
	}
	if c.Heartbeat.RecomputeInterval <= 0 {
		c.Heartbeat.RecomputeInterval = c.Heartbeat.Interval
	}
	if c.Heartbeat.RecomputeParallelism <= 0 {
		c.Heartbeat.RecomputeParallelism = 1
	}
	if c.Heartbeat.IngestWorkers <= 0 {
		return errors.New("heartbeat.ingest_workers must be positive")
	}
	if c.Heartbeat.IngestQueueSize <= 0 {
		return errors.New("heartbeat.ingest_queue_size must be positive")
	}
	opts := c.LoadCacheOptions()
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if _, err := model.ConsistencyForProtocol(c.Consensus.DataRegionProtocol); err != nil {
		return fmt.Errorf("consensus.data_region_protocol: %w", err)
	}
	if _, err := model.ConsistencyForProtocol(c.Consensus.SchemaRegionProtocol); err != nil {
		return fmt.Errorf("consensus.schema_region_protocol: %w", err)
	}

	switch c.Topology.Source {
	case TopologySourcePostgres:
		if c.Database.Host == "" {
			return errors.New("database.host is required")
		}
		if c.Database.Database == "" {
			return errors.New("database.database is required")
		}
		if c.Database.User == "" {
			return errors.New("database.user is required")
		}
	case TopologySourceFile:
		if c.Topology.FilePath == "" {
			return errors.New("topology.file_path is required for the file source")
		}
	default:
		return errors.New("topology.source must be one of: postgres, file")
	}

	if c.Redis.Enabled && c.Redis.Host == "" {
		return errors.New("redis.host is required")
	}
	if c.Gossip.Enabled && (c.Gossip.BindPort <= 0 || c.Gossip.BindPort > 65535) {
		return errors.New("gossip.bind_port must be between 1 and 65535")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	return nil
}

// LoadCacheOptions converts the heartbeat section into load cache options.
// Zero tunables fall back to values derived from the heartbeat interval.
func (c *Config) LoadCacheOptions() loadcache.Options {
	opts := loadcache.DefaultOptions(c.Heartbeat.Interval)
	if c.Heartbeat.StalenessHorizon > 0 {
		opts.StalenessHorizon = c.Heartbeat.StalenessHorizon
	}
	if c.Heartbeat.WindowSize > 0 {
		opts.WindowSize = c.Heartbeat.WindowSize
	}
	if c.Heartbeat.Retention > 0 {
		opts.Retention = c.Heartbeat.Retention
	}
	return opts
}

// ConsistencyFor returns the consistency model of a region type
func (c *Config) ConsistencyFor(t model.ConsensusGroupType) (model.ConsistencyModel, error) {
	if t == model.SchemaRegion {
		return model.ConsistencyForProtocol(c.Consensus.SchemaRegionProtocol)
	}
	return model.ConsistencyForProtocol(c.Consensus.DataRegionProtocol)
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            10710,
			GRPCPort:        10720,
			NodeID:          "confignode-1",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Heartbeat: HeartbeatConfig{
			Interval:             time.Second,
			RecomputeInterval:    time.Second,
			RecomputeParallelism: 4,
			IngestWorkers:        4,
			IngestQueueSize:      1024,
		},
		Consensus: ConsensusConfig{
			DataRegionProtocol:   "iot",
			SchemaRegionProtocol: "ratis",
		},
		Topology: TopologyConfig{
			Source: TopologySourcePostgres,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "confignode",
			User:            "confignode",
			Password:        "",
			MaxConnections:  20,
			MinConnections:  2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          6379,
			Password:      "",
			DB:            0,
			MaxRetries:    3,
			PoolSize:      20,
			MinIdleConns:  2,
			KeyPrefix:     "confignode:region_group",
			StatisticsTTL: time.Minute,
			FullSyncEvery: 30,
		},
		Gossip: GossipConfig{
			Enabled:        false,
			BindAddr:       "0.0.0.0",
			BindPort:       7946,
			GossipInterval: 200,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9091,
			Path:    "/metrics",
		},
		Health: HealthConfig{
			Port:         8080,
			CheckTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
