// Package config loads application configuration from YAML files with
// environment-variable overrides; loaded values are not validated. It provides typed structs for
// every subsystem (Indexer, RPC, Postgres, Kafka, Redis, Metrics, Logging).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer  IndexerConfig  `yaml:"indexer"`
	RPC      RPCConfig      `yaml:"rpc"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// IndexerConfig controls shard layout, capping, and ingestion concurrency
// for every level (domain, url, word, link).
type IndexerConfig struct {
	Root               string        `yaml:"root"`
	NumShards          uint64        `yaml:"numShards"`
	HashTableSize      uint64        `yaml:"hashTableSize"`
	MaxPerSection      int           `yaml:"maxPerSection"`
	MaxSections        int           `yaml:"maxSections"`
	MaxCacheBytes      int64         `yaml:"maxCacheBytes"`
	IngestThreads      int           `yaml:"ingestThreads"`
	MergeInterval      time.Duration `yaml:"mergeInterval"`
	HyperballWorkers   int           `yaml:"hyperballWorkers"`
	HyperballRounds    int           `yaml:"hyperballRounds"`
	BloomExpectedItems int           `yaml:"bloomExpectedItems"`
	BloomFalsePositive float64       `yaml:"bloomFalsePositive"`
	URLStoreTimeout    time.Duration `yaml:"urlStoreTimeout"`
}

// RPCConfig holds the JSON-over-TCP RPC server's listen settings (§6.1).
type RPCConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the ingestion
// ledger (§3.1).
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings for shard-merge and
// batch-completion events (§4.F.1).
type KafkaConfig struct {
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ShardMerged    string `yaml:"shardMerged"`
	BatchCompleted string `yaml:"batchCompleted"`
}

// RedisConfig holds Redis connection and query-cache parameters (§4.F.2).
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls in-process span-tree sampling.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Indexer: IndexerConfig{
			Root:               "/mnt/ftindex",
			NumShards:          8,
			HashTableSize:      0,
			MaxPerSection:      100,
			MaxSections:        4,
			MaxCacheBytes:      300 * 1024 * 1024,
			IngestThreads:      8,
			MergeInterval:      5 * time.Minute,
			HyperballWorkers:   12,
			HyperballRounds:    41,
			BloomExpectedItems: 10_000_000,
			BloomFalsePositive: 0.01,
			URLStoreTimeout:    2 * time.Second,
		},
		RPC: RPCConfig{
			Addr:           ":9400",
			RequestTimeout: 30 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "ftindex",
			User:            "ftindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				ShardMerged:    "shard.merged",
				BatchCompleted: "batch.completed",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads IDX_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IDX_INDEXER_ROOT"); v != "" {
		cfg.Indexer.Root = v
	}
	if v := os.Getenv("IDX_INDEXER_NUM_SHARDS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Indexer.NumShards = n
		}
	}
	if v := os.Getenv("IDX_INDEXER_HASH_TABLE_SIZE"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Indexer.HashTableSize = n
		}
	}
	if v := os.Getenv("IDX_INDEXER_INGEST_THREADS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.IngestThreads = n
		}
	}
	if v := os.Getenv("IDX_RPC_ADDR"); v != "" {
		cfg.RPC.Addr = v
	}
	if v := os.Getenv("IDX_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("IDX_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("IDX_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("IDX_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("IDX_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("IDX_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("IDX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("IDX_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("IDX_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("IDX_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IDX_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
