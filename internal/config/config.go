// Package config loads coordinator and worker settings.
//
// Precedence: defaults, then the YAML file, then ES_* environment variables.
// CLI flags are applied by the caller on top of the loaded value.
package config

import (
	"time"
)

type Config struct {
	Coordinator CoordinatorConfig `yaml:"coordinator" env:"COORDINATOR"`
	Worker      WorkerConfig      `yaml:"worker" env:"WORKER"`
	Noise       NoiseConfig       `yaml:"noise" env:"NOISE"`
	Checkpoint  CheckpointConfig  `yaml:"checkpoint" env:"CHECKPOINT"`
	Store       StoreConfig       `yaml:"store" env:"STORE"`
	Transport   TransportConfig   `yaml:"transport" env:"TRANSPORT"`
	Log         LogConfig         `yaml:"log" env:"LOG"`
}

type CoordinatorConfig struct {
	Addr  string  `yaml:"addr" env:"ADDR"`
	Sigma float64 `yaml:"sigma" env:"SIGMA"`
	Alpha float64 `yaml:"alpha" env:"ALPHA"`
	// fixed or workers
	BlockPolicy string `yaml:"block_policy" env:"BLOCK_POLICY"`
	BlockSize   int    `yaml:"block_size" env:"BLOCK_SIZE"`
	// Threshold multiplier under the workers policy.
	EpisodesPerWorker float64       `yaml:"episodes_per_worker" env:"EPISODES_PER_WORKER"`
	QueueSize         int           `yaml:"queue_size" env:"QUEUE_SIZE"`
	RunID             string        `yaml:"run_id" env:"RUN_ID"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// RunsDir receives per-run artifacts on shutdown when set.
	RunsDir string `yaml:"runs_dir" env:"RUNS_DIR"`
}

type WorkerConfig struct {
	Master         string        `yaml:"master" env:"MASTER"`
	Scape          string        `yaml:"scape" env:"SCAPE"`
	Optimizer      string        `yaml:"optimizer" env:"OPTIMIZER"`
	SyncEpisodes   bool          `yaml:"sync_episodes" env:"SYNC_EPISODES"`
	MaxEpisodes    int           `yaml:"max_episodes" env:"MAX_EPISODES"`
	MaxReconnects  int           `yaml:"max_reconnects" env:"MAX_RECONNECTS"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" env:"RECONNECT_DELAY"`
	PolicySeed     int64         `yaml:"policy_seed" env:"POLICY_SEED"`
	Hidden         []int         `yaml:"hidden" env:"-"`
	Dim            int           `yaml:"dim" env:"DIM"`
	Latency        time.Duration `yaml:"latency" env:"LATENCY"`
	MetricsAddr    string        `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

type NoiseConfig struct {
	// cached or live
	Strategy  string `yaml:"strategy" env:"STRATEGY"`
	Seed      int64  `yaml:"seed" env:"SEED"`
	CacheSize int    `yaml:"cache_size" env:"CACHE_SIZE"`
	LiveBound int64  `yaml:"live_bound" env:"LIVE_BOUND"`
}

type CheckpointConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	Key     string        `yaml:"key" env:"KEY"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type StoreConfig struct {
	// memory, sqlite or redis
	Kind          string `yaml:"kind" env:"KIND"`
	SQLitePath    string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
}

type TransportConfig struct {
	ReadLimit int64 `yaml:"read_limit" env:"READ_LIMIT"`
}

type LogConfig struct {
	// debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// json or console
	Format      string   `yaml:"format" env:"FORMAT"`
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

func DefaultConfig() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			Addr:              ":3001",
			Sigma:             0.1,
			Alpha:             0.01,
			BlockPolicy:       "workers",
			BlockSize:         25,
			EpisodesPerWorker: 1,
			QueueSize:         1024,
			ShutdownTimeout:   5 * time.Second,
		},
		Worker: WorkerConfig{
			Master:         "ws://localhost:3001/ws",
			Scape:          "cart-pole-lite",
			Optimizer:      "adam",
			ReconnectDelay: time.Second,
			PolicySeed:     1,
			Hidden:         []int{16},
		},
		Noise: NoiseConfig{
			Strategy:  "cached",
			CacheSize: 10_000_000,
			LiveBound: 100_000_000,
		},
		Checkpoint: CheckpointConfig{
			Key:     "parameters",
			Timeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Kind:        "memory",
			SQLitePath:  "evostrat.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "evostrat:",
		},
		Transport: TransportConfig{
			ReadLimit: 256 << 20,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			OutputPaths: []string{"stderr"},
		},
	}
}
