package config

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("invalid config")

// ValidateCoordinator checks the settings a coordinator process depends on.
func ValidateCoordinator(cfg *Config) error {
	c := cfg.Coordinator
	if c.Addr == "" {
		return fmt.Errorf("%w: coordinator.addr is required", ErrInvalidConfig)
	}
	if !(c.Sigma > 0) {
		return fmt.Errorf("%w: coordinator.sigma must be positive, got %v", ErrInvalidConfig, c.Sigma)
	}
	if !(c.Alpha > 0) {
		return fmt.Errorf("%w: coordinator.alpha must be positive, got %v", ErrInvalidConfig, c.Alpha)
	}
	switch c.BlockPolicy {
	case "fixed":
		if c.BlockSize <= 0 {
			return fmt.Errorf("%w: coordinator.block_size must be positive, got %d", ErrInvalidConfig, c.BlockSize)
		}
	case "workers":
		if !(c.EpisodesPerWorker > 0) {
			return fmt.Errorf("%w: coordinator.episodes_per_worker must be positive, got %v", ErrInvalidConfig, c.EpisodesPerWorker)
		}
	default:
		return fmt.Errorf("%w: unknown coordinator.block_policy %q", ErrInvalidConfig, c.BlockPolicy)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: coordinator.queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	}
	if cfg.Checkpoint.Enabled {
		if cfg.Checkpoint.Key == "" {
			return fmt.Errorf("%w: checkpoint.key is required when checkpointing", ErrInvalidConfig)
		}
		if cfg.Checkpoint.Timeout <= 0 {
			return fmt.Errorf("%w: checkpoint.timeout must be positive", ErrInvalidConfig)
		}
	}
	return validateStore(cfg.Store)
}

// ValidateWorker checks the settings a worker process depends on.
func ValidateWorker(cfg *Config) error {
	w := cfg.Worker
	if w.Master == "" {
		return fmt.Errorf("%w: worker.master is required", ErrInvalidConfig)
	}
	if w.Scape == "" {
		return fmt.Errorf("%w: worker.scape is required", ErrInvalidConfig)
	}
	if w.MaxEpisodes < 0 || w.MaxReconnects < 0 {
		return fmt.Errorf("%w: worker limits must not be negative", ErrInvalidConfig)
	}
	for _, h := range w.Hidden {
		if h <= 0 {
			return fmt.Errorf("%w: worker.hidden sizes must be positive, got %v", ErrInvalidConfig, w.Hidden)
		}
	}
	n := cfg.Noise
	switch n.Strategy {
	case "cached":
		if n.CacheSize <= 0 {
			return fmt.Errorf("%w: noise.cache_size must be positive", ErrInvalidConfig)
		}
	case "live":
		if n.LiveBound <= 0 {
			return fmt.Errorf("%w: noise.live_bound must be positive", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown noise.strategy %q", ErrInvalidConfig, n.Strategy)
	}
	return nil
}

func validateStore(s StoreConfig) error {
	switch s.Kind {
	case "memory":
	case "sqlite":
		if s.SQLitePath == "" {
			return fmt.Errorf("%w: store.sqlite_path is required", ErrInvalidConfig)
		}
	case "redis":
		if s.RedisAddr == "" {
			return fmt.Errorf("%w: store.redis_addr is required", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store.kind %q", ErrInvalidConfig, s.Kind)
	}
	return nil
}
