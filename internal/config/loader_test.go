package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "missing.yaml")).
		WithLookupEnv(envMap(nil)).
		Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Coordinator.Addr != ":3001" || cfg.Noise.Strategy != "cached" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := ValidateCoordinator(cfg); err != nil {
		t.Fatalf("defaults should validate for coordinator: %v", err)
	}
	if err := ValidateWorker(cfg); err != nil {
		t.Fatalf("defaults should validate for worker: %v", err)
	}
}

func TestLoadFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "es.yaml")
	data := []byte(`
coordinator:
  sigma: 0.05
  block_policy: fixed
  block_size: 50
worker:
  scape: xor
  hidden: [4, 4]
checkpoint:
  enabled: true
  timeout: 3s
log:
  level: debug
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := NewLoader().
		WithConfigPath(path).
		WithLookupEnv(envMap(map[string]string{
			"ES_COORDINATOR_BLOCK_SIZE": "7",
			"ES_CHECKPOINT_TIMEOUT":     "250ms",
			"ES_LOG_OUTPUT_PATHS":       "stdout, /tmp/es.log",
			"ES_WORKER_SYNC_EPISODES":   "true",
			"ES_WORKER_DIM":             "12",
			"ES_COORDINATOR_RUNS_DIR":   "/tmp/runs",
		})).
		WithValidator(ValidateCoordinator).
		Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Coordinator.Sigma != 0.05 || cfg.Coordinator.BlockPolicy != "fixed" {
		t.Fatalf("file values not applied: %+v", cfg.Coordinator)
	}
	if cfg.Coordinator.BlockSize != 7 {
		t.Fatalf("env should override file block size, got %d", cfg.Coordinator.BlockSize)
	}
	if cfg.Checkpoint.Timeout != 250*time.Millisecond || !cfg.Checkpoint.Enabled {
		t.Fatalf("unexpected checkpoint config: %+v", cfg.Checkpoint)
	}
	if len(cfg.Worker.Hidden) != 2 || cfg.Worker.Scape != "xor" || !cfg.Worker.SyncEpisodes {
		t.Fatalf("unexpected worker config: %+v", cfg.Worker)
	}
	if cfg.Worker.Dim != 12 || cfg.Coordinator.RunsDir != "/tmp/runs" {
		t.Fatalf("env values not applied: dim=%d runs_dir=%q", cfg.Worker.Dim, cfg.Coordinator.RunsDir)
	}
	if len(cfg.Log.OutputPaths) != 2 || cfg.Log.OutputPaths[1] != "/tmp/es.log" {
		t.Fatalf("unexpected output paths: %v", cfg.Log.OutputPaths)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Log.Level)
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	_, err := NewLoader().
		WithLookupEnv(envMap(map[string]string{"ES_COORDINATOR_SIGMA": "wide"})).
		Load()
	if err == nil {
		t.Fatal("expected parse error for malformed float")
	}
}

func TestValidateCoordinatorRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"zero sigma":     func(c *Config) { c.Coordinator.Sigma = 0 },
		"negative alpha": func(c *Config) { c.Coordinator.Alpha = -1 },
		"fixed no size":  func(c *Config) { c.Coordinator.BlockPolicy = "fixed"; c.Coordinator.BlockSize = 0 },
		"policy":         func(c *Config) { c.Coordinator.BlockPolicy = "random" },
		"store kind":     func(c *Config) { c.Store.Kind = "etcd" },
		"checkpoint key": func(c *Config) { c.Checkpoint.Enabled = true; c.Checkpoint.Key = "" },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := ValidateCoordinator(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestValidateWorkerRejectsBadNoise(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Noise.Strategy = "pink"
	if err := ValidateWorker(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	cfg = DefaultConfig()
	cfg.Worker.Hidden = []int{0}
	if err := ValidateWorker(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for hidden size, got %v", err)
	}
}
