package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"evostrat/internal/config"
	"evostrat/internal/coordinator"
	"evostrat/internal/es"
	"evostrat/internal/logging"
	"evostrat/internal/model"
	"evostrat/internal/noise"
	"evostrat/internal/scape"
	"evostrat/internal/stats"
	"evostrat/internal/storage"
	"evostrat/internal/transport"
	"evostrat/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var version = "dev"

var stdout io.Writer = os.Stdout

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "coordinator":
		return runCoordinator(ctx, args[1:])
	case "worker":
		return runWorker(ctx, args[1:])
	case "inspect":
		return runInspect(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "version":
		fmt.Fprintf(stdout, "esctl %s\n", version)
		return nil
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: esctl <coordinator|worker|inspect|runs|version> [flags]", msg)
}

func setFlagNames(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})
	return set
}

func loadConfig(path string) (*config.Config, error) {
	return config.NewLoader().WithConfigPath(path).Load()
}

func runCoordinator(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("coordinator", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config file")
	addr := fs.String("addr", ":3001", "listen address")
	blockPolicy := fs.String("block-policy", coordinator.PolicyWorkers, "block size policy: fixed|workers")
	blockSize := fs.Int("block-size", 25, "episodes per block under the fixed policy")
	perWorker := fs.Float64("episodes-per-worker", 1, "episodes per connected worker under the workers policy")
	sigma := fs.Float64("sigma", 0.1, "noise standard deviation")
	alpha := fs.Float64("alpha", 0.01, "optimizer learning rate")
	checkpoint := fs.Bool("checkpoint", false, "periodically persist a worker's parameters")
	checkpointKey := fs.String("checkpoint-key", "parameters", "checkpoint key")
	storeKind := fs.String("store", storage.KindMemory, "store backend: memory|sqlite|redis")
	dbPath := fs.String("db-path", "evostrat.db", "sqlite database path")
	redisAddr := fs.String("redis-addr", "localhost:6379", "redis address")
	runID := fs.String("run-id", "", "run identifier for the reward history")
	runsDir := fs.String("runs-dir", "", "write run artifacts here on shutdown")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	set := setFlagNames(fs)
	if set["addr"] {
		cfg.Coordinator.Addr = *addr
	}
	if set["block-policy"] {
		cfg.Coordinator.BlockPolicy = *blockPolicy
	}
	if set["block-size"] {
		cfg.Coordinator.BlockSize = *blockSize
		if !set["block-policy"] {
			cfg.Coordinator.BlockPolicy = coordinator.PolicyFixed
		}
	}
	if set["episodes-per-worker"] {
		cfg.Coordinator.EpisodesPerWorker = *perWorker
	}
	if set["sigma"] {
		cfg.Coordinator.Sigma = *sigma
	}
	if set["alpha"] {
		cfg.Coordinator.Alpha = *alpha
	}
	if set["checkpoint"] {
		cfg.Checkpoint.Enabled = *checkpoint
	}
	if set["checkpoint-key"] {
		cfg.Checkpoint.Key = *checkpointKey
	}
	applyStoreFlags(cfg, set, *storeKind, *dbPath, *redisAddr)
	if set["run-id"] {
		cfg.Coordinator.RunID = *runID
	}
	if set["runs-dir"] {
		cfg.Coordinator.RunsDir = *runsDir
	}
	if set["log-level"] {
		cfg.Log.Level = *logLevel
	}
	if err := config.ValidateCoordinator(cfg); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	policy, err := coordinator.NewBlockSizePolicy(cfg.Coordinator.BlockPolicy, cfg.Coordinator.BlockSize, cfg.Coordinator.EpisodesPerWorker)
	if err != nil {
		return err
	}
	store, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()

	c, err := coordinator.New(coordinator.Options{
		Hyperparameters: modelHyper(cfg),
		Policy:          policy,
		QueueSize:       cfg.Coordinator.QueueSize,
		Store:           store,
		Checkpoint: coordinator.CheckpointOptions{
			Enabled: cfg.Checkpoint.Enabled,
			Key:     cfg.Checkpoint.Key,
			Timeout: cfg.Checkpoint.Timeout,
		},
		RunID:     cfg.Coordinator.RunID,
		Transport: transport.Options{ReadLimit: cfg.Transport.ReadLimit},
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := c.Init(ctx); err != nil {
		return err
	}
	err = c.ListenAndServe(ctx, cfg.Coordinator.Addr, cfg.Coordinator.ShutdownTimeout)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		return err
	}
	if cfg.Coordinator.RunsDir == "" {
		return nil
	}
	runDir, err := writeRunArtifacts(cfg, c)
	if err != nil {
		return err
	}
	logger.Info("run artifacts written", zap.String("dir", runDir))
	return nil
}

func writeRunArtifacts(cfg *config.Config, c *coordinator.Coordinator) (string, error) {
	s := c.Stats()
	smoothed := c.RewardHistory()
	blocks := c.History()
	// A reloaded reward history predates this process's blocks; keep the
	// tail that lines up with them.
	if len(smoothed) > len(blocks) {
		smoothed = smoothed[len(smoothed)-len(blocks):]
	}
	runDir, err := stats.WriteRunArtifacts(cfg.Coordinator.RunsDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:             s.RunID,
			Sigma:             cfg.Coordinator.Sigma,
			Alpha:             cfg.Coordinator.Alpha,
			BlockPolicy:       cfg.Coordinator.BlockPolicy,
			BlockSize:         cfg.Coordinator.BlockSize,
			EpisodesPerWorker: cfg.Coordinator.EpisodesPerWorker,
			Checkpoint:        cfg.Checkpoint.Enabled,
			CheckpointKey:     cfg.Checkpoint.Key,
			Store:             cfg.Store.Kind,
			WarmStart:         s.WarmStart,
		},
		Blocks:          blocks,
		SmoothedRewards: smoothed,
		Episodes:        s.Episodes,
	})
	if err != nil {
		return "", err
	}
	err = stats.AppendRunIndex(cfg.Coordinator.RunsDir, stats.RunIndexEntry{
		RunID:               s.RunID,
		Sigma:               cfg.Coordinator.Sigma,
		Alpha:               cfg.Coordinator.Alpha,
		BlockPolicy:         cfg.Coordinator.BlockPolicy,
		Blocks:              s.Blocks,
		Episodes:            s.Episodes,
		FinalSmoothedReward: s.SmoothedReward,
		CreatedAtUTC:        time.Now().UTC().Format(time.RFC3339),
	})
	return runDir, err
}

func runRuns(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	runsDir := fs.String("runs-dir", "runs", "run artifacts directory")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	entries, err := stats.ListRunIndex(*runsDir)
	if err != nil {
		return err
	}
	if len(entries) > *limit {
		entries = entries[:*limit]
	}
	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(stdout, "run_id=%s created_at=%s blocks=%d episodes=%d sigma=%g alpha=%g final_smoothed=%.4f\n",
			e.RunID, e.CreatedAtUTC, e.Blocks, e.Episodes, e.Sigma, e.Alpha, e.FinalSmoothedReward)
	}
	return nil
}

func runWorker(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config file")
	master := fs.String("master", "ws://localhost:3001/ws", "coordinator websocket URL")
	scapeName := fs.String("scape", "cart-pole-lite", "fitness evaluator: "+strings.Join(scape.Names(), "|"))
	optimizer := fs.String("optimizer", "adam", "optimizer: adam|sgd")
	syncEpisodes := fs.Bool("sync", false, "wait for the next block after each report")
	maxEpisodes := fs.Int("max-episodes", 0, "stop after this many reported episodes (0 = unlimited)")
	maxReconnects := fs.Int("max-reconnects", 0, "reconnect attempts after a lost coordinator link")
	noiseStrategy := fs.String("noise", noise.StrategyCached, "noise strategy: cached|live")
	noiseSeed := fs.Int64("noise-seed", 0, "shared noise seed")
	cacheSize := fs.Int("cache-size", noise.DefaultCacheSize, "cached noise pool size")
	policySeed := fs.Int64("policy-seed", 1, "seed for the shared initial parameters")
	hidden := fs.String("hidden", "16", "comma separated hidden layer sizes")
	dim := fs.Int("dim", 8, "sphere dimensionality")
	metricsAddr := fs.String("metrics-addr", "", "serve prometheus metrics on this address")
	logLevel := fs.String("log-level", "info", "log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	set := setFlagNames(fs)
	if set["master"] {
		cfg.Worker.Master = *master
	}
	if set["scape"] {
		cfg.Worker.Scape = *scapeName
	}
	if set["optimizer"] {
		cfg.Worker.Optimizer = *optimizer
	}
	if set["sync"] {
		cfg.Worker.SyncEpisodes = *syncEpisodes
	}
	if set["max-episodes"] {
		cfg.Worker.MaxEpisodes = *maxEpisodes
	}
	if set["max-reconnects"] {
		cfg.Worker.MaxReconnects = *maxReconnects
	}
	if set["noise"] {
		cfg.Noise.Strategy = *noiseStrategy
	}
	if set["noise-seed"] {
		cfg.Noise.Seed = *noiseSeed
	}
	if set["cache-size"] {
		cfg.Noise.CacheSize = *cacheSize
	}
	if set["policy-seed"] {
		cfg.Worker.PolicySeed = *policySeed
	}
	if set["hidden"] {
		sizes, err := parseSizes(*hidden)
		if err != nil {
			return err
		}
		cfg.Worker.Hidden = sizes
	}
	if set["dim"] {
		cfg.Worker.Dim = *dim
	}
	if set["metrics-addr"] {
		cfg.Worker.MetricsAddr = *metricsAddr
	}
	if set["log-level"] {
		cfg.Log.Level = *logLevel
	}
	if err := config.ValidateWorker(cfg); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	eval, err := scape.Lookup(cfg.Worker.Scape, scape.Options{
		Hidden:  cfg.Worker.Hidden,
		Dim:     cfg.Worker.Dim,
		Latency: cfg.Worker.Latency,
	})
	if err != nil {
		return err
	}
	gen, err := noise.New(noise.Config{
		Strategy:  cfg.Noise.Strategy,
		Seed:      cfg.Noise.Seed,
		NumParams: eval.NumParams(),
		CacheSize: cfg.Noise.CacheSize,
		LiveBound: cfg.Noise.LiveBound,
	})
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	w, err := worker.New(worker.Options{
		Evaluator:    eval,
		Noise:        gen,
		InitSeed:     cfg.Worker.PolicySeed,
		Optimizer:    es.NamedOptimizer(cfg.Worker.Optimizer),
		SyncEpisodes: cfg.Worker.SyncEpisodes,
		MaxEpisodes:  cfg.Worker.MaxEpisodes,
		Logger:       logger,
		Registry:     registry,
	})
	if err != nil {
		return err
	}
	logger.Info("worker starting",
		zap.String("worker", w.ID()),
		zap.String("master", cfg.Worker.Master),
		zap.String("scape", eval.Name()),
		zap.Int("params", eval.NumParams()),
	)

	if cfg.Worker.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.Worker.MetricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	dial := worker.WebSocketDialer(cfg.Worker.Master, transport.Options{ReadLimit: cfg.Transport.ReadLimit})
	err = w.RunWithReconnect(ctx, dial, cfg.Worker.MaxReconnects, cfg.Worker.ReconnectDelay)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runInspect(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	configPath := fs.String("config", "", "optional YAML config file")
	storeKind := fs.String("store", storage.KindSQLite, "store backend: memory|sqlite|redis")
	dbPath := fs.String("db-path", "evostrat.db", "sqlite database path")
	redisAddr := fs.String("redis-addr", "localhost:6379", "redis address")
	key := fs.String("key", "parameters", "checkpoint key")
	runID := fs.String("run-id", "", "also print the reward history of this run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	set := setFlagNames(fs)
	if !set["store"] && *configPath != "" {
		*storeKind = cfg.Store.Kind
	}
	set["store"] = true
	applyStoreFlags(cfg, set, *storeKind, *dbPath, *redisAddr)

	store, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		_ = storage.CloseIfSupported(store)
	}()
	if err := store.Init(ctx); err != nil {
		return err
	}

	cp, ok, err := store.GetCheckpoint(ctx, *key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("checkpoint %q not found", *key)
	}
	out := map[string]any{"checkpoint": cp}
	if *runID != "" {
		history, found, err := store.GetRewardHistory(ctx, *runID)
		if err != nil {
			return err
		}
		if found {
			out["reward_history"] = history
		}
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func applyStoreFlags(cfg *config.Config, set map[string]bool, kind, dbPath, redisAddr string) {
	if set["store"] {
		cfg.Store.Kind = kind
	}
	if set["db-path"] {
		cfg.Store.SQLitePath = dbPath
	}
	if set["redis-addr"] {
		cfg.Store.RedisAddr = redisAddr
	}
}

func modelHyper(cfg *config.Config) model.Hyperparameters {
	return model.Hyperparameters{Sigma: cfg.Coordinator.Sigma, Alpha: cfg.Coordinator.Alpha}
}

func openStore(cfg config.StoreConfig) (storage.Store, error) {
	return storage.NewStore(cfg.Kind, storage.Options{
		SQLitePath:    cfg.SQLitePath,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		RedisPrefix:   cfg.RedisPrefix,
	})
}

func parseSizes(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	sizes := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid layer size %q", part)
		}
		sizes = append(sizes, n)
	}
	return sizes, nil
}
