// Package coordinator batches episodes reported by workers into blocks and
// broadcasts every committed block to all connected workers. All block
// state sits behind one mutex so append, threshold check, commit and
// broadcast happen as one step.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"evostrat/internal/metrics"
	"evostrat/internal/model"
	"evostrat/internal/protocol"
	"evostrat/internal/storage"
	"evostrat/internal/transport"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultQueueSize         = 1024
	DefaultCheckpointTimeout = 10 * time.Second

	// smoothing weight of a new block mean in the reward average
	smoothingWeight = 0.05
)

var ErrClosed = errors.New("coordinator closed")

type CheckpointOptions struct {
	Enabled bool
	Key     string
	Timeout time.Duration
}

type Options struct {
	Hyperparameters model.Hyperparameters
	Policy          BlockSizePolicy
	// QueueSize bounds each worker's outbound queue.
	QueueSize  int
	Store      storage.Store
	Checkpoint CheckpointOptions
	// RunID keys the persisted smoothed reward history.
	RunID     string
	Transport transport.Options
	Logger    *zap.Logger
	Registry  *prometheus.Registry
	// Rand picks checkpoint targets. Defaults to a time-seeded source.
	Rand *rand.Rand
}

type Stats struct {
	Blocks           int     `json:"blocks"`
	Episodes         int     `json:"episodes"`
	BufferedEpisodes int     `json:"buffered_episodes"`
	TotalReward      float64 `json:"total_reward"`
	SmoothedReward   float64 `json:"smoothed_reward"`
	ConnectedWorkers int     `json:"connected_workers"`
	Threshold        int     `json:"threshold"`
	WarmStart        bool    `json:"warm_start"`
	RunID            string  `json:"run_id"`
}

type pendingCheckpoint struct {
	seq        uint64
	peerID     string
	blockCount int
	smoothed   float64
	timer      *time.Timer
}

type Coordinator struct {
	hyper      model.Hyperparameters
	policy     BlockSizePolicy
	queueSize  int
	store      storage.Store
	checkpoint CheckpointOptions
	runID      string
	transport  transport.Options
	logger     *zap.Logger
	metrics    *metrics.Coordinator
	registry   *prometheus.Registry

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
	once   sync.Once

	mu          sync.Mutex
	closed      bool
	history     []model.Block
	buffer      model.Block
	peers       map[string]*peer
	warm        model.ParameterVector
	smoothed    float64
	rewards     []float64
	episodes    int
	totalReward float64
	pending     *pendingCheckpoint
	nextSeq     uint64
	rng         *rand.Rand
}

func New(opts Options) (*Coordinator, error) {
	if !(opts.Hyperparameters.Sigma > 0) {
		return nil, fmt.Errorf("sigma must be positive, got %v", opts.Hyperparameters.Sigma)
	}
	if !(opts.Hyperparameters.Alpha > 0) {
		return nil, fmt.Errorf("alpha must be positive, got %v", opts.Hyperparameters.Alpha)
	}
	if opts.Policy == nil {
		opts.Policy = PerWorkerBlockSize{EpisodesPerWorker: 1}
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Checkpoint.Enabled {
		if opts.Store == nil {
			return nil, errors.New("checkpointing requires a store")
		}
		if opts.Checkpoint.Key == "" {
			return nil, errors.New("checkpointing requires a key")
		}
		if opts.Checkpoint.Timeout <= 0 {
			opts.Checkpoint.Timeout = DefaultCheckpointTimeout
		}
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>1|1))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		hyper:      opts.Hyperparameters,
		policy:     opts.Policy,
		queueSize:  opts.QueueSize,
		store:      opts.Store,
		checkpoint: opts.Checkpoint,
		runID:      opts.RunID,
		transport:  opts.Transport,
		logger:     opts.Logger.With(zap.String("component", "coordinator"), zap.String("run_id", opts.RunID)),
		metrics:    metrics.NewCoordinator(opts.Registry),
		registry:   opts.Registry,
		ctx:        ctx,
		cancel:     cancel,
		peers:      make(map[string]*peer),
		rng:        opts.Rand,
	}, nil
}

// Init prepares the store and loads the warm start vector. A missing or
// unreadable checkpoint means a cold start.
func (c *Coordinator) Init(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	if history, ok, err := c.store.GetRewardHistory(ctx, c.runID); err != nil {
		c.logger.Warn("load reward history failed", zap.Error(err))
	} else if ok && len(history) > 0 {
		c.mu.Lock()
		c.rewards = history
		c.smoothed = history[len(history)-1]
		c.mu.Unlock()
	}
	if !c.checkpoint.Enabled {
		return nil
	}
	cp, ok, err := c.store.GetCheckpoint(ctx, c.checkpoint.Key)
	switch {
	case err != nil:
		c.logger.Warn("load checkpoint failed, cold start", zap.String("key", c.checkpoint.Key), zap.Error(err))
	case !ok:
		c.logger.Info("no checkpoint found, cold start", zap.String("key", c.checkpoint.Key))
	default:
		c.mu.Lock()
		c.warm = cp.Parameters.Clone()
		c.mu.Unlock()
		c.logger.Info("warm start",
			zap.String("key", cp.Key),
			zap.Int("params", len(cp.Parameters)),
			zap.Int("block_count", cp.BlockCount),
			zap.Float64("smoothed_reward", cp.SmoothedReward),
		)
	}
	return nil
}

// ServeConn runs one worker connection until it fails or the coordinator
// closes. The connection is closed on return.
func (c *Coordinator) ServeConn(ctx context.Context, conn transport.Conn) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	unlink := context.AfterFunc(c.ctx, func() { cancel(ErrClosed) })
	defer unlink()

	p := newPeer(uuid.NewString(), conn, c.queueSize, cancel)
	if err := c.join(p); err != nil {
		_ = conn.Close(err.Error())
		return err
	}
	logger := c.logger.With(zap.String("worker", p.id))
	logger.Info("worker connected")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.writeLoop(gctx) })
	g.Go(func() error { return c.readLoop(gctx, p, logger) })
	err := g.Wait()
	if cause := context.Cause(ctx); errors.Is(cause, errSlowWorker) || errors.Is(cause, ErrClosed) {
		err = cause
	}

	c.leave(p)
	_ = conn.Close("bye")
	switch {
	case errors.Is(err, errSlowWorker):
		logger.Warn("worker dropped", zap.Error(err))
	case errors.Is(err, ErrClosed), errors.Is(err, transport.ErrConnectionLost), errors.Is(err, context.Canceled):
		logger.Info("worker disconnected")
		err = nil
	default:
		logger.Warn("worker connection failed", zap.Error(err))
	}
	return err
}

func (c *Coordinator) readLoop(ctx context.Context, p *peer, logger *zap.Logger) error {
	for {
		msg, err := p.conn.Receive(ctx)
		if err != nil {
			return err
		}
		switch msg.Type {
		case protocol.TypeEpisode:
			ep, err := msg.Episode()
			if err != nil {
				c.metrics.EpisodesRejected.Inc()
				logger.Warn("rejected episode", zap.Error(err))
				continue
			}
			if err := c.AddEpisode(ep); err != nil {
				logger.Warn("episode not recorded", zap.Error(err))
			}
		case protocol.TypeParameters:
			params, err := msg.Parameters()
			if err != nil {
				logger.Warn("rejected parameters", zap.Error(err))
				continue
			}
			c.receiveParameters(p.id, params)
		default:
			if err := protocol.CheckKnown(msg); err != nil {
				logger.Warn("ignored message", zap.Error(err))
				continue
			}
			logger.Debug("ignored message", zap.String("type", string(msg.Type)))
		}
	}
}

// join snapshots the history and registers p for broadcasts in one step so
// the joiner sees every block exactly once.
func (c *Coordinator) join(p *peer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	msg, err := protocol.NewInitialize(protocol.Initialize{
		Blocks:          c.history,
		Parameters:      c.warm,
		Hyperparameters: c.hyper,
	})
	if err != nil {
		return err
	}
	p.enqueue(msg)
	c.peers[p.id] = p
	c.metrics.ConnectedWorkers.Set(float64(len(c.peers)))
	return nil
}

func (c *Coordinator) leave(p *peer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peers[p.id] == p {
		delete(c.peers, p.id)
	}
	if c.pending != nil && c.pending.peerID == p.id {
		c.clearPendingLocked(metrics.CheckpointSkipped)
		c.logger.Info("checkpoint target left before replying", zap.String("worker", p.id))
	}
	c.metrics.ConnectedWorkers.Set(float64(len(c.peers)))
}

// AddEpisode appends ep to the open block and commits the block once it
// reaches the policy threshold. Episodes with a negative noise index or a
// non-finite reward are rejected and leave the open block untouched.
func (c *Coordinator) AddEpisode(ep model.Episode) error {
	if err := protocol.ValidateEpisode(ep); err != nil {
		c.metrics.EpisodesRejected.Inc()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.buffer = append(c.buffer, ep)
	c.episodes++
	c.totalReward += ep.Reward
	c.metrics.EpisodesTotal.Inc()

	if len(c.buffer) < c.policy.Threshold(len(c.peers)) {
		c.metrics.BufferedEpisodes.Set(float64(len(c.buffer)))
		return nil
	}

	block := c.buffer
	msg, err := protocol.NewBlock(block)
	if err != nil {
		// Workers never saw this block, so dropping it keeps histories aligned.
		c.buffer = nil
		c.metrics.BufferedEpisodes.Set(0)
		c.logger.Error("encode block, discarding buffered episodes", zap.Int("size", len(block)), zap.Error(err))
		return fmt.Errorf("encode block: %w", err)
	}
	c.buffer = nil
	c.history = append(c.history, block)
	for _, p := range c.peers {
		c.sendLocked(p, msg)
	}

	mean := block.MeanReward()
	c.smoothed = smoothingWeight*mean + (1-smoothingWeight)*c.smoothed
	c.rewards = append(c.rewards, c.smoothed)

	c.metrics.BlocksTotal.Inc()
	c.metrics.BufferedEpisodes.Set(0)
	c.metrics.BlockMeanReward.Set(mean)
	c.metrics.SmoothedReward.Set(c.smoothed)
	c.logger.Info("score",
		zap.Float64("smoothed", c.smoothed),
		zap.Float64("block_mean", mean),
		zap.Int("block", len(c.history)),
		zap.Int("size", len(block)),
	)

	c.requestCheckpointLocked()
	return nil
}

// sendLocked queues msg for p, dropping p if its queue is full. A worker
// that misses a block can no longer follow the history.
func (c *Coordinator) sendLocked(p *peer, msg protocol.Message) bool {
	if p.enqueue(msg) {
		return true
	}
	delete(c.peers, p.id)
	p.cancel(errSlowWorker)
	c.metrics.DroppedWorkers.Inc()
	c.metrics.ConnectedWorkers.Set(float64(len(c.peers)))
	return false
}

func (c *Coordinator) History() []model.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Block, len(c.history))
	for i, b := range c.history {
		out[i] = b.Clone()
	}
	return out
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Blocks:           len(c.history),
		Episodes:         c.episodes,
		BufferedEpisodes: len(c.buffer),
		TotalReward:      c.totalReward,
		SmoothedReward:   c.smoothed,
		ConnectedWorkers: len(c.peers),
		Threshold:        c.policy.Threshold(len(c.peers)),
		WarmStart:        c.warm != nil,
		RunID:            c.runID,
	}
}

// RewardHistory returns the smoothed reward after every commit.
func (c *Coordinator) RewardHistory() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.rewards)
}

func (c *Coordinator) peerIDsLocked() []string {
	return slices.Sorted(maps.Keys(c.peers))
}

// Close disconnects every worker, waits for in-flight checkpoint writes and
// flushes the reward history.
func (c *Coordinator) Close(ctx context.Context) error {
	var err error
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		if c.pending != nil {
			c.clearPendingLocked(metrics.CheckpointSkipped)
		}
		rewards := slices.Clone(c.rewards)
		c.mu.Unlock()

		c.cancel()
		c.bg.Wait()
		if c.store != nil && len(rewards) > 0 {
			if saveErr := c.store.SaveRewardHistory(ctx, c.runID, rewards); saveErr != nil {
				err = fmt.Errorf("save reward history: %w", saveErr)
			}
		}
	})
	return err
}
