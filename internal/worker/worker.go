// Package worker runs the evaluate, report, reconstruct and update loop
// against one coordinator connection. A single goroutine owns the
// replicated es.State; received messages and finished evaluations are
// funnelled into it over channels.
package worker

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"evostrat/internal/es"
	"evostrat/internal/metrics"
	"evostrat/internal/model"
	"evostrat/internal/noise"
	"evostrat/internal/protocol"
	"evostrat/internal/scape"
	"evostrat/internal/transport"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const inboxSize = 64

type Options struct {
	ID        string
	Evaluator scape.Evaluator
	Noise     noise.Generator
	// Initial defaults to Evaluator.InitialParameters(InitSeed).
	Initial   model.ParameterVector
	InitSeed  int64
	Optimizer es.OptimizerFactory
	// SyncEpisodes holds the next evaluation until a block arrives.
	SyncEpisodes bool
	// MaxEpisodes stops Run after that many reports. Zero means no limit.
	MaxEpisodes int
	// Rand draws noise indices. Defaults to a source seeded from the ID.
	Rand     *rand.Rand
	Logger   *zap.Logger
	Registry prometheus.Registerer
	// OnBlockApplied observes the head after initialize replay and after
	// every live block. It runs on the worker loop and must not block.
	OnBlockApplied func(blocks int, params model.ParameterVector)
}

type Worker struct {
	id        string
	evaluator scape.Evaluator
	gen       noise.Generator
	state     *es.State
	sync      bool
	max       int
	rng       *rand.Rand
	logger    *zap.Logger
	metrics   *metrics.Worker
	onBlock   func(int, model.ParameterVector)

	phase    atomic.Int32
	episodes atomic.Int64
}

type evaluation struct {
	index   int64
	started time.Time
	done    chan evaluationResult
}

type evaluationResult struct {
	reward float64
	err    error
}

func New(opts Options) (*Worker, error) {
	if opts.Evaluator == nil {
		return nil, errors.New("evaluator is required")
	}
	if opts.Noise == nil {
		return nil, errors.New("noise generator is required")
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	initial := opts.Initial
	if initial == nil {
		initial = opts.Evaluator.InitialParameters(opts.InitSeed)
	}
	if len(initial) != opts.Evaluator.NumParams() {
		return nil, fmt.Errorf("initial vector has %d parameters, %s needs %d", len(initial), opts.Evaluator.Name(), opts.Evaluator.NumParams())
	}
	if opts.Optimizer == nil {
		opts.Optimizer = es.NamedOptimizer("adam")
	}
	state, err := es.NewState(initial, opts.Noise, opts.Optimizer)
	if err != nil {
		return nil, err
	}
	if opts.Rand == nil {
		opts.Rand = randFromID(opts.ID)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}
	return &Worker{
		id:        opts.ID,
		evaluator: opts.Evaluator,
		gen:       opts.Noise,
		state:     state,
		sync:      opts.SyncEpisodes,
		max:       opts.MaxEpisodes,
		rng:       opts.Rand,
		logger:    opts.Logger.With(zap.String("component", "worker"), zap.String("worker", opts.ID)),
		metrics:   metrics.NewWorker(opts.Registry),
		onBlock:   opts.OnBlockApplied,
	}, nil
}

func randFromID(id string) *rand.Rand {
	u, err := uuid.Parse(id)
	if err != nil {
		u = uuid.NewSHA1(uuid.NameSpaceOID, []byte(id))
	}
	return rand.New(rand.NewPCG(binary.BigEndian.Uint64(u[:8]), binary.BigEndian.Uint64(u[8:])))
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) Phase() Phase { return Phase(w.phase.Load()) }

func (w *Worker) setPhase(p Phase) { w.phase.Store(int32(p)) }

// Episodes counts reports sent across every connection.
func (w *Worker) Episodes() int { return int(w.episodes.Load()) }

// Parameters returns a copy of the head. Call it only while Run is not
// executing.
func (w *Worker) Parameters() model.ParameterVector { return w.state.Parameters() }

// Run serves one connection. It returns nil once MaxEpisodes reports were
// sent, an error wrapping transport.ErrConnectionLost when the coordinator
// goes away, es.ErrUninitialized when a block precedes initialize, or the
// context error.
func (w *Worker) Run(ctx context.Context, conn transport.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbox := make(chan protocol.Message, inboxSize)
	var recvErr error
	go func() {
		defer close(inbox)
		for {
			msg, err := conn.Receive(ctx)
			if err != nil {
				recvErr = err
				return
			}
			select {
			case inbox <- msg:
			case <-ctx.Done():
				recvErr = ctx.Err()
				return
			}
		}
	}()

	w.setPhase(AwaitInitialize)
	var pending *evaluation
	for {
		if w.Phase() == Ready && pending == nil {
			ev, err := w.startEvaluation(ctx)
			if err != nil {
				return err
			}
			pending = ev
		}

		var done <-chan evaluationResult
		if pending != nil {
			done = pending.done
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbox:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return recvErr
			}
			if err := w.handle(ctx, conn, msg, pending != nil); err != nil {
				return err
			}
		case res := <-done:
			ev := pending
			pending = nil
			if err := w.finish(ctx, conn, ev, res); err != nil {
				return err
			}
			if n := w.Episodes(); w.max > 0 && n >= w.max {
				w.logger.Info("episode limit reached", zap.Int("episodes", n))
				return nil
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, conn transport.Conn, msg protocol.Message, evaluating bool) error {
	switch msg.Type {
	case protocol.TypeInitialize:
		init, err := msg.Initialize()
		if err != nil {
			return err
		}
		start := time.Now()
		if err := w.state.Initialize(init.Hyperparameters, init.Parameters, init.Blocks); err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		w.metrics.BlocksApplied.Add(float64(len(init.Blocks)))
		w.logger.Info("initialized",
			zap.Int("blocks", len(init.Blocks)),
			zap.Bool("warm_start", init.Parameters != nil),
			zap.Float64("sigma", init.Hyperparameters.Sigma),
			zap.Float64("alpha", init.Hyperparameters.Alpha),
			zap.Duration("replay", time.Since(start)),
		)
		w.notify()
		if !evaluating {
			w.setPhase(Ready)
		}
	case protocol.TypeBlock:
		block, err := msg.Block()
		if err != nil {
			return err
		}
		if err := w.state.ApplyBlock(block); err != nil {
			return fmt.Errorf("apply block: %w", err)
		}
		w.metrics.BlocksApplied.Inc()
		w.logger.Debug("block applied", zap.Int("blocks", w.state.BlocksApplied()), zap.Int("size", len(block)))
		w.notify()
		if w.Phase() == Reporting {
			w.setPhase(Ready)
		}
	case protocol.TypeRequestParameters:
		if !w.state.Initialized() {
			w.logger.Debug("parameters requested before initialize")
			return nil
		}
		reply, err := protocol.NewParameters(w.state.Parameters())
		if err != nil {
			return err
		}
		if err := conn.Send(ctx, reply); err != nil {
			return fmt.Errorf("%w: send parameters: %v", transport.ErrConnectionLost, err)
		}
	default:
		if err := protocol.CheckKnown(msg); err != nil {
			w.logger.Warn("ignored message", zap.Error(err))
			return nil
		}
		w.logger.Debug("ignored message", zap.String("type", string(msg.Type)))
	}
	return nil
}

func (w *Worker) notify() {
	if w.onBlock != nil {
		w.onBlock(w.state.BlocksApplied(), w.state.Parameters())
	}
}

func (w *Worker) startEvaluation(ctx context.Context) (*evaluation, error) {
	index := w.gen.NoiseIndex(w.rng)
	trial, err := w.state.Trial(index)
	if err != nil {
		return nil, err
	}
	ev := &evaluation{index: index, started: time.Now(), done: make(chan evaluationResult, 1)}
	go func() {
		reward, err := w.evaluator.Evaluate(ctx, trial)
		ev.done <- evaluationResult{reward: reward, err: err}
	}()
	w.setPhase(Evaluating)
	return ev, nil
}

// finish reports a completed evaluation. Failed or non-finite evaluations
// are dropped.
func (w *Worker) finish(ctx context.Context, conn transport.Conn, ev *evaluation, res evaluationResult) error {
	w.metrics.ObserveEvaluation(time.Since(ev.started))
	if res.err == nil && (math.IsNaN(res.reward) || math.IsInf(res.reward, 0)) {
		res.err = fmt.Errorf("non-finite reward %v", res.reward)
	}
	if res.err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.metrics.EvaluationErrors.Inc()
		w.logger.Warn("evaluation dropped", zap.Int64("noise_index", ev.index), zap.Error(res.err))
		w.setPhase(Ready)
		return nil
	}

	msg, err := protocol.NewEpisode(model.Episode{NoiseIndex: ev.index, Reward: res.reward})
	if err != nil {
		return err
	}
	w.setPhase(Reporting)
	if err := conn.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: send episode: %v", transport.ErrConnectionLost, err)
	}
	w.episodes.Add(1)
	w.metrics.EpisodesTotal.Inc()
	if !w.sync {
		w.setPhase(Ready)
	}
	return nil
}
