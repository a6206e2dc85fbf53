package coordinator

import (
	"context"
	"slices"
	"time"

	"evostrat/internal/metrics"
	"evostrat/internal/model"
	"evostrat/internal/protocol"
	"evostrat/internal/storage"

	"go.uber.org/zap"
)

// requestCheckpointLocked asks one uniformly chosen worker for its head
// parameters. At most one request is outstanding; commits that land while
// one is in flight do not issue another.
func (c *Coordinator) requestCheckpointLocked() {
	if !c.checkpoint.Enabled || c.closed {
		return
	}
	if c.pending != nil {
		return
	}
	ids := c.peerIDsLocked()
	if len(ids) == 0 {
		c.metrics.Checkpoints.WithLabelValues(metrics.CheckpointSkipped).Inc()
		return
	}
	target := ids[c.rng.IntN(len(ids))]
	if !c.sendLocked(c.peers[target], protocol.NewRequestParameters()) {
		c.metrics.Checkpoints.WithLabelValues(metrics.CheckpointSkipped).Inc()
		return
	}

	c.nextSeq++
	seq := c.nextSeq
	c.pending = &pendingCheckpoint{
		seq:        seq,
		peerID:     target,
		blockCount: len(c.history),
		smoothed:   c.smoothed,
	}
	c.pending.timer = time.AfterFunc(c.checkpoint.Timeout, func() { c.expireCheckpoint(seq) })
	c.logger.Debug("checkpoint requested", zap.String("worker", target), zap.Int("block", len(c.history)))
}

func (c *Coordinator) expireCheckpoint(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.pending.seq != seq {
		return
	}
	c.logger.Warn("checkpoint request timed out", zap.String("worker", c.pending.peerID))
	c.clearPendingLocked(metrics.CheckpointTimeout)
}

func (c *Coordinator) clearPendingLocked(outcome string) {
	c.pending.timer.Stop()
	c.pending = nil
	c.metrics.Checkpoints.WithLabelValues(outcome).Inc()
}

// receiveParameters completes the outstanding request if it came from the
// requested worker. Anything else is dropped.
func (c *Coordinator) receiveParameters(peerID string, params model.ParameterVector) {
	c.mu.Lock()
	pending := c.pending
	if pending == nil || pending.peerID != peerID || c.closed {
		c.mu.Unlock()
		c.logger.Debug("dropped unsolicited parameters", zap.String("worker", peerID))
		return
	}
	pending.timer.Stop()
	c.pending = nil
	rewards := slices.Clone(c.rewards)
	c.bg.Add(1)
	c.mu.Unlock()

	cp := model.Checkpoint{
		VersionedRecord: storage.CurrentVersion(),
		Key:             c.checkpoint.Key,
		Parameters:      params.Clone(),
		BlockCount:      pending.blockCount,
		SmoothedReward:  pending.smoothed,
		WorkerID:        peerID,
	}
	go func() {
		defer c.bg.Done()
		c.persist(cp, rewards)
	}()
}

func (c *Coordinator) persist(cp model.Checkpoint, rewards []float64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.checkpoint.Timeout)
	defer cancel()

	if err := c.store.SaveCheckpoint(ctx, cp); err != nil {
		c.metrics.Checkpoints.WithLabelValues(metrics.CheckpointFailed).Inc()
		c.logger.Error("checkpoint write failed", zap.String("key", cp.Key), zap.Error(err))
		return
	}
	c.metrics.Checkpoints.WithLabelValues(metrics.CheckpointSaved).Inc()
	c.logger.Info("checkpoint saved",
		zap.String("key", cp.Key),
		zap.String("worker", cp.WorkerID),
		zap.Int("block_count", cp.BlockCount),
	)
	if err := c.store.SaveRewardHistory(ctx, c.runID, rewards); err != nil {
		c.logger.Warn("reward history write failed", zap.Error(err))
	}
}
