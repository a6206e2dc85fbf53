package worker

import (
	"context"
	"errors"
	"time"

	"evostrat/internal/transport"

	"go.uber.org/zap"
)

const (
	backoffFactor   = 2.0
	maxReconnectGap = 30 * time.Second
)

// Dialer opens a fresh coordinator connection.
type Dialer func(ctx context.Context) (transport.Conn, error)

func WebSocketDialer(url string, opts transport.Options) Dialer {
	return func(ctx context.Context) (transport.Conn, error) {
		return transport.Dial(ctx, url, opts)
	}
}

// RunWithReconnect dials and runs until Run finishes for a reason other than
// a lost connection. Up to maxReconnects further dials are attempted. The
// first waits delay and each later one doubles the wait, capped at 30s. The
// new initialize resynchronizes the state from scratch. With maxReconnects
// zero the first failure is returned.
func (w *Worker) RunWithReconnect(ctx context.Context, dial Dialer, maxReconnects int, delay time.Duration) error {
	attempt := 0
	backoff := delay
	for {
		conn, err := dial(ctx)
		if err == nil {
			err = w.Run(ctx, conn)
			_ = conn.Close("worker exiting")
			if err == nil || !errors.Is(err, transport.ErrConnectionLost) {
				return err
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if attempt >= maxReconnects {
			return err
		}
		attempt++
		w.metrics.Reconnects.Inc()
		w.logger.Warn("coordinator link lost, reconnecting",
			zap.Int("attempt", attempt),
			zap.Int("max", maxReconnects),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = time.Duration(float64(backoff) * backoffFactor)
		if backoff > maxReconnectGap {
			backoff = maxReconnectGap
		}
	}
}
