package coordinator

import (
	"context"
	"errors"

	"evostrat/internal/protocol"
	"evostrat/internal/transport"
)

var errSlowWorker = errors.New("worker outbound queue overflowed")

// peer is one connected worker. Its outbound queue is filled under the
// coordinator lock and drained by a dedicated writer goroutine.
type peer struct {
	id     string
	conn   transport.Conn
	out    chan protocol.Message
	cancel context.CancelCauseFunc
}

func newPeer(id string, conn transport.Conn, queueSize int, cancel context.CancelCauseFunc) *peer {
	return &peer{
		id:     id,
		conn:   conn,
		out:    make(chan protocol.Message, queueSize),
		cancel: cancel,
	}
}

// enqueue never blocks. It reports false when the queue is full.
func (p *peer) enqueue(msg protocol.Message) bool {
	select {
	case p.out <- msg:
		return true
	default:
		return false
	}
}

func (p *peer) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case msg := <-p.out:
			if err := p.conn.Send(ctx, msg); err != nil {
				return err
			}
		}
	}
}
