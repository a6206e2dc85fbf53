package transport

import (
	"context"
	"errors"
	"sync"

	"evostrat/internal/protocol"
)

var errPipeClosed = errors.New("pipe closed")

// Pipe returns two in-memory connected endpoints. Messages sent on one end
// are received on the other in order.
func Pipe(buffer int) (Conn, Conn) {
	ab := make(chan protocol.Message, buffer)
	ba := make(chan protocol.Message, buffer)
	done := make(chan struct{})
	shared := &pipeState{done: done}
	return &pipeConn{in: ba, out: ab, state: shared}, &pipeConn{in: ab, out: ba, state: shared}
}

type pipeState struct {
	once sync.Once
	done chan struct{}
}

type pipeConn struct {
	in    <-chan protocol.Message
	out   chan<- protocol.Message
	state *pipeState
}

func (p *pipeConn) Send(ctx context.Context, msg protocol.Message) error {
	select {
	case <-p.state.done:
		return errPipeClosed
	default:
	}
	select {
	case p.out <- msg:
		return nil
	case <-p.state.done:
		return errPipeClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeConn) Receive(ctx context.Context) (protocol.Message, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.state.done:
		return protocol.Message{}, errors.Join(ErrConnectionLost, errPipeClosed)
	case <-ctx.Done():
		return protocol.Message{}, errors.Join(ErrConnectionLost, ctx.Err())
	}
}

// Close tears down both ends.
func (p *pipeConn) Close(string) error {
	p.state.once.Do(func() { close(p.state.done) })
	return nil
}
