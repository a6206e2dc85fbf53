// Package transport carries protocol messages over one persistent
// bidirectional connection per worker.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"evostrat/internal/protocol"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// DefaultReadLimit bounds one frame. An initialize message carries the whole
// committed history, so the websocket default of 32KiB is far too small.
const DefaultReadLimit int64 = 256 << 20

// ErrConnectionLost wraps every failure to read from the peer.
var ErrConnectionLost = errors.New("connection lost")

type Conn interface {
	Send(ctx context.Context, msg protocol.Message) error
	Receive(ctx context.Context) (protocol.Message, error)
	Close(reason string) error
}

type Options struct {
	ReadLimit int64
}

func (o Options) readLimit() int64 {
	if o.ReadLimit <= 0 {
		return DefaultReadLimit
	}
	return o.ReadLimit
}

// WebSocketConn frames each message as one JSON text frame.
type WebSocketConn struct {
	conn *websocket.Conn
}

func Dial(ctx context.Context, url string, opts Options) (*WebSocketConn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(opts.readLimit())
	return &WebSocketConn{conn: conn}, nil
}

func Accept(w http.ResponseWriter, r *http.Request, opts Options) (*WebSocketConn, error) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("accept websocket: %w", err)
	}
	conn.SetReadLimit(opts.readLimit())
	return &WebSocketConn{conn: conn}, nil
}

func (c *WebSocketConn) Send(ctx context.Context, msg protocol.Message) error {
	return wsjson.Write(ctx, c.conn, msg)
}

func (c *WebSocketConn) Receive(ctx context.Context) (protocol.Message, error) {
	var msg protocol.Message
	if err := wsjson.Read(ctx, c.conn, &msg); err != nil {
		return protocol.Message{}, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return msg, nil
}

func (c *WebSocketConn) Close(reason string) error {
	return c.conn.Close(websocket.StatusNormalClosure, reason)
}
