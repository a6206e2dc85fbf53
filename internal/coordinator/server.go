package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"evostrat/internal/transport"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	PathWebSocket = "/ws"
	PathMetrics   = "/metrics"
	PathStats     = "/stats"
)

func (c *Coordinator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(PathWebSocket, c.handleWebSocket)
	mux.Handle(PathMetrics, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET "+PathStats, c.handleStats)
	return mux
}

func (c *Coordinator) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := transport.Accept(w, r, c.transport)
	if err != nil {
		c.logger.Warn("websocket accept failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	_ = c.ServeConn(r.Context(), conn)
}

func (c *Coordinator) handleStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.Stats()); err != nil {
		c.logger.Debug("write stats", zap.Error(err))
	}
}

// Serve accepts workers on ln until ctx is done, then closes the
// coordinator and shuts the server down within shutdownTimeout.
func (c *Coordinator) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	c.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		closeErr := c.Close(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return closeErr
	})
	return g.Wait()
}

// ListenAndServe is Serve on a fresh TCP listener.
func (c *Coordinator) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return c.Serve(ctx, ln, shutdownTimeout)
}
