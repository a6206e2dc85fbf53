package coordinator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"evostrat/internal/protocol"
	"evostrat/internal/transport"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + PathWebSocket
}

func TestHandlerServesWebSocketStatsAndMetrics(t *testing.T) {
	c := newTestCoordinator(t, Options{Policy: FixedBlockSize(1)})
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, wsURL(srv), transport.Options{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close("done")

	msg, err := conn.Receive(ctx)
	if err != nil || msg.Type != protocol.TypeInitialize {
		t.Fatalf("expected initialize, got %v %v", msg.Type, err)
	}
	ep, _ := protocol.NewEpisode(episode(3, 2))
	if err := conn.Send(ctx, ep); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg, err = conn.Receive(ctx)
	if err != nil || msg.Type != protocol.TypeBlock {
		t.Fatalf("expected block, got %v %v", msg.Type, err)
	}

	resp, err := http.Get(srv.URL + PathStats)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	var stats Stats
	err = json.NewDecoder(resp.Body).Decode(&stats)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Blocks != 1 || stats.ConnectedWorkers != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	resp, err = http.Get(srv.URL + PathMetrics)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "evostrat_coordinator_blocks_total 1") {
		t.Fatalf("metrics missing block counter:\n%s", body)
	}
}
