package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"evostrat/internal/coordinator"
	"evostrat/internal/model"
	"evostrat/internal/stats"

	"go.uber.org/zap/zaptest"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	orig := stdout
	stdout = buf
	t.Cleanup(func() { stdout = orig })
	return buf
}

func TestRunRequiresCommand(t *testing.T) {
	err := run(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "usage: esctl") {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"evolve"})
	if err == nil || !strings.Contains(err.Error(), "unknown command: evolve") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRunVersion(t *testing.T) {
	out := captureStdout(t)
	if err := run(context.Background(), []string{"version"}); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out.String(), "esctl ") {
		t.Fatalf("unexpected version output: %q", out.String())
	}
}

func TestParseSizes(t *testing.T) {
	got, err := parseSizes(" 16, 8 ")
	if err != nil {
		t.Fatalf("parse sizes: %v", err)
	}
	if !reflect.DeepEqual(got, []int{16, 8}) {
		t.Fatalf("unexpected sizes: %v", got)
	}
	if got, err := parseSizes(""); err != nil || got != nil {
		t.Fatalf("expected no hidden layers, got %v err=%v", got, err)
	}
	if _, err := parseSizes("4,zero"); err == nil {
		t.Fatal("expected invalid size error")
	}
	if _, err := parseSizes("0"); err == nil {
		t.Fatal("expected non-positive size error")
	}
}

func TestCoordinatorRejectsInvalidFlags(t *testing.T) {
	err := run(context.Background(), []string{"coordinator", "-sigma", "0"})
	if err == nil || !strings.Contains(err.Error(), "sigma") {
		t.Fatalf("expected sigma validation error, got %v", err)
	}
	err = run(context.Background(), []string{"coordinator", "-block-policy", "halving"})
	if err == nil || !strings.Contains(err.Error(), "block_policy") {
		t.Fatalf("expected block policy validation error, got %v", err)
	}
}

func TestCoordinatorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := run(ctx, []string{"coordinator", "-addr", "127.0.0.1:0", "-block-size", "4", "-log-level", "error"})
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
}

func TestWorkerReportsEpisodes(t *testing.T) {
	c, err := coordinator.New(coordinator.Options{
		Hyperparameters: model.Hyperparameters{Sigma: 0.1, Alpha: 0.01},
		Policy:          coordinator.FixedBlockSize(2),
		Logger:          zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}
	srv := httptest.NewServer(c.Handler())
	t.Cleanup(func() {
		_ = c.Close(context.Background())
		srv.Close()
	})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + coordinator.PathWebSocket

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = run(ctx, []string{
		"worker",
		"-master", url,
		"-scape", "sphere",
		"-dim", "4",
		"-max-episodes", "3",
		"-cache-size", "4096",
		"-log-level", "error",
	})
	if err != nil {
		t.Fatalf("worker: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for c.Stats().Episodes < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("coordinator saw %d episodes, want 3", c.Stats().Episodes)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := c.Stats().Blocks; got != 1 {
		t.Fatalf("expected one committed block, got %d", got)
	}
}

func TestWorkerRejectsUnknownScape(t *testing.T) {
	err := run(context.Background(), []string{"worker", "-scape", "tetris", "-log-level", "error"})
	if err == nil {
		t.Fatal("expected unknown scape error")
	}
}

func TestInspectMissingCheckpoint(t *testing.T) {
	err := run(context.Background(), []string{"inspect", "-store", "memory"})
	if err == nil || !strings.Contains(err.Error(), `checkpoint "parameters" not found`) {
		t.Fatalf("expected missing checkpoint error, got %v", err)
	}
}

func TestCoordinatorWritesRunArtifacts(t *testing.T) {
	runsDir := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	args := []string{"coordinator", "-addr", "127.0.0.1:0", "-run-id", "run-7", "-runs-dir", runsDir, "-log-level", "error"}
	if err := run(ctx, args); err != nil {
		t.Fatalf("coordinator: %v", err)
	}

	out := captureStdout(t)
	if err := run(context.Background(), []string{"runs", "-runs-dir", runsDir, "-json"}); err != nil {
		t.Fatalf("runs: %v", err)
	}
	var entries []stats.RunIndexEntry
	if err := json.Unmarshal(out.Bytes(), &entries); err != nil {
		t.Fatalf("decode runs: %v\n%s", err, out.String())
	}
	if len(entries) != 1 || entries[0].RunID != "run-7" || entries[0].Blocks != 0 {
		t.Fatalf("unexpected runs: %+v", entries)
	}
	cfg, ok, err := stats.ReadRunConfig(runsDir, "run-7")
	if err != nil || !ok {
		t.Fatalf("read run config: ok=%v err=%v", ok, err)
	}
	if cfg.BlockPolicy != coordinator.PolicyWorkers || cfg.Store != "memory" {
		t.Fatalf("unexpected run config: %+v", cfg)
	}
}

func TestRunsEmptyDirectory(t *testing.T) {
	out := captureStdout(t)
	if err := run(context.Background(), []string{"runs", "-runs-dir", t.TempDir()}); err != nil {
		t.Fatalf("runs: %v", err)
	}
	if strings.TrimSpace(out.String()) != "no runs found" {
		t.Fatalf("unexpected output: %q", out.String())
	}
	if err := run(context.Background(), []string{"runs", "-limit", "0"}); err == nil {
		t.Fatal("expected limit validation error")
	}
}
