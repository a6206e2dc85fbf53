package scape

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestSphereRewardsDistanceToTarget(t *testing.T) {
	s, err := NewSphere(3)
	if err != nil {
		t.Fatalf("new sphere: %v", err)
	}
	got, err := s.Evaluate(context.Background(), s.InitialParameters(0))
	if err != nil || got != -3 {
		t.Fatalf("zero vector reward = %v, %v; want -3", got, err)
	}
	got, err = s.Evaluate(context.Background(), []float64{1, 1, 1})
	if err != nil || got != 0 {
		t.Fatalf("target reward = %v, %v; want 0", got, err)
	}
	if _, err := s.Evaluate(context.Background(), []float64{1}); err == nil {
		t.Fatal("expected length error")
	}
}

func TestCartPoleLiteWithHandBuiltController(t *testing.T) {
	c, err := NewCartPoleLite(nil)
	if err != nil {
		t.Fatalf("new cart-pole-lite: %v", err)
	}
	if c.NumParams() != 3 {
		t.Fatalf("unexpected params: %d", c.NumParams())
	}
	params := []float64{-1.2, -0.6, 0}
	first, err := c.Evaluate(context.Background(), params)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if first <= 0.5 || first > 1 {
		t.Fatalf("expected reward in (0.5, 1], got %f", first)
	}
	second, _ := c.Evaluate(context.Background(), params)
	if first != second {
		t.Fatalf("evaluation is not deterministic: %v vs %v", first, second)
	}
}

func TestCartPoleLiteStepClampsForce(t *testing.T) {
	x1, v1, _ := cartPoleLiteStep(0, 0, 5)
	x2, v2, _ := cartPoleLiteStep(0, 0, 1)
	if x1 != x2 || v1 != v2 {
		t.Fatalf("force should clamp to 1: (%v,%v) vs (%v,%v)", x1, v1, x2, v2)
	}
}

func TestXORScoresSolvedNetwork(t *testing.T) {
	x, err := NewXOR([]int{2})
	if err != nil {
		t.Fatalf("new xor: %v", err)
	}
	if x.NumParams() != 9 {
		t.Fatalf("unexpected params: %d", x.NumParams())
	}
	solved := []float64{
		20, 20, 20, 20, -10, -30,
		20, -20, -10,
	}
	good, err := x.Evaluate(context.Background(), solved)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	flat, err := x.Evaluate(context.Background(), make([]float64, 9))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if math.Abs(flat-1/1.000001) > 1e-9 {
		t.Fatalf("all-0.5 predictions should score 1/(1+eps), got %v", flat)
	}
	if good < 1000 {
		t.Fatalf("solved network should score far above flat one: %v", good)
	}
}

func TestRegressionMimicIdentity(t *testing.T) {
	r, err := NewRegressionMimic(nil)
	if err != nil {
		t.Fatalf("new regression-mimic: %v", err)
	}
	got, err := r.Evaluate(context.Background(), []float64{1, 0})
	if err != nil || got != 1 {
		t.Fatalf("identity reward = %v, %v; want 1", got, err)
	}
}

func TestLookup(t *testing.T) {
	names := Names()
	if len(names) != 4 || names[0] != CartPoleLiteName {
		t.Fatalf("unexpected names: %v", names)
	}
	e, err := Lookup(XORName, Options{Hidden: []int{3}})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if e.Name() != XORName || e.NumParams() != 3*2+3+3+1 {
		t.Fatalf("unexpected evaluator: %s %d", e.Name(), e.NumParams())
	}
	if _, err := Lookup("pong", Options{}); err == nil {
		t.Fatal("expected unknown scape error")
	}
	alias, err := Lookup("Cart_Pole_Lite", Options{Hidden: []int{2}})
	if err != nil {
		t.Fatalf("lookup alias: %v", err)
	}
	if alias.Name() != CartPoleLiteName {
		t.Fatalf("alias resolved to %s", alias.Name())
	}
}

func TestLatencyHonoursCancellation(t *testing.T) {
	e, err := Lookup(SphereName, Options{Dim: 2, Latency: time.Hour})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Evaluate(ctx, []float64{0, 0}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	e = WithLatency(&Sphere{Target: []float64{0}}, time.Millisecond)
	got, err := e.Evaluate(context.Background(), []float64{2})
	if err != nil || got != -4 {
		t.Fatalf("delayed reward = %v, %v; want -4", got, err)
	}
}
