package optim

import (
	"math"
	"testing"
)

type lrRecorder struct {
	lrs []float64
}

func (r *lrRecorder) SetLR(lr float64) { r.lrs = append(r.lrs, lr) }

func TestAdamMinimizesQuadratic(t *testing.T) {
	p := NewParam("x", 1)
	p.Data[0] = 3
	opt, err := NewAdam([]*Param{p}, 0.1, 0)
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}

	// f(x) = x^2, df/dx = 2x
	for i := 0; i < 200; i++ {
		opt.ZeroGrad()
		p.Grad[0] = 2 * p.Data[0]
		if err := opt.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}
	if math.Abs(float64(p.Data[0])) > 0.1 {
		t.Errorf("Expected x near 0, got %f", p.Data[0])
	}
	if opt.Steps() != 200 {
		t.Errorf("Expected 200 steps, got %d", opt.Steps())
	}
}

func TestAdamZeroGrad(t *testing.T) {
	p := NewParam("w", 3)
	for i := range p.Grad {
		p.Grad[i] = 1
	}
	opt, _ := NewAdam([]*Param{p}, 0.01, 0)
	opt.ZeroGrad()
	for i, g := range p.Grad {
		if g != 0 {
			t.Errorf("Grad[%d] = %f after ZeroGrad", i, g)
		}
	}
}

func TestAdamRejectsNonFiniteGrad(t *testing.T) {
	p := NewParam("w", 1)
	p.Grad[0] = float32(math.Inf(1))
	opt, _ := NewAdam([]*Param{p}, 0.01, 0)
	if err := opt.Step(); err == nil {
		t.Error("Expected error for infinite gradient")
	}
}

func TestNewAdamValidates(t *testing.T) {
	if _, err := NewAdam(nil, 0.1, 0); err == nil {
		t.Error("Expected error for empty params")
	}
	if _, err := NewAdam([]*Param{NewParam("w", 1)}, 0, 0); err == nil {
		t.Error("Expected error for zero learning rate")
	}
}

func TestOneCycleShape(t *testing.T) {
	rec := &lrRecorder{}
	s, err := NewOneCycle(rec, 1.0, 100)
	if err != nil {
		t.Fatalf("NewOneCycle failed: %v", err)
	}
	if got := s.LR(); math.Abs(got-1.0/25) > 1e-9 {
		t.Errorf("Initial LR = %f, expected %f", got, 1.0/25)
	}

	peak := 0.0
	for i := 0; i < 100; i++ {
		s.Step()
		peak = math.Max(peak, s.LR())
	}
	if math.Abs(peak-1.0) > 1e-9 {
		t.Errorf("Peak LR = %f, expected 1.0", peak)
	}
	final := 1.0 / 25 / 1e4
	if math.Abs(s.LR()-final) > 1e-9 {
		t.Errorf("Final LR = %g, expected %g", s.LR(), final)
	}
	if len(rec.lrs) != 101 {
		t.Errorf("Expected 101 SetLR calls, got %d", len(rec.lrs))
	}
}

func TestCosineEndsAtMin(t *testing.T) {
	rec := &lrRecorder{}
	s, err := NewCosine(rec, 0.1, 0.001, 10)
	if err != nil {
		t.Fatalf("NewCosine failed: %v", err)
	}
	for i := 0; i < 15; i++ {
		s.Step()
	}
	if math.Abs(s.LR()-0.001) > 1e-12 {
		t.Errorf("Expected LR 0.001 after schedule end, got %g", s.LR())
	}
}

func TestNewScheduler(t *testing.T) {
	rec := &lrRecorder{}
	for _, kind := range []string{"onecycle", "cosine", "constant"} {
		if _, err := NewScheduler(kind, rec, 0.01, 10); err != nil {
			t.Errorf("NewScheduler(%q) failed: %v", kind, err)
		}
	}
	if _, err := NewScheduler("warmup", rec, 0.01, 10); err == nil {
		t.Error("Expected error for unknown scheduler")
	}
}
