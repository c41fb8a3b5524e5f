package nn

import (
	"errors"
	"math"
	"testing"

	"github.com/SyedDaiam9101/forecast-service/internal/optim"
	"github.com/SyedDaiam9101/forecast-service/internal/predictor"
	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

func ramp(b, t, c, h, w int) *window.Window {
	win := window.New(b, t, c, h, w)
	for i := range win.Data {
		win.Data[i] = float32(math.Sin(float64(i) * 0.37))
	}
	return win
}

func TestMSEValue(t *testing.T) {
	pred, _ := window.FromData([]float32{1, 2, 3, 4}, 1, 2, 1, 1, 2)
	target, _ := window.FromData([]float32{1, 0, 3, 0}, 1, 2, 1, 1, 2)

	loss, err := MSE{}.Loss(pred, target)
	if err != nil {
		t.Fatalf("Loss failed: %v", err)
	}
	// (0 + 4 + 0 + 16) / 4
	if loss.Item() != 5 || loss.Mean() != 5 {
		t.Errorf("Expected loss 5, got item=%f mean=%f", loss.Item(), loss.Mean())
	}
}

func TestMSEShapeMismatch(t *testing.T) {
	_, err := MSE{}.Loss(window.New(1, 2, 1, 1, 1), window.New(1, 3, 1, 1, 1))
	if !errors.Is(err, window.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestMSEBackwardNeedsGraph(t *testing.T) {
	loss, err := MSE{}.Loss(window.New(1, 1, 1, 1, 1), window.New(1, 1, 1, 1, 1))
	if err != nil {
		t.Fatalf("Loss failed: %v", err)
	}
	if err := loss.Backward(); !errors.Is(err, window.ErrNoGrad) {
		t.Errorf("Expected ErrNoGrad for untracked prediction, got %v", err)
	}
}

func TestTemporalLinearRejectsWrongLength(t *testing.T) {
	m, _ := NewTemporalLinear(4, 1)
	if _, err := m.Forward(window.New(1, 3, 1, 2, 2)); !errors.Is(err, window.ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}

func TestTemporalLinearEvalIsUntracked(t *testing.T) {
	m, _ := NewTemporalLinear(2, 1)
	m.Eval()
	out, err := m.Forward(ramp(1, 2, 1, 2, 2))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if out.RequiresGrad() {
		t.Error("Eval-mode output should not track gradients")
	}
}

// lossAt evaluates the rollout loss with the current parameters.
func lossAt(t *testing.T, m *TemporalLinear, x, y *window.Window, pre, aft int) float64 {
	t.Helper()
	m.Eval()
	pred, err := predictor.Predict(m, x, pre, aft)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	loss, err := MSE{}.Loss(pred, y)
	if err != nil {
		t.Fatalf("Loss failed: %v", err)
	}
	return loss.Item()
}

func TestRolloutGradientMatchesFiniteDifference(t *testing.T) {
	const pre, aft = 2, 5
	m, _ := NewTemporalLinear(pre, 7)
	x := ramp(2, pre, 1, 2, 2)
	y := ramp(2, aft, 1, 2, 2)
	for i := range y.Data {
		y.Data[i] *= 0.5
	}

	m.Train()
	pred, err := predictor.Predict(m, x, pre, aft)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	loss, err := MSE{}.Loss(pred, y)
	if err != nil {
		t.Fatalf("Loss failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("Backward failed: %v", err)
	}

	const h = 1e-2
	for _, p := range m.Parameters() {
		for j := range p.Data {
			orig := p.Data[j]
			p.Data[j] = orig + h
			up := lossAt(t, m, x, y, pre, aft)
			p.Data[j] = orig - h
			down := lossAt(t, m, x, y, pre, aft)
			p.Data[j] = orig

			numeric := (up - down) / (2 * h)
			analytic := float64(p.Grad[j])
			if math.Abs(numeric-analytic) > 1e-2*math.Max(1, math.Abs(numeric)) {
				t.Errorf("%s[%d]: analytic %f, numeric %f", p.Name, j, analytic, numeric)
			}
		}
	}
}

func TestTrainingReducesLoss(t *testing.T) {
	const pre, aft = 3, 3
	m, _ := NewTemporalLinear(pre, 3)
	opt, err := optim.NewAdam(m.Parameters(), 0.05, 0)
	if err != nil {
		t.Fatalf("NewAdam failed: %v", err)
	}

	x := ramp(4, pre, 1, 3, 3)
	// target: frames reversed
	y := window.New(4, aft, 1, 3, 3)
	for b := 0; b < 4; b++ {
		for f := 0; f < aft; f++ {
			copy(y.Frame(b, f), x.Frame(b, pre-1-f))
		}
	}

	first := lossAt(t, m, x, y, pre, aft)
	for i := 0; i < 100; i++ {
		m.Train()
		opt.ZeroGrad()
		pred, err := predictor.Predict(m, x, pre, aft)
		if err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		loss, _ := MSE{}.Loss(pred, y)
		if err := loss.Backward(); err != nil {
			t.Fatalf("Backward failed: %v", err)
		}
		if err := opt.Step(); err != nil {
			t.Fatalf("Step failed: %v", err)
		}
	}
	last := lossAt(t, m, x, y, pre, aft)
	if last >= first*0.5 {
		t.Errorf("Expected loss to at least halve, first=%f last=%f", first, last)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	m, _ := NewTemporalLinear(2, 1)
	snap := m.Snapshot()
	m.Parameters()[0].Data[0] = 99
	if snap.Parameters()[0].Data[0] == 99 {
		t.Error("Snapshot shares parameter storage")
	}
	if snap.Training() {
		t.Error("Snapshot should be in eval mode")
	}
}
