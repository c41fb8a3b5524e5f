// Package predictor turns a fixed-length sequence model into a forecaster for
// an arbitrary horizon.
package predictor

import (
	"fmt"

	"github.com/SyedDaiam9101/forecast-service/internal/metrics"
	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

// Model maps a window of P frames to the next P frames.
// Implementations must not modify their input.
type Model interface {
	Forward(x *window.Window) (*window.Window, error)
}

// Predictor produces AftLen frames from PreLen input frames.
type Predictor struct {
	PreLen int
	AftLen int
}

// New returns a Predictor for the given input and output lengths.
func New(preLen, aftLen int) (*Predictor, error) {
	if preLen <= 0 {
		return nil, fmt.Errorf("invalid pre_seq_length %d", preLen)
	}
	if aftLen < 0 {
		return nil, fmt.Errorf("invalid aft_seq_length %d", aftLen)
	}
	return &Predictor{PreLen: preLen, AftLen: aftLen}, nil
}

// Predict runs m on x and returns exactly p.AftLen frames.
func (p *Predictor) Predict(m Model, x *window.Window) (*window.Window, error) {
	return Predict(m, x, p.PreLen, p.AftLen)
}

// Predict returns aftLen frames forecast from x.
//
// When aftLen exceeds preLen the model is rolled out autoregressively: each
// output window is fed back as the next input, and the last application
// contributes only the aftLen%preLen frames still missing.
func Predict(m Model, x *window.Window, preLen, aftLen int) (*window.Window, error) {
	if preLen <= 0 || aftLen < 0 {
		return nil, fmt.Errorf("invalid sequence lengths pre=%d aft=%d", preLen, aftLen)
	}
	switch {
	case aftLen == 0:
		s := x.Shape()
		return window.New(s[0], 0, s[2], s[3], s[4]).To(x.Device()), nil

	case aftLen == preLen:
		metrics.RecordModelCalls("direct", 1)
		return m.Forward(x)

	case aftLen < preLen:
		metrics.RecordModelCalls("truncate", 1)
		y, err := m.Forward(x)
		if err != nil {
			return nil, err
		}
		return y.SliceTime(0, aftLen)
	}

	d := aftLen / preLen
	rem := aftLen % preLen
	chunks := make([]*window.Window, 0, d+1)
	cur := x.Clone()
	for i := 0; i < d; i++ {
		metrics.RecordModelCalls("rollout", 1)
		y, err := m.Forward(cur)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, y)
		cur = y
	}
	if rem != 0 {
		metrics.RecordModelCalls("rollout", 1)
		y, err := m.Forward(cur)
		if err != nil {
			return nil, err
		}
		tail, err := y.SliceTime(0, rem)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, tail)
	}
	return window.ConcatTime(chunks...)
}
