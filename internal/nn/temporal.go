package nn

import (
	"fmt"
	"math/rand"

	"github.com/SyedDaiam9101/forecast-service/internal/optim"
	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

// TemporalLinear predicts each output frame as a learned mix of the input
// frames plus a per-frame bias:
//
//	y[b, s] = sum_t W[s, t] * x[b, t] + bias[s]
//
// It is the smallest model with the P-in/P-out contract the predictor needs.
type TemporalLinear struct {
	frames   int
	weight   *optim.Param
	bias     *optim.Param
	training bool
}

// NewTemporalLinear creates a model over frames frames. Weights start at the
// identity plus small noise so the untrained model predicts persistence.
func NewTemporalLinear(frames int, seed int64) (*TemporalLinear, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("invalid frame count %d", frames)
	}
	rng := rand.New(rand.NewSource(seed))
	w := optim.NewParam("temporal.weight", frames*frames)
	for s := 0; s < frames; s++ {
		for t := 0; t < frames; t++ {
			v := float32(rng.NormFloat64() * 0.01)
			if s == t {
				v += 1
			}
			w.Data[s*frames+t] = v
		}
	}
	return &TemporalLinear{
		frames: frames,
		weight: w,
		bias:   optim.NewParam("temporal.bias", frames),
	}, nil
}

// Parameters returns the trainable parameters.
func (m *TemporalLinear) Parameters() []*optim.Param {
	return []*optim.Param{m.weight, m.bias}
}

// Train enables gradient tracking.
func (m *TemporalLinear) Train() { m.training = true }

// Eval disables gradient tracking.
func (m *TemporalLinear) Eval() { m.training = false }

// Training reports whether gradients are tracked.
func (m *TemporalLinear) Training() bool { return m.training }

// Forward applies the temporal mix to x, which must have exactly the model's
// frame count.
func (m *TemporalLinear) Forward(x *window.Window) (*window.Window, error) {
	if x.Frames() != m.frames {
		return nil, fmt.Errorf("model expects %d frames, got %d: %w", m.frames, x.Frames(), window.ErrShapeMismatch)
	}
	s := x.Shape()
	b, p, fs := s[0], m.frames, x.FrameSize()

	// the backward closure must see the weights used here, not the ones
	// left behind by a later optimizer step
	w := append([]float32(nil), m.weight.Data...)
	bias := m.bias.Data

	out := window.New(b, p, s[2], s[3], s[4]).To(x.Device())
	for i := 0; i < b; i++ {
		for so := 0; so < p; so++ {
			dst := out.Frame(i, so)
			for k := range dst {
				dst[k] = bias[so]
			}
			for t := 0; t < p; t++ {
				c := w[so*p+t]
				if c == 0 {
					continue
				}
				src := x.Frame(i, t)
				for k := range dst {
					dst[k] += c * src[k]
				}
			}
		}
	}

	if !m.training {
		return out, nil
	}

	out.Attach(func(grad []float32) {
		for i := 0; i < b; i++ {
			for so := 0; so < p; so++ {
				g := grad[(i*p+so)*fs : (i*p+so+1)*fs]
				var gs float32
				for _, v := range g {
					gs += v
				}
				m.bias.Grad[so] += gs
				for t := 0; t < p; t++ {
					src := x.Frame(i, t)
					var dot float32
					for k := range g {
						dot += g[k] * src[k]
					}
					m.weight.Grad[so*p+t] += dot
				}
			}
		}

		if !x.RequiresGrad() {
			return
		}
		dx := make([]float32, len(x.Data))
		for i := 0; i < b; i++ {
			for t := 0; t < p; t++ {
				dst := dx[(i*p+t)*fs : (i*p+t+1)*fs]
				for so := 0; so < p; so++ {
					c := w[so*p+t]
					g := grad[(i*p+so)*fs : (i*p+so+1)*fs]
					for k := range dst {
						dst[k] += c * g[k]
					}
				}
			}
		}
		x.AccumulateGrad(dx)
	}, x)
	return out, nil
}

// Snapshot returns an independent copy of the model in eval mode.
func (m *TemporalLinear) Snapshot() *TemporalLinear {
	w := optim.NewParam(m.weight.Name, len(m.weight.Data))
	copy(w.Data, m.weight.Data)
	b := optim.NewParam(m.bias.Name, len(m.bias.Data))
	copy(b.Data, m.bias.Data)
	return &TemporalLinear{frames: m.frames, weight: w, bias: b}
}

// Frames returns the model's native sequence length.
func (m *TemporalLinear) Frames() int { return m.frames }
