// Package optim implements parameter optimizers and per-step learning-rate
// schedules.
package optim

import (
	"fmt"
	"math"
)

// Param is a trainable tensor and its gradient buffer.
type Param struct {
	Name string
	Data []float32
	Grad []float32
}

// NewParam allocates a parameter of n elements.
func NewParam(name string, n int) *Param {
	return &Param{
		Name: name,
		Data: make([]float32, n),
		Grad: make([]float32, n),
	}
}

// Adam implements Adam with optional decoupled weight decay.
type Adam struct {
	params      []*Param
	lr          float64
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	t           int
	m           [][]float64
	v           [][]float64
}

// NewAdam creates an Adam optimizer over params.
func NewAdam(params []*Param, lr, weightDecay float64) (*Adam, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("no parameters to optimize")
	}
	if lr <= 0 {
		return nil, fmt.Errorf("invalid learning rate %g", lr)
	}
	m := make([][]float64, len(params))
	v := make([][]float64, len(params))
	for i, p := range params {
		m[i] = make([]float64, len(p.Data))
		v[i] = make([]float64, len(p.Data))
	}
	return &Adam{
		params:      params,
		lr:          lr,
		beta1:       0.9,
		beta2:       0.999,
		eps:         1e-8,
		weightDecay: weightDecay,
		m:           m,
		v:           v,
	}, nil
}

// ZeroGrad clears the gradient of every parameter.
func (a *Adam) ZeroGrad() {
	for _, p := range a.params {
		for j := range p.Grad {
			p.Grad[j] = 0
		}
	}
}

// Step performs one parameter update from the accumulated gradients.
func (a *Adam) Step() error {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i, p := range a.params {
		if len(p.Grad) != len(p.Data) {
			return fmt.Errorf("param %s: grad has %d elements, data has %d", p.Name, len(p.Grad), len(p.Data))
		}
		m, v := a.m[i], a.v[i]
		for j := range p.Data {
			g := float64(p.Grad[j])
			if math.IsNaN(g) || math.IsInf(g, 0) {
				return fmt.Errorf("param %s: non-finite gradient at %d", p.Name, j)
			}
			w := float64(p.Data[j])
			w -= a.lr * a.weightDecay * w
			m[j] = a.beta1*m[j] + (1-a.beta1)*g
			v[j] = a.beta2*v[j] + (1-a.beta2)*g*g
			w -= a.lr * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.eps)
			p.Data[j] = float32(w)
		}
	}
	return nil
}

// LR returns the current learning rate.
func (a *Adam) LR() float64 { return a.lr }

// SetLR sets the learning rate used by subsequent steps.
func (a *Adam) SetLR(lr float64) { a.lr = lr }

// Steps returns the number of updates taken.
func (a *Adam) Steps() int { return a.t }
