package window

import (
	"errors"
	"fmt"
)

// ErrNoGrad is returned by Backward when the root carries no gradient history.
var ErrNoGrad = errors.New("window does not require grad")

// RequiresGrad reports whether gradients are tracked for w.
func (w *Window) RequiresGrad() bool { return w.requiresGrad }

// SetRequiresGrad marks w as a leaf whose gradient should be accumulated.
func (w *Window) SetRequiresGrad(v bool) { w.requiresGrad = v }

// Grad returns the gradient accumulated by the last Backward, or nil.
func (w *Window) Grad() []float32 { return w.grad }

// Attach records w as produced from parents. During Backward, fn receives the
// gradient accumulated for w and must push contributions into the parents
// (or into external parameters) with AccumulateGrad.
func (w *Window) Attach(fn func(grad []float32), parents ...*Window) {
	w.requiresGrad = true
	w.parents = parents
	w.backward = fn
}

// AccumulateGrad adds g into the gradient of w.
func (w *Window) AccumulateGrad(g []float32) {
	if w.grad == nil {
		w.grad = make([]float32, len(w.Data))
	}
	for i, v := range g {
		w.grad[i] += v
	}
}

// Backward propagates seed, the gradient of a scalar with respect to root,
// through every window root was derived from.
func Backward(root *Window, seed []float32) error {
	if !root.requiresGrad {
		return ErrNoGrad
	}
	if len(seed) != len(root.Data) {
		return fmt.Errorf("seed has %d elements, window has %d: %w", len(seed), len(root.Data), ErrShapeMismatch)
	}

	// Post-order DFS gives parents before children; walk it backwards.
	var order []*Window
	visited := make(map[*Window]bool)
	var visit func(w *Window)
	visit = func(w *Window) {
		if visited[w] || !w.requiresGrad {
			return
		}
		visited[w] = true
		for _, p := range w.parents {
			visit(p)
		}
		order = append(order, w)
	}
	visit(root)

	for _, w := range order {
		if w.backward != nil {
			w.grad = nil
		}
	}
	root.AccumulateGrad(seed)
	for i := len(order) - 1; i >= 0; i-- {
		w := order[i]
		if w.backward == nil || w.grad == nil {
			continue
		}
		w.backward(w.grad)
	}
	return nil
}
