// Package nn holds the trainable sequence model and the loss criteria used by
// the epoch runner.
package nn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

// Loss is a reduced loss value that can be backpropagated.
type Loss interface {
	// Item returns the scalar loss.
	Item() float64
	// Mean returns the loss averaged over its elements.
	Mean() float64
	// Backward propagates the gradient of the loss into the prediction graph.
	Backward() error
}

// Criterion compares a prediction with its target.
type Criterion interface {
	Loss(pred, target *window.Window) (Loss, error)
}

// MSE is the mean squared error over all elements.
type MSE struct{}

type mseLoss struct {
	pred  *window.Window
	diff  []float64
	value float64
}

// Loss computes mean((pred-target)^2).
func (MSE) Loss(pred, target *window.Window) (Loss, error) {
	if pred.Shape() != target.Shape() {
		return nil, fmt.Errorf("prediction shape %v does not match target shape %v: %w",
			pred.Shape(), target.Shape(), window.ErrShapeMismatch)
	}
	if pred.Device() != target.Device() {
		return nil, fmt.Errorf("prediction on %q, target on %q", pred.Device(), target.Device())
	}
	n := pred.Len()
	diff := make([]float64, n)
	for i := range diff {
		diff[i] = float64(pred.Data[i]) - float64(target.Data[i])
	}
	value := 0.0
	if n > 0 {
		value = floats.Dot(diff, diff) / float64(n)
	}
	return &mseLoss{pred: pred, diff: diff, value: value}, nil
}

func (l *mseLoss) Item() float64 { return l.value }
func (l *mseLoss) Mean() float64 { return l.value }

func (l *mseLoss) Backward() error {
	n := float64(len(l.diff))
	seed := make([]float32, len(l.diff))
	for i, d := range l.diff {
		seed[i] = float32(2 * d / n)
	}
	return window.Backward(l.pred, seed)
}
