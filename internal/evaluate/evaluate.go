// Package evaluate scores forecasts against ground truth.
package evaluate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

// Result holds forecast error statistics.
//
// MSE and MAE average the per-pixel error over samples and frames and sum it
// over the pixels of a frame, so they read as error per frame.
type Result struct {
	MSE  float64
	MAE  float64
	RMSE float64
	// FrameMSE is the per-frame MSE at each forecast step.
	FrameMSE []float64
}

// Score compares preds with trues, which must have the same shape.
func Score(preds, trues *window.Window) (Result, error) {
	if preds.Shape() != trues.Shape() {
		return Result{}, fmt.Errorf("prediction shape %v does not match target shape %v: %w",
			preds.Shape(), trues.Shape(), window.ErrShapeMismatch)
	}
	b, t, fs := preds.Batch(), preds.Frames(), preds.FrameSize()
	if b == 0 || t == 0 {
		return Result{}, fmt.Errorf("cannot score empty forecast %v", preds.Shape())
	}

	sq := make([]float64, fs)
	abs := make([]float64, fs)
	frameSq := make([]float64, t)
	var sqSum, absSum float64
	for i := 0; i < b; i++ {
		for f := 0; f < t; f++ {
			p, y := preds.Frame(i, f), trues.Frame(i, f)
			for k := range sq {
				d := float64(p[k]) - float64(y[k])
				sq[k] = d * d
				abs[k] = math.Abs(d)
			}
			s := floats.Sum(sq)
			frameSq[f] += s
			sqSum += s
			absSum += floats.Sum(abs)
		}
	}

	n := float64(b * t)
	floats.Scale(1/float64(b), frameSq)
	mse := sqSum / n
	return Result{
		MSE:      mse,
		MAE:      absSum / n,
		RMSE:     math.Sqrt(mse),
		FrameMSE: frameSq,
	}, nil
}
