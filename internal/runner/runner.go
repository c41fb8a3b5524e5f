// Package runner drives one training, validation or test pass over a batch
// loader.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/stat"

	"github.com/SyedDaiam9101/forecast-service/internal/dataset"
	"github.com/SyedDaiam9101/forecast-service/internal/meter"
	"github.com/SyedDaiam9101/forecast-service/internal/metrics"
	"github.com/SyedDaiam9101/forecast-service/internal/nn"
	"github.com/SyedDaiam9101/forecast-service/internal/predictor"
	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

// ValidationSampleLimit bounds validation cost: a validation pass stops after
// the first batch whose index times batch size exceeds it.
const ValidationSampleLimit = 1000

const (
	ModeTrain = "train"
	ModeVali  = "vali"
	ModeTest  = "test"
)

const tracerName = "github.com/SyedDaiam9101/forecast-service/internal/runner"

// Module is a model that can switch between training and evaluation
// behaviour.
type Module interface {
	predictor.Model
	Train()
	Eval()
}

// Optimizer updates model parameters from accumulated gradients.
type Optimizer interface {
	ZeroGrad()
	Step() error
}

// Scheduler advances the learning rate once per optimizer step.
type Scheduler interface {
	Step()
}

// Device moves windows to where the model computes.
type Device interface {
	Place(w *window.Window) (*window.Window, error)
}

// Observer is notified after every processed batch.
type Observer interface {
	ObserveBatch(mode string, index int, loss float64)
}

// Runner holds the collaborators shared by all three passes.
type Runner struct {
	Model     Module
	Predictor *predictor.Predictor
	Criterion nn.Criterion
	Device    Device
	Optimizer Optimizer
	Scheduler Scheduler

	// Observer, when set, sees every batch loss.
	Observer Observer
	// LogEvery controls progress logging; 0 logs only epoch summaries.
	LogEvery int

	tracer trace.Tracer
}

// New creates a Runner. Optimizer and Scheduler are only needed for
// TrainOneEpoch and may be nil for evaluation-only use.
func New(m Module, p *predictor.Predictor, crit nn.Criterion, dev Device, opt Optimizer, sched Scheduler) *Runner {
	return &Runner{
		Model:     m,
		Predictor: p,
		Criterion: crit,
		Device:    dev,
		Optimizer: opt,
		Scheduler: sched,
		tracer:    otel.Tracer(tracerName),
	}
}

// TrainOneEpoch runs one optimization pass over loader. numUpdates and
// lossSum are the caller's cross-epoch counters; their updated values are
// returned.
func (r *Runner) TrainOneEpoch(ctx context.Context, loader dataset.Loader, epoch, numUpdates int, lossSum float64) (int, float64, error) {
	if r.Optimizer == nil || r.Scheduler == nil {
		return numUpdates, lossSum, fmt.Errorf("training requires an optimizer and a scheduler")
	}
	ctx, span := r.start(ctx, "runner.TrainOneEpoch", attribute.Int("epoch", epoch))
	defer span.End()

	var losses meter.AverageMeter
	r.Model.Train()
	progress := newProgress(ModeTrain, loader.Len(), r.LogEvery)

	n, err := each(ctx, loader, func(i int, b dataset.Batch) (bool, error) {
		start := time.Now()
		x, y, err := r.place(b)
		if err != nil {
			return false, err
		}

		r.Optimizer.ZeroGrad()
		pred, err := r.Predictor.Predict(r.Model, x)
		if err != nil {
			return false, err
		}
		loss, err := r.Criterion.Loss(pred, y)
		if err != nil {
			return false, err
		}
		if err := loss.Backward(); err != nil {
			return false, err
		}
		if err := r.Optimizer.Step(); err != nil {
			return false, err
		}
		r.Scheduler.Step()

		v := loss.Item()
		numUpdates++
		lossSum += v
		losses.Update(v, float64(x.Batch()))

		metrics.RecordTrainStep(v)
		if s, ok := r.Scheduler.(interface{ LR() float64 }); ok {
			metrics.SetLearningRate(s.LR())
		}
		metrics.RecordBatch(ModeTrain, time.Since(start).Seconds())
		r.observe(ModeTrain, i, v)
		progress.step(i, fmt.Sprintf("train loss: %.4f", v))
		return false, nil
	})
	if err != nil {
		return numUpdates, lossSum, fail(span, err)
	}

	progress.done(fmt.Sprintf("epoch %d avg loss: %.4f", epoch, losses.Average()))
	span.SetAttributes(attribute.Int("batches", n), attribute.Float64("loss.avg", losses.Average()))
	metrics.RecordEpoch(ModeTrain)
	return numUpdates, lossSum, nil
}

// ValiOneEpoch evaluates the model on loader without updating it. It returns
// the predictions and targets of every processed batch, concatenated along
// the batch axis, and the mean of the per-batch losses.
//
// The pass stops early once batchIndex*batchSize exceeds
// ValidationSampleLimit. The batch that triggers the stop is kept in the
// returned windows but its loss is not averaged.
func (r *Runner) ValiOneEpoch(ctx context.Context, loader dataset.Loader) (preds, trues *window.Window, loss float64, err error) {
	ctx, span := r.start(ctx, "runner.ValiOneEpoch")
	defer span.End()

	r.Model.Eval()
	progress := newProgress(ModeVali, loader.Len(), r.LogEvery)
	var predsLst, truesLst []*window.Window
	var history []float64

	n, err := each(ctx, loader, func(i int, b dataset.Batch) (bool, error) {
		start := time.Now()
		x, y, err := r.place(b)
		if err != nil {
			return false, err
		}
		pred, err := r.Predictor.Predict(r.Model, x)
		if err != nil {
			return false, err
		}
		l, err := r.Criterion.Loss(pred, y)
		if err != nil {
			return false, err
		}

		predsLst = append(predsLst, pred.Detach())
		truesLst = append(truesLst, y.Detach())
		metrics.RecordBatch(ModeVali, time.Since(start).Seconds())

		if i*x.Batch() > ValidationSampleLimit {
			return true, nil
		}

		history = append(history, l.Mean())
		r.observe(ModeVali, i, l.Mean())
		progress.step(i, fmt.Sprintf("vali loss: %.4f", l.Mean()))
		return false, nil
	})
	if err != nil {
		return nil, nil, 0, fail(span, err)
	}

	preds, err = window.ConcatBatch(predsLst...)
	if err != nil {
		return nil, nil, 0, fail(span, fmt.Errorf("collect predictions: %w", err))
	}
	trues, err = window.ConcatBatch(truesLst...)
	if err != nil {
		return nil, nil, 0, fail(span, fmt.Errorf("collect targets: %w", err))
	}
	loss = stat.Mean(history, nil)

	progress.done(fmt.Sprintf("vali loss: %.4f over %d batches", loss, len(history)))
	span.SetAttributes(attribute.Int("batches", n), attribute.Float64("loss.avg", loss))
	metrics.SetValidationLoss(loss)
	metrics.RecordEpoch(ModeVali)
	return preds, trues, loss, nil
}

// TestOneEpoch runs the model over every batch of loader and returns the
// inputs, targets and predictions concatenated along the batch axis.
func (r *Runner) TestOneEpoch(ctx context.Context, loader dataset.Loader) (inputs, trues, preds *window.Window, err error) {
	ctx, span := r.start(ctx, "runner.TestOneEpoch")
	defer span.End()

	r.Model.Eval()
	progress := newProgress(ModeTest, loader.Len(), r.LogEvery)
	var inputsLst, truesLst, predsLst []*window.Window

	n, err := each(ctx, loader, func(i int, b dataset.Batch) (bool, error) {
		start := time.Now()
		x, err := r.Device.Place(b.Input)
		if err != nil {
			return false, err
		}
		pred, err := r.Predictor.Predict(r.Model, x)
		if err != nil {
			return false, err
		}
		inputsLst = append(inputsLst, b.Input.Detach())
		truesLst = append(truesLst, b.Target.Detach())
		predsLst = append(predsLst, pred.Detach())
		metrics.RecordBatch(ModeTest, time.Since(start).Seconds())
		progress.step(i, "test")
		return false, nil
	})
	if err != nil {
		return nil, nil, nil, fail(span, err)
	}

	out := make([]*window.Window, 3)
	for k, lst := range [][]*window.Window{inputsLst, truesLst, predsLst} {
		if out[k], err = window.ConcatBatch(lst...); err != nil {
			return nil, nil, nil, fail(span, fmt.Errorf("collect test results: %w", err))
		}
	}

	progress.done(fmt.Sprintf("%d samples", out[0].Batch()))
	span.SetAttributes(attribute.Int("batches", n))
	metrics.RecordEpoch(ModeTest)
	return out[0], out[1], out[2], nil
}

func (r *Runner) place(b dataset.Batch) (x, y *window.Window, err error) {
	if b.Input.Batch() != b.Target.Batch() {
		return nil, nil, fmt.Errorf("input batch %d does not match target batch %d: %w",
			b.Input.Batch(), b.Target.Batch(), window.ErrShapeMismatch)
	}
	if x, err = r.Device.Place(b.Input); err != nil {
		return nil, nil, err
	}
	if y, err = r.Device.Place(b.Target); err != nil {
		return nil, nil, err
	}
	return x, y, nil
}

func (r *Runner) observe(mode string, i int, loss float64) {
	if r.Observer != nil {
		r.Observer.ObserveBatch(mode, i, loss)
	}
}

func (r *Runner) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := r.tracer
	if tr == nil {
		tr = otel.Tracer(tracerName)
	}
	return tr.Start(ctx, name, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// each feeds batches from loader to fn until the loader is exhausted or fn
// asks to stop. It returns the number of batches handed to fn.
func each(ctx context.Context, loader dataset.Loader, fn func(i int, b dataset.Batch) (stop bool, err error)) (int, error) {
	it := loader.Iter()
	if c, ok := it.(io.Closer); ok {
		defer c.Close()
	}
	for i := 0; ; i++ {
		b, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return i, nil
		}
		if err != nil {
			return i, fmt.Errorf("load batch %d: %w", i, err)
		}
		stop, err := fn(i, b)
		if err != nil {
			return i + 1, err
		}
		if stop {
			return i + 1, nil
		}
	}
}
