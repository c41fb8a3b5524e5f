// Package engine runs a full experiment: the epoch loop over training and
// validation, followed by a test pass and its report.
package engine

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/SyedDaiam9101/forecast-service/internal/cache"
	"github.com/SyedDaiam9101/forecast-service/internal/dataset"
	"github.com/SyedDaiam9101/forecast-service/internal/evaluate"
	"github.com/SyedDaiam9101/forecast-service/internal/predictor"
	"github.com/SyedDaiam9101/forecast-service/internal/report"
	"github.com/SyedDaiam9101/forecast-service/internal/runner"
	"github.com/SyedDaiam9101/forecast-service/internal/status"
)

// RunStore persists the cross-epoch counters of a run.
type RunStore interface {
	LoadState(ctx context.Context, runID string) (cache.State, bool, error)
	SaveState(ctx context.Context, runID string, s cache.State) error
}

// Experiment wires a runner to its loaders and bookkeeping.
type Experiment struct {
	Runner *runner.Runner
	Train  dataset.Loader
	Vali   dataset.Loader
	Test   dataset.Loader
	Epochs int
	RunID  string

	// EvalOnly skips training; used for frozen exported models.
	EvalOnly bool

	// Store, when set, is read on start and written after every epoch.
	Store RunStore
	// Tracker, when set, mirrors progress for the status service.
	Tracker *status.Tracker
	// Snapshot freezes the current model for serving. Publish receives the
	// frozen model whenever validation improves.
	Snapshot func() predictor.Model
	Publish  func(predictor.Model)
	// PlotDir, when set, receives the loss and error charts.
	PlotDir string
}

// Result summarises a finished experiment.
type Result struct {
	TrainLoss    []float64
	ValiLoss     []float64
	BestValiLoss float64
	BestEpoch    int
	NumUpdates   int
	Test         evaluate.Result
	Plots        []string
}

// Run executes the remaining epochs and the final test pass.
func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	res, err := e.run(ctx)
	if err != nil {
		e.track(func(s *status.Snapshot) {
			s.Phase = status.PhaseFailed
			s.Error = err.Error()
		})
		return nil, err
	}
	e.track(func(s *status.Snapshot) { s.Phase = status.PhaseDone })
	return res, nil
}

func (e *Experiment) run(ctx context.Context) (*Result, error) {
	if e.Runner == nil || e.Vali == nil || e.Test == nil {
		return nil, fmt.Errorf("experiment requires a runner and vali/test loaders")
	}
	if !e.EvalOnly && e.Train == nil {
		return nil, fmt.Errorf("experiment requires a train loader")
	}

	st := cache.State{BestValiLoss: math.Inf(1), BestEpoch: -1}
	if e.Store != nil && !e.EvalOnly {
		saved, ok, err := e.Store.LoadState(ctx, e.RunID)
		if err != nil {
			return nil, fmt.Errorf("load run state: %w", err)
		}
		if ok {
			log.Printf("Resuming run %s at epoch %d (%d updates)", e.RunID, saved.Epoch, saved.NumUpdates)
			st = saved
			// Weights are not part of the saved state, so the best loss
			// is re-established against the model in this process.
			st.BestValiLoss, st.BestEpoch = math.Inf(1), -1
			if e.Runner.Scheduler != nil {
				for i := 0; i < st.NumUpdates; i++ {
					e.Runner.Scheduler.Step()
				}
			}
		}
	}

	res := &Result{}
	if e.EvalOnly {
		if err := e.validate(ctx, 0, &st, res); err != nil {
			return nil, err
		}
	}
	for epoch := st.Epoch; !e.EvalOnly && epoch < e.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.track(func(s *status.Snapshot) { s.Epoch = epoch })

		prevUpdates, prevSum := st.NumUpdates, st.LossSum
		numUpdates, lossSum, err := e.Runner.TrainOneEpoch(ctx, e.Train, epoch, st.NumUpdates, st.LossSum)
		if err != nil {
			return nil, fmt.Errorf("train epoch %d: %w", epoch, err)
		}
		st.NumUpdates, st.LossSum = numUpdates, lossSum

		trainLoss := 0.0
		if n := numUpdates - prevUpdates; n > 0 {
			trainLoss = (lossSum - prevSum) / float64(n)
		}
		res.TrainLoss = append(res.TrainLoss, trainLoss)
		e.track(func(s *status.Snapshot) {
			s.NumUpdates = numUpdates
			s.TrainLoss = trainLoss
			if lr, ok := e.Runner.Scheduler.(interface{ LR() float64 }); ok {
				s.LR = lr.LR()
			}
		})

		if err := e.validate(ctx, epoch, &st, res); err != nil {
			return nil, err
		}

		st.Epoch = epoch + 1
		if e.Store != nil {
			if err := e.Store.SaveState(ctx, e.RunID, st); err != nil {
				return nil, fmt.Errorf("save run state: %w", err)
			}
		}
		log.Printf("Epoch: %d | Train Loss: %.6f Vali Loss: %.6f | Best: %.6f (epoch %d)",
			epoch+1, trainLoss, res.ValiLoss[len(res.ValiLoss)-1], st.BestValiLoss, st.BestEpoch+1)
	}

	// A resumed run with no epochs left has not validated yet; serve and
	// report the model it ends with.
	if !e.EvalOnly && math.IsInf(st.BestValiLoss, 1) {
		if err := e.validate(ctx, max(st.Epoch-1, 0), &st, res); err != nil {
			return nil, err
		}
	}

	res.BestValiLoss = st.BestValiLoss
	res.BestEpoch = st.BestEpoch
	res.NumUpdates = st.NumUpdates

	if err := e.test(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Experiment) validate(ctx context.Context, epoch int, st *cache.State, res *Result) error {
	_, _, valiLoss, err := e.Runner.ValiOneEpoch(ctx, e.Vali)
	if err != nil {
		return fmt.Errorf("validate epoch %d: %w", epoch, err)
	}
	res.ValiLoss = append(res.ValiLoss, valiLoss)

	improved := valiLoss < st.BestValiLoss
	if improved {
		st.BestValiLoss = valiLoss
		st.BestEpoch = epoch
		e.publish()
	}
	e.track(func(s *status.Snapshot) {
		s.ValiLoss = valiLoss
		s.BestValiLoss = st.BestValiLoss
		s.BestEpoch = st.BestEpoch
	})
	return nil
}

func (e *Experiment) test(ctx context.Context, res *Result) error {
	e.track(func(s *status.Snapshot) { s.Phase = status.PhaseTest })

	_, trues, preds, err := e.Runner.TestOneEpoch(ctx, e.Test)
	if err != nil {
		return fmt.Errorf("test: %w", err)
	}
	score, err := evaluate.Score(preds, trues)
	if err != nil {
		return fmt.Errorf("score test predictions: %w", err)
	}
	res.Test = score
	log.Printf("Test: mse=%.6f mae=%.6f rmse=%.6f", score.MSE, score.MAE, score.RMSE)
	e.track(func(s *status.Snapshot) {
		s.TestMSE = score.MSE
		s.TestMAE = score.MAE
	})

	if e.PlotDir == "" {
		return nil
	}
	if len(res.TrainLoss) > 0 || len(res.ValiLoss) > 0 {
		path, err := report.LossCurves(e.PlotDir, res.TrainLoss, res.ValiLoss)
		if err != nil {
			return err
		}
		res.Plots = append(res.Plots, path)
	}
	path, err := report.FrameError(e.PlotDir, score.FrameMSE)
	if err != nil {
		return err
	}
	res.Plots = append(res.Plots, path)
	return nil
}

func (e *Experiment) publish() {
	if e.Publish == nil {
		return
	}
	if e.Snapshot != nil {
		e.Publish(e.Snapshot())
		return
	}
	e.Publish(e.Runner.Model)
}

func (e *Experiment) track(fn func(s *status.Snapshot)) {
	if e.Tracker != nil {
		e.Tracker.Update(fn)
	}
}
