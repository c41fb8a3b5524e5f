package optim

import (
	"fmt"
	"math"
)

// LRSetter is anything whose learning rate can be driven by a schedule.
type LRSetter interface {
	SetLR(lr float64)
}

// Scheduler advances a learning-rate schedule by one optimizer step.
type Scheduler interface {
	Step()
	LR() float64
	Name() string
}

// OneCycle anneals the learning rate up to MaxLR over the first PctStart of
// TotalSteps and then down to MaxLR/(DivFactor*FinalDivFactor), both with
// cosine curves.
type OneCycle struct {
	opt            LRSetter
	MaxLR          float64
	TotalSteps     int
	PctStart       float64
	DivFactor      float64
	FinalDivFactor float64
	step           int
	lr             float64
}

// NewOneCycle creates a one-cycle schedule and applies its initial rate.
func NewOneCycle(opt LRSetter, maxLR float64, totalSteps int) (*OneCycle, error) {
	if totalSteps <= 0 {
		return nil, fmt.Errorf("one-cycle schedule needs positive total steps, got %d", totalSteps)
	}
	s := &OneCycle{
		opt:            opt,
		MaxLR:          maxLR,
		TotalSteps:     totalSteps,
		PctStart:       0.3,
		DivFactor:      25,
		FinalDivFactor: 1e4,
	}
	s.apply()
	return s, nil
}

// Step advances the schedule. Steps past TotalSteps hold the final rate.
func (s *OneCycle) Step() {
	if s.step < s.TotalSteps {
		s.step++
	}
	s.apply()
}

func (s *OneCycle) apply() {
	initial := s.MaxLR / s.DivFactor
	final := initial / s.FinalDivFactor
	up := math.Max(1, math.Round(s.PctStart*float64(s.TotalSteps))-1)
	cur := float64(s.step)
	if cur <= up {
		s.lr = cosAnneal(initial, s.MaxLR, cur/up)
	} else {
		down := math.Max(1, float64(s.TotalSteps-1)-up)
		s.lr = cosAnneal(s.MaxLR, final, math.Min(1, (cur-up)/down))
	}
	s.opt.SetLR(s.lr)
}

func (s *OneCycle) LR() float64  { return s.lr }
func (s *OneCycle) Name() string { return "OneCycleLR" }

// Cosine decays the learning rate from BaseLR to MinLR over TotalSteps.
type Cosine struct {
	opt        LRSetter
	BaseLR     float64
	MinLR      float64
	TotalSteps int
	step       int
	lr         float64
}

// NewCosine creates a cosine decay schedule and applies its initial rate.
func NewCosine(opt LRSetter, baseLR, minLR float64, totalSteps int) (*Cosine, error) {
	if totalSteps <= 0 {
		return nil, fmt.Errorf("cosine schedule needs positive total steps, got %d", totalSteps)
	}
	s := &Cosine{opt: opt, BaseLR: baseLR, MinLR: minLR, TotalSteps: totalSteps}
	s.apply()
	return s, nil
}

func (s *Cosine) Step() {
	if s.step < s.TotalSteps {
		s.step++
	}
	s.apply()
}

func (s *Cosine) apply() {
	s.lr = cosAnneal(s.BaseLR, s.MinLR, float64(s.step)/float64(s.TotalSteps))
	s.opt.SetLR(s.lr)
}

func (s *Cosine) LR() float64  { return s.lr }
func (s *Cosine) Name() string { return "CosineLR" }

// Constant keeps the learning rate fixed.
type Constant struct {
	lr float64
}

// NewConstant returns a schedule that never changes lr.
func NewConstant(opt LRSetter, lr float64) *Constant {
	opt.SetLR(lr)
	return &Constant{lr: lr}
}

func (s *Constant) Step()        {}
func (s *Constant) LR() float64  { return s.lr }
func (s *Constant) Name() string { return "ConstantLR" }

// NewScheduler builds the schedule named kind ("onecycle", "cosine" or "constant").
func NewScheduler(kind string, opt LRSetter, lr float64, totalSteps int) (Scheduler, error) {
	switch kind {
	case "onecycle":
		return NewOneCycle(opt, lr, totalSteps)
	case "cosine":
		return NewCosine(opt, lr, lr*1e-2, totalSteps)
	case "constant", "":
		return NewConstant(opt, lr), nil
	default:
		return nil, fmt.Errorf("unknown scheduler %q", kind)
	}
}

// cosAnneal moves from start to end as pct goes from 0 to 1.
func cosAnneal(start, end, pct float64) float64 {
	return end + (start-end)/2*(1+math.Cos(math.Pi*pct))
}
