// Package status tracks the progress of a run for the status service.
package status

import (
	"sync"
	"time"
)

// Phase names what the run is currently doing.
type Phase string

const (
	PhaseIdle   Phase = "idle"
	PhaseTrain  Phase = "train"
	PhaseVali   Phase = "vali"
	PhaseTest   Phase = "test"
	PhaseDone   Phase = "done"
	PhaseFailed Phase = "failed"
)

// Snapshot is a point-in-time copy of the run state.
type Snapshot struct {
	RunID        string
	Phase        Phase
	Epoch        int
	Epochs       int
	Batch        int
	NumUpdates   int
	BatchLoss    float64
	TrainLoss    float64
	ValiLoss     float64
	BestValiLoss float64
	BestEpoch    int
	LR           float64
	TestMSE      float64
	TestMAE      float64
	Error        string
	UpdatedAt    time.Time
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker returns a tracker for runID.
func NewTracker(runID string, epochs int) *Tracker {
	return &Tracker{snap: Snapshot{
		RunID:     runID,
		Phase:     PhaseIdle,
		Epochs:    epochs,
		BestEpoch: -1,
		UpdatedAt: time.Now(),
	}}
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Update applies fn to the state under the lock.
func (t *Tracker) Update(fn func(s *Snapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.snap)
	t.snap.UpdatedAt = time.Now()
}

// ObserveBatch records the latest batch loss of the running pass.
func (t *Tracker) ObserveBatch(mode string, index int, loss float64) {
	t.Update(func(s *Snapshot) {
		s.Phase = Phase(mode)
		s.Batch = index
		s.BatchLoss = loss
	})
}
