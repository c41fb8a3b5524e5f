package status

import (
	"sync"
	"testing"
)

func TestTrackerDefaults(t *testing.T) {
	tr := NewTracker("run-1", 3)
	s := tr.Snapshot()
	if s.RunID != "run-1" || s.Epochs != 3 || s.Phase != PhaseIdle || s.BestEpoch != -1 {
		t.Errorf("Unexpected initial snapshot %+v", s)
	}
}

func TestTrackerObserveBatch(t *testing.T) {
	tr := NewTracker("run-1", 1)
	tr.ObserveBatch("train", 4, 0.25)

	s := tr.Snapshot()
	if s.Phase != PhaseTrain || s.Batch != 4 || s.BatchLoss != 0.25 {
		t.Errorf("Unexpected snapshot %+v", s)
	}
}

func TestTrackerConcurrentUpdates(t *testing.T) {
	tr := NewTracker("run-1", 1)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Update(func(s *Snapshot) { s.NumUpdates++ })
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()
	if got := tr.Snapshot().NumUpdates; got != 50 {
		t.Errorf("Expected 50 updates, got %d", got)
	}
}
