package runner

import (
	"log"
	"time"
)

// progress logs a pass the way a terminal progress bar would describe it.
type progress struct {
	mode  string
	total int
	every int
	start time.Time
	seen  int
}

func newProgress(mode string, total, every int) *progress {
	return &progress{mode: mode, total: total, every: every, start: time.Now()}
}

func (p *progress) step(i int, desc string) {
	p.seen = i + 1
	if p.every <= 0 || p.seen%p.every != 0 {
		return
	}
	log.Printf("[%s] %d/%d %s (%.2f batch/s)", p.mode, p.seen, p.total, desc, p.rate())
}

func (p *progress) done(summary string) {
	log.Printf("[%s] done %d/%d in %s: %s", p.mode, p.seen, p.total, time.Since(p.start).Round(time.Millisecond), summary)
}

func (p *progress) rate() float64 {
	elapsed := time.Since(p.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(p.seen) / elapsed
}
