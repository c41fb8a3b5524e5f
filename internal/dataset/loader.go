// Package dataset supplies (input, target) window batches to the epoch runner.
package dataset

import (
	"context"
	"fmt"
	"io"
	"math/rand"

	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

// Batch pairs an input window with its target window.
type Batch struct {
	Input  *window.Window
	Target *window.Window
}

// Iterator yields batches in order. Next returns io.EOF once exhausted.
type Iterator interface {
	Next(ctx context.Context) (Batch, error)
}

// Loader produces a fresh Iterator for every pass.
type Loader interface {
	Iter() Iterator
	// Len returns the number of batches in one pass.
	Len() int
	// BatchSize returns the nominal samples per batch; the last batch may
	// hold fewer.
	BatchSize() int
}

// SliceLoader serves batches held in memory.
type SliceLoader struct {
	batches   []Batch
	batchSize int
	shuffle bool
	rng     *rand.Rand
}

// NewSliceLoader splits inputs and targets along the batch axis into batches
// of batchSize samples. The last batch may be smaller. With shuffle set the
// batch order is permuted on every pass.
func NewSliceLoader(inputs, targets *window.Window, batchSize int, shuffle bool, seed int64) (*SliceLoader, error) {
	if inputs.Batch() != targets.Batch() {
		return nil, fmt.Errorf("inputs have %d samples, targets have %d", inputs.Batch(), targets.Batch())
	}
	xs, err := window.SplitBatch(inputs, batchSize)
	if err != nil {
		return nil, err
	}
	ys, err := window.SplitBatch(targets, batchSize)
	if err != nil {
		return nil, err
	}
	batches := make([]Batch, len(xs))
	for i := range xs {
		batches[i] = Batch{Input: xs[i], Target: ys[i]}
	}
	return &SliceLoader{
		batches:   batches,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
	}, nil
}

// FromBatches wraps prepared batches. The batch size is taken from the
// first batch.
func FromBatches(batches ...Batch) *SliceLoader {
	l := &SliceLoader{batches: batches}
	if len(batches) > 0 && batches[0].Input != nil {
		l.batchSize = batches[0].Input.Batch()
	}
	return l
}

func (l *SliceLoader) Len() int { return len(l.batches) }

func (l *SliceLoader) BatchSize() int { return l.batchSize }

func (l *SliceLoader) Iter() Iterator {
	order := make([]int, len(l.batches))
	for i := range order {
		order[i] = i
	}
	if l.shuffle {
		l.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return &sliceIter{batches: l.batches, order: order}
}

type sliceIter struct {
	batches []Batch
	order   []int
	pos     int
}

func (it *sliceIter) Next(ctx context.Context) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}
	if it.pos >= len(it.order) {
		return Batch{}, io.EOF
	}
	b := it.batches[it.order[it.pos]]
	it.pos++
	return b, nil
}
