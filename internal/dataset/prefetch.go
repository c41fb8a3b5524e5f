package dataset

import (
	"context"
	"io"
	"sync"
)

// Prefetch wraps a Loader so that batches are produced by a background
// goroutine up to depth batches ahead of the consumer.
type Prefetch struct {
	src   Loader
	depth int
}

// NewPrefetch returns a prefetching view of src.
func NewPrefetch(src Loader, depth int) *Prefetch {
	if depth < 1 {
		depth = 1
	}
	return &Prefetch{src: src, depth: depth}
}

func (p *Prefetch) Len() int { return p.src.Len() }

func (p *Prefetch) BatchSize() int { return p.src.BatchSize() }

// Iter starts the producer goroutine. Callers that stop before io.EOF must
// Close the iterator to release it.
func (p *Prefetch) Iter() Iterator {
	ctx, cancel := context.WithCancel(context.Background())
	it := &prefetchIter{
		items:  make(chan item, p.depth),
		cancel: cancel,
	}
	src := p.src.Iter()
	it.wg.Add(1)
	go func() {
		defer it.wg.Done()
		defer close(it.items)
		for {
			b, err := src.Next(ctx)
			select {
			case it.items <- item{batch: b, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return it
}

type item struct {
	batch Batch
	err   error
}

type prefetchIter struct {
	items  chan item
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   bool
}

func (it *prefetchIter) Next(ctx context.Context) (Batch, error) {
	if it.done {
		return Batch{}, io.EOF
	}
	select {
	case <-ctx.Done():
		return Batch{}, ctx.Err()
	case v, ok := <-it.items:
		if !ok {
			it.done = true
			return Batch{}, io.EOF
		}
		if v.err != nil {
			it.done = true
		}
		return v.batch, v.err
	}
}

// Close stops the producer and waits for it to exit.
func (it *prefetchIter) Close() error {
	it.cancel()
	it.wg.Wait()
	it.done = true
	return nil
}
