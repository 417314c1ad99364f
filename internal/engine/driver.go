package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/opinionated/internal/ir"
)

// Record is one entity as delivered by a Source. Raw is the source encoding,
// opaque to the engine, which the sink writes back for Unchanged entities.
type Record struct {
	Entity ir.Entity
	Raw    []byte
}

// Source yields entities in stream order. Next returns io.EOF after the last
// entity.
type Source interface {
	Next() (Record, error)
}

// Sink receives every input record exactly once, in input order, with the
// pipeline's result for it.
type Sink interface {
	Emit(rec Record, res Result) error
}

// ProgressInterval is how often Run logs the number of entities analysed.
const ProgressInterval = 1_000_000

// RunOptions configures a pass.
type RunOptions struct {
	// Workers is the number of concurrent transforms. Values below 2 run
	// the pass on the calling goroutine.
	Workers int

	// Buffer bounds the number of entities in flight between the source
	// and the sink when Workers > 1.
	Buffer int
}

// Run drives one pass: every record from src is transformed and handed to
// sink in input order.
//
// The first error aborts the pass and is returned as a *PipelineError
// (or the context error on cancellation). Records already emitted are not
// retracted; callers discard partial output.
func (p *Pipeline) Run(ctx context.Context, src Source, sink Sink, opts RunOptions) error {
	if opts.Workers < 2 {
		return p.runSequential(ctx, src, sink)
	}
	return p.runParallel(ctx, src, sink, opts)
}

func (p *Pipeline) runSequential(ctx context.Context, src Source, sink Sink) error {
	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sourceError(err)
		}
		res, err := p.compute(rec.Entity)
		if err != nil {
			return err
		}
		if err := p.emit(sink, rec, res, &n); err != nil {
			return err
		}
	}
	p.logDone(n)
	return nil
}

type job struct {
	seq int64
	rec Record
	res Result
}

// runParallel fans records out to a worker pool and resequences results by
// input position before committing them. A window semaphore bounds the
// number of records between the source and the sink.
func (p *Pipeline) runParallel(ctx context.Context, src Source, sink Sink, opts RunOptions) error {
	buffer := opts.Buffer
	if buffer < opts.Workers {
		buffer = opts.Workers
	}

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan job, buffer)
	results := make(chan job, buffer)
	window := make(chan struct{}, buffer)

	g.Go(func() error {
		defer close(jobs)
		for seq := int64(0); ; seq++ {
			select {
			case window <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			rec, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return sourceError(err)
			}
			select {
			case jobs <- job{seq: seq, rec: rec}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	var workers sync.WaitGroup
	for range opts.Workers {
		workers.Add(1)
		g.Go(func() error {
			defer workers.Done()
			for j := range jobs {
				res, err := p.compute(j.rec.Entity)
				if err != nil {
					return err
				}
				j.res = res
				select {
				case results <- j:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		workers.Wait()
		close(results)
		return nil
	})

	var n int64
	g.Go(func() error {
		pending := make(map[int64]job, buffer)
		var next int64
		for j := range results {
			pending[j.seq] = j
			for {
				r, ok := pending[next]
				if !ok {
					break
				}
				delete(pending, next)
				next++
				if err := p.emit(sink, r.rec, r.res, &n); err != nil {
					return err
				}
				<-window
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	p.logDone(n)
	return nil
}

func (p *Pipeline) emit(sink Sink, rec Record, res Result, n *int64) error {
	p.commit(rec.Entity, &res)
	if err := sink.Emit(rec, res); err != nil {
		return sinkError(rec.Entity, err)
	}
	*n++
	if *n%ProgressInterval == 0 {
		slog.Info("entities analysed", "count", *n)
	}
	return nil
}

func (p *Pipeline) logDone(n int64) {
	stats := p.Stats()
	slog.Info("pass complete",
		"entities", n,
		"mutated", stats.Mutated(),
		"actions", p.ledger.Len(),
		"missing_references", stats.MissingReferences,
	)
}
