package optimize

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/i-zrhe2016/amazing-3.1/strategy"
)

type job struct {
	idx    int
	params strategy.Params
}

type jobResult struct {
	idx   int
	trial Trial
	err   error
}

// WorkerPool evaluates a batch of candidates in parallel. Results come
// back in candidate order whatever the worker count.
type WorkerPool struct {
	workerCount int
	// OnDone, if set, is called from the worker goroutines after every
	// evaluation.
	OnDone func(d time.Duration, err error)
}

// NewWorkerPool sizes the pool; workerCount <= 0 means one per CPU.
func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	return &WorkerPool{workerCount: workerCount}
}

func (wp *WorkerPool) Workers() int { return wp.workerCount }

// Evaluate runs ev on every candidate. The first error cancels the rest
// of the batch and is returned; a cancelled ctx returns ctx.Err().
func (wp *WorkerPool) Evaluate(ctx context.Context, ev Evaluator, cands []strategy.Params) ([]Trial, error) {
	if len(cands) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobQueue := make(chan job, len(cands))
	resultQueue := make(chan jobResult, len(cands))
	for i, p := range cands {
		jobQueue <- job{idx: i, params: p}
	}
	close(jobQueue)

	var wg sync.WaitGroup
	for i := 0; i < min(wp.workerCount, len(cands)); i++ {
		wg.Add(1)
		go wp.worker(ctx, ev, jobQueue, resultQueue, &wg)
	}
	go func() {
		wg.Wait()
		close(resultQueue)
	}()

	out := make([]Trial, len(cands))
	var firstErr error
	done := 0
	for r := range resultQueue {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
				cancel()
			}
			continue
		}
		out[r.idx] = r.trial
		done++
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil && done < len(cands) {
		return nil, err
	}
	return out, nil
}

func (wp *WorkerPool) worker(ctx context.Context, ev Evaluator, jobs <-chan job, results chan<- jobResult, wg *sync.WaitGroup) {
	defer wg.Done()
	for j := range jobs {
		if err := ctx.Err(); err != nil {
			results <- jobResult{idx: j.idx, err: err}
			continue
		}
		start := time.Now()
		t, err := ev.Evaluate(ctx, j.params)
		if wp.OnDone != nil {
			wp.OnDone(time.Since(start), err)
		}
		if err != nil {
			err = fmt.Errorf("candidate %d: %w", j.idx, err)
		}
		results <- jobResult{idx: j.idx, trial: t, err: err}
	}
}
