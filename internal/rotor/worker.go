package rotor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/star/rotorprep/internal/metrics"
)

// loadsJob is a unit of work for the worker pool.
type loadsJob struct {
	index int
	c     Case
}

// CaseLoads is the outcome of one operating case.
type CaseLoads struct {
	Index int
	Case  Case
	Loads *DistributedLoads
	Err   error
}

// WorkerPool runs distributed-load analyses for independent cases on a
// fixed number of goroutines.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	metrics.SetSolverWorkers(workers)
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// LoadsBatch validates conds and solves every case. Results are returned in
// case order; a failed case carries its error and does not stop the others.
// If ctx is cancelled the cases that never ran carry ctx.Err().
func (wp *WorkerPool) LoadsBatch(ctx context.Context, s Solver, r *Rotor, conds Conditions) ([]CaseLoads, error) {
	if err := conds.Validate(); err != nil {
		return nil, err
	}
	cases := conds.Cases()

	jobs := make(chan loadsJob, wp.workers*2)
	results := make(chan CaseLoads, wp.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				result := solveSingle(ctx, s, r, job)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, c := range cases {
			select {
			case jobs <- loadsJob{index: i, c: c}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]CaseLoads, len(cases))
	done := make([]bool, len(cases))
	var failed int
	for result := range results {
		if result.Err != nil {
			failed++
			wp.logger.Warn("distributed loads failed",
				"case", result.Index,
				"wind_speed", result.Case.WindSpeed,
				"error", result.Err,
			)
		}
		out[result.Index] = result
		done[result.Index] = true
	}

	for i := range out {
		if !done[i] {
			out[i] = CaseLoads{Index: i, Case: cases[i], Err: context.Cause(ctx)}
		}
	}
	if failed > 0 {
		wp.logger.Info("loads batch finished", "cases", len(cases), "failed", failed)
	}
	return out, nil
}

// solveSingle runs one case and checks the result shape.
func solveSingle(ctx context.Context, s Solver, r *Rotor, job loadsJob) CaseLoads {
	res := CaseLoads{Index: job.index, Case: job.c}
	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	loads, err := s.DistributedAeroLoads(ctx, r, job.c)
	if err == nil {
		err = checkLoads(loads, r.Stations())
	}
	if err != nil {
		res.Err = err
		return res
	}
	res.Loads = loads
	return res
}
