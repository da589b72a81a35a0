package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Priya8975/payment-switch/internal/engine"
)

// Pool manages a fixed number of worker goroutines that process payment
// confirmations. One goroutine handles one payment end to end, so attempts
// within a payment stay strictly sequential.
type Pool struct {
	numWorkers int
	jobs       chan engine.ConfirmJob
	confirmer  *Confirmer
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// NewPool creates a worker pool with the given number of workers.
func NewPool(numWorkers int, confirmer *Confirmer, logger *slog.Logger) *Pool {
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan engine.ConfirmJob, numWorkers*2),
		confirmer:  confirmer,
		logger:     logger,
	}
}

// Start launches all worker goroutines. They read from the jobs channel
// until it is closed or the context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "num_workers", p.numWorkers)
}

// Submit sends a job to the worker pool via the jobs channel.
func (p *Pool) Submit(job engine.ConfirmJob) {
	p.jobs <- job
}

// Stop closes the jobs channel and waits for all workers to finish.
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// worker is a single goroutine that processes jobs from the channel.
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for job := range p.jobs {
		select {
		case <-ctx.Done():
			return
		default:
			p.confirmer.Confirm(ctx, job)
		}
	}
}
