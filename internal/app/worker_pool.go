package app

import (
	"fmt"
	"sync"

	coreworker "github.com/example/harness/internal/core/worker"
	"github.com/example/harness/internal/ports/primary"
)

// WorkerPool is a registry of workers in insertion order.
type WorkerPool struct {
	mu      sync.RWMutex
	workers []*Worker
	byID    map[string]*Worker
}

// NewWorkerPool creates an empty pool.
func NewWorkerPool() *WorkerPool {
	return &WorkerPool{byID: make(map[string]*Worker)}
}

// AddWorker registers a worker. Ids must be unique.
func (p *WorkerPool) AddWorker(w *Worker) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.byID[w.ID()]; exists {
		return fmt.Errorf("worker %s already exists", w.ID())
	}
	p.workers = append(p.workers, w)
	p.byID[w.ID()] = w
	return nil
}

// GetWorker returns the worker with id, or nil.
func (p *WorkerPool) GetWorker(id string) *Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byID[id]
}

// GetAllWorkers returns every worker in insertion order.
func (p *WorkerPool) GetAllWorkers() []*Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]*Worker(nil), p.workers...)
}

// GetAvailableWorker returns the first idle worker, or nil.
func (p *WorkerPool) GetAvailableWorker() *Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, w := range p.workers {
		if w.IsAvailable() {
			return w
		}
	}
	return nil
}

// GetMetrics aggregates every worker's metrics.
func (p *WorkerPool) GetMetrics() primary.PoolMetrics {
	workers := p.GetAllWorkers()

	m := primary.PoolMetrics{
		Total:   len(workers),
		Workers: make([]primary.WorkerMetrics, 0, len(workers)),
	}
	for _, w := range workers {
		wm := w.GetMetrics()
		switch wm.Status {
		case coreworker.StatusIdle:
			m.Idle++
		case coreworker.StatusWorking:
			m.Working++
		case coreworker.StatusBlocked:
			m.Blocked++
		case coreworker.StatusFailed:
			m.Failed++
		}
		m.SessionsCompleted += wm.SessionsCompleted
		m.Workers = append(m.Workers, wm)
	}
	return m
}
