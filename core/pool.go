package core

import (
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/pixelserve/pixelserve/errors"
)

type poolJob struct {
	id  string
	run func()
	// abort is invoked instead of run when the pool shuts down with the
	// job still queued.
	abort func()
}

// Pool executes pipeline runs on a bounded set of workers.  A full queue
// rejects new work immediately so backpressure surfaces to the caller
// instead of queuing without bound.
type Pool struct {
	workers int
	queue   chan poolJob
	logger  Logger

	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	shutdown  chan struct{}
}

// NewPool creates a Pool with the given worker count and queue depth.
// Non-positive values fall back to NumCPU workers and a depth of 256.
func NewPool(workers, depth int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if depth <= 0 {
		depth = 256
	}
	return &Pool{
		workers:  workers,
		queue:    make(chan poolJob, depth),
		shutdown: make(chan struct{}),
	}
}

// SetLogger attaches a structured logger.  Call before Start.
func (p *Pool) SetLogger(l Logger) { p.logger = l }

// Start launches the workers.  It is idempotent.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

// Stop shuts down the workers and aborts any jobs still queued.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.shutdown)
		p.wg.Wait()
		for {
			select {
			case j := <-p.queue:
				j.abort()
			default:
				return
			}
		}
	})
}

// Do enqueues fn and waits for it to finish.  It returns ErrQueueFull when
// the queue is at capacity and ErrClosed when the pool stops before fn ran.
// Once accepted, fn always runs to completion; Do has no context parameter
// because the work must not be abandoned mid-flight.
func (p *Pool) Do(fn func()) error {
	done := make(chan error, 1)
	j := poolJob{
		id: uuid.NewString(),
		run: func() {
			defer close(done)
			fn()
		},
		abort: func() {
			done <- apperrors.New(apperrors.KindResourceExhausted, "pool.abort", apperrors.ErrClosed)
			close(done)
		},
	}

	select {
	case <-p.shutdown:
		return apperrors.New(apperrors.KindResourceExhausted, "pool.submit", apperrors.ErrClosed)
	default:
	}
	select {
	case p.queue <- j:
	default:
		return apperrors.New(apperrors.KindResourceExhausted, "pool.submit", apperrors.ErrQueueFull)
	}
	return <-done
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.shutdown:
			return
		case j := <-p.queue:
			start := time.Now()
			j.run()
			if p.logger != nil {
				p.logger.Debug("pool.job.done",
					"job", j.id,
					"duration_ms", time.Since(start).Milliseconds(),
				)
			}
		}
	}
}
