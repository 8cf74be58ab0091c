package persist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/suPer8Hu/ai-relay/internal/metrics"
	"go.uber.org/zap"
)

type Options struct {
	Workers int
	Buffer  int
	Timeout time.Duration
}

// Dispatcher runs persistence tasks detached from the request that produced
// them. Submit never blocks; a failed or dropped task is logged and counted
// but never reported back to the submitter.
type Dispatcher struct {
	persister Persister
	timeout   time.Duration
	log       *zap.Logger
	metrics   *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	tasks  chan Record
	wg     sync.WaitGroup
}

func NewDispatcher(p Persister, opts Options, log *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &Dispatcher{
		persister: p,
		timeout:   opts.Timeout,
		log:       log,
		metrics:   m,
		tasks:     make(chan Record, opts.Buffer),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.run(i)
	}
	return d
}

// Submit schedules rec and returns immediately. It reports false when the
// task was dropped because the buffer is full or the dispatcher is closed.
func (d *Dispatcher) Submit(rec Record) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(rec, "closed")
		return false
	}
	select {
	case d.tasks <- rec:
		return true
	default:
		d.drop(rec, "buffer_full")
		return false
	}
}

func (d *Dispatcher) drop(rec Record, reason string) {
	d.metrics.LogDropped(reason)
	d.log.Error("log record dropped",
		zap.String("correlation_id", rec.CorrelationID),
		zap.String("reason", reason),
		zap.Int("buffer", cap(d.tasks)),
	)
}

// Close stops accepting tasks and waits for queued ones until ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.tasks)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run(workerID int) {
	defer d.wg.Done()
	for rec := range d.tasks {
		start := time.Now()
		if err := d.persist(rec); err != nil {
			d.metrics.PersistOutcome("failed")
			d.log.Error("log record write failed",
				zap.Int("worker", workerID),
				zap.String("correlation_id", rec.CorrelationID),
				zap.Duration("cost", time.Since(start)),
				zap.Error(err),
			)
			continue
		}
		d.metrics.PersistOutcome("ok")
		d.log.Debug("log record written",
			zap.String("correlation_id", rec.CorrelationID),
			zap.Duration("cost", time.Since(start)),
		)
	}
}

func (d *Dispatcher) persist(rec Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("persist panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	return d.persister.Persist(ctx, rec)
}
