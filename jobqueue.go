package mdk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// WorkItem is one unit of work: either a raw framed record or groups that
// were already decoded by the source.
type WorkItem struct {
	Raw    []byte
	Groups []FieldGroup
	Label  Label
	// Origin names where the item came from, e.g. file#offset.
	Origin string
	// Framing names the preset Raw is framed with, if it differs from the
	// pipeline's.
	Framing string
}

// QueueStats is a snapshot of the queue counters.
type QueueStats struct {
	Workers   int
	Submitted int64
	Processed int64
	Failed    int64
	Crashed   int64
	Rejected  int64
}

// JobQueue distributes WorkItems to a fixed set of workers over an
// unbuffered channel, so that a producer submitting faster than workers
// consume is held back by Submit's timeout. Drain stops the workers by
// sending each one a sentinel that is never handed to the executor.
type JobQueue struct {
	workers int
	exec    func(context.Context, WorkItem) error

	onFailure func(worker int, item WorkItem, err error)
	log       Logger
	stats     Statter

	jobs     chan *WorkItem
	sentinel *WorkItem
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	allGone  chan struct{}

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	liveMu sync.Mutex
	live   map[int]struct{}

	submitted int64
	processed int64
	failed    int64
	crashed   int64
	rejected  int64
}

// QueueOption configures a JobQueue.
type QueueOption func(*JobQueue)

// OptQueueOnFailure sets the callback receiving executor errors and worker
// crashes. It is called from worker goroutines.
func OptQueueOnFailure(f func(worker int, item WorkItem, err error)) QueueOption {
	return func(q *JobQueue) {
		q.onFailure = f
	}
}

// OptQueueLogger sets the logger.
func OptQueueLogger(l Logger) QueueOption {
	return func(q *JobQueue) {
		q.log = l
	}
}

// OptQueueStatter sets the stats collector.
func OptQueueStatter(s Statter) QueueOption {
	return func(q *JobQueue) {
		q.stats = s
	}
}

// NewJobQueue creates a queue with the given number of workers. Workers are
// started by Start.
func NewJobQueue(workers int, exec func(context.Context, WorkItem) error, opts ...QueueOption) *JobQueue {
	if workers <= 0 {
		workers = 1
	}
	q := &JobQueue{
		workers:  workers,
		exec:     exec,
		log:      NopLogger{},
		stats:    NopStatter{},
		jobs:     make(chan *WorkItem),
		sentinel: &WorkItem{},
		allGone:  make(chan struct{}),
		live:     make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the workers. Cancelling ctx has the same effect as
// Interrupt.
func (q *JobQueue) Start(ctx context.Context) error {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()
	if q.started {
		return ErrQueueStarted
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.liveMu.Lock()
	for i := 0; i < q.workers; i++ {
		q.live[i] = struct{}{}
	}
	q.liveMu.Unlock()
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.started = true
	q.stats.Gauge(StatQueueWorkers, float64(q.workers), 1)
	return nil
}

// Submit hands item to a worker, waiting at most timeout for one to accept
// it. It returns ErrQueueSaturation on timeout and ErrNoWorkers when every
// worker is gone.
func (q *JobQueue) Submit(ctx context.Context, item WorkItem, timeout time.Duration) error {
	q.lifecycleMu.Lock()
	started, stopped := q.started, q.stopped
	q.lifecycleMu.Unlock()
	if !started || stopped {
		return ErrQueueStopped
	}
	if q.Workers() == 0 {
		return ErrNoWorkers
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.jobs <- &item:
		atomic.AddInt64(&q.submitted, 1)
		q.stats.Count(StatQueueSubmitted, 1, 1)
		return nil
	case <-timer.C:
		atomic.AddInt64(&q.rejected, 1)
		q.stats.Count(StatQueueSaturated, 1, 1)
		return ErrQueueSaturation
	case <-q.allGone:
		return ErrNoWorkers
	case <-q.ctx.Done():
		return ErrQueueStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain stops accepting work, sends one sentinel per live worker and waits
// for the workers to finish their current items. Items accepted before
// Drain are processed. If the workers do not finish within timeout they
// are cancelled and ErrDrainTimeout is returned.
func (q *JobQueue) Drain(timeout time.Duration) error {
	q.lifecycleMu.Lock()
	if !q.started || q.stopped {
		q.lifecycleMu.Unlock()
		return nil
	}
	q.stopped = true
	q.lifecycleMu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	n := q.Workers()
send:
	for i := 0; i < n; i++ {
		select {
		case q.jobs <- q.sentinel:
		case <-q.allGone:
			break send
		case <-q.ctx.Done():
			break send
		case <-deadline.C:
			q.cancel()
			q.log.Printf("drain timed out with %d workers busy", q.Workers())
			return ErrDrainTimeout
		}
	}
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-deadline.C:
		q.cancel()
		q.log.Printf("drain timed out with %d workers busy", q.Workers())
		return ErrDrainTimeout
	}
}

// Interrupt cancels all workers immediately. Items in flight see their
// context cancelled; nothing further is accepted.
func (q *JobQueue) Interrupt() {
	q.lifecycleMu.Lock()
	defer q.lifecycleMu.Unlock()
	if !q.started {
		return
	}
	q.stopped = true
	q.cancel()
}

// Wait blocks until every worker has exited.
func (q *JobQueue) Wait() {
	q.wg.Wait()
}

// Workers returns the number of live workers.
func (q *JobQueue) Workers() int {
	q.liveMu.Lock()
	defer q.liveMu.Unlock()
	return len(q.live)
}

// Stats returns a snapshot of the counters.
func (q *JobQueue) Stats() QueueStats {
	return QueueStats{
		Workers:   q.Workers(),
		Submitted: atomic.LoadInt64(&q.submitted),
		Processed: atomic.LoadInt64(&q.processed),
		Failed:    atomic.LoadInt64(&q.failed),
		Crashed:   atomic.LoadInt64(&q.crashed),
		Rejected:  atomic.LoadInt64(&q.rejected),
	}
}

func (q *JobQueue) worker(id int) {
	defer q.wg.Done()
	defer q.exit(id)
	for {
		select {
		case <-q.ctx.Done():
			return
		case item := <-q.jobs:
			if item == q.sentinel {
				return
			}
			if crashed := q.execute(id, item); crashed {
				return
			}
		}
	}
}

// execute runs one item. A panic removes the worker; an error is only
// reported.
func (q *JobQueue) execute(id int, item *WorkItem) (crashed bool) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			crashed = true
			atomic.AddInt64(&q.crashed, 1)
			q.stats.Count(StatQueueCrashed, 1, 1)
			q.fail(id, item, &WorkerCrash{Worker: id, Value: r})
		}
	}()
	err := q.exec(q.ctx, *item)
	atomic.AddInt64(&q.processed, 1)
	q.stats.Timing(StatQueueExec, time.Since(start), 1)
	if err != nil {
		atomic.AddInt64(&q.failed, 1)
		q.stats.Count(StatQueueFailed, 1, 1)
		q.fail(id, item, err)
	}
	return false
}

func (q *JobQueue) fail(id int, item *WorkItem, err error) {
	if q.onFailure != nil {
		q.onFailure(id, *item, err)
		return
	}
	q.log.Printf("worker %d: %v", id, err)
}

func (q *JobQueue) exit(id int) {
	q.liveMu.Lock()
	defer q.liveMu.Unlock()
	delete(q.live, id)
	q.stats.Gauge(StatQueueWorkers, float64(len(q.live)), 1)
	if len(q.live) == 0 {
		close(q.allGone)
	}
}
