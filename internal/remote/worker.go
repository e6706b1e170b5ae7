package remote

import (
	"context"
	"sync"
	"time"
)

// DefaultQueueSize bounds the number of pending operations held by a Worker.
const DefaultQueueSize = 32

// Worker is a Client that runs Store calls on a background goroutine, so a
// slow or unreachable store never delays the control loop. Pending work is
// bounded; when the queue is full the oldest periodic operation is dropped.
// Relay and status pushes are only dropped to make room for each other.
type Worker struct {
	store   Store
	timeout time.Duration
	observe ResultFunc

	mu          sync.Mutex
	queue       *ringQueue
	pullPending bool
	pullActive  bool
	result      []Field
	hasResult   bool
	closing     bool

	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	cancel context.CancelFunc
}

// NewWorker starts a Worker over store. A zero timeout means 5s; a
// queueSize below 1 means DefaultQueueSize.
func NewWorker(store Store, timeout time.Duration, queueSize int, observe ResultFunc) *Worker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		store:   store,
		timeout: timeout,
		observe: observe,
		queue:   newRingQueue(queueSize),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go w.run(ctx)
	return w
}

// RequestPull queues a pull. A request made while another pull is still
// pending is ignored.
func (w *Worker) RequestPull(keys ...string) {
	w.mu.Lock()
	if w.closing || w.pullPending {
		w.mu.Unlock()
		return
	}
	w.pullPending = true
	if w.queue.push(job{kind: jobPull, keys: keys}) {
		w.fixPendingLocked()
	}
	w.mu.Unlock()
	w.signal()
}

// Pulled returns the result of the last completed pull, at most once.
func (w *Worker) Pulled() ([]Field, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasResult {
		return nil, false
	}
	fields := w.result
	w.result, w.hasResult = nil, false
	return fields, true
}

// Push queues entries for sending.
func (w *Worker) Push(entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		return
	}
	if w.queue.push(job{kind: jobPush, entries: entries}) {
		w.fixPendingLocked()
	}
	w.mu.Unlock()
	w.signal()
}

// Pending returns the number of queued operations.
func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue.len()
}

// Dropped returns the number of operations discarded because the queue was full.
func (w *Worker) Dropped() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.queue.dropped
}

// Close stops accepting work and drains the queue until it is empty or ctx
// ends, whichever comes first.
func (w *Worker) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.closing = true
	w.mu.Unlock()
	close(w.stop)

	select {
	case <-w.done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		<-w.done
		return ctx.Err()
	}
}

// fixPendingLocked recomputes pullPending after a drop may have discarded
// the queued pull.
func (w *Worker) fixPendingLocked() {
	if w.pullActive {
		return
	}
	for i := 0; i < w.queue.count; i++ {
		if w.queue.buf[w.queue.at(i)].kind == jobPull {
			return
		}
	}
	w.pullPending = false
}

func (w *Worker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *Worker) next() (job, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	j, ok := w.queue.pop()
	if ok && j.kind == jobPull {
		w.pullActive = true
	}
	return j, ok
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		if j, ok := w.next(); ok {
			w.do(ctx, j)
			continue
		}
		select {
		case <-w.wake:
		case <-w.stop:
			for {
				j, ok := w.next()
				if !ok {
					return
				}
				w.do(ctx, j)
			}
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) do(ctx context.Context, j job) {
	opCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	switch j.kind {
	case jobPull:
		fields := w.store.Pull(opCtx, j.keys...)
		reportPull(fields, w.observe)
		w.mu.Lock()
		w.result = fields
		w.hasResult = true
		w.pullPending = false
		w.pullActive = false
		w.mu.Unlock()
	case jobPush:
		errs := w.store.Push(opCtx, j.entries...)
		reportPush(j.entries, errs, w.observe)
	}
}
