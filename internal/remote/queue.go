package remote

import "log/slog"

type jobKind int

const (
	jobPull jobKind = iota
	jobPush
)

// job is one pending remote operation.
type job struct {
	kind    jobKind
	keys    []string
	entries []Entry
}

// keep reports whether j carries a value that is only written on change.
// Such a push is never re-sent by a later cadence, so losing it would leave
// the store wrong until the next change.
func (j job) keep() bool {
	if j.kind != jobPush {
		return false
	}
	for _, e := range j.entries {
		if e.Key == KeyRelay || e.Key == KeyStatus {
			return true
		}
	}
	return false
}

// ringQueue is a fixed-capacity FIFO of pending jobs. When full the oldest
// periodic job is dropped: a stale telemetry push is worth less than a fresh
// one. Jobs that must be kept are evicted only when nothing else is queued.
// Not safe for concurrent use; the caller must synchronize.
type ringQueue struct {
	buf      []job
	capacity int
	head     int // next write position
	count    int
	overflow bool // true if any job was dropped since the queue last emptied
	dropped  int
}

func newRingQueue(capacity int) *ringQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &ringQueue{
		buf:      make([]job, capacity),
		capacity: capacity,
	}
}

// push appends j and reports whether a job was dropped to make room. The
// dropped job may be j itself when the queue holds only jobs to keep.
func (r *ringQueue) push(j job) bool {
	full := r.count == r.capacity
	if full {
		if !r.overflow {
			slog.Warn("remote: queue full, dropping oldest periodic job", "capacity", r.capacity)
			r.overflow = true
		}
		r.dropped++
		victim := r.victim()
		if victim < 0 {
			if !j.keep() {
				return true
			}
			victim = 0
		}
		r.removeAt(victim)
	}
	r.buf[r.head] = j
	r.head = (r.head + 1) % r.capacity
	r.count++
	return full
}

// pop removes and returns the oldest job.
func (r *ringQueue) pop() (job, bool) {
	if r.count == 0 {
		return job{}, false
	}
	start := r.at(0)
	j := r.buf[start]
	r.buf[start] = job{}
	r.count--
	if r.count == 0 {
		r.overflow = false
	}
	return j, true
}

func (r *ringQueue) len() int {
	return r.count
}

// at maps position i (0 is the oldest) to its index in buf.
func (r *ringQueue) at(i int) int {
	return (r.head - r.count + i + r.capacity) % r.capacity
}

// victim returns the position of the oldest job that may be dropped, or -1.
func (r *ringQueue) victim() int {
	for i := 0; i < r.count; i++ {
		if !r.buf[r.at(i)].keep() {
			return i
		}
	}
	return -1
}

// removeAt drops the job at position i, keeping the order of the rest.
func (r *ringQueue) removeAt(i int) {
	for k := i; k > 0; k-- {
		r.buf[r.at(k)] = r.buf[r.at(k-1)]
	}
	r.buf[r.at(0)] = job{}
	r.count--
}
