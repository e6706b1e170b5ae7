package storage

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultArchiveBuffer is the number of samples an Archiver holds before it
// starts dropping new ones.
const DefaultArchiveBuffer = 64

// appender is the write side of a Store.
type appender interface {
	AppendHistory(ctx context.Context, at time.Time, percent float64) error
}

// Archiver writes history samples on its own goroutine so that a slow disk
// never holds up the caller. Samples that arrive while the buffer is full
// are dropped.
type Archiver struct {
	store   appender
	timeout time.Duration
	ch      chan Point
	done    chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewArchiver starts an Archiver in front of store. A size below 1 means
// DefaultArchiveBuffer.
func NewArchiver(store appender, size int) *Archiver {
	return newArchiver(store, size, time.Second)
}

func newArchiver(store appender, size int, timeout time.Duration) *Archiver {
	if size < 1 {
		size = DefaultArchiveBuffer
	}
	a := &Archiver{
		store:   store,
		timeout: timeout,
		ch:      make(chan Point, size),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Archive queues percent sampled at at. It never blocks.
func (a *Archiver) Archive(at time.Time, percent float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- Point{At: at, Percent: percent}:
	default:
		a.dropped++
		if a.dropped == 1 {
			slog.Warn("history archive buffer full, dropping samples", "capacity", cap(a.ch))
		}
	}
}

// Dropped returns the number of samples discarded because the buffer was full.
func (a *Archiver) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close stops accepting samples and waits for the buffered ones to be
// written, or for ctx to end.
func (a *Archiver) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Archiver) run() {
	defer close(a.done)
	for p := range a.ch {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.store.AppendHistory(ctx, p.At, p.Percent); err != nil {
			slog.Warn("local history append failed", "err", err)
		}
		cancel()
	}
}
