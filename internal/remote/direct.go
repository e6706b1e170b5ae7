package remote

import (
	"context"
	"time"
)

// Direct is a Client that calls the Store synchronously on the caller's
// goroutine. Every call is bounded by Timeout. It suits tests and stores
// that never block (such as FakeStore).
type Direct struct {
	store   Store
	timeout time.Duration
	observe ResultFunc

	result    []Field
	hasResult bool
}

// NewDirect wraps store. A zero timeout means 5s.
func NewDirect(store Store, timeout time.Duration, observe ResultFunc) *Direct {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Direct{store: store, timeout: timeout, observe: observe}
}

// RequestPull pulls keys immediately; the result is returned by the next
// call to Pulled.
func (d *Direct) RequestPull(keys ...string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	fields := d.store.Pull(ctx, keys...)
	reportPull(fields, d.observe)
	d.result = fields
	d.hasResult = true
}

// Pulled returns the last pull result once.
func (d *Direct) Pulled() ([]Field, bool) {
	if !d.hasResult {
		return nil, false
	}
	fields := d.result
	d.result, d.hasResult = nil, false
	return fields, true
}

// Push writes entries immediately.
func (d *Direct) Push(entries ...Entry) {
	if len(entries) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	errs := d.store.Push(ctx, entries...)
	reportPush(entries, errs, d.observe)
}
