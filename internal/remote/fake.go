package remote

import (
	"context"
	"strings"
	"sync"
)

// FakeStore is an in-memory Store for tests. It is safe for concurrent use.
type FakeStore struct {
	mu sync.Mutex

	// Values holds pullable integer values by key.
	Values map[string]int

	// PullErrors forces per-key pull failures.
	PullErrors map[string]error

	// PushErrors forces per-key push failures.
	PushErrors map[string]error

	// Pushed records every successfully pushed entry in order.
	Pushed []Entry

	// Pulls counts Pull calls.
	Pulls int

	// Gate, if set, blocks Pull and Push until it is closed or ctx ends.
	Gate chan struct{}

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		Values:     make(map[string]int),
		PullErrors: make(map[string]error),
		PushErrors: make(map[string]error),
	}
}

func (f *FakeStore) wait(ctx context.Context) error {
	f.mu.Lock()
	gate := f.Gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ErrTimeout
	}
}

// Pull returns configured values and errors.
func (f *FakeStore) Pull(ctx context.Context, keys ...string) []Field {
	waitErr := f.wait(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.Pulls++

	fields := make([]Field, len(keys))
	for i, k := range keys {
		fields[i].Key = k
		if waitErr != nil {
			fields[i].Err = waitErr
			continue
		}
		if err := f.PullErrors[k]; err != nil {
			fields[i].Err = err
			continue
		}
		v, ok := f.Values[k]
		if !ok {
			fields[i].Err = ErrNoValue
			continue
		}
		fields[i].Value = v
	}
	return fields
}

// Push records entries unless a per-key error is configured.
func (f *FakeStore) Push(ctx context.Context, entries ...Entry) []error {
	waitErr := f.wait(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()

	errs := make([]error, len(entries))
	for i, e := range entries {
		if waitErr != nil {
			errs[i] = waitErr
			continue
		}
		if err := f.PushErrors[e.Key]; err != nil {
			errs[i] = err
			continue
		}
		f.Pushed = append(f.Pushed, e)
	}
	return errs
}

// Close marks the store as closed.
func (f *FakeStore) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// PushedKey returns every value pushed for key, in order.
func (f *FakeStore) PushedKey(key string) []Value {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Value
	for _, e := range f.Pushed {
		if e.Key == key {
			out = append(out, e.Value)
		}
	}
	return out
}

// PushedPrefix returns every entry whose key starts with prefix, in order.
func (f *FakeStore) PushedPrefix(prefix string) []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Entry
	for _, e := range f.Pushed {
		if strings.HasPrefix(e.Key, prefix) {
			out = append(out, e)
		}
	}
	return out
}

// PushedCount returns the number of recorded entries.
func (f *FakeStore) PushedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Pushed)
}

// Set stores a pullable value.
func (f *FakeStore) Set(key string, v int) {
	f.mu.Lock()
	f.Values[key] = v
	f.mu.Unlock()
}

// FailPull makes key fail on pull with err (nil clears it).
func (f *FakeStore) FailPull(key string, err error) {
	f.mu.Lock()
	f.PullErrors[key] = err
	f.mu.Unlock()
}

// FailPush makes key fail on push with err (nil clears it).
func (f *FakeStore) FailPush(key string, err error) {
	f.mu.Lock()
	f.PushErrors[key] = err
	f.mu.Unlock()
}

// Reset clears recorded pushes.
func (f *FakeStore) Reset() {
	f.mu.Lock()
	f.Pushed = nil
	f.Pulls = 0
	f.mu.Unlock()
}
