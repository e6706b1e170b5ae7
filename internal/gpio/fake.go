package gpio

// FakeOutput is a test double that records every write.
type FakeOutput struct {
	// Writes contains every value passed to Set, in order.
	Writes []bool

	// SetError, if set, will be returned by Set (the write is still recorded).
	SetError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeOutput creates a FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the write.
func (f *FakeOutput) Set(on bool) error {
	f.Writes = append(f.Writes, on)
	return f.SetError
}

// On reports the last written level (false if never written).
func (f *FakeOutput) On() bool {
	if len(f.Writes) == 0 {
		return false
	}
	return f.Writes[len(f.Writes)-1]
}

// Close marks the output as closed.
func (f *FakeOutput) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded writes.
func (f *FakeOutput) Reset() {
	f.Writes = nil
	f.SetError = nil
	f.Closed = false
}
