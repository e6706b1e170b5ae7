package adc

import (
	"errors"
	"testing"
)

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader(100, 2000, 4095)

	for i, want := range []int{100, 2000, 4095, 4095} {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("read %d: got %d, want %d", i, got, want)
		}
	}
	if f.Reads != 4 {
		t.Errorf("Reads: got %d, want 4", f.Reads)
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader()
	if _, err := f.Read(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader(1)
	f.ReadError = errors.New("simulated error")
	if _, err := f.Read(); err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderClose(t *testing.T) {
	f := NewFakeReader(1)
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}
