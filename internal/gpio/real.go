//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealOutput drives a line using Linux GPIO character device.
type RealOutput struct {
	line *gpiocdev.Line
	pin  int
}

// NewRealOutput requests pin as an output held at logical off.
// Relay boards are commonly active-low; set activeLow for those.
func NewRealOutput(chip string, pin int, activeLow bool) (*RealOutput, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := gpiocdev.RequestLine(chip, pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &RealOutput{line: line, pin: pin}, nil
}

// Set drives the line to the logical level.
func (o *RealOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", o.pin, err)
	}
	return nil
}

// Close releases GPIO resources.
// Drives the line off and reconfigures it to input with pull-down (matching
// Pi boot defaults) before closing, so a stopped daemon never leaves the
// valve energised.
func (o *RealOutput) Close() error {
	if o.line == nil {
		return nil
	}
	var errs []error

	if err := o.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("drive pin %d off: %w", o.pin, err))
	}
	if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", o.pin, err))
	}
	if err := o.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", o.pin, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
