// Package gpio provides digital outputs with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Output drives one digital line.
type Output interface {
	// Set drives the line to its logical on or off level.
	// Active-low wiring is handled by the implementation.
	Set(on bool) error

	// Close releases GPIO resources.
	Close() error
}

// Pin definitions (BCM numbering)
const (
	DefaultChip     = "gpiochip0"
	DefaultPinRelay = 17 // Water valve relay
	DefaultPinLED   = 27 // Status LED
)
