// Package adc provides raw analog sampling with hardware abstraction.
// The real implementation talks to an I2C ADC through periph.io.
// The fake implementation allows testing without hardware.
package adc

// Reader reads a raw sample from one analog channel.
type Reader interface {
	// Read returns the raw ADC count for the configured channel.
	Read() (int, error)

	// Close releases the underlying bus.
	Close() error
}

// Defaults for a Grove Base Hat style 12-bit ADC.
const (
	DefaultBus       = ""   // first available I2C bus
	DefaultAddress   = 0x08 // Grove Base Hat MM32
	DefaultChannel   = 0
	DefaultFullScale = 4095
)
