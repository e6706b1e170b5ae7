package adc

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// regRaw is the base register for raw 12-bit channel reads; the channel
// number is added to it.
const regRaw = 0x10

// GroveReader reads a moisture probe wired to an I2C ADC hat.
type GroveReader struct {
	bus     i2c.BusCloser
	dev     i2c.Dev
	channel uint8
}

// NewGroveReader opens the I2C bus and binds the ADC at address.
func NewGroveReader(busName string, address uint16, channel int) (*GroveReader, error) {
	if channel < 0 || channel > 7 {
		return nil, fmt.Errorf("adc channel %d out of range 0-7", channel)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}
	return &GroveReader{
		bus:     bus,
		dev:     i2c.Dev{Bus: bus, Addr: address},
		channel: uint8(channel),
	}, nil
}

// Read returns the raw ADC count.
func (g *GroveReader) Read() (int, error) {
	write := []byte{regRaw + g.channel}
	read := make([]byte, 2)
	if err := g.dev.Tx(write, read); err != nil {
		return 0, fmt.Errorf("read adc channel %d: %w", g.channel, err)
	}
	return int(binary.LittleEndian.Uint16(read)), nil
}

// Close releases the I2C bus.
func (g *GroveReader) Close() error {
	if g.bus == nil {
		return nil
	}
	return g.bus.Close()
}
