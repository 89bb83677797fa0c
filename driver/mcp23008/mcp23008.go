// Package mcp23008 implements the actuator.FuseActuator capability over a
// real I²C GPIO-expander device (MCP-23008-style: sixteen fuses packed two
// bits each, four per 8-bit register, in registers 0x14 through 0x17),
// reached through periph.io's bus-registry-then-device-handle idiom.
package mcp23008

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/CR1337/rl-fuse-player/actuator"
)

// iodirRegister is read during Probe: it exists (and is readable) on
// reset on every MCP-23008-family device, making it a cheap reachability
// check that doesn't disturb fuse state.
const iodirRegister = 0x00

// Device is one actuator.FuseActuator backed by a periph.io i2c.Dev.
type Device struct {
	dev *i2c.Dev
}

func (d *Device) ReadRegister(reg byte) (byte, error) {
	var buf [1]byte
	if err := d.dev.Tx([]byte{reg}, buf[:]); err != nil {
		return 0, fmt.Errorf("mcp23008: read register %#02x: %w", reg, err)
	}
	return buf[0], nil
}

func (d *Device) WriteRegister(reg byte, value byte) error {
	if err := d.dev.Tx([]byte{reg, value}, nil); err != nil {
		return fmt.Errorf("mcp23008: write register %#02x: %w", reg, err)
	}
	return nil
}

func (d *Device) Probe() bool {
	_, err := d.ReadRegister(iodirRegister)
	return err == nil
}

// OpenBus initializes periph's host drivers and opens the named I²C bus
// (empty busName selects the first available bus, the same "" means
// default-device convention periph's own bus registries use). It returns
// an actuator.Opener bound to that bus and a close function the caller
// must invoke once the engine built from it is torn down.
func OpenBus(busName string) (actuator.Opener, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("mcp23008: host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, fmt.Errorf("mcp23008: open bus %q: %w", busName, err)
	}
	opener := func(deviceIndex uint8) (actuator.FuseActuator, error) {
		addr := uint16(actuator.BaseDeviceAddress) | uint16(deviceIndex)
		return &Device{dev: &i2c.Dev{Bus: bus, Addr: addr}}, nil
	}
	return opener, bus.Close, nil
}
