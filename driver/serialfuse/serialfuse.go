// Package serialfuse implements the actuator.FuseActuator capability over a
// USB-serial relay board, reached with github.com/tarm/serial: probe a
// fixed list of candidate device paths (or a caller-supplied one) at a
// fixed baud rate and return the first one that opens.
package serialfuse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/tarm/serial"

	"github.com/CR1337/rl-fuse-player/actuator"
)

const baudRate = 9600

// The wire protocol: a read is a 2-byte request ('R', register) answered
// by a 1-byte reply; a write is a 3-byte request ('W', register, value). It mirrors the register
// read-modify-write shape the I²C driver uses, so the register semantics
// fuseplayer depends on (fuseRegisterMasks, the 0x14 base register) are
// identical regardless of which actuator backs a device index.
const (
	opRead  = 'R'
	opWrite = 'W'
)

// Open probes candidate serial device paths and returns the first one
// that opens, wrapped in a buffered writer so register writes can be
// flushed as a unit. An empty dev selects a platform-appropriate default
// list.
func Open(dev string) (*Device, error) {
	var candidates []string
	if dev != "" {
		candidates = append(candidates, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			candidates = append(candidates, "COM3")
		case "linux":
			candidates = append(candidates, "/dev/ttyUSB0", "/dev/ttyUSB1", "/dev/ttyACM0")
		}
	}
	if len(candidates) == 0 {
		return nil, errors.New("serialfuse: no device specified")
	}
	var firstErr error
	for _, path := range candidates {
		port, err := serial.OpenPort(&serial.Config{Name: path, Baud: baudRate})
		if err == nil {
			return newDevice(port), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("serialfuse: open: %w", firstErr)
}

// Device is one actuator.FuseActuator backed by a serial connection to a
// relay board. Multiple device indices on the same physical board share a
// Device through OpenerForPort; the mutex serializes their register
// traffic across the one physical link. conn is an io.ReadWriteCloser
// rather than the concrete *serial.Port, so tests can substitute an
// in-memory pipe.
type Device struct {
	conn io.ReadWriteCloser
	mu   sync.Mutex
	w    *bufio.Writer
}

func newDevice(conn io.ReadWriteCloser) *Device {
	return &Device{conn: conn, w: bufio.NewWriter(conn)}
}

func (d *Device) ReadRegister(reg byte) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.w.Write([]byte{opRead, reg}); err != nil {
		return 0, fmt.Errorf("serialfuse: write read-request: %w", err)
	}
	if err := d.w.Flush(); err != nil {
		return 0, fmt.Errorf("serialfuse: flush: %w", err)
	}
	var reply [1]byte
	if _, err := d.conn.Read(reply[:]); err != nil {
		return 0, fmt.Errorf("serialfuse: read reply: %w", err)
	}
	return reply[0], nil
}

func (d *Device) WriteRegister(reg byte, value byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.w.Write([]byte{opWrite, reg, value}); err != nil {
		return fmt.Errorf("serialfuse: write: %w", err)
	}
	if err := d.w.Flush(); err != nil {
		return fmt.Errorf("serialfuse: flush: %w", err)
	}
	return nil
}

func (d *Device) Probe() bool {
	_, err := d.ReadRegister(0x00)
	return err == nil
}

func (d *Device) Close() error {
	return d.conn.Close()
}

// OpenerForPort opens a single serial relay board and returns an
// actuator.Opener that hands every requested device index the same Device,
// since one relay board typically exposes all 16 device slots behind one
// serial link rather than one link per device the way the I²C bus
// addresses separate physical chips.
func OpenerForPort(dev string) (actuator.Opener, error) {
	d, err := Open(dev)
	if err != nil {
		return nil, err
	}
	return func(uint8) (actuator.FuseActuator, error) {
		return d, nil
	}, nil
}
