//go:build linux

// Package i2cdev talks to a chip through a Linux /dev/i2c-N adapter. One Send is one
// write() on the adapter (START, address+W, bytes, STOP); one Recv is one read().
package i2cdev

import (
	c "i2cflash/internal"
	"i2cflash/internal/bus"

	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

// from <linux/i2c-dev.h>
const (
	I2C_SLAVE 	= 0x0703
	I2C_RETRIES	= 0x0701
	I2C_TIMEOUT	= 0x0702
)

type Dev struct {
	log		*slog.Logger
	mu		sync.Mutex
	fd		int
	chip	uint16
}

func Path(adapter int) string {
	return fmt.Sprintf("/dev/i2c-%d", adapter)
}

// Open binds adapter to the 7-bit chip address. Adapter-level retries are turned off,
// the transfer engine does its own.
func Open(adapter int, chip uint16) (*Dev, error) {
	path := Path(adapter)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := unix.IoctlSetInt(fd, I2C_SLAVE, int(chip)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind %s to 0x%02x: %w", path, chip, err)
	}
	if err := unix.IoctlSetInt(fd, I2C_RETRIES, 0); err != nil {
		slog.Warn("I2C_RETRIES not supported", "path", path, "err", err)
	}

	return &Dev{
		log:	slog.With("src", "I2cDev", "path", path, "chip", fmt.Sprintf("0x%02x", chip)),
		fd:		fd,
		chip:	chip,
	}, nil
}

// OpenDefault opens the EEPROM at its strapped address.
func OpenDefault(adapter int) (*Dev, error) {
	return Open(adapter, c.CHIP_ADDR)
}

func (d *Dev) Send(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 { return 0, bus.ErrClosed }
	n, err := unix.Write(d.fd, p)
	if err == unix.ENXIO || err == unix.EREMOTEIO {
		// chip busy programming a page
		return 0, bus.ErrNoAck
	}
	return max(n, 0), err
}

func (d *Dev) Recv(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 { return 0, bus.ErrClosed }
	n, err := unix.Read(d.fd, p)
	if err == unix.ENXIO || err == unix.EREMOTEIO {
		return 0, bus.ErrNoAck
	}
	return max(n, 0), err
}

func (d *Dev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 { return nil }
	err := unix.Close(d.fd)
	d.fd = -1
	d.log.Debug("closed")
	return err
}

var _ bus.Bus = (*Dev)(nil)
