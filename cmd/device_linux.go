//go:build linux

package cmd

import (
	"i2cflash/internal/bus"
	"i2cflash/internal/bus/i2cdev"
	"i2cflash/internal/bus/image"

	"io"
)

type hardware interface {
	bus.Bus
	io.Closer
}

func openHardware(spec busSpec, chip uint16) (bus.Bus, io.Closer, error) {
	var h hardware
	var err error
	switch spec.kind {
	case "image":
		h, err = image.Open(spec.path)
	case "i2c":
		h, err = i2cdev.Open(spec.adapter, chip)
	}
	if err != nil {
		return nil, nil, err
	}
	return h, h, nil
}
