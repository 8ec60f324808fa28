//go:build !linux

package cmd

import (
	"i2cflash/internal/bus"

	"fmt"
	"io"
)

func openHardware(spec busSpec, _ uint16) (bus.Bus, io.Closer, error) {
	return nil, nil, fmt.Errorf("bus kind %q needs linux", spec.kind)
}
