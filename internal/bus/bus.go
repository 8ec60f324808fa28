// The raw transaction primitives the transfer engine drives. Implementations decide how
// bytes actually reach the chip; the engine only decides which bytes and in what order.
package bus

import (
	"errors"
	"log/slog"
)

var (
	ErrClosed 	= errors.New("bus: closed")
	ErrNoAck 	= errors.New("bus: no acknowledge")
)

// Bus performs one transaction per call against a single addressed device.
//
// Send puts p on the bus in one write transaction. Recv fills p in one read transaction
// starting at the device's current address. Both return the number of bytes actually
// transferred; the caller treats anything but len(p) as a failed attempt.
type Bus interface {
	Send(p []byte) (int, error)
	Recv(p []byte) (int, error)
}

// Indicator is switched on before and off after every bus attempt. Nothing about a
// transfer depends on it.
type Indicator interface {
	Set(on bool)
}

type NopIndicator struct{}

func (NopIndicator) Set(bool) {}

// LogIndicator reports the indicator edges at debug level.
type LogIndicator struct {
	Log *slog.Logger
}

func (l LogIndicator) Set(on bool) {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	log.Debug("indicator", "on", on)
}
