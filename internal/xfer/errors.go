package xfer

import (
	"errors"
	"fmt"
)

var (
	ErrBusy 			= errors.New("xfer: device busy")
	ErrTryAgain			= errors.New("xfer: read queued, try again")
	ErrOutOfRange		= errors.New("xfer: page out of range")
	ErrCopyFault		= errors.New("xfer: buffer shorter than transfer")
	ErrHardwareFault	= errors.New("xfer: hardware fault")
	ErrClosed			= errors.New("xfer: engine closed")
	ErrInvalidArg		= errors.New("xfer: invalid arg")
)

// FaultError is what a transfer turns into when one page transaction runs out of
// attempts. errors.Is(err, ErrHardwareFault) holds for it.
type FaultError struct {
	Op			Op
	Page		uint32
	Attempts	int
	Want		int
	Got			int
	Last		error
}

func (e *FaultError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("%s page %d: gave up after %d attempts: %v",
			e.Op, e.Page, e.Attempts, e.Last)
	}
	return fmt.Sprintf("%s page %d: gave up after %d attempts: transferred %d of %d bytes",
		e.Op, e.Page, e.Attempts, e.Got, e.Want)
}

func (e *FaultError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrHardwareFault}
	}
	return []error{ErrHardwareFault, e.Last}
}
