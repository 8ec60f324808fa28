package xfer

import (
	"fmt"
	"sync"
)

type Op uint8
const (
	OpRead Op = iota
	OpWrite
	OpErase
)

func (o Op) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpErase:
		return "erase"
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Kind names the state of the request slot.
type Kind uint8
const (
	KindNone Kind = iota
	KindReadPending
	KindWritePending
	KindErasePending
	KindReadDataReady
)

var kindNames = [...]string{"none", "read-pending", "write-pending", "erase-pending", "read-data-ready"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// state is one of idle, *pending or *ready. The buffer lives in the variant, so it only
// exists while the slot is in a state that owns one.
type state interface {
	kind() Kind
}

type idle struct{}

// pending is an admitted request. From admission until the executor hands it back, the
// executor is the only one touching buf.
type pending struct {
	id		string
	op		Op
	buf		[]byte
	pages	uint32
}

// ready holds the result of a read until the caller collects it.
type ready struct {
	id		string
	buf		[]byte
	pages	uint32
}

func (idle) kind() Kind { return KindNone }

func (p *pending) kind() Kind {
	switch p.op {
	case OpRead:
		return KindReadPending
	case OpWrite:
		return KindWritePending
	default:
		return KindErasePending
	}
}

func (*ready) kind() Kind { return KindReadDataReady }

// slot is the single request record. Every check-then-set on st happens under mu.
type slot struct {
	mu		sync.Mutex
	st		state
	fault	error // parked by the worker, handed to the next caller
	closed	bool
}

// takeFault returns the parked fault, if any, and forgets it. mu must be held.
func (s *slot) takeFault() error {
	err := s.fault
	s.fault = nil
	return err
}
