// Package xfer is the transfer engine for a paged serial EEPROM: one request at a time,
// run page by page against a bus, either on a worker goroutine or on the caller's.
//
// The caller-facing surface mirrors a character device. Write and Erase are accepted
// and run in the background; Read is asked for once (ErrTryAgain) and collected on a
// later call. Anything issued while a request is outstanding gets ErrBusy.
package xfer

import (
	c "i2cflash/internal"
	"i2cflash/internal/addr"
	"i2cflash/internal/bus"

	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
)

type Stats struct {
	Requests	uint64
	Pages		uint64
	Attempts	uint64
	Retries		uint64
	Faults		uint64
}

type counters struct {
	requests	atomic.Uint64
	pages		atomic.Uint64
	attempts	atomic.Uint64
	retries		atomic.Uint64
	faults		atomic.Uint64
}

type Engine struct {
	log		*slog.Logger
	cfg		Config
	bus		bus.Bus
	led		bus.Indicator
	cursor	addr.Cursor
	slot	slot
	sched	scheduler
	stats	counters
}

// New attaches an engine to b. The engine is the only user of b until Close returns.
func New(b bus.Bus, opts ...Option) *Engine {
	if b == nil {
		panic("bus cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("src", "Engine")

	e := &Engine{
		log:	log,
		cfg:	cfg,
		bus:	b,
		led:	cfg.Indicator,
	}
	e.slot.st = idle{}

	if cfg.Mode == ModeBlocking {
		e.sched = inline{}
	} else {
		e.sched = startWorker(log)
	}

	log.Debug("attached", "mode", cfg.Mode,
		"max_attempts", cfg.Retry.MaxAttempts, "backoff", cfg.Retry.Backoff)
	return e
}

// admit installs p if the slot is free. mu must be held. check runs after the busy test
// and before anything changes, so a failed check leaves the engine untouched.
func (e *Engine) admit(p *pending, check func() error) error {
	if e.slot.closed {
		return ErrClosed
	}
	if err := e.slot.takeFault(); err != nil {
		return err
	}
	if e.slot.st.kind() != KindNone {
		return ErrBusy
	}
	if check != nil {
		if err := check(); err != nil {
			return err
		}
	}

	p.id = xid.New().String()
	e.slot.st = p
	e.stats.requests.Add(1)
	e.log.Debug("admitted", "req", p.id, "op", p.op, "pages", p.pages)
	return nil
}

// dispatch hands an admitted request to the scheduler. In blocking mode the request has
// finished by the time this returns, and its fault (if any) is returned here.
func (e *Engine) dispatch(p *pending) error {
	var fault error
	err := e.sched.schedule(func() { fault = e.execute(p) })
	if err != nil {
		e.slot.mu.Lock()
		if e.slot.st == state(p) {
			e.slot.st = idle{}
		}
		e.slot.mu.Unlock()
		return err
	}
	if e.cfg.Mode == ModeBlocking {
		return fault
	}
	return nil
}

func need(pages uint32) int {
	return int(pages) * c.PAGE_SIZE
}

// Write queues pages full pages from data, starting at the cursor. data is copied before
// Write returns. In non-blocking mode the call returns as soon as the request is
// accepted; poll Status before issuing the next one.
func (e *Engine) Write(data []byte, pages uint32) error {
	p := &pending{op: OpWrite, pages: pages}

	e.slot.mu.Lock()
	err := e.admit(p, func() error {
		if len(data) < need(pages) {
			return ErrCopyFault
		}
		p.buf = make([]byte, need(pages))
		copy(p.buf, data)
		return nil
	})
	e.slot.mu.Unlock()
	if err != nil {
		return err
	}

	return e.dispatch(p)
}

// Read has two jobs. With a finished read waiting, it copies it into dst and frees the
// slot; pages is ignored then and n is the size of the finished read. With nothing
// outstanding, it starts a read of pages pages at the cursor: non-blocking mode returns
// ErrTryAgain and the data comes with a later call, blocking mode returns the data now.
// dst must hold the whole result or nothing happens (ErrCopyFault).
func (e *Engine) Read(dst []byte, pages uint32) (int, error) {
	e.slot.mu.Lock()
	if r, ok := e.slot.st.(*ready); ok {
		defer e.slot.mu.Unlock()
		return e.collect(r, dst)
	}

	p := &pending{op: OpRead, pages: pages}
	err := e.admit(p, func() error {
		if len(dst) < need(pages) {
			return ErrCopyFault
		}
		p.buf = make([]byte, need(pages))
		return nil
	})
	e.slot.mu.Unlock()
	if err != nil {
		return 0, err
	}

	if err := e.dispatch(p); err != nil {
		return 0, err
	}
	if e.cfg.Mode == ModeNonBlocking {
		return 0, ErrTryAgain
	}

	e.slot.mu.Lock()
	defer e.slot.mu.Unlock()
	r, ok := e.slot.st.(*ready)
	if !ok {
		// closed underneath us
		return 0, ErrClosed
	}
	return e.collect(r, dst)
}

// collect copies a finished read out and frees the slot. mu must be held.
func (e *Engine) collect(r *ready, dst []byte) (int, error) {
	if len(dst) < len(r.buf) {
		return 0, ErrCopyFault
	}
	n := copy(dst, r.buf)
	e.slot.st = idle{}
	e.log.Debug("collected", "req", r.id, "pages", r.pages)
	return n, nil
}

// Status is nil when the engine can take a new request, ErrBusy while one is pending or
// a finished read hasn't been collected. A fault parked by the worker is returned once.
func (e *Engine) Status() error {
	e.slot.mu.Lock()
	defer e.slot.mu.Unlock()
	if e.slot.closed {
		return ErrClosed
	}
	if err := e.slot.takeFault(); err != nil {
		return err
	}
	if e.slot.st.kind() != KindNone {
		return ErrBusy
	}
	return nil
}

func (e *Engine) Kind() Kind {
	e.slot.mu.Lock()
	defer e.slot.mu.Unlock()
	return e.slot.st.kind()
}

// Pointer is the cursor page.
func (e *Engine) Pointer() uint32 {
	return e.cursor.Page()
}

// SetPointer moves the cursor. It doesn't look at the slot, so it also works while a
// transfer runs (and changes where that transfer continues).
func (e *Engine) SetPointer(page uint32) error {
	if !e.cursor.Set(page) {
		return ErrOutOfRange
	}
	return nil
}

// Erase queues a blank of the whole device (every byte 0xFF) and resets the cursor to 0.
func (e *Engine) Erase() error {
	p := &pending{op: OpErase}

	e.slot.mu.Lock()
	err := e.admit(p, nil)
	e.slot.mu.Unlock()
	if err != nil {
		return err
	}
	return e.dispatch(p)
}

// Wait blocks until no transfer is executing: the slot is idle or holds a finished
// read. A parked fault ends the wait and is returned.
func (e *Engine) Wait(ctx context.Context) error {
	t := time.NewTicker(e.cfg.PollInterval)
	defer t.Stop()

	for {
		e.slot.mu.Lock()
		closed := e.slot.closed
		fault := e.slot.takeFault()
		k := e.slot.st.kind()
		e.slot.mu.Unlock()

		if fault != nil {
			return fault
		}
		if k == KindNone || k == KindReadDataReady {
			return nil
		}
		if closed {
			return ErrClosed
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (e *Engine) Stats() Stats {
	return Stats{
		Requests:	e.stats.requests.Load(),
		Pages:		e.stats.pages.Load(),
		Attempts:	e.stats.attempts.Load(),
		Retries:	e.stats.retries.Load(),
		Faults:		e.stats.faults.Load(),
	}
}

// Close detaches the engine. A transfer already running is allowed to finish; after
// Close returns the bus is no longer touched and may be released.
func (e *Engine) Close() error {
	e.slot.mu.Lock()
	if e.slot.closed {
		e.slot.mu.Unlock()
		return ErrClosed
	}
	e.slot.closed = true
	e.slot.mu.Unlock()

	e.sched.close()
	e.log.Debug("detached")
	return nil
}
