package xfer

import (
	c "i2cflash/internal"
	"i2cflash/internal/addr"

	"bytes"
	"log/slog"
	"time"

	"github.com/negrel/assert"
)

type direction uint8
const (
	dirSend direction = iota
	dirRecv
)

// execute runs p to completion and moves the slot on. It's the only code that drives
// the bus. A non-nil return is a hardware fault; by then the slot is already idle.
func (e *Engine) execute(p *pending) error {
	log := e.log.With("req", p.id, "op", p.op)
	start := time.Now()
	log.Debug("execute", "pages", p.pages, "cursor", e.cursor.Page())

	var err error
	switch p.op {
	case OpRead:
		err = e.doRead(log, p)
	case OpWrite:
		err = e.doWrite(log, p)
	case OpErase:
		err = e.doErase(log, p)
	}

	if err != nil {
		e.stats.faults.Add(1)
		log.Error("transfer abandoned", "err", err, "elapsed", time.Since(start))
		return err
	}
	log.Debug("done", "cursor", e.cursor.Page(), "elapsed", time.Since(start))
	return nil
}

// Point the chip at the cursor page, then pull one page per transaction. The chip walks
// its own address through consecutive pages, so the cursor moves once at the end.
func (e *Engine) doRead(log *slog.Logger, p *pending) error {
	assert.GreaterOrEqual(len(p.buf), int(p.pages)*c.PAGE_SIZE, "read buffer smaller than request")

	page := e.cursor.Page()
	frame := addr.Encode(page)
	if err := e.transfer(log, OpRead, page, dirSend, frame[:]); err != nil {
		e.finish(p, idle{}, err)
		return err
	}

	for i := range p.pages {
		dst := p.buf[i*c.PAGE_SIZE : (i+1)*c.PAGE_SIZE]
		if err := e.transfer(log, OpRead, addr.Advance(page, i), dirRecv, dst); err != nil {
			e.finish(p, idle{}, err)
			return err
		}
		e.stats.pages.Add(1)
	}

	e.cursor.Step(p.pages)
	e.finish(p, &ready{id: p.id, buf: p.buf, pages: p.pages}, nil)
	return nil
}

// One addressed frame per page. The cursor moves a page at a time because every frame
// needs the address of the page it lands on.
func (e *Engine) doWrite(log *slog.Logger, p *pending) error {
	assert.GreaterOrEqual(len(p.buf), int(p.pages)*c.PAGE_SIZE, "write buffer smaller than request")

	frame := make([]byte, c.FRAME_SIZE)
	page := e.cursor.Page()
	for i := range p.pages {
		addr.PutFrame(frame, page)
		copy(frame[c.ADDR_LEN:], p.buf[i*c.PAGE_SIZE:(i+1)*c.PAGE_SIZE])
		if err := e.transfer(log, OpWrite, page, dirSend, frame); err != nil {
			e.finish(p, idle{}, err)
			return err
		}
		e.stats.pages.Add(1)
		page = e.cursor.Step(1)
	}

	e.finish(p, idle{}, nil)
	return nil
}

// Every page gets an all-0xFF frame; only the address changes between pages.
func (e *Engine) doErase(log *slog.Logger, p *pending) error {
	e.cursor.Reset()

	scratch := bytes.Repeat([]byte{0xff}, c.FRAME_SIZE)
	for page := range uint32(c.PAGE_COUNT) {
		addr.PutFrame(scratch, page)
		if err := e.transfer(log, OpErase, page, dirSend, scratch); err != nil {
			e.finish(p, idle{}, err)
			return err
		}
		e.stats.pages.Add(1)
	}

	e.finish(p, idle{}, nil)
	return nil
}

// transfer repeats one transaction until the bus moves exactly len(buf) bytes, or the
// retry policy runs out.
func (e *Engine) transfer(log *slog.Logger, op Op, page uint32, dir direction, buf []byte) error {
	want := len(buf)
	limit := e.cfg.Retry.MaxAttempts

	for attempt := 1; ; attempt++ {
		var n int
		var err error

		e.led.Set(true)
		if dir == dirSend {
			n, err = e.bus.Send(buf)
		} else {
			n, err = e.bus.Recv(buf)
		}
		e.led.Set(false)
		e.stats.attempts.Add(1)

		if n == want && err == nil {
			return nil
		}

		if limit > 0 && attempt >= limit {
			return &FaultError{Op: op, Page: page, Attempts: attempt, Want: want, Got: n, Last: err}
		}
		e.stats.retries.Add(1)
		if attempt == 1 {
			log.Debug("retrying", "page", page, "want", want, "got", n, "err", err)
		}
		if e.cfg.Retry.Backoff > 0 {
			time.Sleep(e.cfg.Retry.Backoff)
		}
	}
}

// finish hands p's slot on to next. Only the executor calls this. In non-blocking mode
// the fault is parked for the next caller since nobody is waiting for this request.
func (e *Engine) finish(p *pending, next state, fault error) {
	e.slot.mu.Lock()
	defer e.slot.mu.Unlock()

	if e.slot.st != state(p) {
		panic("executor finishing a request it doesn't own")
	}
	if _, ok := next.(idle); ok {
		p.buf = nil
		p.pages = 0
	}
	e.slot.st = next
	if fault != nil && e.cfg.Mode == ModeNonBlocking {
		e.slot.fault = fault
	}
}
