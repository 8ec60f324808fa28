package cmd

import (
	"i2cflash/internal/bus"
	"i2cflash/internal/bus/sim"
	"i2cflash/internal/xfer"

	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/tebeka/atexit"
)

// The simulated chip lives as long as the process, so commands run back to back in one
// process (tests, serve) see the same memory.
var simDevice = sync.OnceValue(sim.NewDevice)

type busSpec struct {
	kind	string
	path	string
	adapter	int
}

// parseBus reads "sim", "image:<path>" or "i2c:<adapter>".
func parseBus(s string) (busSpec, error) {
	kind, arg, _ := strings.Cut(s, ":")
	switch kind {
	case "sim":
		return busSpec{kind: kind}, nil
	case "image":
		if arg == "" {
			return busSpec{}, fmt.Errorf("bus %q: image needs a path", s)
		}
		return busSpec{kind: kind, path: arg}, nil
	case "i2c":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 {
			return busSpec{}, fmt.Errorf("bus %q: bad adapter number", s)
		}
		return busSpec{kind: kind, adapter: n}, nil
	}
	return busSpec{}, fmt.Errorf("bus %q: unknown kind %q", s, kind)
}

// session is one engine attached to one bus.
type session struct {
	*xfer.Engine
	closeOnce	sync.Once
	closeErr	error
	release		func() error
}

// open attaches an engine to the configured bus. The session is also registered with
// atexit so an early exit still detaches cleanly.
func (o *options) open() (*session, error) {
	spec, err := parseBus(o.bus)
	if err != nil {
		return nil, err
	}
	opts, err := o.engineOpts()
	if err != nil {
		return nil, err
	}

	var b bus.Bus
	release := func() error { return nil }
	if spec.kind == "sim" {
		b = simDevice()
	} else {
		var closer io.Closer
		b, closer, err = openHardware(spec, o.chip)
		if err != nil {
			return nil, err
		}
		release = closer.Close
	}

	o.log.Debug("attach", "bus", o.bus, "mode", o.mode, "retries", o.retries)
	s := &session{Engine: xfer.New(b, opts...), release: release}
	atexit.Register(func() { _ = s.close() })
	return s, nil
}

func (s *session) close() error {
	s.closeOnce.Do(func() {
		err := s.Engine.Close()
		if errors.Is(err, xfer.ErrClosed) {
			err = nil
		}
		s.closeErr = errors.Join(err, s.release())
	})
	return s.closeErr
}

// settle waits out the request just issued and reports how it ended.
func (s *session) settle(ctx context.Context) error {
	if err := s.Wait(ctx); err != nil {
		return err
	}
	return s.Status()
}

// readPages reads pages at the cursor in either mode.
func (s *session) readPages(ctx context.Context, dst []byte, pages uint32) (int, error) {
	n, err := s.Read(dst, pages)
	if !errors.Is(err, xfer.ErrTryAgain) {
		return n, err
	}
	if err := s.Wait(ctx); err != nil {
		return 0, err
	}
	return s.Read(dst, pages)
}
