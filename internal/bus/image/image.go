//go:build linux

// Package image is a Bus backed by an EEPROM image file. It behaves like the chip (word
// address, page-write rollover, wrapping sequential reads) and does its file I/O through
// the io_uring manager, so a dump taken from a real part can be exercised offline.
package image

import (
	c "i2cflash/internal"
	"i2cflash/internal/addr"
	"i2cflash/internal/bus"
	"i2cflash/internal/iomgr"

	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// staging slab, one OS page: plenty for a frame
const SLAB_SIZE = 0x1000

var ErrTooLong = errors.New("image: transaction longer than staging buffer")

type Image struct {
	log		*slog.Logger
	mu		sync.Mutex
	mgr		*iomgr.IoMgr
	slab	[]byte
	op		*iomgr.Op
	ptr		uint32
	closed	bool
}

// Open opens or creates the image at path. A new or short file is extended to the device
// size and the new part blanked to 0xFF, like a factory-fresh part.
func Open(path string) (*Image, error) {
	log := slog.With("src", "Image")

	mgr, err := iomgr.CreateIoMgr(path)
	if err != nil { return nil, fmt.Errorf("open image %s: %w", path, err) }

	slab, err := iomgr.AllocSlab(SLAB_SIZE)
	if err != nil {
		mgr.Close()
		return nil, err
	}

	im := &Image{
		log:	log,
		mgr:	mgr,
		slab:	slab,
		op:		iomgr.NewOp(),
	}

	if err := im.blank(); err != nil {
		im.Close()
		return nil, fmt.Errorf("blank image %s: %w", path, err)
	}
	return im, nil
}

func (im *Image) blank() error {
	size, err := im.mgr.Size()
	if err != nil { return err }
	if size >= c.DEVICE_SIZE { return nil }

	im.log.Info("blanking image", "from", size, "to", c.DEVICE_SIZE)

	im.op.Prepare(im.mgr.Fd(), iomgr.OpAllocate)
	im.op.Lens[0] = c.DEVICE_SIZE
	if _, err := im.mgr.Do(im.op); err != nil { return err }

	for i := range im.slab {
		im.slab[i] = 0xff
	}
	for off := uint64(size); off < c.DEVICE_SIZE; off += SLAB_SIZE {
		n := min(SLAB_SIZE, c.DEVICE_SIZE-off)
		im.op.Prepare(im.mgr.Fd(), iomgr.OpWrite)
		im.op.AddSlice(im.slab[:n], off)
		if _, err := im.mgr.Do(im.op); err != nil { return err }
	}

	im.op.Prepare(im.mgr.Fd(), iomgr.OpSync)
	_, err = im.mgr.Do(im.op)
	return err
}

func (im *Image) Send(p []byte) (int, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if im.closed { return 0, bus.ErrClosed }
	if len(p) < c.ADDR_LEN { return 0, bus.ErrNoAck }
	if len(p) > SLAB_SIZE { return 0, ErrTooLong }

	page, off := addr.Decode(p)
	im.ptr = c.Join(page, off)

	payload := p[c.ADDR_LEN:]
	if len(payload) == 0 {
		return len(p), nil
	}

	spans := bus.WriteSpans(im.ptr, len(payload))
	im.op.Prepare(im.mgr.Fd(), iomgr.OpWrite)
	for _, s := range spans {
		buf := im.slab[s.Src : s.Src+s.Len]
		copy(buf, payload[s.Src:s.Src+s.Len])
		im.op.AddSlice(buf, uint64(s.Off))
	}
	n, err := im.mgr.Do(im.op)
	if err != nil {
		im.log.Warn("write failed", "ptr", im.ptr, "err", err)
		return 0, err
	}
	im.ptr = bus.AfterWrite(spans, im.ptr)
	// report what the chip would: the whole frame, but only if all of it landed
	if n != sumLen(spans) { return c.ADDR_LEN, nil }
	return len(p), nil
}

func (im *Image) Recv(p []byte) (int, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	if im.closed { return 0, bus.ErrClosed }
	if len(p) == 0 { return 0, nil }
	if len(p) > SLAB_SIZE { return 0, ErrTooLong }

	spans := bus.ReadSpans(im.ptr, len(p))
	im.op.Prepare(im.mgr.Fd(), iomgr.OpRead)
	for _, s := range spans {
		im.op.AddSlice(im.slab[s.Src:s.Src+s.Len], uint64(s.Off))
	}
	n, err := im.mgr.Do(im.op)
	if err != nil {
		im.log.Warn("read failed", "ptr", im.ptr, "err", err)
		return 0, err
	}
	copy(p, im.slab[:n])
	im.ptr = bus.After(spans, im.ptr)
	return n, nil
}

// Sync flushes the image file.
func (im *Image) Sync() error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.closed { return bus.ErrClosed }
	im.op.Prepare(im.mgr.Fd(), iomgr.OpSync)
	_, err := im.mgr.Do(im.op)
	return err
}

func (im *Image) Close() error {
	im.mu.Lock()
	defer im.mu.Unlock()
	if im.closed { return nil }
	im.closed = true
	err := im.mgr.Close()
	return errors.Join(err, iomgr.DeallocSlab(im.slab))
}

func sumLen(spans []bus.Span) int {
	n := 0
	for _, s := range spans {
		n += s.Len
	}
	return n
}

var _ bus.Bus = (*Image)(nil)
