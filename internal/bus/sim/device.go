// Package sim is an in-memory 24FC256: word-addressed page writes with in-page rollover,
// sequential reads that wrap at the top of memory, and a write cycle during which the
// chip doesn't acknowledge. Faults can be scripted per transaction or sprinkled in with
// a seeded rate, which is what the engine's retry handling gets tested against.
package sim

import (
	c "i2cflash/internal"
	"i2cflash/internal/addr"
	"i2cflash/internal/bus"
	"i2cflash/internal/util"

	"sync"

	"github.com/cespare/xxhash"
)

const SCRIPT_LEN = 0x40

// Fault replaces the outcome of one transaction. The transaction has no effect on the
// device and reports N bytes and Err to the caller.
type Fault struct {
	N	int
	Err	error
}

// Nack is the usual fault: nothing transferred, no acknowledge.
var Nack = Fault{N: 0, Err: bus.ErrNoAck}

type Stats struct {
	Sends	uint64
	Recvs	uint64
	Nacks	uint64
	Writes	uint64 // page writes committed
}

type Device struct {
	mu			sync.Mutex
	mem			[c.DEVICE_SIZE]byte
	ptr			uint32

	writeCycle	int // transactions refused after each page write
	busy		int

	script		util.Queue[Fault]
	flaky		uint64
	seed		uint64
	tick		uint64

	stats		Stats
}

// NewDevice returns a blank chip, every byte 0xFF.
func NewDevice() *Device {
	d := &Device{script: util.CreateQueue[Fault](SCRIPT_LEN)}
	for i := range d.mem {
		d.mem[i] = 0xff
	}
	return d
}

// Script queues outcomes for the next transactions, in order. Panics past SCRIPT_LEN.
func (d *Device) Script(faults ...Fault) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range faults {
		d.script.Push(f)
	}
}

// SetFlaky makes roughly one in oneIn transactions fail with a Nack. The pattern is fixed
// by seed. oneIn == 0 turns it off.
func (d *Device) SetFlaky(oneIn uint64, seed uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flaky = oneIn
	d.seed = seed
	d.tick = 0
}

// SetWriteCycle makes the chip refuse n transactions after every page write, the way
// the real part ignores its address while it programs the page.
func (d *Device) SetWriteCycle(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeCycle = n
}

// refuse decides whether the current transaction is swallowed. Called with mu held.
func (d *Device) refuse() (Fault, bool) {
	if f, ok := d.script.TryPop(); ok {
		d.stats.Nacks++
		return f, true
	}
	if d.busy > 0 {
		d.busy--
		d.stats.Nacks++
		return Nack, true
	}
	if d.flaky > 0 {
		d.tick++
		if util.Hash(d.seed^d.tick)%d.flaky == 0 {
			d.stats.Nacks++
			return Nack, true
		}
	}
	return Fault{}, false
}

func (d *Device) Send(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Sends++

	if f, ok := d.refuse(); ok {
		return f.N, f.Err
	}
	if len(p) < c.ADDR_LEN {
		d.stats.Nacks++
		return 0, bus.ErrNoAck
	}

	page, off := addr.Decode(p)
	d.ptr = c.Join(page, off)

	payload := p[c.ADDR_LEN:]
	if len(payload) == 0 {
		// address only: sets up a read
		return len(p), nil
	}

	spans := bus.WriteSpans(d.ptr, len(payload))
	for _, s := range spans {
		copy(d.mem[s.Off:int(s.Off)+s.Len], payload[s.Src:s.Src+s.Len])
	}
	d.ptr = bus.AfterWrite(spans, d.ptr)
	d.busy = d.writeCycle
	d.stats.Writes++
	return len(p), nil
}

func (d *Device) Recv(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Recvs++

	if f, ok := d.refuse(); ok {
		return f.N, f.Err
	}

	spans := bus.ReadSpans(d.ptr, len(p))
	for _, s := range spans {
		copy(p[s.Src:s.Src+s.Len], d.mem[s.Off:int(s.Off)+s.Len])
	}
	d.ptr = bus.After(spans, d.ptr)
	return len(p), nil
}

// Image returns a copy of the whole memory.
func (d *Device) Image() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, c.DEVICE_SIZE)
	copy(out, d.mem[:])
	return out
}

// Page returns a copy of one page.
func (d *Device) Page(page uint32) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	off := c.PageIdToOffset(page % c.PAGE_COUNT)
	out := make([]byte, c.PAGE_SIZE)
	copy(out, d.mem[off:off+c.PAGE_SIZE])
	return out
}

// Load replaces memory from img, starting at address 0. Shorter images leave the rest
// untouched.
func (d *Device) Load(img []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.mem[:], img)
}

func (d *Device) Digest() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return xxhash.Sum64(d.mem[:])
}

// Pointer is the chip's internal address counter.
func (d *Device) Pointer() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ptr
}

func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

var _ bus.Bus = (*Device)(nil)
