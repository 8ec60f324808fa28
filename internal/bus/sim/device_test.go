package sim

import (
	"bytes"
	"errors"

	c "i2cflash/internal"
	"i2cflash/internal/addr"
	"i2cflash/internal/bus"

	"github.com/cespare/xxhash"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func frame(page uint32, payload []byte) []byte {
	a := addr.Encode(page)
	return append(a[:], payload...)
}

func pattern(seed byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i)
	}
	return out
}

var _ = Describe("Device", func() {
	var d *Device

	BeforeEach(func() {
		d = NewDevice()
	})

	It("should start blank", func() {
		Expect(d.Image()).To(Equal(bytes.Repeat([]byte{0xff}, c.DEVICE_SIZE)))
		Expect(d.Digest()).To(Equal(xxhash.Sum64(bytes.Repeat([]byte{0xff}, c.DEVICE_SIZE))))
	})

	It("should write a page and read it back", func() {
		data := pattern(0x10, c.PAGE_SIZE)

		n, err := d.Send(frame(7, data))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(c.FRAME_SIZE))
		Expect(d.Page(7)).To(Equal(data))

		n, err = d.Send(frame(7, nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(c.ADDR_LEN))

		buf := make([]byte, c.PAGE_SIZE)
		n, err = d.Recv(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(c.PAGE_SIZE))
		Expect(buf).To(Equal(data))
		Expect(d.Pointer()).To(Equal(c.PageIdToOffset(8)))
	})

	It("should roll a page write over inside the page", func() {
		a := []byte{0x00, 0x70} // page 1, offset 0x30
		_, err := d.Send(append(a, pattern(0, 0x20)...))
		Expect(err).NotTo(HaveOccurred())

		page := d.Page(1)
		Expect(page[0x30:0x40]).To(Equal(pattern(0, 0x10)))
		Expect(page[0x00:0x10]).To(Equal(pattern(0x10, 0x10)))
		Expect(d.Page(2)).To(Equal(bytes.Repeat([]byte{0xff}, c.PAGE_SIZE)))
	})

	It("should wrap a sequential read at the top of memory", func() {
		d.Load(pattern(0x80, 0x10))
		_, err := d.Send(frame(c.PAGE_COUNT-1, nil))
		Expect(err).NotTo(HaveOccurred())

		buf := make([]byte, 2*c.PAGE_SIZE)
		_, err = d.Recv(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(buf[:c.PAGE_SIZE]).To(Equal(bytes.Repeat([]byte{0xff}, c.PAGE_SIZE)))
		Expect(buf[c.PAGE_SIZE : c.PAGE_SIZE+0x10]).To(Equal(pattern(0x80, 0x10)))
	})

	It("should refuse a frame without an address", func() {
		n, err := d.Send([]byte{0x00})
		Expect(n).To(Equal(0))
		Expect(errors.Is(err, bus.ErrNoAck)).To(BeTrue())
	})

	Context("with scripted faults", func() {
		It("should replay them in order and then behave", func() {
			short := errors.New("short")
			d.Script(Nack, Fault{N: 3, Err: nil}, Fault{N: 0, Err: short})

			n, err := d.Send(frame(0, pattern(0, c.PAGE_SIZE)))
			Expect(n).To(Equal(0))
			Expect(err).To(MatchError(bus.ErrNoAck))

			n, err = d.Send(frame(0, pattern(0, c.PAGE_SIZE)))
			Expect(n).To(Equal(3))
			Expect(err).NotTo(HaveOccurred())

			buf := make([]byte, c.PAGE_SIZE)
			_, err = d.Recv(buf)
			Expect(err).To(MatchError(short))

			// nothing landed while faulted
			Expect(d.Page(0)).To(Equal(bytes.Repeat([]byte{0xff}, c.PAGE_SIZE)))

			n, err = d.Send(frame(0, pattern(0, c.PAGE_SIZE)))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(c.FRAME_SIZE))
			Expect(d.Stats().Nacks).To(Equal(uint64(3)))
			Expect(d.Stats().Writes).To(Equal(uint64(1)))
		})

		It("should panic when over-scripted", func() {
			faults := make([]Fault, SCRIPT_LEN+1)
			Expect(func() { d.Script(faults...) }).To(Panic())
		})
	})

	Context("with a write cycle", func() {
		It("should ignore the bus until the page is programmed", func() {
			d.SetWriteCycle(2)
			_, err := d.Send(frame(3, pattern(1, c.PAGE_SIZE)))
			Expect(err).NotTo(HaveOccurred())

			for range 2 {
				_, err = d.Send(frame(3, nil))
				Expect(err).To(MatchError(bus.ErrNoAck))
			}
			_, err = d.Send(frame(3, nil))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Context("when flaky", func() {
		It("should fail the same transactions for the same seed", func() {
			run := func() []bool {
				dev := NewDevice()
				dev.SetFlaky(3, 42)
				out := make([]bool, 64)
				for i := range out {
					_, err := dev.Send(frame(0, nil))
					out[i] = err != nil
				}
				return out
			}
			first := run()
			Expect(run()).To(Equal(first))
			Expect(first).To(ContainElement(true))
			Expect(first).To(ContainElement(false))
		})
	})
})
