// Word-address framing for the EEPROM. Every transfer is page granular, so the
// intra-page offset of an encoded address is always 0.
package addr

import (
	c "i2cflash/internal"

	"github.com/negrel/assert"
)

// Encode returns the wire form of the first byte of page: page<<6, MSB first.
func Encode(page uint32) [c.ADDR_LEN]byte {
	assert.Less(page, uint32(c.PAGE_COUNT), "page out of range")
	var out [c.ADDR_LEN]byte
	c.Bin.PutUint16(out[:], uint16(c.Join(page, 0)))
	return out
}

// PutFrame writes the address of page into the first ADDR_LEN bytes of frame. Whatever
// follows (page payload or erase pattern) is left alone.
func PutFrame(frame []byte, page uint32) {
	assert.GreaterOrEqual(len(frame), c.ADDR_LEN, "frame shorter than address")
	a := Encode(page)
	copy(frame, a[:])
}

// Decode is the device side of Encode. The word address wraps at the device size, like
// the chip ignores the top address bit.
func Decode(frame []byte) (page uint32, off uint32) {
	assert.GreaterOrEqual(len(frame), c.ADDR_LEN, "frame shorter than address")
	ptr := uint32(c.Bin.Uint16(frame)) % c.DEVICE_SIZE
	return c.PageNo(ptr), c.Offset(ptr)
}
