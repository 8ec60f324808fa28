// Constants
package internal

import (
	"encoding/binary"
)

const LEN_U16 = 0x02

// 24FC256 geometry
const PAGE_SHIFT	= 6
const PAGE_SIZE		= 1 << PAGE_SHIFT // 0x40
const PAGE_MASK		= PAGE_SIZE - 1
const PAGE_COUNT	= 0x200
const DEVICE_SIZE	= PAGE_SIZE * PAGE_COUNT

// A frame on the bus is the 2-byte word address optionally followed by one page of data.
const ADDR_LEN		= LEN_U16
const FRAME_SIZE	= ADDR_LEN + PAGE_SIZE

// 7-bit chip address (A2..A0 = 1,0,0)
const CHIP_ADDR		= 0x54

func PageNo(ptr uint32) uint32 		{ return ptr >> PAGE_SHIFT }
func Offset(ptr uint32) uint32 		{ return ptr & PAGE_MASK }
func Join(page, off uint32) uint32	{ return (page << PAGE_SHIFT) | off }

func PageIdToOffset(pageId uint32) uint32 {
	return pageId * PAGE_SIZE
}

// The device wants the MSB of the word address first, so this is the only byte order
// on the wire. Defined here and nowhere else.
var Bin = binary.BigEndian
