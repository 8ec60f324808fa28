package util

import (
	c "i2cflash/internal"
	"fmt"
	"strings"
)

// PrettyPrintPage renders data as a table of 16-byte rows, one page per block. first is
// the page number of data[0] and only affects the labels.
func PrettyPrintPage(data []byte, first uint32) string {
	const bytesPerRow = 16
	var b strings.Builder

	b.WriteString("┏━━━━━━━━┳━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┓\n")
	fmt.Fprintf(&b, "┃ Addr   ┃ %4d bytes from page %-3d (0x%04x)                 ┃\n",
		len(data), first, c.PageIdToOffset(first))
	b.WriteString("┣━━━━━━━━╋━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┫\n")

	for i := 0; i < len(data); i += bytesPerRow {
		// wire address, wraps like the device does
		a := (c.PageIdToOffset(first) + uint32(i)) % c.DEVICE_SIZE
		if i > 0 && i%c.PAGE_SIZE == 0 {
			b.WriteString("┣━━━━━━━━╋━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┫\n")
		}
		fmt.Fprintf(&b, "┃ 0x%04x ┃ ", a)
		for j := range bytesPerRow {
			if i+j < len(data) {
				fmt.Fprintf(&b, "%02x ", data[i+j])
			} else {
				b.WriteString("   ")
			}
			// Space every 8 bytes to keep your eyes from crossing
			if j == 7 {
				b.WriteString(" ")
			}
		}
		b.WriteString("┃\n")
	}
	b.WriteString("┗━━━━━━━━┻━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┛\n")

	return b.String()
}

// splitmix64
func Hash(val uint64) uint64 {
	x := val
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	x =  x ^ (x >> 31)
	return x
}
