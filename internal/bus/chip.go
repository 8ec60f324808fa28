package bus

import (
	c "i2cflash/internal"
)

// Span is one contiguous run of device memory touched by a transaction. Src is where the
// run starts in the caller's buffer.
type Span struct {
	Off	uint32
	Src	int
	Len	int
}

// WriteSpans maps an n byte page write starting at ptr onto device memory. The chip's
// address counter only increments the low 6 bits during a page write, so a write that
// runs off the end of the page continues at the start of the same page, and if more than
// a page is sent only the last PAGE_SIZE bytes survive.
func WriteSpans(ptr uint32, n int) []Span {
	if n <= 0 {
		return nil
	}
	ptr %= c.DEVICE_SIZE
	src := 0
	if n > c.PAGE_SIZE {
		src = n - c.PAGE_SIZE
		ptr = c.Join(c.PageNo(ptr), (c.Offset(ptr)+uint32(src))&c.PAGE_MASK)
		n = c.PAGE_SIZE
	}

	first := min(n, int(c.PAGE_SIZE-c.Offset(ptr)))
	spans := []Span{{Off: ptr, Src: src, Len: first}}
	if first < n {
		spans = append(spans, Span{Off: c.Join(c.PageNo(ptr), 0), Src: src + first, Len: n - first})
	}
	return spans
}

// ReadSpans maps an n byte sequential read starting at ptr onto device memory. A
// sequential read rolls over from the last byte of the device to address 0.
func ReadSpans(ptr uint32, n int) []Span {
	var spans []Span
	ptr %= c.DEVICE_SIZE
	src := 0
	for n > 0 {
		l := min(n, int(c.DEVICE_SIZE-ptr))
		spans = append(spans, Span{Off: ptr, Src: src, Len: l})
		src += l
		n -= l
		ptr = 0
	}
	return spans
}

// AfterWrite is the address counter once the write in spans is done. It never leaves
// the page that was written.
func AfterWrite(spans []Span, ptr uint32) uint32 {
	if len(spans) == 0 {
		return ptr % c.DEVICE_SIZE
	}
	last := spans[len(spans)-1]
	return c.Join(c.PageNo(last.Off), (c.Offset(last.Off)+uint32(last.Len))&c.PAGE_MASK)
}

// After is the address counter once the read in spans is done.
func After(spans []Span, ptr uint32) uint32 {
	if len(spans) == 0 {
		return ptr % c.DEVICE_SIZE
	}
	last := spans[len(spans)-1]
	return (last.Off + uint32(last.Len)) % c.DEVICE_SIZE
}
