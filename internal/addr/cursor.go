package addr

import (
	c "i2cflash/internal"

	"sync/atomic"
)

// Advance is the cursor arithmetic: (page + n) mod PAGE_COUNT.
func Advance(page uint32, n uint32) uint32 {
	return uint32((uint64(page) + uint64(n)) % c.PAGE_COUNT)
}

// Cursor holds the current page as a page-aligned byte pointer. The executor and
// SetPointer can race (SetPointer doesn't care if the device is busy), so the
// pointer is atomic.
type Cursor struct {
	ptr atomic.Uint32
}

func (cur *Cursor) Page() uint32 { return c.PageNo(cur.ptr.Load()) }

// Set moves the cursor to page. Returns false and leaves the cursor alone if the page
// doesn't exist.
func (cur *Cursor) Set(page uint32) bool {
	if page >= c.PAGE_COUNT {
		return false
	}
	cur.ptr.Store(c.Join(page, 0))
	return true
}

// Step advances the cursor by n pages and returns the new page.
func (cur *Cursor) Step(n uint32) uint32 {
	next := Advance(cur.Page(), n)
	cur.ptr.Store(c.Join(next, 0))
	return next
}

func (cur *Cursor) Reset() {
	cur.ptr.Store(0)
}
