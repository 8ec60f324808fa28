package bus

import (
	c "i2cflash/internal"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_WriteSpans_Aligned_Page(t *testing.T) {
	spans := WriteSpans(c.PageIdToOffset(3), c.PAGE_SIZE)
	assert.Equal(t, []Span{{Off: 0xc0, Src: 0, Len: c.PAGE_SIZE}}, spans)
	// the counter rolled over inside page 3
	assert.Equal(t, uint32(0xc0), AfterWrite(spans, 0))
}

func Test_WriteSpans_Rollover_In_Page(t *testing.T) {
	spans := WriteSpans(0x40+0x30, 0x20)
	assert.Equal(t, []Span{
		{Off: 0x70, Src: 0, Len: 0x10},
		{Off: 0x40, Src: 0x10, Len: 0x10},
	}, spans)
	assert.Equal(t, uint32(0x50), AfterWrite(spans, 0))
	assert.Equal(t, uint32(9), AfterWrite(nil, 9))
}

func Test_WriteSpans_Longer_Than_Page(t *testing.T) {
	// 0x50 bytes at the top of page 0: the first 0x10 are overwritten
	spans := WriteSpans(0, 0x50)
	assert.Equal(t, []Span{
		{Off: 0x10, Src: 0x10, Len: 0x30},
		{Off: 0x00, Src: 0x40, Len: 0x10},
	}, spans)
	assert.Nil(t, WriteSpans(0, 0))
}

func Test_ReadSpans_Wraps_At_Device_End(t *testing.T) {
	spans := ReadSpans(c.DEVICE_SIZE-0x20, c.PAGE_SIZE)
	assert.Equal(t, []Span{
		{Off: c.DEVICE_SIZE - 0x20, Src: 0, Len: 0x20},
		{Off: 0, Src: 0x20, Len: 0x20},
	}, spans)
	assert.Equal(t, uint32(0x20), After(spans, 0))

	spans = ReadSpans(0x80, c.PAGE_SIZE)
	assert.Len(t, spans, 1)
	assert.Equal(t, uint32(0xc0), After(spans, 0))
	assert.Equal(t, uint32(7), After(nil, 7))
}
