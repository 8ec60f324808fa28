package xfer

import (
	c "i2cflash/internal"
	"i2cflash/internal/addr"
	"i2cflash/internal/bus"

	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func frameFor(page uint32, data []byte) []byte {
	a := addr.Encode(page)
	return append(a[:], data...)
}

func TestWriteFrames(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBus(ctrl)
	data := payload(2)

	gomock.InOrder(
		b.EXPECT().Send(frameFor(3, data[:c.PAGE_SIZE])).Return(c.FRAME_SIZE, nil),
		b.EXPECT().Send(frameFor(4, data[c.PAGE_SIZE:])).Return(c.FRAME_SIZE, nil),
	)

	e := newEngine(t, b, WithMode(ModeBlocking))
	require.NoError(t, e.SetPointer(3))
	require.NoError(t, e.Write(data, 2))
	assert.Equal(t, uint32(5), e.Pointer())
}

func TestReadFrames(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBus(ctrl)

	fill := func(v byte) func([]byte) (int, error) {
		return func(p []byte) (int, error) {
			for i := range p {
				p[i] = v
			}
			return len(p), nil
		}
	}

	// 510 << 6 == 0x7f80, MSB first
	gomock.InOrder(
		b.EXPECT().Send([]byte{0x7f, 0x80}).Return(c.ADDR_LEN, nil),
		b.EXPECT().Recv(gomock.Len(c.PAGE_SIZE)).DoAndReturn(fill(1)),
		b.EXPECT().Recv(gomock.Len(c.PAGE_SIZE)).DoAndReturn(fill(2)),
		b.EXPECT().Recv(gomock.Len(c.PAGE_SIZE)).DoAndReturn(fill(3)),
	)

	e := newEngine(t, b, WithMode(ModeBlocking))
	require.NoError(t, e.SetPointer(510))

	dst := make([]byte, 3*c.PAGE_SIZE)
	n, err := e.Read(dst, 3)
	require.NoError(t, err)
	assert.Equal(t, len(dst), n)
	for i := range 3 {
		assert.Equal(t, bytes.Repeat([]byte{byte(i + 1)}, c.PAGE_SIZE), dst[i*c.PAGE_SIZE:(i+1)*c.PAGE_SIZE])
	}
	assert.Equal(t, uint32(1), e.Pointer())
}

func TestEraseFrames(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBus(ctrl)

	var pages []uint32
	b.EXPECT().Send(gomock.Len(c.FRAME_SIZE)).Times(c.PAGE_COUNT).DoAndReturn(func(p []byte) (int, error) {
		page, off := addr.Decode(p)
		assert.Equal(t, uint32(0), off)
		assert.Equal(t, bytes.Repeat([]byte{0xff}, c.PAGE_SIZE), p[c.ADDR_LEN:])
		pages = append(pages, page)
		return len(p), nil
	})

	e := newEngine(t, b, WithMode(ModeBlocking))
	require.NoError(t, e.SetPointer(9))
	require.NoError(t, e.Erase())

	require.Len(t, pages, c.PAGE_COUNT)
	for i, page := range pages {
		assert.Equal(t, uint32(i), page)
	}
	assert.Equal(t, uint32(0), e.Pointer())
}

func TestIndicatorPerAttempt(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBus(ctrl)
	led := NewMockIndicator(ctrl)

	gomock.InOrder(
		led.EXPECT().Set(true),
		b.EXPECT().Send(gomock.Any()).Return(0, bus.ErrNoAck),
		led.EXPECT().Set(false),
		led.EXPECT().Set(true),
		b.EXPECT().Send(gomock.Any()).Return(c.FRAME_SIZE, nil),
		led.EXPECT().Set(false),
	)

	e := newEngine(t, b, WithMode(ModeBlocking), WithIndicator(led), WithRetry(2, 0))
	require.NoError(t, e.Write(payload(1), 1))
}

func TestUnboundedRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBus(ctrl)

	gomock.InOrder(
		b.EXPECT().Send(gomock.Any()).Return(0, bus.ErrNoAck).Times(100),
		b.EXPECT().Send(gomock.Any()).Return(c.FRAME_SIZE, nil),
	)

	e := newEngine(t, b, WithMode(ModeBlocking), WithRetry(1, 0), WithUnboundedRetry())
	require.NoError(t, e.Write(payload(1), 1))
	assert.Equal(t, uint64(100), e.Stats().Retries)
}

func TestShortRecvIsRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	b := NewMockBus(ctrl)

	gomock.InOrder(
		b.EXPECT().Send(gomock.Any()).Return(c.ADDR_LEN, nil),
		b.EXPECT().Recv(gomock.Any()).Return(c.PAGE_SIZE-1, nil),
		b.EXPECT().Recv(gomock.Any()).Return(c.PAGE_SIZE, nil),
	)

	e := newEngine(t, b, WithMode(ModeBlocking), WithRetry(2, 0))
	n, err := e.Read(make([]byte, c.PAGE_SIZE), 1)
	require.NoError(t, err)
	assert.Equal(t, c.PAGE_SIZE, n)
	assert.Equal(t, uint64(1), e.Stats().Retries)
}
