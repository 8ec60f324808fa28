//go:build linux

package iomgr

import (
	c "i2cflash/internal"
	"path/filepath"

	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
		AddSource:  true,
	})))
	os.Exit(m.Run())
}

func tempfile(t *testing.T) string {
	dir := t.TempDir()
	return filepath.Join(dir, fmt.Sprintf("eetest%016x.img", rand.Uint64()))
}

// Sandboxes and old kernels refuse io_uring; nothing here can run without it.
func createOrSkip(t *testing.T, path string) *IoMgr {
	t.Helper()
	m, err := CreateIoMgr(path)
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func Test_Iomgr_Allocate_Write_Read(t *testing.T) {
	m := createOrSkip(t, tempfile(t))

	op := NewOp()
	op.Prepare(m.Fd(), OpAllocate)
	op.Lens[0] = c.DEVICE_SIZE
	_, err := m.Do(op)
	require.NoError(t, err)

	size, err := m.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(c.DEVICE_SIZE), size)

	slab, err := AllocSlab(2 * c.PAGE_SIZE * 2)
	require.NoError(t, err)
	defer DeallocSlab(slab)

	out := slab[:2*c.PAGE_SIZE]
	in := slab[2*c.PAGE_SIZE:]
	for i := range out {
		out[i] = byte(rand.Uint32())
	}

	// last page and first page in one linked write, like a wrapping transfer
	op.Prepare(m.Fd(), OpWrite)
	op.AddSlice(out[:c.PAGE_SIZE], c.DEVICE_SIZE-c.PAGE_SIZE)
	op.AddSlice(out[c.PAGE_SIZE:], 0)
	op.Sync = true
	n, err := m.Do(op)
	require.NoError(t, err, op.String())
	assert.Equal(t, 2*c.PAGE_SIZE, n)

	op.Prepare(m.Fd(), OpRead)
	op.AddSlice(in[:c.PAGE_SIZE], c.DEVICE_SIZE-c.PAGE_SIZE)
	op.AddSlice(in[c.PAGE_SIZE:], 0)
	n, err = m.Do(op)
	require.NoError(t, err)
	assert.Equal(t, 2*c.PAGE_SIZE, n)

	assert.True(t, slices.Equal(out, in), "read-back data didnt match")
}

func Test_Iomgr_Nop_And_Sync(t *testing.T) {
	m := createOrSkip(t, tempfile(t))

	op := NewOp()
	op.Prepare(m.Fd(), OpNop)
	op.Count = 3
	n, err := m.Do(op)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)

	op.Prepare(m.Fd(), OpSync)
	_, err = m.Do(op)
	assert.NoError(t, err)
}

func Test_Iomgr_Bad_Fd(t *testing.T) {
	m := createOrSkip(t, tempfile(t))

	slab, err := AllocSlab(c.PAGE_SIZE)
	require.NoError(t, err)
	defer DeallocSlab(slab)

	op := NewOp()
	op.Prepare(-1, OpRead)
	op.AddSlice(slab, 0)
	_, err = m.Do(op)
	assert.Error(t, err)
}

func Test_Iomgr_Close_Twice(t *testing.T) {
	m, err := CreateIoMgr(tempfile(t))
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	assert.NoError(t, m.Close())
	assert.ErrorIs(t, m.Close(), ErrClosed)
}
