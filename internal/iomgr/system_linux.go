//go:build linux

package iomgr

import (
	"errors"
	"log/slog"
	"runtime"
	"unsafe"

	"github.com/aethne0/giouring"
	"golang.org/x/sys/unix"
)

// The image files this serves are tiny (one 32KiB EEPROM) and every transfer is a page
// or less, so no O_DIRECT: a 64 byte write at 0x40 is never sector aligned.
const MMAP_MODE   	= unix.MAP_ANON  | unix.MAP_PRIVATE
const MMAP_PROT   	= unix.PROT_READ | unix.PROT_WRITE
const F_OPEN_MODE 	= unix.O_RDWR | unix.O_CREAT | unix.O_CLOEXEC
const F_OPEN_PERM 	= 0b_000_110_100_000
const RING_ENTRIES 	= 0x10
const RING_DPTHTRG	= 0x08
const OP_Q_SIZE		= 0x10

var ErrClosed = errors.New("iomgr: closed")

// For fixed buffers handed to the kernel - not for io_uring itself, liburing handles
// mmap-ing for io_uring setup. Memory from here never moves and is page aligned.
func AllocSlab(size int) ([]byte, error) {
	raw, err := unix.Mmap(-1, 0, int(size), MMAP_PROT, MMAP_MODE)
	if err != nil {
		slog.Error("AllocSlab", "err", err)
	}
	return raw, err
}

func DeallocSlab(ptr []byte) error {
	err := unix.Munmap(ptr)
	if err != nil {
		slog.Error("DeallocSlab", "err", err)
	}
	return err
}

// IoMgr owns one file and one ring. A single goroutine (ringlord) does all ring work;
// everyone else talks to it through Submit and waits on their Op's channel.
type IoMgr struct {
	log			*slog.Logger
	ring 		*giouring.Ring
	fd			int
	opQueue		chan *Op
	opSem		chan struct{}
	quit		chan struct{}
	done		chan struct{}
}

func CreateIoMgr(path string) (*IoMgr, error) {
	log := slog.With("src", "IoMgr")

	fd, err := unix.Open(path, F_OPEN_MODE, F_OPEN_PERM)
	if err != nil { return nil, err }

	ring, err := giouring.CreateRing(RING_ENTRIES)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	iomgr := IoMgr {
		log: 		log,
		ring: 		ring,
		fd:			fd,
		opQueue: 	make(chan *Op, OP_Q_SIZE),
		opSem: 		make(chan struct{}, RING_ENTRIES),
		quit:		make(chan struct{}),
		done:		make(chan struct{}),
	}

	go iomgr.ringlord()
	log.Debug("CreateIoMgr", "path", path, "fd", fd)
	return &iomgr, nil
}

func (m *IoMgr) Fd() int { return m.fd }

func (m *IoMgr) Size() (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(m.fd, &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}

// Close waits for everything already submitted to complete. Submitting after Close is
// a bug.
func (m *IoMgr) Close() error {
	select {
	case <-m.quit:
		return ErrClosed
	default:
	}
	close(m.quit)
	<- m.done
	m.ring.QueueExit()
	return unix.Close(m.fd)
}

type OpCode uint16
const (
	OpNop 	OpCode = iota
	OpWrite
	OpRead
	OpSync
	OpAllocate
)

// An op may have at most OP_MAX_OPS linked operations. A multi-part op is submitted as
// one link chain, so a failed part cancels the rest.
const OP_MAX_OPS = 4
type Op struct {
	Fd		int
	Bufs	[OP_MAX_OPS]uintptr
	Lens	[OP_MAX_OPS]uint32
	Offs	[OP_MAX_OPS]uint64
	Count   uint16

	seen	uint16
	total	int32

	Ch 		chan struct{}

	// bytes transferred by all parts, or the first negative errno
	Res		int32
	Opcode	OpCode
	failed 	bool
	Sync 	bool
}

func NewOp() *Op {
	return &Op{Ch: make(chan struct{}, 1)}
}

func (op *Op) Prepare(fd int, opcode OpCode) {
	op.Fd = fd
	op.Opcode = opcode
	op.Count = 0
	op.Sync = false
	op.Res = 0
}

// AddSlice appends one part. buf must stay put until the op completes, so it should come
// from AllocSlab.
func (op *Op) AddSlice(buf []byte, off uint64) {
	if op.Count == OP_MAX_OPS { panic("op overflow") }
	op.Bufs[op.Count] = uintptr(unsafe.Pointer(&buf[0]))
	op.Lens[op.Count] = uint32(len(buf))
	op.Offs[op.Count] = off
	op.Count++
}

// WARN: op MUST HAVE A FIXED ADDRESS until its channel fires
func (m *IoMgr) Submit(op *Op) {
	n := max(op.Count, 1)
	if op.Opcode == OpWrite && op.Sync { n++ }
	for range n {
		m.opSem <- struct{}{}
	}
	m.opQueue <- op
}

// Do submits op and waits for it.
func (m *IoMgr) Do(op *Op) (int, error) {
	m.Submit(op)
	<- op.Ch
	if op.Res < 0 {
		return 0, unix.Errno(-op.Res)
	}
	return int(op.Res), nil
}

func (m *IoMgr) prepSQEs(op *Op) uint {
	op.failed = false
	op.seen = 0
	op.total = 0
	ud := uint64(uintptr(unsafe.Pointer(op)))

	switch op.Opcode {
	case OpNop:
		op.Count = max(op.Count, 1)
		for i := range op.Count {
			sqe := m.ring.GetSQE()
			sqe.PrepareNop()
			sqe.UserData = ud
			if i < op.Count - 1 { sqe.Flags |= giouring.SqeIOLink }
		}

	case OpWrite:
		for i := range op.Count {
			sqe := m.ring.GetSQE()
			sqe.PrepareWrite(op.Fd, op.Bufs[i], op.Lens[i], op.Offs[i])
			sqe.UserData = ud
			if op.Sync || i < op.Count - 1 { sqe.Flags |= giouring.SqeIOLink }
		}
		if op.Sync {
			op.Count++
			sqe := m.ring.GetSQE()
			sqe.PrepareFsync(op.Fd, 0)
			sqe.UserData = ud
		}

	case OpRead:
		for i := range op.Count {
			sqe := m.ring.GetSQE()
			sqe.PrepareRead(op.Fd, op.Bufs[i], op.Lens[i], op.Offs[i])
			sqe.UserData = ud
			if i < op.Count - 1 { sqe.Flags |= giouring.SqeIOLink }
		}

	case OpSync:
		op.Count = 1
		sqe := m.ring.GetSQE()
		sqe.PrepareFsync(op.Fd, 0)
		sqe.UserData = ud

	case OpAllocate:
		op.Count = 1
		sqe := m.ring.GetSQE()
		sqe.PrepareFallocate(op.Fd, 0, op.Offs[0], uint64(op.Lens[0]))
		sqe.UserData = ud

	default:
		m.log.Warn("Invalid opcode", "opcode", op.Opcode)
		op.Res = -int32(unix.EINVAL)
		for range max(op.Count, 1) {
			<- m.opSem
		}
		op.Ch <- struct{}{}
		return 0
	}
	return uint(op.Count)
}

// "Those who sow the good seed
// Shall surely reap"
func (m *IoMgr) ringlord() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(m.done)

	var queued   uint = 0 // SQEs that we have "got" and prepared from the opQueue
	var inflight uint = 0 // SQEs that have been SUBMITTED

	// 1. collect submitted ops from opQueue and prepare SQEs
	// 2. submit
	// 3. reap CQEs, an op is answered once all of its CQEs are in
	for {
		// STAGE 1
		if inflight == 0 && queued == 0 {
			// nothing to reap, so block until someone hands us work
			select {
			case op := <- m.opQueue:
				queued += m.prepSQEs(op)
			case <- m.quit:
				return
			}
		}
		COLLECT: for {
			select {
			case op := <- m.opQueue:
				queued += m.prepSQEs(op)
			default:
				break COLLECT
			}
		}

		// STAGE 2
		if queued > 0 || inflight > 0 {
			var submitted uint
			var err error
			if queued == 0 || inflight + queued > RING_DPTHTRG {
				submitted, err = m.ring.SubmitAndWait(1)
			} else {
				submitted, err = m.ring.Submit()
			}
			if err != nil && err != unix.ETIME && err != unix.EINTR {
				m.log.Error("Submit", "err", err)
			}
			queued   -= submitted
			inflight += submitted
		}

		// STAGE 3
		for inflight > 0 {
			cqe, err := m.ring.PeekCQE()
			if err == unix.EAGAIN || err == unix.EINTR || err == unix.ETIME {
				break
			} else if err != nil {
				m.log.Error("Peek cqe fatal error", "err", err)
				panic("Something wrong with your IO_URING!")
			}
			if cqe == nil {
				break
			}

			inflight--

			op := (*Op)(unsafe.Pointer(uintptr(cqe.UserData)))
			op.seen++
			if cqe.Res < 0 {
				if !op.failed {
					op.failed = true
					op.Res = cqe.Res
				}
			} else {
				op.total += cqe.Res
			}

			if op.seen == op.Count {
				if !op.failed { op.Res = op.total }
				op.Ch <- struct{}{}
			}

			m.ring.CQESeen(cqe)
			<- m.opSem
		}
	}
}
