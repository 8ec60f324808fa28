//go:build linux
package iomgr

import (
	"fmt"
	"strings"
)

var opNames = [...]string{"NOP", "WRITE", "READ", "FSYNC", "FALLOCATE"}

func (o OpCode) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("OpCode(%d)", uint16(o))
}

func (o *Op) String() string {
	if o == nil {
		return "<nil>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Op | Opcode: %v, Fd: %d, Failed: %v, Count: %d, Seen: %d, Res: %d\n",
		o.Opcode, o.Fd, o.failed, o.Count, o.seen, o.Res)

	switch o.Opcode {
	case OpWrite, OpRead:
		for i := range min(OP_MAX_OPS, o.Count) {
			d := "|"
			if i + 1 == o.seen {
				d = ">"
			}
			fmt.Fprintf(&b, "   %s [%02d] %-9s [ Len: 0x%04x | Off: 0x%04x ]\n",
				d, i, o.Opcode, o.Lens[i], o.Offs[i])
		}
		if o.Sync {
			fmt.Fprintf(&b, "   | [%02d] FSYNC     [ ]\n", min(OP_MAX_OPS, o.Count))
		}
	case OpSync, OpAllocate:
		fmt.Fprintf(&b, "   > [00] %-9s [ ]\n", o.Opcode)
	}

	return b.String()
}
