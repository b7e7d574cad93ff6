package eccfault

import (
	"fmt"
	"testing"
)

type access struct {
	op   byte // 'r', 'w' or 'b'
	addr uintptr
	val  uint32
}

func (a access) String() string {
	if a.op == 'b' {
		return "barrier"
	}
	return fmt.Sprintf("%c 0x%08X 0x%08X", a.op, a.addr, a.val)
}

// fakeBus records every access. Stores land in regs unless a hook takes them;
// loads come from regs.
type fakeBus struct {
	t     *testing.T
	regs  map[uintptr]uint32
	hooks map[uintptr]func(v uint32)
	log   []access
}

func newFakeBus(t *testing.T) *fakeBus {
	f := &fakeBus{
		t:     t,
		regs:  map[uintptr]uint32{FlashCR: CrLOCK},
		hooks: map[uintptr]func(uint32){},
	}
	// SR flags are rc_w1, STRT clears itself
	f.hooks[FlashSR] = func(v uint32) { f.regs[FlashSR] &^= v }
	f.hooks[FlashCR] = func(v uint32) { f.regs[FlashCR] = v &^ CrSTRT }
	return f
}

// unlockable makes the second key clear LOCK.
func (f *fakeBus) unlockable() *fakeBus {
	keys := 0
	f.hooks[FlashKEYR] = func(v uint32) {
		switch {
		case keys == 0 && v == FlashKey1:
			keys = 1
		case keys == 1 && v == FlashKey2:
			keys = 0
			f.regs[FlashCR] &^= CrLOCK
		}
	}
	return f
}

func (f *fakeBus) dualBank(dual bool) *fakeBus {
	if dual {
		f.regs[FlashOPTR] |= optrDBANK
	} else {
		f.regs[FlashOPTR] &^= optrDBANK
	}
	return f
}

func (f *fakeBus) Load32(addr uintptr) uint32 {
	v := f.regs[addr]
	f.log = append(f.log, access{'r', addr, v})
	return v
}

func (f *fakeBus) Load8(addr uintptr) uint8 {
	v := f.regs[addr&^3]
	f.log = append(f.log, access{'r', addr, v})
	return uint8(v >> (8 * (addr % 4)))
}

func (f *fakeBus) Store32(addr uintptr, v uint32) {
	f.log = append(f.log, access{'w', addr, v})
	if h, ok := f.hooks[addr]; ok {
		h(v)
		return
	}
	f.regs[addr] = v
}

func (f *fakeBus) Barrier() {
	f.log = append(f.log, access{op: 'b'})
}

// writes returns the stores to addr in order.
func (f *fakeBus) writes(addr uintptr) []uint32 {
	var out []uint32
	for _, a := range f.log {
		if a.op == 'w' && a.addr == addr {
			out = append(out, a.val)
		}
	}
	return out
}

func (f *fakeBus) expectLog(want ...access) {
	f.t.Helper()
	if len(f.log) != len(want) {
		f.t.Fatalf("got %d accesses %v, want %v", len(f.log), f.log, want)
	}
	for i := range want {
		if f.log[i] != want[i] {
			f.t.Fatalf("access %d: got %v, want %v", i, f.log[i], want[i])
		}
	}
}

// memBackup is an in-memory Backup that counts stores.
type memBackup struct {
	slot   [RTCBackupCount]uint32
	stores int
}

func (m *memBackup) Load(i int) uint32 { return m.slot[i] }

func (m *memBackup) Store(i int, v uint32) {
	m.slot[i] = v
	m.stores++
}

func TestModify32(t *testing.T) {
	f := newFakeBus(t)
	f.regs[FlashCR] = 0xF0
	modify32(f, FlashCR, 0x30, 0x01)
	if got := f.regs[FlashCR]; got != 0xC1 {
		t.Fatalf("CR 0x%X", got)
	}
}
