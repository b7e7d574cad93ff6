package sim

import (
	"github.com/gentam/eccfault"
)

const (
	optrDBANK   = 1 << 22
	idcodeRevZ  = 0x1001 << 16
	iwdgSrMask  = 0x7
	iwdgSyncLSI = 3 // LSI periods a PR/RLR write takes to land
)

func isFlash(addr uintptr) bool {
	return addr >= eccfault.FlashBase && addr < eccfault.FlashBase+eccfault.FlashSize
}

func isBackup(addr uintptr) (int, bool) {
	if addr < eccfault.RTCBKP0R || addr >= eccfault.RTCBKP0R+eccfault.RTCBackupCount*4 || addr%4 != 0 {
		return 0, false
	}
	return int(addr-eccfault.RTCBKP0R) / 4, true
}

// isReserved reports whether addr lies in the hole between the end of flash
// and SRAM2, where every access is a bus error [RM0432|Figure 2. Memory map].
func isReserved(addr uintptr) bool {
	return addr >= eccfault.FlashBase+eccfault.FlashSize && addr < 0x1000_0000
}

// tick advances time by n cycles. Operations finishing on the way complete;
// an expiring watchdog, an injected fault or the stall limit unwinds the caller.
func (m *Machine) tick(n uint64) {
	if m.halted {
		return
	}
	end := m.cycle + n
	in := &m.inject
	fault := in.pending && in.at <= end
	if m.wdgRunning && m.deadline <= end && !(fault && in.at < m.deadline) {
		m.cycle = m.deadline
		m.complete()
		m.raise(resetSignal{})
	}
	if fault {
		in.pending = false
		m.cycle = max(m.cycle, in.at)
		m.complete()
		m.Stats.Faults++
		m.raise(faultSignal{in.exc})
	}
	m.cycle = end
	m.complete()
	if m.cfg.StallCycles > 0 && m.cycle >= m.cfg.StallCycles {
		m.raise(stallSignal{})
	}
}

func (m *Machine) raise(sig interface{}) {
	m.halted = true
	panic(sig)
}

// backupClocked reports whether the RTC registers can be read.
func (m *Machine) backupClocked() bool {
	const need = eccfault.RCCAPB1ENR1PWREN | eccfault.RCCAPB1ENR1RTCAPBEN
	return m.apb1enr1&need == need
}

func (m *Machine) busy() bool { return m.op.kind != opNone }

// complete finishes a flash operation whose time is up.
func (m *Machine) complete() {
	if !m.busy() || m.cycle < m.op.until {
		return
	}
	switch m.op.kind {
	case opErase:
		first := m.op.page * m.pageSize() / 8
		for i := uint32(0); i < m.pageSize()/8; i++ {
			delete(m.mem, first+i)
			delete(m.bad, first+i)
		}
	case opProgram:
		m.mem[m.op.dword] = m.dword(m.op.dword) & m.op.data
	}
	m.sr |= eccfault.SrEOP
	m.op = pendingOp{}
}

// stall holds the bus while the controller is busy, as a CR or array write
// does on the real part.
func (m *Machine) stall() {
	if m.busy() {
		m.tick(m.op.until - m.cycle)
	}
}

// Spin busy-waits n iterations.
func (m *Machine) Spin(n uint32) {
	m.tick(uint64(n) * m.cfg.SpinCycles)
}

func (m *Machine) Barrier() {
	m.tick(m.cfg.BusCycles)
}

// busFault raises BusFault, or HardFault while BusFault is not enabled in
// SHCSR [PM0214|4.4.9].
func (m *Machine) busFault() {
	exc := eccfault.ExceptionHardFault
	if m.shcsr&eccfault.ShcsrBusFaultEna != 0 {
		exc = eccfault.ExceptionBusFault
	}
	m.Stats.Faults++
	m.raise(faultSignal{exc})
}

func (m *Machine) Load8(addr uintptr) uint8 {
	if isFlash(addr) {
		m.tick(m.cfg.BusCycles)
		if m.halted {
			return 0
		}
		off := uint32(addr - eccfault.FlashBase)
		m.checkECC(off)
		return uint8(m.dword(off/8) >> (8 * (off % 8)))
	}
	return uint8(m.Load32(addr&^3) >> (8 * (addr % 4)))
}

func (m *Machine) Load32(addr uintptr) uint32 {
	m.tick(m.cfg.BusCycles)
	if m.halted {
		return 0
	}
	if isReserved(addr) {
		m.busFault()
	}
	if isFlash(addr) {
		off := uint32(addr - eccfault.FlashBase)
		m.checkECC(off)
		return uint32(m.dword(off/8) >> (8 * (off % 8)))
	}
	if i, ok := isBackup(addr); ok {
		if !m.backupClocked() {
			return 0
		}
		return m.backup[i]
	}
	switch addr {
	case eccfault.RCCAPB1ENR1:
		return m.apb1enr1
	case eccfault.PWRCR1:
		return m.pwrcr1
	case eccfault.RTCTAMPCR:
		return m.tampcr
	case eccfault.SCBSHCSR:
		return m.shcsr
	case eccfault.FlashSR:
		if m.busy() {
			return m.sr | eccfault.SrBSY
		}
		return m.sr
	case eccfault.FlashCR:
		return m.cr
	case eccfault.FlashECCR:
		return m.eccr
	case eccfault.FlashOPTR:
		if m.cfg.DualBank {
			return optrDBANK
		}
		return 0
	case eccfault.IWDGSR:
		if m.cycle < m.wdgUpdate {
			return iwdgSrMask
		}
		return 0
	case eccfault.IWDGPR:
		return m.wdgPR
	case eccfault.IWDGRLR:
		return m.wdgRLR
	case eccfault.DBGMCUIDCODE:
		return idcodeRevZ | uint32(m.cfg.DeviceID)
	}
	return 0
}

func (m *Machine) Store32(addr uintptr, v uint32) {
	m.tick(m.cfg.BusCycles)
	if m.halted {
		return
	}
	if isReserved(addr) {
		m.busFault()
	}
	if isFlash(addr) {
		m.program(uint32(addr-eccfault.FlashBase), v)
		return
	}
	if i, ok := isBackup(addr); ok {
		if m.backupClocked() && m.pwrcr1&eccfault.PWRCR1DBP != 0 {
			m.backup[i] = v
		}
		return
	}
	switch addr {
	case eccfault.RCCAPB1ENR1:
		m.apb1enr1 = v
	case eccfault.PWRCR1:
		m.pwrcr1 = v
	case eccfault.SCBSHCSR:
		m.shcsr = v
	case eccfault.RTCTAMPCR:
		if m.backupClocked() && m.pwrcr1&eccfault.PWRCR1DBP != 0 {
			m.tampcr = v
		}
	case eccfault.FlashKEYR:
		m.key(v)
	case eccfault.FlashSR:
		m.sr &^= v & (eccfault.SrEOP | eccfault.SrOPERR | eccfault.SrProgrammingErrors)
	case eccfault.FlashCR:
		m.control(v)
	case eccfault.FlashECCR:
		m.eccr &^= v & (1<<31 | 1<<30 | 1<<29 | 1<<28)
	case eccfault.IWDGKR:
		m.watchdogKey(v)
	case eccfault.IWDGPR:
		if m.wdgAccess {
			m.wdgPR = v & 0x7
			m.wdgUpdate = m.cycle + iwdgSyncLSI*m.lsiCycles()
		}
	case eccfault.IWDGRLR:
		if m.wdgAccess {
			m.wdgRLR = v & 0xFFF
			m.wdgUpdate = m.cycle + iwdgSyncLSI*m.lsiCycles()
		}
	}
}

// checkECC raises the NMI for an uncorrectable double word, latching ECCR
// first. Dual-bank addresses are bank relative with BK_ECC; single-bank ones
// report the upper half of a 128-bit line in ECCD2.
func (m *Machine) checkECC(off uint32) {
	dw := off / 8
	if !m.bad[dw] {
		return
	}
	a := dw * 8
	var e uint32
	switch {
	case m.cfg.DualBank && a >= eccfault.FlashBankSize:
		e = 1<<31 | 1<<21 | (a - eccfault.FlashBankSize)
	case m.cfg.DualBank:
		e = 1<<31 | a
	case dw%2 == 1:
		e = 1<<29 | a
	default:
		e = 1<<31 | a
	}
	m.eccr = m.eccr&(1<<24) | e
	m.Stats.Faults++
	m.raise(faultSignal{eccfault.ExceptionNMI})
}

func (m *Machine) key(v uint32) {
	if m.cr&eccfault.CrLOCK == 0 {
		return
	}
	switch {
	case m.keyFailed:
	case m.keyState == 0 && v == eccfault.FlashKey1:
		m.keyState = 1
	case m.keyState == 1 && v == eccfault.FlashKey2:
		m.keyState = 0
		m.cr &^= eccfault.CrLOCK
	default:
		// a wrong key locks the controller until reset
		m.keyFailed = true
	}
}

func (m *Machine) control(v uint32) {
	if m.cr&eccfault.CrLOCK != 0 {
		return
	}
	m.stall()
	if m.halted {
		return
	}
	if v&eccfault.CrPG != 0 && m.cr&eccfault.CrPG == 0 {
		m.Stats.ProgramSessions++
	}
	if v&eccfault.CrPG == 0 {
		m.latched = false
	}
	m.cr = v &^ eccfault.CrSTRT
	if v&eccfault.CrSTRT != 0 {
		m.startErase(v)
	}
}

func (m *Machine) startErase(v uint32) {
	if v&eccfault.CrPER == 0 || v&eccfault.CrPG != 0 || m.sr&eccfault.SrProgrammingErrors != 0 {
		m.sr |= eccfault.SrPGSERR
		return
	}
	page := (v & eccfault.CrPNBMask) >> eccfault.CrPNBShift
	if v&eccfault.CrBKER != 0 {
		if !m.cfg.DualBank {
			m.sr |= eccfault.SrPGSERR
			return
		}
		page += 256
	}
	m.op = pendingOp{kind: opErase, until: m.cycle + m.cycles(m.cfg.EraseTime), page: page}
	m.Stats.Erases++
}

// program takes one 32-bit half of a double word. The second half starts the
// operation.
func (m *Machine) program(off, v uint32) {
	if m.cr&eccfault.CrLOCK != 0 || m.cr&eccfault.CrPG == 0 || m.sr&eccfault.SrProgrammingErrors != 0 {
		m.sr |= eccfault.SrPGSERR
		m.latched = false
		return
	}
	m.stall()
	if m.halted {
		return
	}
	if !m.latched {
		if off%8 != 0 {
			m.sr |= eccfault.SrPGAERR
			return
		}
		m.latched, m.latchAddr, m.latchLow = true, off, v
		return
	}
	m.latched = false
	if off != m.latchAddr+4 {
		m.sr |= eccfault.SrPGAERR
		return
	}
	dw := off / 8
	data := uint64(v)<<32 | uint64(m.latchLow)
	if m.dword(dw) != ^uint64(0) && data != 0 {
		m.sr |= eccfault.SrPROGERR
		return
	}
	m.op = pendingOp{kind: opProgram, until: m.cycle + m.cycles(m.cfg.ProgramTime), dword: dw, data: data}
	m.Stats.Programs++
}

func (m *Machine) lsiCycles() uint64 {
	return uint64(m.cfg.Clock / m.cfg.LSI)
}

func (m *Machine) watchdogKey(v uint32) {
	switch v {
	case eccfault.IWDGKeyStart:
		m.wdgRunning = true
		m.reload()
	case eccfault.IWDGKeyAccess:
		m.wdgAccess = true
	case eccfault.IWDGKeyReload:
		m.wdgAccess = false
		if m.wdgRunning {
			m.reload()
			m.Stats.Reloads++
		}
	default:
		m.wdgAccess = false
	}
}

func (m *Machine) reload() {
	d := uint64(m.wdgRLR) * uint64(4<<m.wdgPR) * m.lsiCycles()
	if j := m.cfg.Jitter; j > 0 {
		d += uint64(m.rnd.Int63n(int64(2*j + 1)))
		d = max(d, j) - j
	}
	m.deadline = m.cycle + d
}
