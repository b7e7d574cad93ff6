// Package sim is a cycle-counting model of the STM32L4R5 peripherals the
// firmware uses: the flash controller and array with per double word ECC,
// the RTC backup registers, the IWDG, DBGMCU_IDCODE and the three status LEDs.
//
// Machine implements eccfault.Bus. Every bus access costs BusCycles, a spin
// iteration SpinCycles. A watchdog reset or an ECC NMI unwinds the running
// firmware with a panic that Run recovers, which is the closest a hosted
// program gets to an asynchronous exception.
package sim

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/gentam/eccfault"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

// Config describes the simulated chip.
type Config struct {
	Clock    physic.Frequency // core clock
	LSI      physic.Frequency // IWDG clock
	DualBank bool
	DeviceID uint16

	EraseTime   time.Duration // one page
	ProgramTime time.Duration // one double word

	BusCycles  uint64 // per bus access
	SpinCycles uint64 // per spin iteration

	// Jitter moves every watchdog deadline by up to this many cycles either
	// way, drawn from Seed.
	Jitter uint64
	Seed   int64

	// StallCycles ends a boot that runs this long without a reset, standing
	// in for the observer who notices a parked board.
	StallCycles uint64
}

// DefaultConfig models a NUCLEO-L4R5ZI at its reset clock with typical flash
// timings [DS12023|Table 80].
func DefaultConfig() Config {
	return Config{
		Clock:       4 * physic.MegaHertz,
		LSI:         eccfault.LSIFrequency,
		DualBank:    true,
		DeviceID:    0x470,
		EraseTime:   22 * time.Millisecond,
		ProgramTime: 82 * time.Microsecond,
		BusCycles:   1,
		SpinCycles:  5,
		StallCycles: 40_000_000, // 10s
	}
}

type opKind uint8

const (
	opNone opKind = iota
	opErase
	opProgram
)

type pendingOp struct {
	kind  opKind
	until uint64
	page  uint32 // opErase: global page number
	dword uint32 // opProgram: double word index
	data  uint64
}

// Machine is one simulated board. It is not safe for concurrent use.
type Machine struct {
	cfg Config
	rnd *rand.Rand

	cycle  uint64
	halted bool

	// flash array, indexed by double word; missing entries are erased
	mem map[uint32]uint64
	bad map[uint32]bool

	sr, cr, eccr uint32
	keyState     int
	keyFailed    bool
	latched      bool
	latchAddr    uint32
	latchLow     uint32
	op           pendingOp

	backup   [eccfault.RTCBackupCount]uint32
	tampcr   uint32
	apb1enr1 uint32
	pwrcr1   uint32

	shcsr uint32

	// injected fault for the next boot, see InjectFault
	inject struct {
		pending bool
		at      uint64
		exc     eccfault.Exception
	}

	wdgRunning bool
	wdgAccess  bool
	wdgPR      uint32
	wdgRLR     uint32
	wdgUpdate  uint64
	deadline   uint64

	Red, Green, Blue *gpiotest.Pin

	Stats Stats
}

// Stats counts what the firmware did since New or ResetStats.
type Stats struct {
	Boots           int
	Resets          int
	Faults          int
	Erases          int
	ProgramSessions int // rising edges of FLASH_CR.PG
	Programs        int // double word programs started
	Reloads         int // IWDG reloads, Feed and FeedMinimal alike
	Torn            int // operations cut short by a reset
}

// New returns a powered-up machine with erased flash and zeroed backup registers.
func New(cfg Config) *Machine {
	m := &Machine{
		cfg:   cfg,
		rnd:   rand.New(rand.NewSource(cfg.Seed)),
		mem:   map[uint32]uint64{},
		bad:   map[uint32]bool{},
		Red:   &gpiotest.Pin{N: "LD3", Num: 30},
		Green: &gpiotest.Pin{N: "LD1", Num: 39},
		Blue:  &gpiotest.Pin{N: "LD2", Num: 23},
	}
	m.reset()
	return m
}

// Board wires an eccfault.Board to the machine.
func (m *Machine) Board(cfg eccfault.Config) *eccfault.Board {
	status := eccfault.Indicator{Red: m.Red, Green: m.Green, Blue: m.Blue}
	return eccfault.NewBoard(m, cfg, status, m.Spin)
}

// Signal decodes the LEDs.
func (m *Machine) Signal() eccfault.Signal {
	return eccfault.DecodeSignal(m.Red.Read(), m.Green.Read(), m.Blue.Read())
}

// Cycles is the time since the last reset.
func (m *Machine) Cycles() uint64 { return m.cycle }

// Backup returns backup register i, whether or not the firmware enabled the
// backup domain.
func (m *Machine) Backup(i int) uint32 { return m.backup[i] }

// SetBackup writes backup register i, as a debugger would.
func (m *Machine) SetBackup(i int, v uint32) { m.backup[i] = v }

// PowerCycle loses the backup domain.
func (m *Machine) PowerCycle() {
	m.backup = [eccfault.RTCBackupCount]uint32{}
	m.reset()
}

// Corrupt marks the double word holding flash offset off as uncorrectable.
func (m *Machine) Corrupt(off uint32) {
	m.bad[off/8] = true
}

// Corrupted returns the flash offsets of all uncorrectable double words.
func (m *Machine) Corrupted() []uint32 {
	out := make([]uint32, 0, len(m.bad))
	for dw := range m.bad {
		out = append(out, dw*8)
	}
	return out
}

// ReadFlash returns n bytes of flash at off without ECC checks.
func (m *Machine) ReadFlash(off uint32, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		a := off + uint32(i)
		out[i] = byte(m.dword(a/8) >> (8 * (a % 8)))
	}
	return out
}

// InjectFault raises exc once the next boot has run for at cycles, standing
// in for a fault the firmware did not cause through flash. A watchdog reset
// due earlier wins and the fault stays pending.
func (m *Machine) InjectFault(at uint64, exc eccfault.Exception) {
	m.inject.pending, m.inject.at, m.inject.exc = true, at, exc
}

// IsCorrupted reports whether the double word holding off is uncorrectable.
func (m *Machine) IsCorrupted(off uint32) bool { return m.bad[off/8] }

func (m *Machine) dword(i uint32) uint64 {
	if v, ok := m.mem[i]; ok {
		return v
	}
	return ^uint64(0)
}

func (m *Machine) cycles(d time.Duration) uint64 {
	return uint64(d / m.cfg.Clock.Period())
}

func (m *Machine) pageSize() uint32 {
	if m.cfg.DualBank {
		return 0x1000
	}
	return 0x2000
}

// reset applies a system reset. An operation in flight leaves its target
// undefined and uncorrectable.
func (m *Machine) reset() {
	m.tear()
	m.cycle = 0
	m.halted = false
	m.sr, m.cr, m.eccr = 0, eccfault.CrLOCK, 0
	m.keyState, m.keyFailed = 0, false
	m.latched = false
	m.apb1enr1, m.pwrcr1 = 0, 0
	m.shcsr = 0
	m.wdgRunning, m.wdgAccess = false, false
	m.wdgPR, m.wdgRLR, m.wdgUpdate = 0, 0xFFF, 0
	for _, p := range []*gpiotest.Pin{m.Red, m.Green, m.Blue} {
		_ = p.Out(gpio.Low)
	}
}

func (m *Machine) tear() {
	switch m.op.kind {
	case opErase:
		first := m.op.page * m.pageSize() / 8
		for i := uint32(0); i < m.pageSize()/8; i++ {
			m.mem[first+i] = 0
			m.bad[first+i] = true
		}
		m.Stats.Torn++
	case opProgram:
		m.mem[m.op.dword] = m.dword(m.op.dword) & (m.op.data | uint64(m.rnd.Uint32()))
		m.bad[m.op.dword] = true
		m.Stats.Torn++
	}
	m.op = pendingOp{}
}

func (m *Machine) String() string {
	return fmt.Sprintf("sim: cycle %d, SR %s, CR %s, ECCR %s",
		m.cycle, eccfault.StatusRegister(m.sr), eccfault.ControlRegister(m.cr), eccfault.ECCStatus(m.eccr))
}
