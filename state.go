package eccfault

// Backup is a bank of 32-bit registers that keep their value across a system
// reset but not across power loss.
type Backup interface {
	Load(i int) uint32
	Store(i int, v uint32)
}

// RTC backup registers [RM0432|41.6.20 RTC backup registers (RTC_BKPxR)].
// They need the backup domain clocked and write-enabled first (PWR_CR1.DBP).
const (
	rtcBase  uintptr = 0x4000_2800
	RTCBKP0R         = rtcBase + 0x50

	RTCBackupCount = 32
)

// RTCBackup is Backup on the RTC_BKPxR registers.
type RTCBackup struct {
	Bus Bus
}

func (r RTCBackup) Load(i int) uint32 {
	return r.Bus.Load32(RTCBKP0R + uintptr(i)*4)
}

func (r RTCBackup) Store(i int, v uint32) {
	r.Bus.Store32(RTCBKP0R+uintptr(i)*4, v)
}

// Backup register slots.
const (
	SlotMagic = iota
	SlotLo
	SlotHi
	SlotPhase
	SlotResets
)

// Magic marks the bounds as initialized in the current power cycle.
const Magic = 0x9999_9999

// Phase records how far the previous boot got before it was reset.
type Phase uint32

const (
	PhaseUninitialized Phase = iota
	PhaseBeforeWrite
	PhaseAfterWrite
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseBeforeWrite:
		return "before-write"
	case PhaseAfterWrite:
		return "after-write"
	}
	return "unknown"
}

// Search is the binary-search interval over the delay, in spin iterations.
type Search struct {
	Lo, Hi uint32
}

// Middle is the delay tried next.
func (s Search) Middle() uint32 {
	return s.Lo + (s.Hi-s.Lo)/2
}

// Exhausted reports that the interval has collapsed to minWidth or less, or is
// inverted by a torn write. Either way the timing window was missed.
func (s Search) Exhausted(minWidth uint32) bool {
	return s.Hi <= s.Lo || s.Hi-s.Lo <= minWidth
}

// Narrow applies the result of the previous attempt. A reset before the write
// finished means the delay was too long, a finished write means it was too
// short.
func (s Search) Narrow(prev Phase) Search {
	switch prev {
	case PhaseBeforeWrite:
		s.Hi = s.Middle()
	case PhaseAfterWrite:
		s.Lo = s.Middle()
	}
	return s
}

// State is the decoded content of the backup slots.
type State struct {
	Magic  uint32
	Search Search
	Phase  Phase
	Resets uint32
}

// Initialized reports whether the bounds were set up in this power cycle.
func (s State) Initialized() bool { return s.Magic == Magic }

// LoadState reads all slots.
func LoadState(b Backup) State {
	return State{
		Magic:  b.Load(SlotMagic),
		Search: Search{Lo: b.Load(SlotLo), Hi: b.Load(SlotHi)},
		Phase:  Phase(b.Load(SlotPhase)),
		Resets: b.Load(SlotResets),
	}
}

// InitState writes the initial bounds on the first boot of a power cycle and
// leaves an initialized state alone. It reports whether it wrote anything.
func InitState(b Backup, initial Search) bool {
	if b.Load(SlotMagic) == Magic {
		return false
	}
	b.Store(SlotMagic, Magic)
	b.Store(SlotLo, initial.Lo)
	b.Store(SlotHi, initial.Hi)
	b.Store(SlotPhase, uint32(PhaseUninitialized))
	return true
}

// CountReset increments the diagnostic reset counter and returns the new value.
func CountReset(b Backup) uint32 {
	n := b.Load(SlotResets) + 1
	b.Store(SlotResets, n)
	return n
}

// StoreSearch writes only the bounds that differ from prev. A reset in between
// leaves the old phase behind, which narrows again on the next boot: too
// conservative, never wrong.
func StoreSearch(b Backup, prev, next Search) {
	if next.Lo != prev.Lo {
		b.Store(SlotLo, next.Lo)
	}
	if next.Hi != prev.Hi {
		b.Store(SlotHi, next.Hi)
	}
}

// StorePhase records p. Call it before the operation p describes starts.
func StorePhase(b Backup, p Phase) {
	b.Store(SlotPhase, uint32(p))
}

// Invalidate clears the magic so the next boot starts the search over.
func Invalidate(b Backup) {
	b.Store(SlotMagic, 0)
}

// Backup domain access [RM0432|5.1.5 Battery backup domain].
const (
	RCCAPB1ENR1 uintptr = 0x4002_1000 + 0x58
	PWRCR1      uintptr = 0x4000_7000 + 0x00
	RTCTAMPCR           = rtcBase + 0x40

	RCCAPB1ENR1RTCAPBEN = 1 << 10
	RCCAPB1ENR1PWREN    = 1 << 28
	PWRCR1DBP           = 1 << 8

	rtcTampNoErase = 1<<17 | 1<<20 | 1<<23 // TAMPxNOERASE
)

// EnableBackupDomain clocks the PWR and RTC register interfaces and lifts the
// backup domain write protection. Until then the backup registers read as
// zero. Tamper events are kept from erasing them.
func EnableBackupDomain(bus Bus, spin func(n uint32)) {
	modify32(bus, RCCAPB1ENR1, 0, RCCAPB1ENR1PWREN|RCCAPB1ENR1RTCAPBEN)
	// 2 APB cycles until the clock runs
	spin(10)
	modify32(bus, PWRCR1, 0, PWRCR1DBP)
	spin(10)
	modify32(bus, RTCTAMPCR, 0, rtcTampNoErase)
}
