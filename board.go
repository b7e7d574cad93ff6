package eccfault

// Board is the hardware context. It is built once at startup and handed to
// the controller and the fault handler; nothing else touches the peripherals.
type Board struct {
	Bus      Bus
	Flash    *Flash
	Backup   Backup
	Watchdog Watchdog
	Status   Indicator

	// DeviceID is DBGMCU_IDCODE.DEV_ID, read once at startup.
	DeviceID uint16

	// Spin busy-waits n iterations of a fixed-cost no-op. It is the delay the
	// search calibrates; its cost per iteration only has to be constant.
	Spin func(n uint32)
}

// FeedPolicy says what a parked board does with the watchdog.
type FeedPolicy uint8

const (
	// FeedNone lets an armed watchdog reset the board.
	FeedNone FeedPolicy = iota
	// FeedForever keeps the board parked until someone intervenes.
	FeedForever
	// FeedMinimalForever keeps the board parked with the shortest reload.
	FeedMinimalForever
)

func (p FeedPolicy) String() string {
	switch p {
	case FeedNone:
		return "no feed"
	case FeedForever:
		return "feed forever"
	case FeedMinimalForever:
		return "feed minimal forever"
	}
	return "unknown"
}

// Hold parks the board and never returns. With FeedNone only a watchdog reset
// ends it.
func (b *Board) Hold(p FeedPolicy) {
	for {
		switch p {
		case FeedForever:
			b.Watchdog.Feed()
		case FeedMinimalForever:
			b.Watchdog.FeedMinimal()
		}
		b.Spin(holdSpin)
	}
}

const holdSpin = 64

// LogFunc receives progress messages. Higher levels are more verbose.
type LogFunc func(level int, format string, param ...interface{})

func (l LogFunc) logf(level int, format string, param ...interface{}) {
	if l != nil {
		l(level, format, param...)
	}
}

// NewBoard wires the STM32L4R5 peripherals on bus for cfg, enables the backup
// domain and routes the configurable faults to their own vectors. The BSY wait
// bound is derived from the device's slowest flash operation at cfg.Clock.
func NewBoard(bus Bus, cfg Config, status Indicator, spin func(n uint32)) *Board {
	EnableBackupDomain(bus, spin)
	EnableFaultExceptions(bus)
	id := DeviceID(bus)
	latency := MaxOperationLatency(id)
	return &Board{
		Bus:      bus,
		DeviceID: id,
		Flash:    NewFlash(bus, WaitIterations(cfg.Clock, latency)),
		Backup:   RTCBackup{Bus: bus},
		Watchdog: &IWDG{
			Bus:              bus,
			Config:           cfg.Watchdog,
			UpdateIterations: WaitIterations(cfg.Clock, 5*LSIFrequency.Period()),
		},
		Status: status,
		Spin:   spin,
	}
}
