package eccfault

import (
	"errors"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Watchdog resets the system unless it is fed in time. Once armed it cannot be
// stopped.
type Watchdog interface {
	Arm() error
	// Feed restarts the countdown with the current reload value.
	Feed()
	// FeedMinimal restarts the countdown with the smallest configured reload
	// value, bounding the time left precisely.
	FeedMinimal()
}

// IWDG register map [RM0432|45.4.6 IWDG register map].
const (
	iwdgBase uintptr = 0x4000_3000
	IWDGKR           = iwdgBase + 0x00
	IWDGPR           = iwdgBase + 0x04
	IWDGRLR          = iwdgBase + 0x08
	IWDGSR           = iwdgBase + 0x0C
)

// IWDG_KR keys and IWDG_SR bits.
const (
	IWDGKeyReload = 0xAAAA
	IWDGKeyAccess = 0x5555
	IWDGKeyStart  = 0xCCCC

	iwdgSrPVU = 1 << 0
	iwdgSrRVU = 1 << 1
	iwdgSrWVU = 1 << 2
)

// LSIFrequency is the nominal IWDG clock [DS12023|Table 64: LSI oscillator characteristics].
const LSIFrequency = 32 * physic.KiloHertz

// ErrWatchdogUpdate means the IWDG did not acknowledge a register update.
var ErrWatchdogUpdate = errors.New("iwdg: register update timed out")

// WatchdogConfig sets the IWDG timing. One counter tick is 4<<Prescaler LSI
// periods; the smallest prescaler gives 125us per tick.
type WatchdogConfig struct {
	Prescaler uint8  // IWDG_PR, 0 = /4 .. 6 = /256
	Reload    uint16 // reload value used by Arm and Feed, at most 0xFFF
	MinReload uint16 // reload value used by FeedMinimal
}

// Timeout returns how long reload ticks last with a nominal LSI.
func (c WatchdogConfig) Timeout(reload uint16) time.Duration {
	return time.Duration(reload) * time.Duration(4<<c.Prescaler) * LSIFrequency.Period()
}

// IWDG is the independent watchdog.
type IWDG struct {
	Bus    Bus
	Config WatchdogConfig

	// UpdateIterations bounds the wait for IWDG_SR to settle. The registers
	// sync in the LSI domain, up to 5 LSI periods [RM0432|45.4.4].
	UpdateIterations uint32
}

// Arm starts the watchdog with Config.Reload. An error leaves the watchdog
// running with whatever reload value it latched.
func (w *IWDG) Arm() error {
	w.Bus.Store32(IWDGKR, IWDGKeyStart)
	w.Bus.Store32(IWDGKR, IWDGKeyAccess)
	w.Bus.Store32(IWDGPR, uint32(w.Config.Prescaler))
	w.Bus.Store32(IWDGRLR, uint32(w.Config.Reload)&0xFFF)

	err := w.settle(iwdgSrPVU | iwdgSrRVU | iwdgSrWVU)
	w.Bus.Store32(IWDGKR, IWDGKeyReload)
	return err
}

func (w *IWDG) Feed() {
	w.Bus.Store32(IWDGKR, IWDGKeyReload)
}

// FeedMinimal shrinks the reload value to Config.MinReload and reloads. Later
// Feed calls keep using the small value.
func (w *IWDG) FeedMinimal() {
	w.Bus.Store32(IWDGKR, IWDGKeyAccess)
	w.Bus.Store32(IWDGRLR, uint32(w.Config.MinReload)&0xFFF)
	_ = w.settle(iwdgSrRVU)
	w.Bus.Store32(IWDGKR, IWDGKeyReload)
}

func (w *IWDG) settle(mask uint32) error {
	for i := uint32(0); i < w.UpdateIterations; i++ {
		if w.Bus.Load32(IWDGSR)&mask == 0 {
			return nil
		}
	}
	if w.Bus.Load32(IWDGSR)&mask != 0 {
		return ErrWatchdogUpdate
	}
	return nil
}
