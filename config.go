package eccfault

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// Config holds the experiment parameters.
type Config struct {
	// TargetAddress is the flash offset to corrupt. Its page gets erased.
	TargetAddress uint32
	// Width is the size of the target window in bytes.
	Width uint32

	// SearchLo and SearchHi are the initial bounds of the delay search, in
	// spin iterations.
	SearchLo, SearchHi uint32
	// MinInterval ends the search when Hi-Lo is at or below it.
	MinInterval uint32

	// Clock is the core clock the wait bound is calibrated for.
	Clock physic.Frequency

	Watchdog WatchdogConfig
}

// ReservedFlash is the start of flash that holds the firmware image and must
// never be erased.
const ReservedFlash = 64 << 10

// DefaultConfig returns the parameters the firmware is built with.
func DefaultConfig() Config {
	return Config{
		TargetAddress: 0x000F_E000, // last 8 KiB page of bank 1
		Width:         8,
		SearchLo:      100,
		SearchHi:      1_000_000,
		MinInterval:   4,
		Clock:         4 * physic.MegaHertz, // MSI after reset [RM0432|6.2.3]
		Watchdog: WatchdogConfig{
			Prescaler: 0,     // 125us per tick
			Reload:    0xFFF, // 512ms
			MinReload: 0x0CC, // 25.5ms
		},
	}
}

var (
	errZeroWidth     = errors.New("config: width must be positive")
	errEmptyInterval = errors.New("config: search interval is empty")
)

// Validate checks the parameters against the flash layout.
func (c Config) Validate() error {
	if c.Width == 0 {
		return errZeroWidth
	}
	if c.TargetAddress%8 != 0 {
		return fmt.Errorf("config: target 0x%X is not double-word aligned", c.TargetAddress)
	}
	if c.TargetAddress < ReservedFlash {
		return fmt.Errorf("config: target 0x%X is inside the firmware image (below 0x%X)", c.TargetAddress, ReservedFlash)
	}
	if end := uint64(c.TargetAddress) + uint64(c.ProgramWords())*8; end > FlashSize {
		return fmt.Errorf("config: target 0x%X+%d runs past the end of flash", c.TargetAddress, c.Width)
	}
	if c.SearchLo >= c.SearchHi || c.SearchHi-c.SearchLo <= c.MinInterval {
		return errEmptyInterval
	}
	if c.Clock <= 0 {
		return fmt.Errorf("config: invalid clock %s", c.Clock)
	}
	if c.Watchdog.Prescaler > 6 {
		return fmt.Errorf("config: watchdog prescaler %d out of range", c.Watchdog.Prescaler)
	}
	if c.Watchdog.MinReload == 0 || c.Watchdog.MinReload > c.Watchdog.Reload || c.Watchdog.Reload > 0xFFF {
		return fmt.Errorf("config: watchdog reload %d/%d out of order", c.Watchdog.MinReload, c.Watchdog.Reload)
	}
	return nil
}

// Window is the target address range.
func (c Config) Window() Window {
	return Window{Start: c.TargetAddress, End: c.TargetAddress + c.Width}
}

// ProgramWords is the number of double words covering the window. No extra
// word is written past it: a reset tearing a word outside the window would
// read as "too long" and push the search below the window.
func (c Config) ProgramWords() int {
	return int((c.Width + 7) / 8)
}

// InitialSearch is the interval a fresh power cycle starts with.
func (c Config) InitialSearch() Search {
	return Search{Lo: c.SearchLo, Hi: c.SearchHi}
}

// Window is the half-open flash offset range [Start, End).
type Window struct {
	Start, End uint32
}

func (w Window) Contains(addr uint32) bool {
	return addr >= w.Start && addr < w.End
}
