package eccfault

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

// DBGMCU_IDCODE [RM0432|57.3.1 MCU device ID code].
const (
	DBGMCUIDCODE uintptr = 0xE004_2000

	idcodeDevIDMask = 0xFFF
)

type flashParams struct {
	name string

	tProg  time.Duration // one double word
	tErase time.Duration // one page
	tME    time.Duration // mass erase, the longest single operation
}

const (
	devIDSTM32L4R5 = 0x470 // STM32L4R5/L4R7/L4R9/L4S5/L4S7/L4S9
	devIDSTM32L47x = 0x415 // STM32L475/L476/L486
)

var knownDevices = map[uint16]flashParams{
	devIDSTM32L4R5: {
		name: "STM32L4R5xx",

		// [DS12023|Table 80: Flash memory characteristics], max values
		tProg:  time.Duration(90800 * time.Nanosecond),
		tErase: time.Duration(24500 * time.Microsecond),
		tME:    time.Duration(25 * time.Millisecond),
	},

	devIDSTM32L47x: {
		name: "STM32L47x/L48x",

		// [DS10969|Table 49: Flash memory characteristics], max values
		tProg:  time.Duration(90800 * time.Nanosecond),
		tErase: time.Duration(24470 * time.Microsecond),
		tME:    time.Duration(24470 * time.Microsecond),
	},
}

// DeviceID returns the DEV_ID field of DBGMCU_IDCODE.
func DeviceID(bus Bus) uint16 {
	return uint16(bus.Load32(DBGMCUIDCODE) & idcodeDevIDMask)
}

// DeviceName returns a non-empty name for known device IDs.
func DeviceName(id uint16) string {
	return knownDevices[id].name
}

func paramOrMax(id uint16, get func(*flashParams) time.Duration) time.Duration {
	// get parameter if known
	if p, ok := knownDevices[id]; ok {
		return get(&p)
	}

	// fall back to the maximum over all known devices
	var tmax time.Duration
	for _, p := range knownDevices {
		tmax = max(tmax, get(&p))
	}
	return tmax
}

// MaxOperationLatency is the longest flash operation of the device, the bound
// every BSY wait has to cover.
func MaxOperationLatency(id uint16) time.Duration {
	return paramOrMax(id, func(p *flashParams) time.Duration { return max(p.tProg, p.tErase, p.tME) })
}

// ProgramLatency is the worst-case time to program one double word.
func ProgramLatency(id uint16) time.Duration {
	return paramOrMax(id, func(p *flashParams) time.Duration { return p.tProg })
}

// WaitIterations converts latency into a BSY poll bound for a core running at
// clock. One poll iteration takes at least one cycle, so the real wait is
// several times longer than latency. The result has to be recomputed for every
// clock configuration.
func WaitIterations(clock physic.Frequency, latency time.Duration) uint32 {
	period := clock.Period()
	if period <= 0 {
		return 0
	}
	n := int64(latency / period)
	if latency%period != 0 {
		n++
	}
	if n > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n)
}
