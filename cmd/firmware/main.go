//go:build tinygo && stm32l4r5

// Command firmware runs the ECC fault experiment on a NUCLEO-L4R5ZI.
//
//	tinygo flash -target nucleo-l4r5zi ./cmd/firmware
//
// Every boot tries one delay; the watchdog resets the board until the LEDs
// settle on a result:
//
//	green     ECC error inside the target window
//	red       ECC error elsewhere, or a flash driver failure
//	red+blue  fault that is not an ECC error
//	red+green search interval collapsed, press reset to start over
package main

import (
	"device/arm"
	"fmt"
	"machine"

	"github.com/gentam/eccfault"
)

// verbosity limits the messages printed on the ST-LINK console.
const verbosity = 1

var (
	cfg   = eccfault.DefaultConfig()
	board *eccfault.Board
)

func logf(level int, format string, param ...interface{}) {
	if level <= verbosity {
		println(fmt.Sprintf(format, param...))
	}
}

func main() {
	status := eccfault.Indicator{
		Red:   newLED(machine.LED_RED),
		Green: newLED(machine.LED_GREEN),
		Blue:  newLED(machine.LED_BLUE),
	}
	if err := cfg.Validate(); err != nil {
		println(err.Error())
		_ = status.Show(eccfault.SignalFailure)
		for {
			spin(1 << 20)
		}
	}

	board = eccfault.NewBoard(mmio{}, cfg, status, spin)
	logf(1, "%s, %s flash", eccfault.DeviceName(eccfault.DeviceID(board.Bus)), bankMode(board.Flash))
	eccfault.Main(board, cfg, logf)
}

func bankMode(f *eccfault.Flash) string {
	if f.DualBank() {
		return "dual-bank"
	}
	return "single-bank"
}

// fault runs in exception context, so it prints with the builtin println
// and never formats. An exception before NewBoard has finished lights red
// and parks the core; the watchdog is not armed yet.
func fault(exc eccfault.Exception) {
	if board == nil {
		machine.LED_RED.Configure(machine.PinConfig{Mode: machine.PinOutput})
		machine.LED_RED.High()
		for {
			arm.Asm("wfi")
		}
	}
	v := eccfault.Classifier{Board: board, Window: cfg.Window()}.Handle(exc)
	println(exc.String(), v.String(), uint32(eccfault.ReadECCStatus(board.Bus)))
	board.Hold(v.Policy())
}

// Double ECC errors on flash reads raise NMI. NewBoard enables MemManage,
// BusFault and UsageFault in SHCSR so they enter their own vectors below
// instead of escalating.
//
// HardFault_Handler is a strong symbol in the TinyGo runtime and cannot be
// exported here. A genuine HardFault (a fault inside one of these handlers,
// or a vector fetch error) is printed by the runtime, which then aborts;
// the watchdog, if armed, resets the board.

//export NMI_Handler
func nmiHandler() {
	fault(eccfault.ExceptionNMI)
}

//export MemoryManagement_Handler
func memManageHandler() {
	fault(eccfault.ExceptionMemManage)
}

//export BusFault_Handler
func busFaultHandler() {
	fault(eccfault.ExceptionBusFault)
}

//export UsageFault_Handler
func usageFaultHandler() {
	fault(eccfault.ExceptionUsageFault)
}
