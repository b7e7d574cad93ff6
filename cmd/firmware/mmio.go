//go:build tinygo && stm32l4r5

package main

import (
	"device/arm"
	"machine"
	"runtime/volatile"
	"unsafe"

	"periph.io/x/conn/v3/gpio"
)

// mmio is the memory-mapped bus of the MCU.
type mmio struct{}

func (mmio) Load32(addr uintptr) uint32 {
	return volatile.LoadUint32((*uint32)(unsafe.Pointer(addr)))
}

func (mmio) Store32(addr uintptr, v uint32) {
	volatile.StoreUint32((*uint32)(unsafe.Pointer(addr)), v)
}

func (mmio) Load8(addr uintptr) uint8 {
	return volatile.LoadUint8((*uint8)(unsafe.Pointer(addr)))
}

func (mmio) Barrier() {
	arm.Asm("dmb")
}

// spin is the calibrated delay: one nop and a compare per iteration.
//
//go:noinline
func spin(n uint32) {
	for i := uint32(0); i < n; i++ {
		arm.Asm("nop")
	}
}

// led drives an on-board LED, active high.
type led machine.Pin

func newLED(p machine.Pin) led {
	p.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return led(p)
}

func (l led) Out(v gpio.Level) error {
	machine.Pin(l).Set(bool(v))
	return nil
}
