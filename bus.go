package eccfault

// Bus is volatile access to the MCU address space. Every call is a single
// bus transaction; implementations must not merge, reorder or cache them.
type Bus interface {
	Load32(addr uintptr) uint32
	Store32(addr uintptr, v uint32)
	Load8(addr uintptr) uint8

	// Barrier completes all outstanding memory accesses before returning
	// (DMB on Cortex-M) [ARMv7-M|A3.7.3].
	Barrier()
}

// modify32 performs a read-modify-write of a register in one store.
func modify32(bus Bus, addr uintptr, clear, set uint32) {
	bus.Store32(addr, bus.Load32(addr)&^clear|set)
}
