package sim

import (
	"fmt"

	"github.com/gentam/eccfault"
)

type (
	resetSignal struct{}
	stallSignal struct{}
	faultSignal struct{ exc eccfault.Exception }
)

// EventKind is how a boot ended.
type EventKind uint8

const (
	// EventReset is a watchdog reset. The next boot continues the search.
	EventReset EventKind = iota
	// EventStall is a boot that ran past Config.StallCycles, normally a board
	// parked with the watchdog fed.
	EventStall
	// EventReturned means the firmware entry returned, which it never should.
	EventReturned
)

func (k EventKind) String() string {
	switch k {
	case EventReset:
		return "reset"
	case EventStall:
		return "stall"
	case EventReturned:
		return "returned"
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

// Event describes one boot.
type Event struct {
	Kind   EventKind
	Boot   int
	Cycles uint64 // at the end of the boot

	// Fault is set when the fault handler ran.
	Fault     bool
	Exception eccfault.Exception

	// Signal is what the LEDs showed at the end.
	Signal eccfault.Signal
}

func (e Event) String() string {
	s := fmt.Sprintf("boot %d: %s after %d cycles, LEDs %s", e.Boot, e.Kind, e.Cycles, e.Signal)
	if e.Fault {
		s += ", " + e.Exception.String()
	}
	return s
}

// Reset pulls NRST. The backup domain survives.
func (m *Machine) Reset() {
	m.reset()
}

// Run boots the machine into main. A fault raised while main runs unwinds it
// and enters fault, which does not return to main. Run returns when the boot
// ends; after an EventReset the machine is already reset.
func (m *Machine) Run(main func(), fault func(eccfault.Exception)) Event {
	m.reset()
	m.Stats.Boots++
	ev := Event{Boot: m.Stats.Boots}

	kind, exc, faulted := m.guard(main)
	if faulted {
		ev.Fault, ev.Exception = true, exc
		m.halted = false
		kind, _, faulted = m.guard(func() { fault(exc) })
		if faulted {
			// A fault in the handler locks the core up.
			kind = EventReset
		}
	}
	ev.Kind = kind
	ev.Cycles = m.cycle
	ev.Signal = m.Signal()
	if kind == EventReset {
		m.Stats.Resets++
		m.reset()
	}
	return ev
}

func (m *Machine) guard(fn func()) (kind EventKind, exc eccfault.Exception, faulted bool) {
	defer func() {
		switch s := recover().(type) {
		case nil:
		case resetSignal:
			kind = EventReset
		case stallSignal:
			kind = EventStall
		case faultSignal:
			exc, faulted = s.exc, true
		default:
			panic(s)
		}
	}()
	fn()
	return EventReturned, 0, false
}

// Boot runs one boot of the experiment firmware.
func (m *Machine) Boot(cfg eccfault.Config, log eccfault.LogFunc) Event {
	var b *eccfault.Board
	return m.Run(func() {
		b = m.Board(cfg)
		eccfault.Main(b, cfg, log)
	}, func(exc eccfault.Exception) {
		eccfault.Fault(b, cfg, log, exc)
	})
}

// Campaign boots until a boot ends other than by a watchdog reset, or limit
// boots have run. each, if not nil, sees every event.
func (m *Machine) Campaign(cfg eccfault.Config, log eccfault.LogFunc, limit int, each func(Event)) Event {
	var ev Event
	for i := 0; i < limit; i++ {
		ev = m.Boot(cfg, log)
		if each != nil {
			each(ev)
		}
		if ev.Kind != EventReset {
			break
		}
	}
	return ev
}
