package eccfault_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/gentam/eccfault"
	"github.com/gentam/eccfault/internal/sim"
)

func testLog(t *testing.T) eccfault.LogFunc {
	return func(level int, format string, param ...interface{}) {
		t.Logf(format, param...)
	}
}

func TestFirstBoot(t *testing.T) {
	m := sim.New(sim.DefaultConfig())
	cfg := eccfault.DefaultConfig()
	// a delay inside the program window, so the one attempt gets torn
	cfg.SearchLo, cfg.SearchHi = 20_300, 20_420

	ev := m.Boot(cfg, testLog(t))
	if ev.Kind != sim.EventReset || ev.Fault {
		t.Fatalf("event %s", ev)
	}
	if m.Backup(eccfault.SlotMagic) != eccfault.Magic {
		t.Fatalf("magic 0x%X", m.Backup(eccfault.SlotMagic))
	}
	if lo, hi := m.Backup(eccfault.SlotLo), m.Backup(eccfault.SlotHi); lo != cfg.SearchLo || hi != cfg.SearchHi {
		t.Fatalf("bounds [%d, %d]", lo, hi)
	}
	if p := eccfault.Phase(m.Backup(eccfault.SlotPhase)); p != eccfault.PhaseBeforeWrite {
		t.Fatalf("phase %s", p)
	}
	if n := m.Backup(eccfault.SlotResets); n != 1 {
		t.Fatalf("reset counter %d", n)
	}
	if m.Stats.Erases != 1 || m.Stats.ProgramSessions != 1 || m.Stats.Programs != 1 {
		t.Fatalf("stats %+v", m.Stats)
	}
	if !m.IsCorrupted(cfg.TargetAddress) {
		t.Fatalf("target not corrupted, corrupted: %x", m.Corrupted())
	}
}

func TestBootLogsAttempt(t *testing.T) {
	m := sim.New(sim.DefaultConfig())
	cfg := eccfault.DefaultConfig()
	cfg.SearchLo, cfg.SearchHi = 20_300, 20_420

	var logged []string
	m.Boot(cfg, func(level int, format string, param ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, param...))
	})
	want := "search [20300, 20420] delay 20360, 1 double words of up to 90.8µs"
	for _, l := range logged {
		if l == want {
			return
		}
	}
	t.Fatalf("no %q in %q", want, logged)
}

func TestBootAfterBeforeWrite(t *testing.T) {
	m := sim.New(sim.DefaultConfig())
	cfg := eccfault.DefaultConfig()
	cfg.SearchLo = 100_000
	m.SetBackup(eccfault.SlotMagic, eccfault.Magic)
	m.SetBackup(eccfault.SlotLo, 100_000)
	m.SetBackup(eccfault.SlotHi, 1_000_000)
	m.SetBackup(eccfault.SlotPhase, uint32(eccfault.PhaseBeforeWrite))
	m.SetBackup(eccfault.SlotResets, 7)

	ev := m.Boot(cfg, testLog(t))
	if ev.Kind != sim.EventReset {
		t.Fatalf("event %s", ev)
	}
	if lo, hi := m.Backup(eccfault.SlotLo), m.Backup(eccfault.SlotHi); lo != 100_000 || hi != 550_000 {
		t.Fatalf("bounds [%d, %d]", lo, hi)
	}
	if p := eccfault.Phase(m.Backup(eccfault.SlotPhase)); p != eccfault.PhaseBeforeWrite {
		t.Fatalf("phase %s", p)
	}
	// delay 325_000 is far past the watchdog, nothing was programmed
	if m.Stats.Programs != 0 || m.Backup(eccfault.SlotResets) != 8 {
		t.Fatalf("stats %+v", m.Stats)
	}
}

func TestBootTooShort(t *testing.T) {
	m := sim.New(sim.DefaultConfig())
	cfg := eccfault.DefaultConfig()
	cfg.SearchLo, cfg.SearchHi = 100, 1000

	ev := m.Boot(cfg, testLog(t))
	if ev.Kind != sim.EventReset || ev.Signal != eccfault.SignalWritten {
		t.Fatalf("event %s", ev)
	}
	if p := eccfault.Phase(m.Backup(eccfault.SlotPhase)); p != eccfault.PhaseAfterWrite {
		t.Fatalf("phase %s", p)
	}
	if m.IsCorrupted(cfg.TargetAddress) || m.Stats.Programs != 1 {
		t.Fatalf("corrupted %x, stats %+v", m.Corrupted(), m.Stats)
	}

	m.Boot(cfg, testLog(t))
	if lo := m.Backup(eccfault.SlotLo); lo != 550 {
		t.Fatalf("lo %d after a finished write", lo)
	}
}

func TestSearchFindsWindow(t *testing.T) {
	for _, dual := range []bool{true, false} {
		scfg := sim.DefaultConfig()
		scfg.DualBank = dual
		m := sim.New(scfg)
		cfg := eccfault.DefaultConfig()

		ev := m.Campaign(cfg, nil, 40, func(ev sim.Event) { t.Log(ev) })
		if ev.Kind != sim.EventStall || !ev.Fault || ev.Exception != eccfault.ExceptionNMI {
			t.Fatalf("dual=%v: last event %s", dual, ev)
		}
		if ev.Signal != eccfault.SignalSuccess {
			t.Fatalf("dual=%v: LEDs show %s", dual, ev.Signal)
		}
		if ev.Boot > 20 {
			t.Fatalf("dual=%v: %d boots", dual, ev.Boot)
		}
		// the successful boot faulted reading the target, before it could erase
		if m.Stats.Torn != 1 || m.Backup(eccfault.SlotMagic) != eccfault.Magic {
			t.Fatalf("dual=%v: stats %+v", dual, m.Stats)
		}
	}
}

func TestSearchExhausted(t *testing.T) {
	m := sim.New(sim.DefaultConfig())
	cfg := eccfault.DefaultConfig()
	cfg.SearchLo, cfg.SearchHi = 100, 1000 // every delay is too short

	erases := 0
	ev := m.Campaign(cfg, testLog(t), 40, func(ev sim.Event) {
		if ev.Kind == sim.EventReset {
			erases = m.Stats.Erases
		}
	})
	if ev.Kind != sim.EventStall || ev.Fault || ev.Signal != eccfault.SignalSearchFailed {
		t.Fatalf("last event %s", ev)
	}
	if m.Stats.Erases != erases {
		t.Fatalf("collapsed interval still erased")
	}
	if m.Backup(eccfault.SlotMagic) == eccfault.Magic {
		t.Fatalf("magic left valid")
	}

	// a manual reset starts over from the configured bounds
	ev = m.Boot(cfg, testLog(t))
	if ev.Kind != sim.EventReset || m.Backup(eccfault.SlotLo) != cfg.SearchLo {
		t.Fatalf("event %s, lo %d", ev, m.Backup(eccfault.SlotLo))
	}
}

func TestCorruptedTargetFaultsFirst(t *testing.T) {
	m := sim.New(sim.DefaultConfig())
	cfg := eccfault.DefaultConfig()
	m.Corrupt(cfg.TargetAddress)

	ev := m.Boot(cfg, testLog(t))
	if ev.Kind != sim.EventStall || !ev.Fault || ev.Signal != eccfault.SignalSuccess {
		t.Fatalf("event %s", ev)
	}
	if m.Stats.Erases != 0 {
		t.Fatalf("erased after the target read faulted")
	}
}

func TestCorruptionFoundAtCollapse(t *testing.T) {
	for _, tc := range []struct {
		name   string
		lo, hi uint32
	}{
		// the interval is already at MinInterval
		{"collapsed", 20_400, 20_403},
		// MinInterval+1, this boot's narrowing collapses it
		{"collapsing", 20_400, 20_405},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := sim.New(sim.DefaultConfig())
			cfg := eccfault.DefaultConfig()
			m.SetBackup(eccfault.SlotMagic, eccfault.Magic)
			m.SetBackup(eccfault.SlotLo, tc.lo)
			m.SetBackup(eccfault.SlotHi, tc.hi)
			m.SetBackup(eccfault.SlotPhase, uint32(eccfault.PhaseBeforeWrite))
			m.Corrupt(cfg.TargetAddress)

			ev := m.Boot(cfg, testLog(t))
			if ev.Kind != sim.EventStall || !ev.Fault || ev.Signal != eccfault.SignalSuccess {
				t.Fatalf("event %s", ev)
			}
			if m.Backup(eccfault.SlotMagic) != eccfault.Magic || m.Stats.Erases != 0 {
				t.Fatalf("magic 0x%X, stats %+v", m.Backup(eccfault.SlotMagic), m.Stats)
			}
			if lo, hi := m.Backup(eccfault.SlotLo), m.Backup(eccfault.SlotHi); lo != tc.lo || hi != tc.hi {
				t.Fatalf("bounds [%d, %d]", lo, hi)
			}
		})
	}
}

func TestUnexpectedFault(t *testing.T) {
	m := sim.New(sim.DefaultConfig())
	cfg := eccfault.DefaultConfig()
	// the erase takes 88_000 cycles and starts right after the watchdog is armed
	m.InjectFault(50_000, eccfault.ExceptionUsageFault)

	ev := m.Boot(cfg, testLog(t))
	if ev.Kind != sim.EventReset || !ev.Fault || ev.Exception != eccfault.ExceptionUsageFault {
		t.Fatalf("event %s", ev)
	}
	if ev.Signal != eccfault.SignalUnexpected {
		t.Fatalf("LEDs show %s", ev.Signal)
	}
	// not fed after the fault: the reset comes from the full reload armed
	// before the erase
	if ev.Cycles < 2_000_000 || m.Stats.Programs != 0 {
		t.Fatalf("reset after %d cycles, stats %+v", ev.Cycles, m.Stats)
	}
	if p := eccfault.Phase(m.Backup(eccfault.SlotPhase)); p != eccfault.PhaseBeforeWrite {
		t.Fatalf("phase %s", p)
	}
}

func TestStrayCorruption(t *testing.T) {
	m := sim.New(sim.DefaultConfig())
	cfg := eccfault.DefaultConfig()
	m.Corrupt(cfg.TargetAddress + cfg.Width)

	var b *eccfault.Board
	var v eccfault.Verdict
	ev := m.Run(func() {
		b = m.Board(cfg)
		_ = m.Load8(eccfault.FlashBase + uintptr(cfg.TargetAddress+cfg.Width))
	}, func(exc eccfault.Exception) {
		v = eccfault.Classifier{Board: b, Window: cfg.Window()}.Handle(exc)
	})
	if !ev.Fault || v != eccfault.VerdictStrayECC || ev.Signal != eccfault.SignalFailure {
		t.Fatalf("event %s, verdict %s", ev, v)
	}
}

type failingWatchdog struct{ fed int }

func (w *failingWatchdog) Arm() error   { return eccfault.ErrWatchdogUpdate }
func (w *failingWatchdog) Feed()        { w.fed++ }
func (w *failingWatchdog) FeedMinimal() { w.fed++ }

func TestBootFailures(t *testing.T) {
	t.Run("watchdog", func(t *testing.T) {
		m := sim.New(sim.DefaultConfig())
		cfg := eccfault.DefaultConfig()
		var o eccfault.Outcome
		m.Run(func() {
			b := m.Board(cfg)
			b.Watchdog = &failingWatchdog{}
			o = (&eccfault.Experiment{Board: b, Config: cfg, Log: testLog(t)}).Boot()
		}, nil)
		if o != eccfault.OutcomeWatchdogFailed || o.Policy() != eccfault.FeedMinimalForever {
			t.Fatalf("outcome %s", o)
		}
		if m.Backup(eccfault.SlotMagic) == eccfault.Magic || m.Stats.Erases != 0 {
			t.Fatalf("magic 0x%X, stats %+v", m.Backup(eccfault.SlotMagic), m.Stats)
		}
	})
	t.Run("driver", func(t *testing.T) {
		m := sim.New(sim.DefaultConfig())
		cfg := eccfault.DefaultConfig()
		var o eccfault.Outcome
		var logged []string
		m.Run(func() {
			b := m.Board(cfg)
			b.Flash = eccfault.NewFlash(m, 0) // no time for BSY to clear
			log := func(level int, format string, param ...interface{}) {
				if level == 0 {
					logged = append(logged, fmt.Sprintf(format, param...))
				}
			}
			o = (&eccfault.Experiment{Board: b, Config: cfg, Log: log}).Boot()
		}, nil)
		if o != eccfault.OutcomeDriverFailed || o.Signal() != eccfault.SignalFailure || o.Policy() != eccfault.FeedNone {
			t.Fatalf("outcome %s", o)
		}
		if p := eccfault.Phase(m.Backup(eccfault.SlotPhase)); p != eccfault.PhaseBeforeWrite {
			t.Fatalf("phase %s", p)
		}
		if len(logged) != 1 || !strings.Contains(logged[0], "erase page 254: flash: busy") ||
			!strings.Contains(logged[0], "CR 0x800007f0 LOCK,PNB=254") {
			t.Fatalf("logged %q", logged)
		}
	})
}
