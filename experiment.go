package eccfault

import "fmt"

// Outcome is how a boot ended when no fault took over.
type Outcome uint8

const (
	// OutcomeWritten: the program finished before the watchdog fired, the
	// delay was too short. The armed watchdog starts the next attempt.
	OutcomeWritten Outcome = iota
	// OutcomeSearchExhausted: the interval collapsed without hitting the
	// window. The search restarts from the defaults after a manual reset.
	OutcomeSearchExhausted
	// OutcomeDriverFailed: unlock, erase or program failed. The next boot
	// clears the flags and tries again.
	OutcomeDriverFailed
	// OutcomeWatchdogFailed: the watchdog could not be armed, so nothing can
	// be timed.
	OutcomeWatchdogFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWritten:
		return "written"
	case OutcomeSearchExhausted:
		return "search exhausted"
	case OutcomeDriverFailed:
		return "driver failed"
	case OutcomeWatchdogFailed:
		return "watchdog failed"
	}
	return "unknown"
}

// Signal is what the LEDs show for o.
func (o Outcome) Signal() Signal {
	switch o {
	case OutcomeWritten:
		return SignalWritten
	case OutcomeSearchExhausted:
		return SignalSearchFailed
	}
	return SignalFailure
}

// Policy is how the board parks after o.
func (o Outcome) Policy() FeedPolicy {
	switch o {
	case OutcomeSearchExhausted, OutcomeWatchdogFailed:
		return FeedMinimalForever
	}
	return FeedNone
}

// Experiment is one boot of the cross-reset search.
type Experiment struct {
	Board  *Board
	Config Config
	Log    LogFunc
}

// Boot runs the per-boot sequence and returns without parking. A reset or a
// fault may end it at any point; the backup registers are always left in a
// state the next boot can continue from.
func (e *Experiment) Boot() Outcome {
	b, cfg := e.Board, e.Config

	// 1. First boot of this power cycle sets up the bounds.
	if InitState(b.Backup, cfg.InitialSearch()) {
		e.Log.logf(1, "cold boot, search [%d, %d]", cfg.SearchLo, cfg.SearchHi)
	}
	resets := CountReset(b.Backup)
	st := LoadState(b.Backup)
	e.Log.logf(1, "boot %d: search [%d, %d] previous phase %s", resets, st.Search.Lo, st.Search.Hi, st.Phase)

	// An already corrupted window faults here and the fault handler takes
	// over; nothing below runs. This comes before the interval checks: the
	// attempt that collapsed the interval may have been the one that hit.
	_ = b.Status.Show(SignalIdle)
	e.readTarget()

	// 2. A collapsed interval means the window was missed, not narrowed.
	if st.Search.Exhausted(cfg.MinInterval) {
		return e.exhausted(st.Search)
	}

	// 3. Narrow by what the previous attempt reached, then record that this
	// attempt has not written yet.
	next := st.Search.Narrow(st.Phase)
	StoreSearch(b.Backup, st.Search, next)
	if next.Exhausted(cfg.MinInterval) {
		return e.exhausted(next)
	}
	StorePhase(b.Backup, PhaseBeforeWrite)
	delay := next.Middle()
	words := make([]uint64, cfg.ProgramWords())
	e.Log.logf(2, "search [%d, %d] delay %d, %d double words of up to %s",
		next.Lo, next.Hi, delay, len(words), ProgramLatency(b.DeviceID))

	// 4. Timed write.
	if err := b.Watchdog.Arm(); err != nil {
		e.Log.logf(0, "arm watchdog: %v", err)
		Invalidate(b.Backup)
		return OutcomeWatchdogFailed
	}

	page := b.Flash.AddressToPage(cfg.TargetAddress)
	err := b.Flash.WithUnlocked(func(u *UnlockedFlash) error {
		if err := u.ErasePage(page); err != nil {
			return fmt.Errorf("erase page %d: %w", page, err)
		}
		// Erase time varies, so the window starts after it.
		b.Watchdog.FeedMinimal()
		b.Spin(delay)
		if err := u.WriteWords(cfg.TargetAddress, words); err != nil {
			return fmt.Errorf("program 0x%X: %w", cfg.TargetAddress, err)
		}
		return nil
	})
	if err != nil {
		e.Log.logf(0, "%v (SR %s, CR %s)", err,
			StatusRegister(b.Bus.Load32(FlashSR)), ControlRegister(b.Bus.Load32(FlashCR)))
		return OutcomeDriverFailed
	}

	StorePhase(b.Backup, PhaseAfterWrite)
	e.Log.logf(1, "delay %d too short, program finished", delay)
	return OutcomeWritten
}

func (e *Experiment) exhausted(s Search) Outcome {
	e.Log.logf(0, "search collapsed at [%d, %d]", s.Lo, s.Hi)
	Invalidate(e.Board.Backup)
	return OutcomeSearchExhausted
}

// readTarget reads the whole target window once.
func (e *Experiment) readTarget() {
	w := e.Config.Window()
	for a := w.Start; a < w.End; a++ {
		_ = e.Board.Bus.Load8(FlashBase + uintptr(a))
	}
}

// Main is the firmware entry: one boot, then park according to the outcome.
// It never returns.
func Main(b *Board, cfg Config, log LogFunc) {
	o := (&Experiment{Board: b, Config: cfg, Log: log}).Boot()
	log.logf(1, "outcome: %s", o)
	_ = b.Status.Show(o.Signal())
	b.Hold(o.Policy())
}
