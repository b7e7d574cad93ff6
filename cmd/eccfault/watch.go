package main

import (
	"fmt"
	"time"

	"github.com/gentam/eccfault"
	"github.com/inancgumus/screen"
)

type WatchCmd struct {
	Loop     bool          `optional help:"Keep sampling and redraw on every change."`
	Interval time.Duration `optional default:"50ms" help:"Sampling period with --loop."`
	Until    bool          `optional help:"With --loop, exit once the board shows a verdict."`
}

// verdict reports whether s is one of the signals a parked board shows.
func verdict(s eccfault.Signal) bool {
	switch s {
	case eccfault.SignalSuccess, eccfault.SignalFailure,
		eccfault.SignalUnexpected, eccfault.SignalSearchFailed:
		return true
	}
	return false
}

// history counts the signals seen while watching.
type history struct {
	start   time.Time
	last    eccfault.Signal
	changed time.Time
	seen    map[eccfault.Signal]int
}

func (h *history) add(s eccfault.Signal, now time.Time) bool {
	if h.seen == nil {
		h.start, h.changed, h.last = now, now, s
		h.seen = map[eccfault.Signal]int{s: 1}
		return true
	}
	if s == h.last {
		return false
	}
	h.last, h.changed = s, now
	h.seen[s]++
	return true
}

func (h *history) print(now time.Time) {
	fmt.Printf("Watching for:    %s\n", now.Sub(h.start).Truncate(time.Second))
	fmt.Printf("Signal:          %s (for %s)\n", signalColor(h.last).Sprint(h.last),
		now.Sub(h.changed).Truncate(time.Millisecond))
	// every program that outran the watchdog lights blue once
	fmt.Printf("Writes seen:     %d\n", h.seen[eccfault.SignalWritten])
}

func (w *WatchCmd) Run(c *Context) error {
	d, err := c.device()
	if err != nil {
		return err
	}

	h := &history{}
	for {
		r, g, b, err := d.LEDs()
		if err != nil {
			return err
		}
		s := eccfault.DecodeSignal(r, g, b)
		now := time.Now()
		if !w.Loop {
			fmt.Printf("%s (red=%s green=%s blue=%s)\n", signalColor(s).Sprint(s), r, g, b)
			return nil
		}
		if h.add(s, now) {
			screen.Clear()
			screen.MoveTopLeft()
			h.print(now)
		}
		if w.Until && verdict(s) {
			return nil
		}
		time.Sleep(w.Interval)
	}
}
