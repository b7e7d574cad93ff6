package eccfault

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func newLEDs() (Indicator, *gpiotest.Pin, *gpiotest.Pin, *gpiotest.Pin) {
	r := &gpiotest.Pin{N: "LD3", Num: 30}
	g := &gpiotest.Pin{N: "LD1", Num: 39}
	b := &gpiotest.Pin{N: "LD2", Num: 23}
	return Indicator{Red: r, Green: g, Blue: b}, r, g, b
}

func TestShowDecode(t *testing.T) {
	ind, r, g, b := newLEDs()
	for _, s := range []Signal{SignalWritten, SignalSuccess, SignalFailure, SignalUnexpected, SignalSearchFailed, SignalIdle} {
		if err := ind.Show(s); err != nil {
			t.Fatalf("Show(%s): %v", s, err)
		}
		if got := DecodeSignal(r.Read(), g.Read(), b.Read()); got != s {
			t.Fatalf("Show(%s) decodes as %s", s, got)
		}
	}
}

func TestShowUnknownIsFailure(t *testing.T) {
	ind, r, g, b := newLEDs()
	if err := ind.Show(SignalUnknown); err != nil {
		t.Fatalf("Failed: %v", err)
	}
	if got := DecodeSignal(r.Read(), g.Read(), b.Read()); got != SignalFailure {
		t.Fatalf("decodes as %s", got)
	}
	if got := DecodeSignal(gpio.High, gpio.High, gpio.High); got != SignalUnknown {
		t.Fatalf("all on decodes as %s", got)
	}
}

type brokenLine struct{ err error }

func (b brokenLine) Out(gpio.Level) error { return b.err }

func TestShowPartial(t *testing.T) {
	g := &gpiotest.Pin{N: "LD1"}
	want := errors.New("gpio: broken")
	ind := Indicator{Red: brokenLine{want}, Green: g}
	if err := ind.Show(SignalSuccess); err != want {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if g.Read() != gpio.High {
		t.Fatalf("green not set after a red failure")
	}
}
