package main

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// Device is the set of host pins wired to the board under test: three inputs
// sampling the status LEDs and one output on NRST.
type Device struct {
	ft *ftdi.FT232H // nil when every pin was given by name

	red   gpio.PinIO
	green gpio.PinIO
	blue  gpio.PinIO
	nrst  gpio.PinIO
}

// Pins names host GPIOs in gpioreg. Empty names fall back to the FT2232H.
type Pins struct {
	Red   string `optional help:"GPIO sampling the red LED (LD3)."`
	Green string `optional help:"GPIO sampling the green LED (LD1)."`
	Blue  string `optional help:"GPIO sampling the blue LED (LD2)."`
	NRST  string `optional name:"nrst" help:"GPIO driving the target NRST line."`
}

var hostInitialized atomic.Bool

// NewDevice initializes the host drivers and resolves the pins.
func NewDevice(p Pins) (*Device, error) {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, errors.Wrap(err, "host initialization failed")
		}
	}

	d := &Device{}
	if p.Red == "" || p.Green == "" || p.Blue == "" || p.NRST == "" {
		if err := d.findFT2232H(); err != nil {
			return nil, err
		}
		// Default harness on channel A:
		// ADBUS4 | LD3 red   (PB14)
		// ADBUS5 | LD1 green (PC7)
		// ADBUS6 | LD2 blue  (PB7)
		// ADBUS7 | NRST      (CN11 pin 14)
		d.red, d.green, d.blue, d.nrst = d.ft.D4, d.ft.D5, d.ft.D6, d.ft.D7
	}

	for _, s := range []struct {
		name string
		pin  *gpio.PinIO
	}{
		{p.Red, &d.red},
		{p.Green, &d.green},
		{p.Blue, &d.blue},
		{p.NRST, &d.nrst},
	} {
		if s.name == "" {
			continue
		}
		pin := gpioreg.ByName(s.name)
		if pin == nil {
			return nil, errors.Errorf("no GPIO named %q", s.name)
		}
		*s.pin = pin
	}
	return d, nil
}

// LEDs samples the three status LEDs.
func (d *Device) LEDs() (red, green, blue gpio.Level, err error) {
	for _, p := range []gpio.PinIO{d.red, d.green, d.blue} {
		if err = p.In(gpio.PullDown, gpio.NoEdge); err != nil {
			return false, false, false, errors.Wrapf(err, "configure %s", p)
		}
	}
	return d.red.Read(), d.green.Read(), d.blue.Read(), nil
}

// Reset asserts (low) or releases (high) the target NRST line.
func (d *Device) Reset(l gpio.Level) error {
	return d.nrst.Out(l)
}

func (d *Device) findFT2232H() error {
	const (
		vendorID  = 0x0403 // FTDI
		productID = 0x6010 // FT2232H
	)

	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != vendorID || info.DevID != productID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			d.ft = ft
			return nil
		}
	}

	return errors.New("FT2232H not found")
}
