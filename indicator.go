package eccfault

import "periph.io/x/conn/v3/gpio"

// Line is a binary output such as an LED. gpio.PinOut satisfies it.
type Line interface {
	Out(l gpio.Level) error
}

// Signal is an outcome shown on the three status LEDs.
type Signal uint8

const (
	SignalIdle         Signal = iota // all off: experiment running
	SignalWritten                    // blue: program finished before the reset
	SignalSuccess                    // green: ECC error inside the target window
	SignalFailure                    // red: ECC error elsewhere, or a driver failure
	SignalUnexpected                 // red+blue: fault that is not an ECC error
	SignalSearchFailed               // red+green: interval collapsed
	SignalUnknown                    // any other combination, only from DecodeSignal
)

type rgb struct{ red, green, blue gpio.Level }

var signalLevels = map[Signal]rgb{
	SignalIdle:         {gpio.Low, gpio.Low, gpio.Low},
	SignalWritten:      {gpio.Low, gpio.Low, gpio.High},
	SignalSuccess:      {gpio.Low, gpio.High, gpio.Low},
	SignalFailure:      {gpio.High, gpio.Low, gpio.Low},
	SignalUnexpected:   {gpio.High, gpio.Low, gpio.High},
	SignalSearchFailed: {gpio.High, gpio.High, gpio.Low},
}

func (s Signal) String() string {
	switch s {
	case SignalIdle:
		return "idle"
	case SignalWritten:
		return "written"
	case SignalSuccess:
		return "success"
	case SignalFailure:
		return "failure"
	case SignalUnexpected:
		return "unexpected fault"
	case SignalSearchFailed:
		return "search failed"
	}
	return "unknown"
}

// DecodeSignal maps observed LED levels back to a Signal.
func DecodeSignal(red, green, blue gpio.Level) Signal {
	for s, l := range signalLevels {
		if l == (rgb{red, green, blue}) {
			return s
		}
	}
	return SignalUnknown
}

// Indicator drives the red, green and blue status LEDs
// [UM2179|6.5 LEDs: LD3 red PB14, LD1 green PC7, LD2 blue PB7].
type Indicator struct {
	Red, Green, Blue Line
}

// Show sets all three LEDs for s. It returns the first line error.
func (ind Indicator) Show(s Signal) error {
	l, ok := signalLevels[s]
	if !ok {
		l = signalLevels[SignalFailure]
	}
	var first error
	for _, o := range []struct {
		line  Line
		level gpio.Level
	}{
		{ind.Red, l.red},
		{ind.Green, l.green},
		{ind.Blue, l.blue},
	} {
		if o.line == nil {
			continue
		}
		if err := o.line.Out(o.level); err != nil && first == nil {
			first = err
		}
	}
	return first
}
