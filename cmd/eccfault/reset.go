package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
)

type ResetCmd struct {
	Hold time.Duration `optional default:"1ms" help:"How long NRST is held low."`
	Wait bool          `optional help:"Wait for the board to show a verdict afterwards."`
}

// Run pulses NRST. The backup domain survives the pulse, so the firmware
// continues the search where it was.
func (r *ResetCmd) Run(c *Context) error {
	d, err := c.device()
	if err != nil {
		return err
	}

	// [RM0432|6.1.2 System reset] NRST must be held for at least 350ns.
	if err := d.Reset(gpio.Low); err != nil {
		return errors.Wrap(err, "failed to assert NRST")
	}
	time.Sleep(r.Hold)
	if err := d.Reset(gpio.High); err != nil {
		return errors.Wrap(err, "failed to release NRST")
	}
	fmt.Println("Reset")

	if r.Wait {
		return (&WatchCmd{Loop: true, Interval: 50 * time.Millisecond, Until: true}).Run(c)
	}
	return nil
}
