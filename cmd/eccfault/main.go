// Command eccfault drives the ECC fault experiment from a host: it runs the
// delay search against the simulated chip, watches a real board's status LEDs,
// resets it and attaches to its console.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/alecthomas/kong"
	"github.com/gentam/eccfault"
	"github.com/golang/glog"
)

type Context struct {
	pins Pins
	dev  *Device
}

// device opens the hardware on first use.
func (c *Context) device() (*Device, error) {
	if c.dev == nil {
		d, err := NewDevice(c.pins)
		if err != nil {
			return nil, err
		}
		c.dev = d
	}
	return c.dev, nil
}

var CLI struct {
	Verbose int  `optional short:"v" help:"Higher values give more output."`
	Pins    Pins `embed`

	Sim     SimCmd     `cmd help:"Run the delay search on the simulated chip."`
	Watch   WatchCmd   `cmd help:"Decode the board's status LEDs."`
	Reset   ResetCmd   `cmd help:"Pulse the target NRST line."`
	Console ConsoleCmd `cmd help:"Attach to the firmware console."`
	Info    InfoCmd    `cmd help:"Show the FTDI adapter."`
}

// glogf forwards core progress messages to glog, verbosity for verbosity.
func glogf(level int, format string, param ...interface{}) {
	glog.V(glog.Level(level)).Infof(format, param...)
}

var _ eccfault.LogFunc = glogf

func main() {
	k, err := kong.New(&CLI,
		kong.Description("ECC fault injection by resetting the STM32L4R5 in the middle of a flash write."),
		kong.NamedMapper("int", intMapper{}),
		kong.NamedMapper("hex", intMapper{base: 16}))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, err := k.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// glog reads its settings from the standard flag set.
	_ = flag.CommandLine.Parse(nil)
	_ = flag.Set("logtostderr", "true")
	_ = flag.Set("v", strconv.Itoa(CLI.Verbose))
	defer glog.Flush()

	err = ctx.Run(&Context{pins: CLI.Pins})
	glog.Flush()
	ctx.FatalIfErrorf(err)
}
