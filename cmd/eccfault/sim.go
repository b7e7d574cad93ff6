package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/gentam/eccfault"
	"github.com/gentam/eccfault/internal/sim"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

type SimCmd struct {
	Target      uint32 `optional type:"hex" default:"fe000" help:"Flash offset to corrupt, in hex."`
	Width       uint32 `optional type:"int" default:"8" help:"Size of the target window in bytes."`
	Lo          uint32 `optional type:"int" default:"100" help:"Initial lower search bound, in spin iterations."`
	Hi          uint32 `optional type:"int" default:"1_000_000" help:"Initial upper search bound, in spin iterations."`
	MinInterval uint32 `optional type:"int" default:"4" help:"Give up when the interval is this narrow."`
	Prescaler   uint8  `optional type:"int" default:"0" help:"IWDG prescaler, the divider is 4<<prescaler."`
	Reload      uint16 `optional type:"hex" default:"fff" help:"IWDG reload while the board runs, in hex."`
	MinReload   uint16 `optional type:"hex" default:"cc" help:"IWDG reload started right before the write, in hex."`
	Clock       string `optional default:"4MHz" help:"Core clock."`

	SingleBank bool   `optional help:"Simulate the chip with DBANK cleared."`
	Jitter     uint64 `optional type:"int" default:"0" help:"Move every watchdog deadline by up to this many cycles."`
	Seed       int64  `optional type:"int" default:"1" help:"Seed for the jitter and torn data."`
	Limit      int    `optional type:"int" default:"60" help:"Stop after this many boots."`
	Dump       int    `optional type:"int" default:"0" help:"Dump this many bytes of flash around the target."`
}

func (s *SimCmd) config() (eccfault.Config, sim.Config, error) {
	cfg := eccfault.DefaultConfig()
	cfg.TargetAddress = s.Target
	cfg.Width = s.Width
	cfg.SearchLo, cfg.SearchHi = s.Lo, s.Hi
	cfg.MinInterval = s.MinInterval
	cfg.Watchdog = eccfault.WatchdogConfig{
		Prescaler: s.Prescaler,
		Reload:    s.Reload,
		MinReload: s.MinReload,
	}
	if err := cfg.Clock.Set(s.Clock); err != nil {
		return cfg, sim.Config{}, errors.Wrap(err, "--clock")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, sim.Config{}, err
	}

	scfg := sim.DefaultConfig()
	scfg.Clock = cfg.Clock
	scfg.DualBank = !s.SingleBank
	scfg.Jitter = s.Jitter
	scfg.Seed = s.Seed
	return cfg, scfg, nil
}

func (s *SimCmd) Run(c *Context) error {
	cfg, scfg, err := s.config()
	if err != nil {
		return err
	}
	m := sim.New(scfg)
	glog.V(1).Infof("simulating %s, %s, target %#x+%d, search [%d, %d]",
		eccfault.DeviceName(scfg.DeviceID), bankMode(scfg.DualBank),
		cfg.TargetAddress, cfg.Width, cfg.SearchLo, cfg.SearchHi)

	ev := m.Campaign(cfg, glogf, s.Limit, func(ev sim.Event) {
		glog.V(1).Info(ev)
	})

	st := m.Stats
	fmt.Printf("Boots:           %d\n", st.Boots)
	fmt.Printf("Resets:          %d\n", st.Resets)
	fmt.Printf("Erases:          %d\n", st.Erases)
	fmt.Printf("Programs:        %d\n", st.Programs)
	fmt.Printf("Torn:            %d\n", st.Torn)
	fmt.Printf("Search:          [%d, %d] %s\n", m.Backup(eccfault.SlotLo), m.Backup(eccfault.SlotHi),
		eccfault.Phase(m.Backup(eccfault.SlotPhase)))
	fmt.Printf("Last boot:       %s\n", ev)
	fmt.Printf("Result:          %s\n", signalColor(ev.Signal).Sprint(ev.Signal))

	if s.Dump > 0 {
		start := cfg.TargetAddress &^ 0xF
		fmt.Print(hexdump(start, m.ReadFlash(start, s.Dump), m.IsCorrupted))
	}

	if ev.Kind == sim.EventReset {
		return errors.Errorf("no verdict after %d boots", st.Boots)
	}
	if ev.Signal != eccfault.SignalSuccess {
		return errors.Errorf("search ended with %s", ev.Signal)
	}
	return nil
}

func bankMode(dual bool) string {
	if dual {
		return "dual bank"
	}
	return "single bank"
}

func signalColor(s eccfault.Signal) *color.Color {
	switch s {
	case eccfault.SignalWritten:
		return color.New(color.FgBlue)
	case eccfault.SignalSuccess:
		return color.New(color.FgGreen, color.Bold)
	case eccfault.SignalFailure:
		return color.New(color.FgRed, color.Bold)
	case eccfault.SignalUnexpected:
		return color.New(color.FgMagenta, color.Bold)
	case eccfault.SignalSearchFailed:
		return color.New(color.FgYellow, color.Bold)
	}
	return color.New(color.Reset)
}
