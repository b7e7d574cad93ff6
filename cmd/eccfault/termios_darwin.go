package main

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	ioctlGetTermios = unix.TIOCGETA
	ioctlSetTermios = unix.TIOCSETA
)

// Darwin takes the line speed as a plain number.
func setSpeed(t *unix.Termios, baud int) error {
	if baud <= 0 {
		return errors.Errorf("unsupported baud rate %d", baud)
	}
	t.Ispeed, t.Ospeed = uint64(baud), uint64(baud)
	return nil
}
