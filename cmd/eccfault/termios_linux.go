package main

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETS
)

var bauds = map[int]uint32{
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	921600:  unix.B921600,
	1000000: unix.B1000000,
}

func setSpeed(t *unix.Termios, baud int) error {
	b, ok := bauds[baud]
	if !ok {
		return errors.Errorf("unsupported baud rate %d", baud)
	}
	t.Cflag = t.Cflag&^unix.CBAUD | b
	t.Ispeed, t.Ospeed = b, b
	return nil
}
