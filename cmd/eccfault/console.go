//go:build linux || darwin

package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type ConsoleCmd struct {
	Port string `arg optional default:"/dev/ttyACM0" help:"Serial device of the ST-LINK virtual COM port."`
	Baud int    `optional type:"int" default:"115200" help:"Line speed."`
}

const escape = 0x1d // Ctrl-]

func (cc *ConsoleCmd) Run(c *Context) error {
	fd, err := unix.Open(cc.Port, unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return errors.Wrapf(err, "open %s", cc.Port)
	}
	port := os.NewFile(uintptr(fd), cc.Port)
	defer port.Close()

	t, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return errors.Wrap(err, "get port attributes")
	}
	makeRaw(t)
	if err := setSpeed(t, cc.Baud); err != nil {
		return err
	}
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, t); err != nil {
		return errors.Wrap(err, "set port attributes")
	}

	stdin := int(os.Stdin.Fd())
	if saved, err := unix.IoctlGetTermios(stdin, ioctlGetTermios); err == nil {
		raw := *saved
		makeRaw(&raw)
		// keep output processing so the firmware's bare newlines still return
		raw.Oflag |= unix.OPOST
		if err := unix.IoctlSetTermios(stdin, ioctlSetTermios, &raw); err != nil {
			return errors.Wrap(err, "set terminal attributes")
		}
		defer unix.IoctlSetTermios(stdin, ioctlSetTermios, saved)
	}
	fmt.Fprintf(os.Stderr, "Connected to %s at %d baud, Ctrl-] to quit\r\n", cc.Port, cc.Baud)

	go func() {
		if _, err := io.Copy(os.Stdout, port); err != nil {
			glog.V(1).Infof("console: %v", err)
		}
	}()

	buf := make([]byte, 64)
	for {
		n, err := os.Stdin.Read(buf)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read stdin")
		}
		in := buf[:n]
		quit := false
		if i := bytes.IndexByte(in, escape); i >= 0 {
			in, quit = in[:i], true
		}
		if _, err := port.Write(in); err != nil {
			return errors.Wrapf(err, "write %s", cc.Port)
		}
		if quit {
			return nil
		}
	}
}

// makeRaw sets t up like cfmakeraw(3).
func makeRaw(t *unix.Termios) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CLOCAL | unix.CREAD
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
}
