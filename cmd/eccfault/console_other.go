//go:build !linux && !darwin

package main

import "github.com/pkg/errors"

type ConsoleCmd struct {
	Port string `arg optional help:"Serial device of the ST-LINK virtual COM port."`
	Baud int    `optional type:"int" default:"115200" help:"Line speed."`
}

func (cc *ConsoleCmd) Run(c *Context) error {
	return errors.New("console is only supported on Linux and macOS")
}
