package main

import (
	"fmt"

	"github.com/pkg/errors"
	"periph.io/x/host/v3/ftdi"
)

type InfoCmd struct{}

func (InfoCmd) Run(c *Context) error {
	d, err := c.device()
	if err != nil {
		return err
	}
	ft := d.ft
	if ft == nil {
		return errors.New("all pins were given by name, no FTDI adapter in use")
	}

	i := ftdi.Info{}
	ft.Info(&i)
	fmt.Printf("Type:            %s\n", i.Type)
	fmt.Printf("Vendor ID:       %#04x\n", i.VenID)
	fmt.Printf("Device ID:       %#04x\n", i.DevID)

	ee := ftdi.EEPROM{}
	if err := ft.EEPROM(&ee); err != nil {
		return errors.Wrap(err, "failed to read EEPROM")
	}
	fmt.Printf("Manufacturer:    %s\n", ee.Manufacturer)
	fmt.Printf("Desc:            %s\n", ee.Desc)
	fmt.Printf("Serial:          %s\n", ee.Serial)

	fmt.Printf("Red LED:         %s\n", d.red)
	fmt.Printf("Green LED:       %s\n", d.green)
	fmt.Printf("Blue LED:        %s\n", d.blue)
	fmt.Printf("NRST:            %s\n", d.nrst)
	return nil
}
