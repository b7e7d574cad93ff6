//go:build !(tinygo && stm32l4r5)

package main

import (
	"fmt"
	"os"
)

// Host shim: the firmware only runs on the MCU. Use eccfault sim to run it
// against the simulated board.
func main() {
	fmt.Fprintln(os.Stderr, "firmware: build with tinygo -target nucleo-l4r5zi")
	os.Exit(2)
}
