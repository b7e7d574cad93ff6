package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// hexdump formats data read from flash offset off, 16 bytes a row. Bytes for
// which bad reports true print red.
func hexdump(off uint32, data []byte, bad func(off uint32) bool) string {
	const row = 16
	red := color.New(color.FgRed)

	var b strings.Builder
	for len(data) > 0 {
		n := min(len(data), row)
		var hex, text strings.Builder
		for i := 0; i < row; i++ {
			if i == row/2 {
				hex.WriteByte(' ')
			}
			if i >= n {
				hex.WriteString("   ")
				text.WriteByte(' ')
				continue
			}
			c := data[i]
			h := fmt.Sprintf("%02x ", c)
			if c < 32 || c > 126 {
				c = '.'
			}
			if bad != nil && bad(off+uint32(i)) {
				hex.WriteString(red.Sprint(h))
				text.WriteString(red.Sprintf("%c", c))
			} else {
				hex.WriteString(h)
				text.WriteByte(c)
			}
		}
		fmt.Fprintf(&b, "%08x  %s |%s|\n", off, hex.String(), text.String())
		data = data[n:]
		off += uint32(n)
	}
	return b.String()
}
