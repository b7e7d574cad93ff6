package main

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
)

// intMapper parses integers in base, accepting a 0x prefix and _ separators
// when base is 0.
type intMapper struct {
	base int
}

func (h intMapper) Decode(ctx *kong.DecodeContext, target reflect.Value) error {
	var value string
	if err := ctx.Scan.PopValueInto("int", &value); err != nil {
		return err
	}
	i, err := h.parse(value)
	if err != nil {
		return err
	}
	switch target.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if i < 0 || target.OverflowUint(uint64(i)) {
			return strconv.ErrRange
		}
		target.SetUint(uint64(i))
	default:
		if target.OverflowInt(i) {
			return strconv.ErrRange
		}
		target.SetInt(i)
	}
	return nil
}

func (h intMapper) parse(s string) (int64, error) {
	if h.base == 16 {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	}
	return strconv.ParseInt(s, h.base, 64)
}
