package eccfault

import (
	"strconv"
	"strings"
)

// FLASH_ECCR bits [RM0432|3.7.7 Flash ECC register].
const (
	eccrAddrMask = 0x1F_FFFF // ADDR_ECC[20:0]
	eccrBK       = 1 << 21   // BK_ECC
	eccrSYSF     = 1 << 22   // SYSF_ECC
	eccrECCIE    = 1 << 24
	eccrECCC2    = 1 << 28
	eccrECCD2    = 1 << 29
	eccrECCC     = 1 << 30
	eccrECCD     = 1 << 31
)

// ECCStatus is FLASH_ECCR as latched by the last ECC event.
//
//	Bits | Dual-bank                 | Single-bank
//	-----+---------------------------+---------------------------------------
//	31   | ECCD: double error        | ECCD: double error, lower 64 bits
//	30   | ECCC: single error        | ECCC: single error, lower 64 bits
//	29   | reserved                  | ECCD2: double error, upper 64 bits
//	28   | reserved                  | ECCC2: single error, upper 64 bits
//	22   | SYSF_ECC: system flash    | SYSF_ECC: system flash
//	21   | BK_ECC: bank 2            | reserved
//	20:0 | ADDR_ECC: offset in bank  | ADDR_ECC: offset in flash
type ECCStatus uint32

// ReadECCStatus reads FLASH_ECCR directly, bypassing the driver.
func ReadECCStatus(bus Bus) ECCStatus {
	return ECCStatus(bus.Load32(FlashECCR))
}

// DoubleError reports an uncorrectable error. In dual-bank mode bit 29 is
// reserved and must be ignored.
func (s ECCStatus) DoubleError(dual bool) bool {
	if dual {
		return s&eccrECCD != 0
	}
	return s&(eccrECCD|eccrECCD2) != 0
}

// SingleError reports a corrected error.
func (s ECCStatus) SingleError(dual bool) bool {
	if dual {
		return s&eccrECCC != 0
	}
	return s&(eccrECCC|eccrECCC2) != 0
}

func (s ECCStatus) SystemFlash() bool { return s&eccrSYSF != 0 }

// Address returns the flash offset of the failing double word.
func (s ECCStatus) Address(dual bool) uint32 {
	addr := uint32(s) & eccrAddrMask
	if dual && s&eccrBK != 0 {
		addr += FlashBankSize
	}
	return addr
}

func (s ECCStatus) String() string {
	names := []struct {
		bit  uint32
		name string
	}{
		{eccrECCD, "ECCD"},
		{eccrECCC, "ECCC"},
		{eccrECCD2, "ECCD2"},
		{eccrECCC2, "ECCC2"},
		{eccrECCIE, "ECCIE"},
		{eccrSYSF, "SYSF"},
		{eccrBK, "BK"},
	}
	s2 := []string{}
	for _, n := range names {
		if uint32(s)&n.bit != 0 {
			s2 = append(s2, n.name)
		}
	}
	a := "addr=0x" + strconv.FormatUint(uint64(uint32(s)&eccrAddrMask), 16)
	if len(s2) == 0 {
		return a
	}
	return a + " " + strings.Join(s2, ",")
}
