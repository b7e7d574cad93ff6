package eccfault

import (
	"strconv"
	"strings"
)

// Flash memory layout and FLASH register map:
//   - [RM0432|Table 9: Flash module - 2 MB dual-bank organization]
//   - [RM0432|3.7.16 FLASH register map]
const (
	FlashBase     uintptr = 0x0800_0000
	FlashSize             = 2 << 20 // 2 MiB
	FlashBankSize         = FlashSize / 2

	flashRegBase uintptr = 0x4002_2000
	FlashKEYR            = flashRegBase + 0x08
	FlashSR              = flashRegBase + 0x10
	FlashCR              = flashRegBase + 0x14
	FlashECCR            = flashRegBase + 0x18
	FlashOPTR            = flashRegBase + 0x20
)

// Unlock keys [RM0432|3.3.5 Flash program and erase operations].
const (
	FlashKey1 = 0x4567_0123
	FlashKey2 = 0xCDEF_89AB
)

const (
	dualBankPageSize    = 0x1000
	dualBankPageCount   = 512
	singleBankPageSize  = 0x2000
	singleBankPageCount = 256
	pagesPerBank        = 256
)

// OPTR.DBANK [RM0432|3.7.8]. On 2 MB parts DB1M (bit 21) is the wrong bit.
const optrDBANK = 1 << 22

// FLASH_SR bits [RM0432|3.7.5].
const (
	SrEOP     = 1 << 0
	SrOPERR   = 1 << 1
	SrPROGERR = 1 << 3
	SrWRPERR  = 1 << 4
	SrPGAERR  = 1 << 5
	SrSIZERR  = 1 << 6
	SrPGSERR  = 1 << 7
	SrMISERR  = 1 << 8
	SrFASTERR = 1 << 9
	SrBSY     = 1 << 16

	// SrProgrammingErrors are the sticky flags that block the next operation.
	SrProgrammingErrors = SrPROGERR | SrSIZERR | SrPGAERR | SrPGSERR | SrWRPERR | SrMISERR | SrFASTERR
)

// FLASH_CR bits [RM0432|3.7.6].
const (
	CrPG       = 1 << 0
	CrPER      = 1 << 1
	CrPNBShift = 3
	CrPNBMask  = 0xFF << CrPNBShift
	CrBKER     = 1 << 11
	CrSTRT     = 1 << 16
	CrLOCK     = 1 << 31
)

// Error is a flash driver failure.
type Error uint8

const (
	// ErrUnlockFailed means the key sequence was rejected. The controller
	// stays locked until the next system reset.
	ErrUnlockFailed Error = iota + 1
	// ErrBusy means BSY did not clear within the wait bound.
	ErrBusy
	// ErrIllegal means a programming error flag is set in FLASH_SR.
	ErrIllegal
	// ErrInvalidPage means the page number does not exist in the current bank mode.
	ErrInvalidPage
	// ErrLocked means the unlocked capability was used after Lock.
	ErrLocked
)

func (e Error) Error() string {
	switch e {
	case ErrUnlockFailed:
		return "flash: unlock failed"
	case ErrBusy:
		return "flash: busy"
	case ErrIllegal:
		return "flash: illegal programming sequence"
	case ErrInvalidPage:
		return "flash: invalid page"
	case ErrLocked:
		return "flash: locked"
	}
	return "flash: error " + strconv.Itoa(int(e))
}

// Geometry answers bank-mode dependent layout questions. The DBANK option bit
// is read on every call and never cached.
type Geometry struct {
	bus Bus
}

// DualBank reports whether the flash is organised as two 1 MiB banks of 4 KiB
// pages. Otherwise it is a single bank of 8 KiB pages.
func (g Geometry) DualBank() bool {
	return g.bus.Load32(FlashOPTR)&optrDBANK != 0
}

func (g Geometry) PageSize() uint32 {
	if g.DualBank() {
		return dualBankPageSize
	}
	return singleBankPageSize
}

func (g Geometry) PageCount() uint32 {
	if g.DualBank() {
		return dualBankPageCount
	}
	return singleBankPageCount
}

// AddressToPage returns the page holding the flash offset off. The same offset
// maps to different page numbers in the two bank modes.
func (g Geometry) AddressToPage(off uint32) uint32 {
	return off / g.PageSize()
}

// PageAddress returns the flash offset of the first byte of page.
func (g Geometry) PageAddress(page uint32) uint32 {
	return page * g.PageSize()
}

// Flash is the locked flash controller.
type Flash struct {
	Geometry
	bus  Bus
	wait uint32 // BSY poll bound, see WaitIterations
}

// NewFlash returns the flash controller. waitIterations bounds every BSY poll.
func NewFlash(bus Bus, waitIterations uint32) *Flash {
	return &Flash{
		Geometry: Geometry{bus: bus},
		bus:      bus,
		wait:     waitIterations,
	}
}

// Unlock writes the key sequence [RM0432|3.3.5]. The controller latches each
// key separately, so both writes are fenced. On failure LOCK stays set until
// the next system reset. The returned capability must be released with Lock.
func (f *Flash) Unlock() (*UnlockedFlash, error) {
	f.bus.Store32(FlashKEYR, FlashKey1)
	f.bus.Barrier()
	f.bus.Store32(FlashKEYR, FlashKey2)
	f.bus.Barrier()

	if ControlRegister(f.bus.Load32(FlashCR)).Locked() {
		return nil, ErrUnlockFailed
	}
	return &UnlockedFlash{Geometry: f.Geometry, f: f}, nil
}

// WithUnlocked runs fn with the controller unlocked and relocks it on every
// exit path, panics included.
func (f *Flash) WithUnlocked(fn func(u *UnlockedFlash) error) error {
	u, err := f.Unlock()
	if err != nil {
		return err
	}
	defer u.Lock()
	return fn(u)
}

func (f *Flash) status() error {
	sr := StatusRegister(f.bus.Load32(FlashSR))
	if sr.Busy() {
		return ErrBusy
	}
	if sr.Errors() != 0 {
		return ErrIllegal
	}
	return nil
}

// UnlockedFlash is the unlocked flash controller. It offers the geometry
// queries of Flash but not Unlock.
type UnlockedFlash struct {
	Geometry
	f      *Flash
	locked bool
}

// Lock sets CR.LOCK. Only the first call touches the hardware.
//
// [RM0432|3.7.6] CR cannot be written while BSY is set; the write stalls the
// bus until BSY clears, which is what we want anyway.
func (u *UnlockedFlash) Lock() {
	if u.locked {
		return
	}
	u.locked = true
	modify32(u.f.bus, FlashCR, 0, CrLOCK)
}

// ClearProgrammingFlags clears the sticky error flags in one write
// [RM0432|3.3.8 Flash main memory programming errors]. The flags are rc_w1.
func (u *UnlockedFlash) ClearProgrammingFlags() {
	u.f.bus.Store32(FlashSR, SrProgrammingErrors)
}

// ErasePage erases one page [RM0432|3.3.6 Flash main memory erase sequences].
// Use AddressToPage to get the page number; it depends on the bank mode.
func (u *UnlockedFlash) ErasePage(page uint32) error {
	if u.locked {
		return ErrLocked
	}
	dual := u.DualBank()
	count := uint32(singleBankPageCount)
	if dual {
		count = dualBankPageCount
	}
	if page >= count {
		return ErrInvalidPage
	}

	// 1. No operation ongoing
	if err := u.idle(); err != nil {
		return err
	}
	// 2. Clear flags from a previous operation, otherwise PGSERR is set
	u.ClearProgrammingFlags()

	// 3. PER, bank and page in one write. The manual calls the banks 1 and 2;
	// here they are 0 and 1. In single-bank mode BKER must be kept cleared.
	set := uint32(CrPER)
	if dual {
		bank, local := page/pagesPerBank, page%pagesPerBank
		set |= local << CrPNBShift
		if bank == 1 {
			set |= CrBKER
		}
	} else {
		set |= page << CrPNBShift
	}
	modify32(u.f.bus, FlashCR, CrPNBMask|CrBKER, set)

	// 4. Start
	modify32(u.f.bus, FlashCR, 0, CrSTRT)

	// 5. Wait for BSY to clear
	err := u.Wait()

	modify32(u.f.bus, FlashCR, CrPER, 0)
	return err
}

// WriteWords programs words starting at flash offset off, which must be
// double-word aligned and erased [RM0432|3.3.7 Flash main memory programming
// sequences, standard programming].
func (u *UnlockedFlash) WriteWords(off uint32, words []uint64) error {
	if u.locked {
		return ErrLocked
	}
	bus := u.f.bus

	// 1. No operation ongoing
	if err := u.idle(); err != nil {
		return err
	}
	// 2. Clear flags from a previous programming
	u.ClearProgrammingFlags()

	// 3. PG, cleared again whatever happens below
	modify32(bus, FlashCR, 0, CrPG)
	defer modify32(bus, FlashCR, CrPG, 0)

	addr := FlashBase + uintptr(off)
	for _, w := range words {
		// 4. Both halves must be written before the controller latches the
		// double word.
		bus.Store32(addr, uint32(w))
		bus.Barrier()
		bus.Store32(addr+4, uint32(w>>32))
		addr += 8

		// 5. Each double word programs on its own; stop at the first failure.
		if err := u.Wait(); err != nil {
			return err
		}

		// 6. EOP is only set with EOPIE, clear it if it shows up anyway.
		if bus.Load32(FlashSR)&SrEOP != 0 {
			bus.Store32(FlashSR, SrEOP)
		}
	}
	return nil
}

// Wait polls BSY for at most the calibrated number of iterations and then
// reports the controller status: ErrBusy, ErrIllegal or nil.
func (u *UnlockedFlash) Wait() error {
	u.poll()
	return u.f.status()
}

// idle is step 1 of every sequence: only BSY matters, error flags left by an
// earlier operation are cleared right after.
func (u *UnlockedFlash) idle() error {
	u.poll()
	if StatusRegister(u.f.bus.Load32(FlashSR)).Busy() {
		return ErrBusy
	}
	return nil
}

func (u *UnlockedFlash) poll() {
	for i := uint32(0); i < u.f.wait; i++ {
		if u.f.bus.Load32(FlashSR)&SrBSY == 0 {
			return
		}
	}
}

// StatusRegister is FLASH_SR.
type StatusRegister uint32

func (sr StatusRegister) Busy() bool { return sr&SrBSY != 0 }
func (sr StatusRegister) EOP() bool  { return sr&SrEOP != 0 }

// Errors returns the programming error flags that are set.
func (sr StatusRegister) Errors() uint32 { return uint32(sr) & SrProgrammingErrors }

var srNames = []struct {
	bit  uint32
	name string
}{
	{SrBSY, "BSY"},
	{SrFASTERR, "FASTERR"},
	{SrMISERR, "MISERR"},
	{SrPGSERR, "PGSERR"},
	{SrSIZERR, "SIZERR"},
	{SrPGAERR, "PGAERR"},
	{SrWRPERR, "WRPERR"},
	{SrPROGERR, "PROGERR"},
	{SrOPERR, "OPERR"},
	{SrEOP, "EOP"},
}

func (sr StatusRegister) String() string {
	s := []string{}
	for _, n := range srNames {
		if uint32(sr)&n.bit != 0 {
			s = append(s, n.name)
		}
	}
	h := "0x" + strconv.FormatUint(uint64(sr), 16)
	if len(s) == 0 {
		return h
	}
	return h + " " + strings.Join(s, ",")
}

// ControlRegister is FLASH_CR.
type ControlRegister uint32

func (cr ControlRegister) Locked() bool { return cr&CrLOCK != 0 }
func (cr ControlRegister) PG() bool     { return cr&CrPG != 0 }
func (cr ControlRegister) PER() bool    { return cr&CrPER != 0 }
func (cr ControlRegister) BKER() bool   { return cr&CrBKER != 0 }
func (cr ControlRegister) STRT() bool   { return cr&CrSTRT != 0 }

// Page is PNB, the page number inside the bank selected by BKER.
func (cr ControlRegister) Page() uint32 { return (uint32(cr) & CrPNBMask) >> CrPNBShift }

var crNames = []struct {
	bit  uint32
	name string
}{
	{CrLOCK, "LOCK"},
	{CrSTRT, "STRT"},
	{CrBKER, "BKER"},
	{CrPER, "PER"},
	{CrPG, "PG"},
}

func (cr ControlRegister) String() string {
	s := []string{}
	for _, n := range crNames {
		if uint32(cr)&n.bit != 0 {
			s = append(s, n.name)
		}
	}
	if p := cr.Page(); p != 0 {
		s = append(s, "PNB="+strconv.FormatUint(uint64(p), 10))
	}
	h := "0x" + strconv.FormatUint(uint64(cr), 16)
	if len(s) == 0 {
		return h
	}
	return h + " " + strings.Join(s, ",")
}
