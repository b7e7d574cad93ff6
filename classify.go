package eccfault

// Exception is the CPU exception that entered the fault handler.
type Exception uint8

const (
	ExceptionNMI Exception = iota // flash double ECC errors raise NMI [RM0432|3.3.10]
	ExceptionHardFault
	ExceptionMemManage
	ExceptionBusFault
	ExceptionUsageFault
	ExceptionOther
)

func (e Exception) String() string {
	switch e {
	case ExceptionNMI:
		return "NMI"
	case ExceptionHardFault:
		return "HardFault"
	case ExceptionMemManage:
		return "MemManage"
	case ExceptionBusFault:
		return "BusFault"
	case ExceptionUsageFault:
		return "UsageFault"
	}
	return "exception"
}

// System handler control and state register [PM0214|4.4.9]. Without the
// enable bits MemManage, BusFault and UsageFault escalate to HardFault.
const (
	SCBSHCSR uintptr = 0xE000_ED24

	ShcsrMemFaultEna = 1 << 16
	ShcsrBusFaultEna = 1 << 17
	ShcsrUsgFaultEna = 1 << 18
)

// EnableFaultExceptions gives MemManage, BusFault and UsageFault their own
// vectors so they reach the fault handler instead of HardFault.
func EnableFaultExceptions(bus Bus) {
	modify32(bus, SCBSHCSR, 0, ShcsrMemFaultEna|ShcsrBusFaultEna|ShcsrUsgFaultEna)
}

// Verdict classifies a fault.
type Verdict uint8

const (
	// VerdictIntended is an uncorrectable ECC error inside the target window.
	VerdictIntended Verdict = iota
	// VerdictStrayECC is an uncorrectable ECC error anywhere else.
	VerdictStrayECC
	// VerdictNotECC is any other fault.
	VerdictNotECC
)

func (v Verdict) String() string {
	switch v {
	case VerdictIntended:
		return "intended ECC error"
	case VerdictStrayECC:
		return "ECC error outside the window"
	case VerdictNotECC:
		return "not an ECC error"
	}
	return "unknown"
}

func (v Verdict) Signal() Signal {
	switch v {
	case VerdictIntended:
		return SignalSuccess
	case VerdictStrayECC:
		return SignalFailure
	}
	return SignalUnexpected
}

// Policy keeps the board parked on success and lets the watchdog reset it
// otherwise.
func (v Verdict) Policy() FeedPolicy {
	if v == VerdictIntended {
		return FeedForever
	}
	return FeedNone
}

// Classify decides whether s is the fault the experiment is after.
func Classify(s ECCStatus, dual bool, w Window) Verdict {
	if !s.DoubleError(dual) {
		return VerdictNotECC
	}
	if w.Contains(s.Address(dual)) {
		return VerdictIntended
	}
	return VerdictStrayECC
}

// Classifier runs in exception context. It only reads latched hardware
// status; the controller's state may be half written when it runs.
type Classifier struct {
	Board  *Board
	Window Window
	Log    LogFunc
}

// Handle classifies the fault and shows the result. With a nil Log it
// does not allocate.
func (c Classifier) Handle(exc Exception) Verdict {
	b := c.Board
	s := ReadECCStatus(b.Bus)
	dual := b.Flash.DualBank()
	v := Classify(s, dual, c.Window)
	if c.Log != nil {
		c.Log.logf(0, "%s: %s (%s)", exc, v, s)
	}
	_ = b.Status.Show(v.Signal())
	return v
}

// Fault is the exception entry. It never returns to the interrupted code.
func Fault(b *Board, cfg Config, log LogFunc, exc Exception) {
	v := Classifier{Board: b, Window: cfg.Window(), Log: log}.Handle(exc)
	b.Hold(v.Policy())
}
