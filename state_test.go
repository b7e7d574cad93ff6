package eccfault

import (
	"math/rand"
	"testing"
)

func TestInitState(t *testing.T) {
	b := &memBackup{}
	if !InitState(b, Search{Lo: 100, Hi: 1_000_000}) {
		t.Fatalf("fresh backup domain not initialized")
	}
	st := LoadState(b)
	if !st.Initialized() || st.Search != (Search{100, 1_000_000}) || st.Phase != PhaseUninitialized {
		t.Fatalf("state %+v", st)
	}

	b.Store(SlotLo, 5000)
	b.Store(SlotPhase, uint32(PhaseAfterWrite))
	stores := b.stores
	if InitState(b, Search{Lo: 100, Hi: 1_000_000}) {
		t.Fatalf("initialized twice")
	}
	if b.stores != stores || LoadState(b).Search.Lo != 5000 {
		t.Fatalf("initialized state modified")
	}

	Invalidate(b)
	if !InitState(b, Search{Lo: 1, Hi: 2}) || LoadState(b).Search != (Search{1, 2}) {
		t.Fatalf("invalidated state not reinitialized")
	}
}

func TestCountReset(t *testing.T) {
	b := &memBackup{}
	for i := uint32(1); i <= 3; i++ {
		if n := CountReset(b); n != i {
			t.Fatalf("CountReset = %d, want %d", n, i)
		}
	}
	// the counter is diagnostic and survives reinitialization
	InitState(b, Search{Lo: 1, Hi: 2})
	if n := CountReset(b); n != 4 {
		t.Fatalf("CountReset = %d, want 4", n)
	}
}

func TestNarrow(t *testing.T) {
	s := Search{Lo: 100_000, Hi: 1_000_000}
	if m := s.Middle(); m != 550_000 {
		t.Fatalf("Middle = %d", m)
	}
	if got := s.Narrow(PhaseBeforeWrite); got != (Search{100_000, 550_000}) {
		t.Fatalf("before-write: %+v", got)
	}
	if got := s.Narrow(PhaseAfterWrite); got != (Search{550_000, 1_000_000}) {
		t.Fatalf("after-write: %+v", got)
	}
	if got := s.Narrow(PhaseUninitialized); got != s {
		t.Fatalf("uninitialized: %+v", got)
	}
	// no overflow near the top of the range
	top := Search{Lo: 0xFFFF_FF00, Hi: 0xFFFF_FFFF}
	if m := top.Middle(); m < top.Lo || m > top.Hi {
		t.Fatalf("Middle = 0x%X", m)
	}
}

func TestExhausted(t *testing.T) {
	for _, tc := range []struct {
		s    Search
		want bool
	}{
		{Search{100, 1_000_000}, false},
		{Search{100, 105}, false},
		{Search{100, 104}, true},
		{Search{100, 100}, true},
		{Search{200, 100}, true},
	} {
		if got := tc.s.Exhausted(4); got != tc.want {
			t.Errorf("%+v: Exhausted = %v", tc.s, got)
		}
	}
}

// The search keeps an unknown threshold inside the interval and collapses
// around it in logarithmically many steps.
func TestSearchConverges(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		s := Search{Lo: 100, Hi: 1_000_000}
		threshold := s.Lo + uint32(rnd.Int63n(int64(s.Hi-s.Lo)))
		steps := 0
		for !s.Exhausted(4) {
			phase := PhaseAfterWrite
			if s.Middle() >= threshold {
				phase = PhaseBeforeWrite
			}
			s = s.Narrow(phase)
			if threshold < s.Lo || threshold > s.Hi {
				t.Fatalf("threshold %d left %+v", threshold, s)
			}
			if steps++; steps > 20 {
				t.Fatalf("threshold %d: no convergence after %d steps", threshold, steps)
			}
		}
	}
}

func TestStoreSearch(t *testing.T) {
	b := &memBackup{}
	prev := Search{Lo: 100, Hi: 1_000_000}
	StoreSearch(b, prev, prev)
	if b.stores != 0 {
		t.Fatalf("unchanged bounds stored")
	}
	StoreSearch(b, prev, prev.Narrow(PhaseBeforeWrite))
	if b.stores != 1 || b.slot[SlotHi] != 500_050 {
		t.Fatalf("stores %d, slots %v", b.stores, b.slot[:SlotResets+1])
	}
}

func TestRTCBackup(t *testing.T) {
	f := newFakeBus(t)
	r := RTCBackup{Bus: f}
	r.Store(SlotPhase, uint32(PhaseAfterWrite))
	f.expectLog(access{'w', 0x4000_285C, 2})
	if p := Phase(r.Load(SlotPhase)); p != PhaseAfterWrite {
		t.Fatalf("phase %s", p)
	}
}
