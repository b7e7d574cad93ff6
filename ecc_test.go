package eccfault

import "testing"

func TestECCStatus(t *testing.T) {
	for _, tc := range []struct {
		name   string
		s      ECCStatus
		dual   bool
		double bool
		single bool
		addr   uint32
	}{
		{"clear", 0, true, false, false, 0},
		{"bank 1", eccrECCD | 0xFE000, true, true, false, 0xFE000},
		{"bank 2", eccrECCD | eccrBK | 0x10, true, true, false, 0x100010},
		{"bank 2 ignored in single", eccrECCD | eccrBK | 0x10, false, true, false, 0x10},
		{"ECCD2 reserved in dual", eccrECCD2 | 0x2008, true, false, false, 0x2008},
		{"ECCD2 single", eccrECCD2 | 0x2008, false, true, false, 0x2008},
		{"corrected", eccrECCC | 0x100, true, false, true, 0x100},
		{"corrected upper", eccrECCC2 | 0x108, false, false, true, 0x108},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.s.DoubleError(tc.dual); got != tc.double {
				t.Errorf("DoubleError = %v", got)
			}
			if got := tc.s.SingleError(tc.dual); got != tc.single {
				t.Errorf("SingleError = %v", got)
			}
			if got := tc.s.Address(tc.dual); got != tc.addr {
				t.Errorf("Address = 0x%X, want 0x%X", got, tc.addr)
			}
		})
	}
}

func TestECCStatusString(t *testing.T) {
	s := ECCStatus(eccrECCD | eccrBK | 0x2000)
	if got, want := s.String(), "addr=0x2000 ECCD,BK"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if !ECCStatus(eccrSYSF).SystemFlash() {
		t.Fatalf("SYSF not reported")
	}
}
