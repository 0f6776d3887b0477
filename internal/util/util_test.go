package util_test

import (
	"net"
	"testing"

	"github.com/1ureka/sendfile/internal/util"
)

// TestFormatBytes verifies the fixed-width human-readable output.
func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
	}

	for _, tc := range testCases {
		if got := util.FormatBytes(tc.in); got != tc.want {
			t.Errorf("FormatBytes(%v): got %q, want %q", tc.in, got, tc.want)
		}
		if got := util.FormatBytes(tc.in); len(got) != 8 {
			t.Errorf("FormatBytes(%v): got width %d, want 8", tc.in, len(got))
		}
	}
}

// TestAddrIDStable verifies the id depends only on the address pair.
func TestAddrIDStable(t *testing.T) {
	a := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7878}
	b := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000}

	if util.AddrID(a, b) != util.AddrID(a, b) {
		t.Error("AddrID is not deterministic")
	}
	if util.AddrID(a, b) == util.AddrID(b, a) {
		t.Error("AddrID should depend on address order")
	}
	if util.AddrID(a, b) != util.StringID(a.String(), b.String()) {
		t.Error("AddrID should hash the address strings")
	}
	if util.AddrID(nil, nil) != util.StringID() {
		t.Error("nil addresses should hash as empty")
	}
}

// TestStatsActive verifies the active session count.
func TestStatsActive(t *testing.T) {
	before := util.Stats.Active()

	util.Stats.AddSession()
	util.Stats.AddSession()
	util.Stats.CloseSession()

	if got := util.Stats.Active() - before; got != 1 {
		t.Errorf("Active delta: got %d, want 1", got)
	}
	util.Stats.CloseSession()
}
