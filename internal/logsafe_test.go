package internal

import (
	"strings"
	"testing"
)

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "alice", want: "alice"},
		{in: "alice\r\nINFO forged entry", want: "aliceINFO forged entry"},
		{in: "tab\there\x00\x1b[31m", want: "tabhere[31m"},
		{in: strings.Repeat("a", 100), want: strings.Repeat("a", 100)},
		{in: strings.Repeat("b", 101), want: strings.Repeat("b", 100) + "..."},
		{in: strings.Repeat("é", 150), want: strings.Repeat("é", 100) + "..."},
	}
	for _, tc := range tests {
		if got := SanitizeForLog(tc.in); got != tc.want {
			t.Fatalf("SanitizeForLog(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}
