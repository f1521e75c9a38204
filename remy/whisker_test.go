package remy

import (
	"strings"
	"testing"
)

func TestWhisker_Window(t *testing.T) {
	r := mustRange(t, NewMemory(Dims7), mustMemory(t, Dims7, uniform(Dims7, 1)...))
	tests := []struct {
		name      string
		increment int
		multiple  float64
		previous  uint32
		want      uint32
	}{
		{name: "grow", increment: 2, multiple: 1.5, previous: 10, want: 17},
		{name: "hold", increment: 0, multiple: 1, previous: 42, want: 42},
		{name: "truncate", increment: 1, multiple: 0.5, previous: 3, want: 2},
		{name: "floor", increment: -20, multiple: 1, previous: 10, want: 0},
		{name: "cap", increment: 10, multiple: 2, previous: MaxWindow, want: MaxWindow},
		{name: "from-zero", increment: 3, multiple: 1, previous: 0, want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWhisker(r, tt.increment, tt.multiple, 0)
			if got := w.Window(tt.previous); got != tt.want {
				t.Errorf("Window(%d) = %d, want %d", tt.previous, got, tt.want)
			}
		})
	}
}

func TestWhisker_String(t *testing.T) {
	r := mustRange(t, NewMemory(Dims7), mustMemory(t, Dims7, uniform(Dims7, 1)...))
	w := NewWhisker(r, 2, 1.5, 0.25)
	w.use()
	s := w.String()
	if !strings.HasPrefix(s, "{(lo: <sewma=0.000000") {
		t.Errorf("String() = %q has the wrong prefix", s)
	}
	if !strings.HasSuffix(s, "=> (win: 2 + (1.500000 * win) intersend: 0.25 ms) (used: 1)") {
		t.Errorf("String() = %q has the wrong suffix", s)
	}
}
