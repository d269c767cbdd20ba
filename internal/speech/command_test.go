package speech

import (
	"strings"
	"testing"
)

func TestCommandArgs(t *testing.T) {
	voice := Voice{Rate: 1.5, Pitch: 0.5, Name: "en"}
	tests := []struct {
		bin  string
		want string
	}{
		{"/usr/bin/espeak-ng", "-s 263 -p 25 -v en -- Hello."},
		{"/usr/bin/spd-say", "-w -r 50 -p -50 -y en -- Hello."},
		{"/usr/bin/say", "-r 263 -v en Hello."},
	}
	for _, tt := range tests {
		t.Run(tt.bin, func(t *testing.T) {
			c := &CommandSynthesizer{bin: tt.bin, voice: voice}
			if got := strings.Join(c.args("Hello."), " "); got != tt.want {
				t.Errorf("args = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOffsetClamps(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{1, 0},
		{0, 0},
		{3, 100},
		{0.5, -50},
	}
	for _, tt := range tests {
		if got := offset(tt.in); got != tt.want {
			t.Errorf("offset(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCommandPauseOutlivesUtterance(t *testing.T) {
	c := &CommandSynthesizer{bin: "/usr/bin/espeak"}
	c.Pause()
	if !c.paused {
		t.Fatal("pause with nothing in flight was dropped")
	}
	c.Resume()
	if c.paused {
		t.Error("resume did not clear the pause")
	}
}
