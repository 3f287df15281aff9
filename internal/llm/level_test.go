package llm

import (
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"nano", Nano},
		{"STANDARD", Standard},
		{" Super ", Super},
		{"quantum", Quantum},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseLevelInvalid(t *testing.T) {
	_, err := ParseLevel("ultra")
	if !errors.Is(err, ErrInvalidLevel) {
		t.Fatalf("ParseLevel(ultra) error = %v, want ErrInvalidLevel", err)
	}
	for _, l := range Levels() {
		if !strings.Contains(err.Error(), string(l)) {
			t.Errorf("error %q does not list level %q", err, l)
		}
	}
}

func TestLevelsOrderAndCopy(t *testing.T) {
	got := Levels()
	want := []Level{Nano, Standard, Super, Quantum}
	if len(got) != len(want) {
		t.Fatalf("Levels() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Levels()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	got[0] = "mutated"
	if Levels()[0] != Nano {
		t.Error("Levels() exposes internal slice")
	}
}

func TestLevelUpper(t *testing.T) {
	if got := Quantum.Upper(); got != "QUANTUM" {
		t.Errorf("Upper() = %q, want QUANTUM", got)
	}
}
