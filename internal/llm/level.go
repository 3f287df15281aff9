package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Level is the intelligence routing level of a conversation.
type Level string

const (
	Nano     Level = "nano"
	Standard Level = "standard"
	Super    Level = "super"
	Quantum  Level = "quantum"
)

// ErrInvalidLevel is returned by ParseLevel for unknown levels.
var ErrInvalidLevel = errors.New("invalid intelligence level")

var levels = []Level{Nano, Standard, Super, Quantum}

// Levels returns every level from least to most capable.
func Levels() []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}

// ParseLevel parses s case-insensitively.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range levels {
		if v == l {
			return l, nil
		}
	}
	names := make([]string, len(levels))
	for i, v := range levels {
		names[i] = string(v)
	}
	return "", fmt.Errorf("%w %q: must be one of %s", ErrInvalidLevel, s, strings.Join(names, ", "))
}

// Upper returns the level name in capitals, as shown in prompts.
func (l Level) Upper() string {
	return strings.ToUpper(string(l))
}
