package event

import (
	"fmt"
	"strconv"
	"strings"
)

// Position identifies a point in the binary log: the log file name and the
// byte offset within it. It is opaque to everything but the source that
// produced it.
type Position struct {
	File   string
	Offset uint64
}

// IsZero reports whether the position carries no information at all.
func (p Position) IsZero() bool {
	return p.File == "" && p.Offset == 0
}

// Known reports whether both halves of the position are set. Only known
// positions are ever persisted.
func (p Position) Known() bool {
	return p.File != "" && p.Offset > 0
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d", p.File, p.Offset)
}

// ParsePosition parses the "file:offset" form produced by String.
func ParsePosition(s string) (Position, error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return Position{}, fmt.Errorf("position %q: want file:offset", s)
	}
	off, err := strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return Position{}, fmt.Errorf("position %q: %w", s, err)
	}
	return Position{File: s[:i], Offset: off}, nil
}
