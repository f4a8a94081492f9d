package source

import (
	"fmt"
)

// Span locates a single operation of a script.
// Op is always meaningful; Line/Col are 0 when the loader could not recover them.
type Span struct {
	File FileID
	Op   uint32 // 0-based operation index
	Line uint32
	Col  uint32
}

// HasPosition reports whether the span carries a line/column position.
func (s Span) HasPosition() bool {
	return s.Line > 0
}

// LineCol returns the span position as LineCol.
func (s Span) LineCol() LineCol {
	return LineCol{Line: s.Line, Col: s.Col}
}

func (s Span) String() string {
	if s.HasPosition() {
		return fmt.Sprintf("%d:op%d@%d:%d", s.File, s.Op, s.Line, s.Col)
	}
	return fmt.Sprintf("%d:op%d", s.File, s.Op)
}

// Before orders spans by file, then op index.
func (s Span) Before(other Span) bool {
	if s.File != other.File {
		return s.File < other.File
	}
	return s.Op < other.Op
}
