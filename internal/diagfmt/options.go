package diagfmt

import "borrowsim/internal/source"

// PathMode specifies how file paths are displayed.
type PathMode uint8

const (
	// PathModeAuto shows paths relative to the file set base when possible.
	PathModeAuto PathMode = iota
	// PathModeAbsolute always uses the path as loaded.
	PathModeAbsolute
	PathModeBasename
)

// DescribeFunc renders the op at span as a short text ("read s3"). Renderers
// use it when the span has no source line, as for built-in scenarios.
type DescribeFunc func(span source.Span) string

// PrettyOpts configures pretty-printing of diagnostics.
type PrettyOpts struct {
	Color     bool
	PathMode  PathMode
	ShowNotes bool
	ShowFixes bool
	Describe  DescribeFunc
}

// JSONOpts configures JSON output of diagnostics.
type JSONOpts struct {
	IncludePositions bool // добавить line/col
	PathMode         PathMode
	Max              int // обрезка вывода, не Bag
	IncludeNotes     bool
	IncludeFixes     bool
}
