package diagfmt

import (
	"fmt"
	"path/filepath"

	"borrowsim/internal/source"
)

func formatPath(fs *source.FileSet, id source.FileID, mode PathMode) string {
	if fs == nil {
		return "<builtin>"
	}
	f := fs.Get(id)
	if f == nil {
		return "<unknown>"
	}
	switch mode {
	case PathModeAbsolute:
		return f.Path
	case PathModeBasename:
		return filepath.Base(f.Path)
	default:
		return fs.DisplayPath(id)
	}
}

// location renders "path:line:col (op N)" or "path (op N)".
func location(fs *source.FileSet, span source.Span, mode PathMode) string {
	path := formatPath(fs, span.File, mode)
	if span.HasPosition() {
		return fmt.Sprintf("%s:%d:%d (op %d)", path, span.Line, span.Col, span.Op)
	}
	return fmt.Sprintf("%s (op %d)", path, span.Op)
}
