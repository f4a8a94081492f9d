package diag

import (
	"borrowsim/internal/source"
)

// Note points at a related operation ("value moved here").
type Note struct {
	Span source.Span
	Msg  string
}

// Fix is a data-only suggestion shown as "help:" by renderers.
type Fix struct {
	Title string
}

type Diagnostic struct {
	Severity Severity
	Code     Code
	Message  string
	Primary  source.Span
	Notes    []Note
	Fixes    []Fix
}

func New(sev Severity, code Code, primary source.Span, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Primary:  primary,
		Message:  msg,
	}
}

func NewError(code Code, primary source.Span, msg string) Diagnostic {
	return New(SevError, code, primary, msg)
}

func (d Diagnostic) WithNote(sp source.Span, msg string) Diagnostic {
	d.Notes = append(d.Notes, Note{Span: sp, Msg: msg})
	return d
}

func (d Diagnostic) WithFix(title string) Diagnostic {
	d.Fixes = append(d.Fixes, Fix{Title: title})
	return d
}
