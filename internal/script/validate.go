package script

import (
	"fmt"
	"strings"

	"borrowsim/internal/diag"
	"borrowsim/internal/source"
)

// Problem is a structural defect of a script, found before replay.
type Problem struct {
	Op   int // -1 for script-level problems
	Span source.Span
	Code diag.Code
	Sev  diag.Severity
	Msg  string
}

func (p Problem) Error() string {
	if p.Op < 0 {
		return p.Msg
	}
	return fmt.Sprintf("op %d: %s", p.Op, p.Msg)
}

// Problems is a list of problems usable as an error.
type Problems []Problem

func (ps Problems) Error() string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		parts = append(parts, p.Error())
	}
	return strings.Join(parts, "; ")
}

// HasErrors reports whether any problem blocks replay.
func (ps Problems) HasErrors() bool {
	for _, p := range ps {
		if p.Sev == diag.SevError {
			return true
		}
	}
	return false
}

// Report emits every problem as a diagnostic.
func (ps Problems) Report(r diag.Reporter) {
	for _, p := range ps {
		diag.NewReportBuilder(r, p.Sev, p.Code, p.Span, p.Error()).Emit()
	}
}

// Checks plugs value checks that live outside this package.
type Checks struct {
	BorrowKind  func(string) error
	Expectation func(string) error
}

// Validate reports structural problems of s: unknown op tags, missing
// operands, malformed borrow kinds and expectations.
func Validate(s *Script, checks Checks) Problems {
	var ps Problems
	if len(s.Ops) == 0 {
		ps = append(ps, Problem{Op: -1, Span: source.Span{File: s.File}, Code: diag.ScrEmpty, Sev: diag.SevWarning, Msg: fmt.Sprintf("script %q has no operations", s.Name)})
	}
	for i := range s.Ops {
		op := &s.Ops[i]
		add := func(code diag.Code, format string, args ...any) {
			ps = append(ps, Problem{Op: i, Span: s.SpanOf(i), Code: code, Sev: diag.SevError, Msg: fmt.Sprintf(format, args...)})
		}
		if !op.Op.Known() {
			add(diag.ScrUnknownOp, "unknown operation %q", op.Op)
			continue
		}
		switch op.Op {
		case OpBind:
			if op.Name == "" {
				add(diag.ScrMissingOperand, "bind needs a name")
			}
		case OpMove, OpClone:
			if op.Target == "" {
				add(diag.ScrMissingOperand, "%s needs a target", op.Op)
			}
			if op.Dest == "" {
				add(diag.ScrMissingOperand, "%s needs a dest", op.Op)
			}
		case OpBorrow:
			if op.Target == "" {
				add(diag.ScrMissingOperand, "borrow needs a target")
			}
			if op.Kind == "" {
				add(diag.ScrBadBorrowKind, "borrow needs a kind (shared or mut)")
			} else if checks.BorrowKind != nil {
				if err := checks.BorrowKind(op.Kind); err != nil {
					add(diag.ScrBadBorrowKind, "%v", err)
				}
			}
		case OpRead:
			if len(op.Places()) == 0 {
				add(diag.ScrMissingOperand, "read needs a target or targets")
			}
		case OpWrite:
			if op.Target == "" {
				add(diag.ScrMissingOperand, "write needs a target")
			}
		}
		if len(op.Targets) > 0 && op.Op != OpRead {
			add(diag.ScrMissingOperand, "targets is only valid on read")
		}
		if op.Copy && op.Op != OpBind {
			add(diag.ScrMissingOperand, "copy is only valid on bind")
		}
		if op.Expect != "" && checks.Expectation != nil {
			if err := checks.Expectation(op.Expect); err != nil {
				add(diag.ScrBadExpectation, "%v", err)
			}
		}
	}
	return ps
}
