package borrow

import (
	"fmt"

	"borrowsim/internal/diag"
)

// Diagnostics converts the report into diagnostics. Violations that a step
// expected become informational; everything else is an error.
func (r *Report) Diagnostics(rep diag.Reporter) {
	if r == nil || rep == nil {
		return
	}
	for i := range r.Steps {
		st := &r.Steps[i]
		for _, v := range st.Violations {
			sev := diag.SevError
			msg := v.Message()
			if st.Expect != ViolationNone && v.Kind == st.Expect {
				sev = diag.SevInfo
				msg = "expected: " + msg
			}
			b := diag.NewReportBuilder(rep, sev, v.Kind.Code(), r.Script.SpanOf(int(v.Pos)), msg)
			if v.Origin != NoPos {
				if note := v.OriginNote(); note != "" {
					b.WithNote(r.Script.SpanOf(int(v.Origin)), note)
				}
			}
			if help := v.Help(); help != "" && sev == diag.SevError {
				b.WithFix(help)
			}
			b.Emit()
		}
		switch st.Outcome {
		case OutcomeUnmet:
			diag.ReportError(rep, diag.ScrExpectationUnmet, r.Script.SpanOf(int(st.Pos)),
				fmt.Sprintf("expected %s, but '%s' succeeded", st.Expect, st.Op.Op)).Emit()
		case OutcomeMismatch:
			got := st.Violations[0].Kind
			diag.ReportError(rep, diag.ScrUnexpectedViolation, r.Script.SpanOf(int(st.Pos)),
				fmt.Sprintf("expected %s, got %s", st.Expect, got)).Emit()
		}
	}
}
