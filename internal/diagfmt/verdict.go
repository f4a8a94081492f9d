package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// VerdictRow summarises one replayed script.
type VerdictRow struct {
	Name     string
	Ops      int
	Expected int
	Failed   int
	Cached   bool
	Err      string
}

// Passed reports whether the script met every expectation.
func (r VerdictRow) Passed() bool { return r.Err == "" && r.Failed == 0 }

// Verdicts prints an aligned table of per-script results followed by a total line.
func Verdicts(w io.Writer, rows []VerdictRow, useColor bool) error {
	pal := newPalette(useColor)
	nameWidth := runewidth.StringWidth("script")
	for _, r := range rows {
		nameWidth = max(nameWidth, runewidth.StringWidth(r.Name))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s  %5s  %8s  %6s  %s\n", runewidth.FillRight("script", nameWidth), "ops", "expected", "failed", "verdict")
	passed := 0
	for _, r := range rows {
		verdict := pal.note.Sprint("ok")
		switch {
		case r.Err != "":
			verdict = pal.err.Sprint("error: " + r.Err)
		case r.Failed > 0:
			verdict = pal.err.Sprint("FAIL")
		default:
			passed++
		}
		if r.Cached {
			verdict += pal.faint.Sprint(" (cached)")
		}
		fmt.Fprintf(&b, "%s  %5d  %8d  %6d  %s\n", runewidth.FillRight(r.Name, nameWidth), r.Ops, r.Expected, r.Failed, verdict)
	}
	fmt.Fprintf(&b, "%d/%d scripts passed\n", passed, len(rows))
	_, err := io.WriteString(w, b.String())
	return err
}
