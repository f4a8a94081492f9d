package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"borrowsim/internal/diag"
	"borrowsim/internal/source"
)

type palette struct {
	err, warn, info *color.Color
	note, help      *color.Color
	arrow, gutter   *color.Color
	bold, faint     *color.Color
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		err:    mk(color.FgRed, color.Bold),
		warn:   mk(color.FgYellow, color.Bold),
		info:   mk(color.FgCyan, color.Bold),
		note:   mk(color.FgGreen, color.Bold),
		help:   mk(color.FgCyan),
		arrow:  mk(color.FgBlue, color.Bold),
		gutter: mk(color.FgBlue),
		bold:   mk(color.Bold),
		faint:  mk(color.Faint),
	}
}

func (p palette) severity(sev diag.Severity) *color.Color {
	switch sev {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}

// Pretty форматирует диагностики в человекочитаемый вид.
// Идёт по bag.Items() (ожидается bag.Sort() заранее).
// Для каждого diag печатает:
//
//	error[BRW4001]: <Message>
//	  --> <path>:<line>:<col> (op N)
//	   | <op or source line>
//
// затем Notes и help.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	pal := newPalette(opts.Color)
	var b strings.Builder
	for i, d := range bag.Items() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s\n", pal.severity(d.Severity).Sprintf("%s[%s]", d.Severity.Label(), d.Code.ID()), pal.bold.Sprint(d.Message))
		writeLocation(&b, pal, fs, d.Primary, opts)

		if opts.ShowNotes {
			for _, note := range d.Notes {
				fmt.Fprintf(&b, "   %s %s: %s\n", pal.gutter.Sprint("="), pal.note.Sprint("note"), note.Msg)
				writeLocation(&b, pal, fs, note.Span, opts)
			}
		}
		if opts.ShowFixes {
			for _, fix := range d.Fixes {
				fmt.Fprintf(&b, "   %s %s: %s\n", pal.gutter.Sprint("="), pal.help.Sprint("help"), fix.Title)
			}
		}
	}
	if dropped := bag.Dropped(); dropped > 0 {
		fmt.Fprintf(&b, "\n... %d more diagnostics not shown\n", dropped)
	}
	_, _ = io.WriteString(w, b.String())
}

func writeLocation(b *strings.Builder, pal palette, fs *source.FileSet, span source.Span, opts PrettyOpts) {
	fmt.Fprintf(b, "  %s %s\n", pal.arrow.Sprint("-->"), location(fs, span, opts.PathMode))
	if opts.Describe != nil {
		if text := opts.Describe(span); text != "" {
			fmt.Fprintf(b, "   %s %s\n", pal.gutter.Sprint("|"), text)
			return
		}
	}
	if fs == nil || !span.HasPosition() {
		return
	}
	if line := fs.Get(span.File).GetLine(span.Line); line != "" {
		num := fmt.Sprintf("%d", span.Line)
		fmt.Fprintf(b, "%s %s %s\n", pal.gutter.Sprint(num), pal.gutter.Sprint("|"), strings.TrimRight(line, " \t"))
	}
}

// Short writes one stable line per diagnostic and note.
func Short(w io.Writer, bag *diag.Bag, fs *source.FileSet) error {
	out := diag.FormatGoldenDiagnostics(bag.Items(), fs, true)
	if out == "" {
		return nil
	}
	_, err := io.WriteString(w, out+"\n")
	return err
}
