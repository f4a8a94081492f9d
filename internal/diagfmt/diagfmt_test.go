package diagfmt

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"borrowsim/internal/diag"
	"borrowsim/internal/source"
)

const movesTOML = `name = "moves"

[[op]]
op = "bind"
name = "s3"

[[op]]
op = "move"
target = "s3"
dest = "s4"

[[op]]
op = "read"
target = "s3"
`

func movesBag(fs *source.FileSet) (*diag.Bag, source.FileID) {
	fileID := fs.AddVirtual("scripts/moves.toml", []byte(movesTOML))
	bag := diag.NewBag(10)
	d := diag.New(diag.SevError, diag.BrwUseAfterMove,
		source.Span{File: fileID, Op: 2, Line: 12, Col: 1},
		"use of moved value 's3'").
		WithNote(source.Span{File: fileID, Op: 1, Line: 7, Col: 1}, "value 's3' moved here").
		WithFix("consider cloning the value before it is moved")
	bag.Add(d)
	return bag, fileID
}

func TestPrettyPlain(t *testing.T) {
	fs := source.NewFileSet()
	bag, _ := movesBag(fs)

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{ShowNotes: true, ShowFixes: true})
	want := strings.Join([]string{
		"error[BRW4001]: use of moved value 's3'",
		"  --> scripts/moves.toml:12:1 (op 2)",
		"12 | [[op]]",
		"   = note: value 's3' moved here",
		"  --> scripts/moves.toml:7:1 (op 1)",
		"7 | [[op]]",
		"   = help: consider cloning the value before it is moved",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Fatalf("pretty mismatch:\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestPrettyDescribeAndColor(t *testing.T) {
	fs := source.NewFileSet()
	bag, _ := movesBag(fs)

	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{
		Color:    true,
		PathMode: PathModeBasename,
		Describe: func(span source.Span) string {
			return []string{"bind s3", "move s3 -> s4", "read s3"}[span.Op]
		},
	})
	out := buf.String()
	if !strings.Contains(out, "\x1b[") {
		t.Fatalf("expected ANSI escapes in colored output: %q", out)
	}
	if !strings.Contains(out, "read s3") || !strings.Contains(out, "moves.toml:12:1") {
		t.Fatalf("missing op description or basename path: %q", out)
	}
	if strings.Contains(out, "note") || strings.Contains(out, "help") {
		t.Fatalf("notes and fixes are disabled: %q", out)
	}
}

func TestJSONOutput(t *testing.T) {
	fs := source.NewFileSet()
	bag, _ := movesBag(fs)

	var buf bytes.Buffer
	if err := JSON(&buf, bag, fs, JSONOpts{IncludePositions: true, IncludeNotes: true, IncludeFixes: true}); err != nil {
		t.Fatalf("JSON() error: %v", err)
	}
	var output DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
	}
	if output.Count != 1 || len(output.Diagnostics) != 1 {
		t.Fatalf("expected one diagnostic, got %+v", output)
	}
	d := output.Diagnostics[0]
	if d.Severity != "ERROR" || d.Code != "BRW4001" {
		t.Errorf("unexpected header: %+v", d)
	}
	if d.Location != (LocationJSON{File: "scripts/moves.toml", Op: 2, Line: 12, Col: 1}) {
		t.Errorf("unexpected location: %+v", d.Location)
	}
	if len(d.Notes) != 1 || d.Notes[0].Location.Op != 1 {
		t.Errorf("unexpected notes: %+v", d.Notes)
	}
	if len(d.Help) != 1 {
		t.Errorf("unexpected help: %+v", d.Help)
	}
}

func TestJSONMax(t *testing.T) {
	bag := diag.NewBag(10)
	for i := range 3 {
		bag.Add(diag.NewError(diag.BrwAliasConflict, source.Span{Op: uint32(i)}, "conflict")) // #nosec G115
	}
	out := BuildDiagnosticsOutput(bag, nil, JSONOpts{Max: 2})
	if out.Count != 2 || out.Dropped != 1 {
		t.Fatalf("want 2 shown and 1 dropped, got %d/%d", out.Count, out.Dropped)
	}
	if out.Diagnostics[0].Location.File != "<builtin>" {
		t.Fatalf("builtin path: got %q", out.Diagnostics[0].Location.File)
	}
}

func TestShort(t *testing.T) {
	fs := source.NewFileSet()
	bag, _ := movesBag(fs)
	var buf bytes.Buffer
	if err := Short(&buf, bag, fs); err != nil {
		t.Fatalf("Short: %v", err)
	}
	want := "note BRW4001 scripts/moves.toml#1 value 's3' moved here\nerror BRW4001 scripts/moves.toml#2 use of moved value 's3'\n"
	if buf.String() != want {
		t.Fatalf("short mismatch:\nwant %q\ngot  %q", want, buf.String())
	}
}

func TestVerdicts(t *testing.T) {
	rows := []VerdictRow{
		{Name: "basic_string_moves", Ops: 20, Expected: 1},
		{Name: "名前", Ops: 3, Failed: 1},
		{Name: "broken", Err: "decode failed"},
	}
	var buf bytes.Buffer
	if err := Verdicts(&buf, rows, false); err != nil {
		t.Fatalf("Verdicts: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("want header, 3 rows and total, got %q", lines)
	}
	// wide runes occupy two columns each, so "名前" pads like a 4-column name
	if !strings.HasPrefix(lines[2], "名前"+strings.Repeat(" ", 16)+"    3") {
		t.Fatalf("wide name not padded by display width: %q", lines[2])
	}
	if !strings.HasSuffix(lines[2], "FAIL") || !strings.HasSuffix(lines[3], "error: decode failed") {
		t.Fatalf("unexpected verdicts: %q", lines)
	}
	if lines[4] != "1/3 scripts passed" {
		t.Fatalf("total line: %q", lines[4])
	}
}
