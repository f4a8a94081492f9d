package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"borrowsim/internal/driver"
	"borrowsim/internal/observ"
	"borrowsim/internal/scenarios"
	"borrowsim/internal/source"
	"borrowsim/internal/trace"
)

func TestLoadProjectManifest(t *testing.T) {
	root := t.TempDir()
	data := `# test manifest
[run]
scenarios = ["multiple_scopes", "variables_shadowing"]
scripts = ["scripts/moves.toml"]
format = "short"
jobs = 2

[cache]
enabled = true
dir = ".cache"
`
	if err := os.WriteFile(filepath.Join(root, manifestName), []byte(data), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}

	m, ok, err := loadProjectManifest(nested)
	if err != nil || !ok {
		t.Fatalf("loadProjectManifest: ok=%v err=%v", ok, err)
	}
	if m.Root != root {
		t.Fatalf("root = %q, want %q", m.Root, root)
	}
	if got := m.Config.Run.Scenarios; len(got) != 2 || got[0] != "multiple_scopes" {
		t.Fatalf("unexpected scenarios %v", got)
	}
	if got := m.scriptPaths(); len(got) != 1 || got[0] != filepath.Join(root, "scripts", "moves.toml") {
		t.Fatalf("unexpected script paths %v", got)
	}
	if got := m.cacheDir(); got != filepath.Join(root, ".cache") {
		t.Fatalf("cache dir = %q", got)
	}
	if !m.Config.Cache.Enabled || m.Config.Run.Jobs != 2 || m.Config.Run.Format != "short" {
		t.Fatalf("unexpected config %+v", m.Config)
	}
}

func TestLoadProjectManifest_Missing(t *testing.T) {
	// t.TempDir has no manifest, but a parent might on a developer machine
	path, ok, err := findManifest(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if ok && !strings.HasSuffix(path, manifestName) {
		t.Fatalf("unexpected manifest path %q", path)
	}
}

func TestLoadProjectConfig_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown key": "[run]\nscenario = [\"x\"]\n",
		"bad jobs":    "[run]\njobs = -1\n",
		"empty path":  "[run]\nscripts = [\" \"]\n",
		"bad toml":    "[run\n",
	}
	for name, data := range cases {
		path := filepath.Join(t.TempDir(), manifestName)
		if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := loadProjectConfig(path); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func replay(t *testing.T, names ...string) (*source.FileSet, []driver.Result) {
	t.Helper()
	srcs := make([]driver.Source, len(names))
	for i, name := range names {
		srcs[i] = driver.ScenarioSource(name)
	}
	fs := source.NewFileSet()
	results, err := driver.Run(context.Background(), fs, srcs, driver.Options{Events: true})
	if err != nil {
		t.Fatal(err)
	}
	return fs, results
}

func TestRender_Short(t *testing.T) {
	fs, results := replay(t, "basic_string_moves")
	var buf bytes.Buffer
	st := runSettings{format: "short"}
	if err := render(&buf, collectDiagnostics(results, 100), fs, results, st); err != nil {
		t.Fatal(err)
	}
	want := "info BRW4001 scenario/basic_string_moves#14 expected: use of moved value 's3'"
	if !strings.Contains(buf.String(), want) {
		t.Fatalf("missing %q in:\n%s", want, buf.String())
	}
}

func TestRender_PrettyWithVerdicts(t *testing.T) {
	fs, results := replay(t, "basic_string_moves", "multiple_scopes")
	var buf bytes.Buffer
	st := runSettings{format: "pretty", withNotes: true, suggest: true, events: true}
	if err := render(&buf, collectDiagnostics(results, 100), fs, results, st); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"info[BRW4001]: expected: use of moved value 's3'",
		"--> scenario/basic_string_moves:",
		"(op 14)",
		"| use s3  // E0382",
		"events: multiple_scopes",
		"2/2 scripts passed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRender_JSON(t *testing.T) {
	fs, results := replay(t, "multiple_scopes")
	var buf bytes.Buffer
	if err := render(&buf, collectDiagnostics(results, 100), fs, results, runSettings{format: "json"}); err != nil {
		t.Fatal(err)
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if out.Count == 0 {
		t.Fatal("multiple_scopes expects a dangling borrow")
	}
}

func TestPrintTimings(t *testing.T) {
	timer := observ.NewTimer()
	timer.Track("load")("")
	timer.Track("replay a")("")
	timer.Track("replay b")("")
	var buf bytes.Buffer
	printTimings(&buf, timer, false)
	out := buf.String()
	if !strings.Contains(out, "load ") || !strings.Contains(out, "replayed 2 scripts") || !strings.Contains(out, "total ") {
		t.Fatalf("unexpected timings:\n%s", out)
	}
	buf.Reset()
	printTimings(&buf, timer, true)
	if !strings.Contains(buf.String(), "replay a") {
		t.Fatalf("verbose timings should list every phase:\n%s", buf.String())
	}
}

func TestWriteScenarioTable(t *testing.T) {
	infos, err := scenarios.List()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := writeScenarioTable(&buf, infos); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(infos)+1 {
		t.Fatalf("want %d lines, got %d", len(infos)+1, len(lines))
	}
	if !strings.HasPrefix(lines[1], "basic_string_moves ") {
		t.Fatalf("unexpected first row %q", lines[1])
	}
}

func TestRenderVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := renderVersionJSON(&buf, versionInfo{Version: "1.2.3"}, versionOptions{showHash: true}); err != nil {
		t.Fatal(err)
	}
	var payload versionPayload
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Tool != "borrowsim" || payload.Version != "1.2.3" || payload.GitCommit != "unknown" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	buf.Reset()
	renderVersionPretty(&buf, versionInfo{Version: "1.2.3"}, versionOptions{})
	if !strings.HasPrefix(buf.String(), "borrowsim 1.2.3: ") {
		t.Fatalf("unexpected pretty output %q", buf.String())
	}
}

func TestReadUIMode(t *testing.T) {
	for in, want := range map[string]uiMode{"": uiModeAuto, "ON": uiModeOn, " off ": uiModeOff} {
		got, err := readUIMode(in)
		if err != nil || got != want {
			t.Errorf("readUIMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := readUIMode("sometimes"); err == nil {
		t.Error("expected an error")
	}
}

func TestReplayUI(t *testing.T) {
	pretty := runSettings{format: "pretty"}
	cases := []struct {
		name    string
		mode    uiMode
		st      runSettings
		scripts int
		tty     bool
		want    bool
	}{
		{"auto on a terminal", uiModeAuto, pretty, 3, true, true},
		{"auto without a terminal", uiModeAuto, pretty, 3, false, false},
		{"auto with one script", uiModeAuto, pretty, 1, true, false},
		{"auto with json", uiModeAuto, runSettings{format: "json"}, 3, true, false},
		{"on with json", uiModeOn, runSettings{format: "json"}, 1, false, true},
		{"on but quiet", uiModeOn, runSettings{format: "pretty", quiet: true}, 3, true, false},
		{"off", uiModeOff, pretty, 3, true, false},
	}
	for _, tc := range cases {
		if got := tc.mode.replayUI(tc.st, tc.scripts, tc.tty); got != tc.want {
			t.Errorf("%s: want %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestDumpFailedTraces(t *testing.T) {
	ring := trace.NewRingTracer(64, trace.LevelPhase)
	ctx := trace.WithTracer(context.Background(), ring)
	for _, name := range []string{"good", "bad"} {
		trace.BeginScript(ring, name, 0).End("")
	}
	results := []driver.Result{
		{Name: "good"},
		{Name: "bad", Summary: driver.Summary{Ops: 1, Failed: 1}},
	}

	var buf bytes.Buffer
	dumpFailedTraces(ctx, &buf, results, trace.FormatText)
	out := buf.String()
	if !strings.HasPrefix(out, "--- trace ring: bad ---\n") || !strings.Contains(out, "script:bad") {
		t.Fatalf("unexpected dump:\n%s", out)
	}
	if strings.Contains(out, "script:good") {
		t.Fatalf("passing script in dump:\n%s", out)
	}

	buf.Reset()
	dumpFailedTraces(context.Background(), &buf, results, trace.FormatText)
	if buf.Len() != 0 {
		t.Fatalf("no ring, no dump: %q", buf.String())
	}
}
