package driver_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"borrowsim/internal/diag"
	"borrowsim/internal/driver"
	"borrowsim/internal/observ"
	"borrowsim/internal/scenarios"
	"borrowsim/internal/source"
	"borrowsim/internal/trace"
)

const failingScript = `
name = "failing"

[[op]]
op = "bind"
name = "s"

[[op]]
op = "move"
target = "s"
dest = "t"

[[op]]
op = "read"
target = "s"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func scenarioSources(t *testing.T) []driver.Source {
	t.Helper()
	var srcs []driver.Source
	for _, name := range scenarios.Names() {
		srcs = append(srcs, driver.ScenarioSource(name))
	}
	return srcs
}

func TestRun_PreservesInputOrder(t *testing.T) {
	srcs := scenarioSources(t)
	for _, jobs := range []int{1, 4, 32} {
		results, err := driver.Run(context.Background(), source.NewFileSet(), srcs, driver.Options{Jobs: jobs})
		if err != nil {
			t.Fatalf("jobs=%d: unexpected error: %v", jobs, err)
		}
		if len(results) != len(srcs) {
			t.Fatalf("jobs=%d: want %d results, got %d", jobs, len(srcs), len(results))
		}
		for i, r := range results {
			if r.Name != srcs[i].Scenario {
				t.Fatalf("jobs=%d: result %d is %q, want %q", jobs, i, r.Name, srcs[i].Scenario)
			}
			if !r.Passed() {
				t.Fatalf("jobs=%d: scenario %s failed: err=%v summary=%+v", jobs, r.Name, r.Err, r.Summary)
			}
			if r.Bag.HasErrors() {
				t.Fatalf("jobs=%d: scenario %s has error diagnostics", jobs, r.Name)
			}
		}
	}
}

func TestRun_FailingScript(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "failing.toml", failingScript)
	fs := source.NewFileSetWithBase(dir)
	results, err := driver.Run(context.Background(), fs, []driver.Source{driver.FileSource(path)}, driver.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r := results[0]
	if r.Err != nil {
		t.Fatalf("unexpected load error: %v", r.Err)
	}
	if r.Passed() {
		t.Fatal("expected the script to fail")
	}
	want := driver.Summary{Ops: 3, Failed: 1}
	if r.Summary != want {
		t.Fatalf("summary: want %+v, got %+v", want, r.Summary)
	}
	got := diag.FormatGoldenDiagnostics(r.Bag.Items(), fs, false)
	if !strings.Contains(got, "error BRW4001 failing.toml#2 use of moved value 's'") {
		t.Fatalf("unexpected diagnostics:\n%s", got)
	}
	row := r.Row()
	if row.Passed() || row.Failed != 1 || row.Name != "failing" {
		t.Fatalf("unexpected row %+v", row)
	}
}

func TestRun_TracesScriptsAndProgress(t *testing.T) {
	dir := t.TempDir()
	srcs := []driver.Source{
		driver.FileSource(writeFile(t, dir, "failing.toml", failingScript)),
		driver.FileSource(filepath.Join(dir, "missing.toml")),
		driver.ScenarioSource("basic_string_moves"),
	}
	ring := trace.NewRingTracer(1024, trace.LevelDebug)
	progress := &trace.Progress{}
	ctx := trace.WithProgress(trace.WithTracer(context.Background(), ring), progress)
	if _, err := driver.Run(ctx, source.NewFileSetWithBase(dir), srcs, driver.Options{Jobs: 2}); err != nil {
		t.Fatal(err)
	}

	// the missing file never reaches replay
	if done, failed, total := progress.Snapshot(); done != 2 || failed != 1 || total != 2 {
		t.Fatalf("progress = %d/%d, %d failed", done, total, failed)
	}

	var buf strings.Builder
	if err := ring.DumpScripts(&buf, trace.FormatText, []string{"failing"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"→ script:failing", "failing@2 read", "← run"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "basic_string_moves") {
		t.Errorf("passing script leaked into the dump:\n%s", out)
	}
}

func TestRun_LoadErrorsAreReportedPerScript(t *testing.T) {
	dir := t.TempDir()
	srcs := []driver.Source{
		driver.FileSource(filepath.Join(dir, "missing.toml")),
		driver.FileSource(writeFile(t, dir, "notes.txt", "hello")),
		driver.ScenarioSource("no_such_scenario"),
		driver.ScenarioSource("multiple_scopes"),
	}
	results, err := driver.Run(context.Background(), source.NewFileSet(), srcs, driver.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantCodes := []diag.Code{diag.IOLoadFileError, diag.ScrUnknownFormat, diag.ScrUnknownScenario}
	for i, code := range wantCodes {
		r := results[i]
		if r.Err == nil {
			t.Fatalf("result %d: expected an error", i)
		}
		items := r.Bag.Items()
		if len(items) != 1 || items[0].Code != code {
			t.Fatalf("result %d: want single %s, got %+v", i, code.ID(), items)
		}
	}
	if !errors.Is(results[2].Err, scenarios.ErrUnknown) {
		t.Fatalf("want ErrUnknown, got %v", results[2].Err)
	}
	if !results[3].Passed() {
		t.Fatalf("multiple_scopes should pass, got %+v", results[3])
	}
}

func TestRun_InvalidScript(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.json", `{"ops":[{"op":"jump"}]}`)
	results, err := driver.Run(context.Background(), source.NewFileSet(), []driver.Source{driver.FileSource(path)}, driver.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !errors.Is(results[0].Err, driver.ErrInvalidScript) {
		t.Fatalf("want ErrInvalidScript, got %v", results[0].Err)
	}
	if !results[0].Bag.HasErrors() {
		t.Fatal("expected validation diagnostics")
	}
}

func TestRun_CacheHit(t *testing.T) {
	cache, err := driver.OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	dir := t.TempDir()
	path := writeFile(t, dir, "failing.toml", failingScript)
	opts := driver.Options{Cache: cache}

	first, err := driver.Run(context.Background(), source.NewFileSet(), []driver.Source{driver.FileSource(path)}, opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first[0].Cached {
		t.Fatal("first run must not be cached")
	}

	fs := source.NewFileSet()
	second, err := driver.Run(context.Background(), fs, []driver.Source{driver.FileSource(path)}, opts)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	r := second[0]
	if !r.Cached {
		t.Fatal("second run should hit the cache")
	}
	if r.Summary != first[0].Summary {
		t.Fatalf("summary: want %+v, got %+v", first[0].Summary, r.Summary)
	}
	if r.Bag.Len() != first[0].Bag.Len() {
		t.Fatalf("diagnostics: want %d, got %d", first[0].Bag.Len(), r.Bag.Len())
	}
	for _, d := range r.Bag.Items() {
		if d.Primary.File != r.Script.File {
			t.Fatalf("cached span not rebound: %+v", d.Primary)
		}
	}

	// events need a fresh report
	third, err := driver.Run(context.Background(), source.NewFileSet(), []driver.Source{driver.FileSource(path)},
		driver.Options{Cache: cache, Events: true})
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if third[0].Cached || third[0].Report == nil {
		t.Fatal("events run must replay")
	}

	if err := cache.DropAll(); err != nil {
		t.Fatalf("drop: %v", err)
	}
	fourth, err := driver.Run(context.Background(), source.NewFileSet(), []driver.Source{driver.FileSource(path)}, opts)
	if err != nil {
		t.Fatalf("fourth run: %v", err)
	}
	if fourth[0].Cached {
		t.Fatal("cache was dropped")
	}
}

func TestRun_CacheHitMatchesFreshReplay(t *testing.T) {
	cache, err := driver.OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	dir := t.TempDir()
	// an empty script replays with a validation warning
	path := writeFile(t, dir, "empty.toml", "name = \"empty\"\n")
	opts := driver.Options{Cache: cache}

	var golden []string
	for i := range 2 {
		fs := source.NewFileSet()
		res, err := driver.Run(context.Background(), fs, []driver.Source{driver.FileSource(path)}, opts)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if res[0].Cached != (i == 1) {
			t.Fatalf("run %d: cached = %v", i, res[0].Cached)
		}
		golden = append(golden, diag.FormatGoldenDiagnostics(res[0].Bag.Items(), fs, false))
	}
	if !strings.Contains(golden[0], "SCR1007") {
		t.Fatalf("expected an empty-script warning, got:\n%s", golden[0])
	}
	if golden[0] != golden[1] {
		t.Fatalf("cached diagnostics differ from a fresh replay:\nfresh:\n%s\ncached:\n%s", golden[0], golden[1])
	}
}

func TestRun_CachedVerdictIgnoresDiagnosticCap(t *testing.T) {
	cache, err := driver.OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	src := []driver.Source{driver.ScenarioSource("borrowing_combos")}

	full, err := driver.Run(context.Background(), source.NewFileSet(), src, driver.Options{})
	if err != nil {
		t.Fatal(err)
	}
	want := full[0].Bag.Len()
	if want < 2 {
		t.Fatalf("borrowing_combos should report several diagnostics, got %d", want)
	}

	capped, err := driver.Run(context.Background(), source.NewFileSet(), src, driver.Options{Cache: cache, MaxDiagnostics: 1})
	if err != nil {
		t.Fatal(err)
	}
	if got := capped[0].Bag.Len(); got != 1 {
		t.Fatalf("capped run: want 1 diagnostic, got %d", got)
	}

	again, err := driver.Run(context.Background(), source.NewFileSet(), src, driver.Options{Cache: cache})
	if err != nil {
		t.Fatal(err)
	}
	if !again[0].Cached {
		t.Fatal("second run should hit the cache")
	}
	if got := again[0].Bag.Len(); got != want {
		t.Fatalf("cached run: want %d diagnostics, got %d", want, got)
	}
}

func TestRun_LexicalModeUsesSeparateCacheKey(t *testing.T) {
	s, err := scenarios.Get("basic_string_moves")
	if err != nil {
		t.Fatal(err)
	}
	d, err := s.Digest()
	if err != nil {
		t.Fatal(err)
	}
	if driver.NewCacheKey(d, false) == driver.NewCacheKey(d, true) {
		t.Fatal("lexical and liveness keys must differ")
	}
}

func TestRun_Progress(t *testing.T) {
	var (
		mu     sync.Mutex
		events []driver.Event
	)
	sink := driver.SinkFunc(func(ev driver.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	srcs := []driver.Source{driver.ScenarioSource("immutable_local"), driver.ScenarioSource("nope")}
	if _, err := driver.Run(context.Background(), source.NewFileSet(), srcs, driver.Options{Progress: sink, Jobs: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	final := make(map[string]driver.Status)
	for _, ev := range events {
		if ev.Script != "" {
			final[ev.Script] = ev.Status
		}
	}
	if final["immutable_local"] != driver.StatusDone {
		t.Fatalf("immutable_local: want done, got %q", final["immutable_local"])
	}
	if final["nope"] != driver.StatusError {
		t.Fatalf("nope: want error, got %q", final["nope"])
	}
	last := events[len(events)-1]
	if last.Script != "" || last.Status != driver.StatusDone {
		t.Fatalf("want final run event, got %+v", last)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := driver.Run(ctx, source.NewFileSet(), scenarioSources(t), driver.Options{Jobs: 2})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestAppendTimings(t *testing.T) {
	timer := observ.NewTimer()
	if _, err := driver.Run(context.Background(), source.NewFileSet(),
		[]driver.Source{driver.ScenarioSource("mutable_local")}, driver.Options{Timer: timer}); err != nil {
		t.Fatal(err)
	}
	phases := timer.Phases()
	if len(phases) != 2 || phases[0].Name != "load" || phases[1].Name != "replay mutable_local" {
		t.Fatalf("unexpected phases %+v", phases)
	}

	bag := diag.NewBag(1)
	bag.Add(diag.NewError(diag.ScrDecode, source.Span{}, "full"))
	driver.AppendTimings(bag, timer, 1)
	items := bag.Items()
	if len(items) != 2 || items[1].Code != diag.ObsTimings {
		t.Fatalf("timings diagnostic missing: %+v", items)
	}
	if !strings.Contains(items[1].Notes[0].Msg, `"kind":"run"`) {
		t.Fatalf("unexpected payload %q", items[1].Notes[0].Msg)
	}
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, sub, "b.yaml", "ops: []\n")
	writeFile(t, dir, "a.toml", "")
	writeFile(t, dir, "readme.md", "")
	srcs, err := driver.ExpandPaths([]string{dir, "missing.json"})
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, s := range srcs {
		got = append(got, filepath.Base(s.Path))
	}
	want := "a.toml,b.yaml,missing.json"
	if strings.Join(got, ",") != want {
		t.Fatalf("want %s, got %s", want, strings.Join(got, ","))
	}
}
