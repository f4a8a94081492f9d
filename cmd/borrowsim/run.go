package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"borrowsim/internal/borrow"
	"borrowsim/internal/diag"
	"borrowsim/internal/diagfmt"
	"borrowsim/internal/driver"
	"borrowsim/internal/observ"
	"borrowsim/internal/scenarios"
	"borrowsim/internal/script"
	"borrowsim/internal/source"
	"borrowsim/internal/trace"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [script.toml|script.yaml|script.json|directory]...",
	Short: "Replay scripts and built-in scenarios",
	Long: `Replay scripts op by op and report every ownership violation.
With no arguments the scripts and scenarios listed in borrowsim.toml are replayed.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringArrayP("scenario", "s", nil, "built-in scenario to replay (repeatable)")
	runCmd.Flags().Bool("all", false, "replay every built-in scenario")
	runCmd.Flags().String("format", "pretty", "output format (pretty|short|json)")
	runCmd.Flags().Int("jobs", 0, "max scripts replayed in parallel (0=auto)")
	runCmd.Flags().Bool("lexical", false, "hold every borrow until its scope exits")
	runCmd.Flags().Bool("events", false, "print the simulator events of each script")
	runCmd.Flags().Bool("with-notes", true, "include diagnostic notes in output")
	runCmd.Flags().Bool("suggest", true, "include fix suggestions in output")
	runCmd.Flags().Bool("fullpath", false, "emit absolute file paths in output")
	runCmd.Flags().Bool("cache", false, "reuse verdicts from the disk cache")
	runCmd.Flags().String("cache-dir", "", "disk cache directory (default: user cache dir)")
	runCmd.Flags().Bool("clear-cache", false, "drop the disk cache before replaying")
	runCmd.Flags().String("ui", "auto", "progress UI (auto|on|off)")
}

type runSettings struct {
	format     string
	jobs       int
	lexical    bool
	events     bool
	withNotes  bool
	suggest    bool
	fullPath   bool
	cache      bool
	cacheDir   string
	clearCache bool
	ui         uiMode
	quiet      bool
	timings    bool
	maxDiag    int
	color      bool
}

func readRunSettings(cmd *cobra.Command, manifest *projectManifest) (runSettings, error) {
	var (
		st  runSettings
		err error
	)
	flags := cmd.Flags()
	if st.format, err = flags.GetString("format"); err != nil {
		return st, fmt.Errorf("failed to get format flag: %w", err)
	}
	if st.jobs, err = flags.GetInt("jobs"); err != nil {
		return st, fmt.Errorf("failed to get jobs flag: %w", err)
	}
	if st.lexical, err = flags.GetBool("lexical"); err != nil {
		return st, fmt.Errorf("failed to get lexical flag: %w", err)
	}
	if st.events, err = flags.GetBool("events"); err != nil {
		return st, fmt.Errorf("failed to get events flag: %w", err)
	}
	if st.withNotes, err = flags.GetBool("with-notes"); err != nil {
		return st, fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	if st.suggest, err = flags.GetBool("suggest"); err != nil {
		return st, fmt.Errorf("failed to get suggest flag: %w", err)
	}
	if st.fullPath, err = flags.GetBool("fullpath"); err != nil {
		return st, fmt.Errorf("failed to get fullpath flag: %w", err)
	}
	if st.cache, err = flags.GetBool("cache"); err != nil {
		return st, fmt.Errorf("failed to get cache flag: %w", err)
	}
	if st.cacheDir, err = flags.GetString("cache-dir"); err != nil {
		return st, fmt.Errorf("failed to get cache-dir flag: %w", err)
	}
	if st.clearCache, err = flags.GetBool("clear-cache"); err != nil {
		return st, fmt.Errorf("failed to get clear-cache flag: %w", err)
	}
	uiValue, err := flags.GetString("ui")
	if err != nil {
		return st, fmt.Errorf("failed to get ui flag: %w", err)
	}
	if st.ui, err = readUIMode(uiValue); err != nil {
		return st, err
	}

	root := cmd.Root().PersistentFlags()
	if st.quiet, err = root.GetBool("quiet"); err != nil {
		return st, fmt.Errorf("failed to get quiet flag: %w", err)
	}
	if st.timings, err = root.GetBool("timings"); err != nil {
		return st, fmt.Errorf("failed to get timings flag: %w", err)
	}
	if st.maxDiag, err = root.GetInt("max-diagnostics"); err != nil {
		return st, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	if st.color, err = useColor(cmd); err != nil {
		return st, err
	}

	// the manifest fills in what the command line left unset
	if manifest != nil {
		cfg := manifest.Config
		if !flags.Changed("format") && cfg.Run.Format != "" {
			st.format = cfg.Run.Format
		}
		if !flags.Changed("jobs") && cfg.Run.Jobs > 0 {
			st.jobs = cfg.Run.Jobs
		}
		if !flags.Changed("events") && cfg.Run.Events {
			st.events = true
		}
		if !flags.Changed("lexical") && cfg.Run.Lexical {
			st.lexical = true
		}
		if !flags.Changed("cache") && cfg.Cache.Enabled {
			st.cache = true
		}
		if !flags.Changed("cache-dir") {
			st.cacheDir = manifest.cacheDir()
		}
	}

	st.format = strings.ToLower(strings.TrimSpace(st.format))
	switch st.format {
	case "pretty", "short", "json":
	default:
		return st, fmt.Errorf("unknown format: %s (expected pretty|short|json)", st.format)
	}
	return st, nil
}

// collectSources turns arguments, --scenario, --all and the manifest into the
// ordered list of scripts to replay.
func collectSources(cmd *cobra.Command, args []string, manifest *projectManifest) ([]driver.Source, error) {
	names, err := cmd.Flags().GetStringArray("scenario")
	if err != nil {
		return nil, fmt.Errorf("failed to get scenario flag: %w", err)
	}
	all, err := cmd.Flags().GetBool("all")
	if err != nil {
		return nil, fmt.Errorf("failed to get all flag: %w", err)
	}

	paths := args
	if len(paths) == 0 && len(names) == 0 && !all && manifest != nil {
		paths = manifest.scriptPaths()
		names = manifest.Config.Run.Scenarios
	}
	if all {
		names = scenarios.Names()
	}

	sources, err := driver.ExpandPaths(paths)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		sources = append(sources, driver.ScenarioSource(strings.TrimSpace(name)))
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("%s", nothingToRunMessage)
	}
	return sources, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	manifest, _, err := loadProjectManifest(wd)
	if err != nil {
		return err
	}
	st, err := readRunSettings(cmd, manifest)
	if err != nil {
		return err
	}
	sources, err := collectSources(cmd, args, manifest)
	if err != nil {
		return err
	}

	var cache *driver.DiskCache
	if st.cache || st.clearCache {
		if st.cacheDir != "" {
			cache, err = driver.OpenDiskCacheAt(st.cacheDir)
		} else {
			cache, err = driver.OpenDiskCache("borrowsim")
		}
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		if st.clearCache {
			if err := cache.DropAll(); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
		}
		if !st.cache {
			cache = nil
		}
	}

	var timer *observ.Timer
	if st.timings {
		timer = observ.NewTimer()
	}

	fileSet := source.NewFileSetWithBase(wd)
	opts := driver.Options{
		Jobs:           st.jobs,
		MaxDiagnostics: st.maxDiag,
		Lexical:        st.lexical,
		Events:         st.events,
		Cache:          cache,
		Timer:          timer,
	}

	var results []driver.Result
	if st.ui.replayUI(st, len(sources), isTerminal(os.Stderr)) {
		results, err = runWithUI(cmd.Context(), "replaying", fileSet, sources, opts)
	} else {
		results, err = driver.Run(cmd.Context(), fileSet, sources, opts)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	out := cmd.OutOrStdout()
	endRender := timer.Track("render")
	bag := collectDiagnostics(results, st.maxDiag)
	if err := render(out, bag, fileSet, results, st); err != nil {
		return err
	}
	endRender("")

	if st.timings {
		if st.format == "json" {
			// JSON output stays machine readable; timings go to stderr as JSON too
			timingBag := diag.NewBag(1)
			driver.AppendTimings(timingBag, timer, len(results))
			if err := diagfmt.JSON(cmd.ErrOrStderr(), timingBag, fileSet, diagfmt.JSONOpts{IncludeNotes: true}); err != nil {
				return fmt.Errorf("failed to format timings: %w", err)
			}
		} else {
			printTimings(cmd.ErrOrStderr(), timer, !st.quiet && len(results) <= 8)
		}
	}

	for i := range results {
		if !results[i].Passed() {
			dumpFailedTraces(cmd.Context(), cmd.ErrOrStderr(), results, trace.FormatText)
			return exitError{code: 1}
		}
	}
	return nil
}

func collectDiagnostics(results []driver.Result, maxDiag int) *diag.Bag {
	bag := diag.NewBag(maxDiag)
	for i := range results {
		for _, d := range results[i].Bag.Items() {
			bag.Add(d)
		}
	}
	bag.Sort()
	return bag
}

func render(out io.Writer, bag *diag.Bag, fileSet *source.FileSet, results []driver.Result, st runSettings) error {
	pathMode := diagfmt.PathModeAuto
	if st.fullPath {
		pathMode = diagfmt.PathModeAbsolute
	}

	switch st.format {
	case "short":
		return diagfmt.Short(out, bag, fileSet)
	case "json":
		jsonOpts := diagfmt.JSONOpts{
			IncludePositions: true,
			PathMode:         pathMode,
			IncludeNotes:     st.withNotes,
			IncludeFixes:     st.suggest,
		}
		if err := diagfmt.JSON(out, bag, fileSet, jsonOpts); err != nil {
			return fmt.Errorf("failed to format diagnostics: %w", err)
		}
		return nil
	}

	if !st.quiet || bag.HasErrors() {
		diagfmt.Pretty(out, bag, fileSet, diagfmt.PrettyOpts{
			Color:     st.color,
			PathMode:  pathMode,
			ShowNotes: st.withNotes,
			ShowFixes: st.suggest,
			Describe:  describer(results),
		})
		if bag.Len() > 0 {
			fmt.Fprintln(out)
		}
	}
	if st.events {
		for i := range results {
			printEvents(out, &results[i])
		}
	}
	if st.quiet {
		return nil
	}
	rows := make([]diagfmt.VerdictRow, len(results))
	for i := range results {
		rows[i] = results[i].Row()
	}
	return diagfmt.Verdicts(out, rows, st.color)
}

// describer renders the op behind a span from the script it belongs to.
func describer(results []driver.Result) diagfmt.DescribeFunc {
	byFile := make(map[source.FileID]*script.Script, len(results))
	for i := range results {
		if s := results[i].Script; s != nil {
			byFile[s.File] = s
		}
	}
	return func(span source.Span) string {
		s := byFile[span.File]
		if s == nil || int(span.Op) >= len(s.Ops) {
			return ""
		}
		return s.Ops[span.Op].String()
	}
}

func printEvents(out io.Writer, r *driver.Result) {
	if r.Report == nil {
		return
	}
	fmt.Fprintf(out, "events: %s\n", r.Name)
	for _, ev := range r.Report.Events {
		line := fmt.Sprintf("  op %-3d %-13s", ev.Pos, ev.Kind)
		if ev.Name != "" {
			line += " " + ev.Name
		}
		switch ev.Kind {
		case borrow.BorrowEvBorrowStart:
			line += fmt.Sprintf(" (%s borrow#%d)", ev.BorrowKind, ev.Borrow)
		case borrow.BorrowEvBorrowEnd:
			line += fmt.Sprintf(" (borrow#%d)", ev.Borrow)
		case borrow.BorrowEvViolation:
			line += " " + ev.Issue.String()
		}
		if ev.Note != "" {
			line += " // " + ev.Note
		}
		fmt.Fprintln(out, strings.TrimRight(line, " "))
	}
	fmt.Fprintln(out)
}
