package main

import (
	"fmt"
	"io"
	"strings"

	"borrowsim/internal/observ"
)

// printTimings writes the phase table of timer. Per-script replay phases are
// folded into one line unless verbose is set.
func printTimings(out io.Writer, timer *observ.Timer, verbose bool) {
	if out == nil || timer == nil {
		return
	}
	if verbose {
		mustPrint(fmt.Fprint(out, timer.Summary()))
		return
	}
	report := timer.Report()
	var replayMS float64
	replays := 0
	for _, p := range report.Phases {
		if strings.HasPrefix(p.Name, "replay ") {
			replayMS += p.DurationMS
			replays++
			continue
		}
		mustPrint(fmt.Fprintf(out, "%s %.1f ms\n", p.Name, p.DurationMS))
	}
	if replays > 0 {
		mustPrint(fmt.Fprintf(out, "replayed %d scripts %.1f ms (cpu)\n", replays, replayMS))
	}
	mustPrint(fmt.Fprintf(out, "total %.1f ms\n", report.TotalMS))
}

func mustPrint(_ int, err error) {
	if err != nil {
		panic(err)
	}
}
