package observ

import (
	"strings"
	"testing"
	"time"
)

func fakeClock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		i++
		return t
	}
}

func TestReportTotalIsWallClock(t *testing.T) {
	base := time.Unix(100, 0)
	ms := func(n int) time.Time { return base.Add(time.Duration(n) * time.Millisecond) }
	timer := NewTimer()
	// two overlapping phases: [0,10] and [5,20]
	timer.now = fakeClock(ms(0), ms(5), ms(10), ms(20))
	a := timer.Begin("script:a")
	b := timer.Begin("script:b")
	timer.End(a, "")
	timer.End(b, "cached")

	rep := timer.Report()
	if rep.TotalMS != 20 {
		t.Fatalf("total: want 20ms, got %v", rep.TotalMS)
	}
	if rep.Phases[0].DurationMS != 10 || rep.Phases[1].DurationMS != 15 {
		t.Fatalf("unexpected phase durations: %+v", rep.Phases)
	}
	if s := timer.Summary(); !strings.Contains(s, "// cached") || !strings.Contains(s, "total") {
		t.Fatalf("summary missing fields:\n%s", s)
	}
}

func TestTrackAndBounds(t *testing.T) {
	timer := NewTimer()
	done := timer.Track("load")
	done("2 files")
	timer.End(42, "ignored")
	if p := timer.Phases(); len(p) != 1 || p[0].Note != "2 files" {
		t.Fatalf("unexpected phases: %+v", p)
	}
	var nilTimer *Timer
	nilTimer.Track("noop")("")
	if (&Timer{}).Report().Phases != nil {
		t.Fatalf("empty timer should report nothing")
	}
}
