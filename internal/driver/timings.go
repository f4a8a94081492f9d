package driver

import (
	"encoding/json"
	"fmt"

	"borrowsim/internal/diag"
	"borrowsim/internal/observ"
	"borrowsim/internal/source"
)

type timingPayload struct {
	Kind    string               `json:"kind"`
	Scripts int                  `json:"scripts,omitempty"`
	TotalMS float64              `json:"total_ms"`
	Phases  []observ.PhaseReport `json:"phases"`
}

// AppendTimings adds the timer report to bag as an informational diagnostic
// whose note carries the JSON payload. It always fits: the bag grows if full.
func AppendTimings(bag *diag.Bag, timer *observ.Timer, scripts int) {
	if bag == nil || timer == nil {
		return
	}
	report := timer.Report()
	payload := timingPayload{Kind: "run", Scripts: scripts, TotalMS: report.TotalMS, Phases: report.Phases}
	msg := fmt.Sprintf("timings (%s): total %.2f ms", payload.Kind, payload.TotalMS)
	if scripts > 0 {
		msg = fmt.Sprintf("%s, %d scripts", msg, scripts)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	entry := diag.New(diag.SevInfo, diag.ObsTimings, source.Span{}, msg).WithNote(source.Span{}, string(data))
	if bag.Add(entry) {
		return
	}
	overflow := diag.NewBag(1)
	overflow.Add(entry)
	bag.Merge(overflow)
}
