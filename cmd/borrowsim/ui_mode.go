package main

import (
	"fmt"
	"strings"
)

// uiMode is the value of the --ui flag.
type uiMode string

const (
	uiModeAuto uiMode = "auto"
	uiModeOn   uiMode = "on"
	uiModeOff  uiMode = "off"
)

func readUIMode(value string) (uiMode, error) {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "", "auto":
		return uiModeAuto, nil
	case "on":
		return uiModeOn, nil
	case "off":
		return uiModeOff, nil
	default:
		return "", fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
	}
}

// replayUI reports whether the progress UI runs while scripts replay.
// The UI draws on stderr, so --ui=on works with any output format; auto
// mode wants a terminal on stderr, pretty output and more than one script.
func (m uiMode) replayUI(st runSettings, scripts int, stderrTTY bool) bool {
	if st.quiet || m == uiModeOff {
		return false
	}
	if m == uiModeOn {
		return true
	}
	return stderrTTY && st.format == "pretty" && scripts > 1
}
