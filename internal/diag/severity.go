package diag

// Severity ranks a diagnostic. A replayed op that met its expectation is
// reported as info, script lint as a warning, and a verdict that differs
// from the expectation as an error.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

// String returns the upper-case name used by JSON output.
func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "INFO"
	case SevWarning:
		return "WARNING"
	case SevError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// Label returns the lower-case name printed by the text formats, e.g.
// "error[BRW4001]". Unknown severities print as info.
func (s Severity) Label() string {
	switch s {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	default:
		return "info"
	}
}

// Fails reports whether a diagnostic of this severity fails a script.
func (s Severity) Fails() bool {
	return s >= SevError
}
