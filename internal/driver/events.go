package driver

import "time"

// Stage describes where a script is in the run.
type Stage string

const (
	// StageLoad reads and decodes the script.
	StageLoad Stage = "load"
	// StageValidate checks the script structure.
	StageValidate Stage = "validate"
	// StageReplay runs the script on a simulator.
	StageReplay Stage = "replay"
)

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the script is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the script is being processed.
	StatusWorking Status = "working"
	// StatusDone indicates the script met every expectation.
	StatusDone Status = "done"
	// StatusFailed indicates the script replayed but did not meet its expectations.
	StatusFailed Status = "failed"
	// StatusError indicates the script could not be loaded or replayed.
	StatusError Status = "error"
	// StatusCached indicates the verdict came from the disk cache.
	StatusCached Status = "cached"
)

// Event reports progress for one script (or for the whole run when Script is empty).
type Event struct {
	Script  string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. OnEvent may be called from
// several goroutines at once.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(evt Event) { f(evt) }

func emit(sink ProgressSink, evt Event) {
	if sink == nil {
		return
	}
	sink.OnEvent(evt)
}
