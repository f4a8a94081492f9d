package trace

import (
	"bytes"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"
)

var (
	globalSeq   uint64
	globalSpans uint64
)

// NextSeq returns a monotonically increasing sequence number.
func NextSeq() uint64 {
	return atomic.AddUint64(&globalSeq, 1)
}

// NextSpanID returns a unique span ID.
func NextSpanID() uint64 {
	return atomic.AddUint64(&globalSpans, 1)
}

// getGoroutineID extracts the current goroutine ID using runtime.Stack.
// This is a lightweight approach that doesn't require linkname or unsafe.
func getGoroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	// Stack format: "goroutine 123 [running]:\n..."
	// Extract the number between "goroutine " and " ["
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}

	buf = buf[len(prefix):]
	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return 0
	}

	gid, err := strconv.ParseUint(string(buf[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return gid
}

// Span tracks one traced unit of work: the whole run or one replayed script.
// Spans of a script also locate the op and borrow events emitted under them.
type Span struct {
	tracer   Tracer
	id       uint64
	parentID uint64
	gid      uint64
	scope    Scope
	script   string
	name     string
	started  time.Time
	extra    map[string]string
}

// Begin starts a new span and emits SpanBegin event.
// parent is the parent span ID (0 if root).
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	return begin(t, scope, "", name, parent)
}

// BeginScript starts the span of one replayed script.
func BeginScript(t Tracer, script string, parent uint64) *Span {
	return begin(t, ScopeScript, script, "script:"+script, parent)
}

func begin(t Tracer, scope Scope, script, name string, parent uint64) *Span {
	if t == nil || !t.Enabled() || !t.Level().Retains(scope) {
		// ops are still located by script when only they are traced
		return &Span{tracer: t, scope: scope, script: script, parentID: parent}
	}

	s := &Span{
		tracer:   t,
		id:       NextSpanID(),
		parentID: parent,
		gid:      getGoroutineID(),
		scope:    scope,
		script:   script,
		name:     name,
		started:  time.Now(),
	}
	t.Emit(&Event{
		Time:     s.started,
		Seq:      NextSeq(),
		Kind:     KindSpanBegin,
		Scope:    scope,
		SpanID:   s.id,
		ParentID: parent,
		GID:      s.gid,
		Script:   script,
		Name:     name,
	})
	return s
}

func (s *Span) live() bool {
	return s != nil && s.id != 0 && s.tracer != nil && s.tracer.Enabled()
}

// End emits SpanEnd event and returns the duration.
func (s *Span) End(detail string) time.Duration {
	if !s.live() {
		return 0
	}

	dur := time.Since(s.started)
	s.tracer.Emit(&Event{
		Time:     time.Now(),
		Seq:      NextSeq(),
		Kind:     KindSpanEnd,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parentID,
		GID:      s.gid,
		Script:   s.script,
		Name:     s.name,
		Detail:   detail,
		Extra:    s.extra,
	})
	return dur
}

// WithExtra adds a key-value pair to the end event.
// Returns the span for method chaining.
func (s *Span) WithExtra(key, value string) *Span {
	if !s.live() {
		return s
	}
	if s.extra == nil {
		s.extra = make(map[string]string)
	}
	s.extra[key] = value
	return s
}

// ID returns the span ID.
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Note emits an instant event at the span's own scope, e.g. a cache miss.
func (s *Span) Note(name, detail string) {
	if s == nil {
		return
	}
	s.at(s.scope, -1, name, detail)
}

// Op records the outcome of the op at pos of the span's script.
func (s *Span) Op(pos int, name, detail string) {
	if s == nil {
		return
	}
	s.at(ScopeOp, pos, name, detail)
}

// Event records a simulator event raised while replaying the op at pos.
func (s *Span) Event(pos int, name, detail string) {
	if s == nil {
		return
	}
	s.at(ScopeEvent, pos, name, detail)
}

func (s *Span) at(scope Scope, pos int, name, detail string) {
	t := s.tracer
	if t == nil || !t.Enabled() || !t.Level().Retains(scope) {
		return
	}
	parent := s.id
	if parent == 0 {
		parent = s.parentID
	}
	t.Emit(&Event{
		Time:     time.Now(),
		Seq:      NextSeq(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: parent,
		GID:      getGoroutineID(),
		Script:   s.script,
		Op:       pos,
		Name:     name,
		Detail:   detail,
	})
}

// Point emits an instant event under parent.
func Point(t Tracer, scope Scope, name string, parent uint64, detail string) {
	if t == nil || !t.Enabled() || !t.Level().Retains(scope) {
		return
	}
	t.Emit(&Event{
		Time:     time.Now(),
		Seq:      NextSeq(),
		Kind:     KindPoint,
		Scope:    scope,
		ParentID: parent,
		GID:      getGoroutineID(),
		Op:       -1,
		Name:     name,
		Detail:   detail,
	})
}
