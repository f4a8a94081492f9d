package trace

import "time"

// Kind represents the type of trace event.
type Kind uint8

const (
	// KindSpanBegin marks the start of a logical operation.
	KindSpanBegin Kind = iota + 1 // span start
	// KindSpanEnd marks the end of a logical operation.
	KindSpanEnd // span end
	// KindPoint represents an instant event.
	KindPoint     // instant event
	KindHeartbeat // periodic liveness signal
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindSpanBegin:
		return "begin"
	case KindSpanEnd:
		return "end"
	case KindPoint:
		return "point"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Scope indicates the granularity level of the event.
// Lower numeric values represent higher-level/coarser events.
type Scope uint8

const (
	// ScopeDriver covers a whole CLI invocation.
	ScopeDriver Scope = iota + 1
	// ScopeScript covers loading and replaying one script.
	ScopeScript
	// ScopeOp covers one replayed operation.
	ScopeOp
	// ScopeEvent is a single simulator event (bind, borrow start, drop...).
	ScopeEvent
)

// String returns the string representation of Scope.
func (s Scope) String() string {
	switch s {
	case ScopeDriver:
		return "driver"
	case ScopeScript:
		return "script"
	case ScopeOp:
		return "op"
	case ScopeEvent:
		return "event"
	default:
		return "unknown"
	}
}

// Event represents a single trace event. Script and Op locate events of the
// op and event scopes inside the replayed script.
type Event struct {
	Time     time.Time         // wall-clock timestamp
	Seq      uint64            // global sequence number (monotonic)
	Kind     Kind              // event kind
	Scope    Scope             // granularity level
	SpanID   uint64            // unique span identifier
	ParentID uint64            // parent span (0 if root)
	GID      uint64            // goroutine ID (for concurrent spans)
	Script   string            // replayed script, "" for driver events
	Op       int               // op position, valid for ScopeOp and ScopeEvent
	Name     string            // e.g. "run", "script:moves", "read"
	Detail   string            // optional detail message
	Extra    map[string]string // extensible key-value pairs
}

// AtOp reports whether the event is tied to one op of a script.
func (ev *Event) AtOp() bool {
	return ev.Script != "" && ev.Scope >= ScopeOp
}
