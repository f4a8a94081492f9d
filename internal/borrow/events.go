package borrow

// BorrowEventKind identifies the type of event recorded during replay.
type BorrowEventKind uint8

const (
	// BorrowEvBind indicates a new binding.
	BorrowEvBind BorrowEventKind = iota
	// BorrowEvBorrowStart indicates the beginning of a borrow.
	BorrowEvBorrowStart
	// BorrowEvBorrowEnd indicates the end of a borrow (last use or scope exit).
	BorrowEvBorrowEnd
	BorrowEvMove
	BorrowEvCopy
	BorrowEvRead
	BorrowEvWrite
	BorrowEvReinit
	BorrowEvDrop
	BorrowEvScopeEnter
	BorrowEvScopeExit
	BorrowEvViolation
)

func (k BorrowEventKind) String() string {
	switch k {
	case BorrowEvBind:
		return "bind"
	case BorrowEvBorrowStart:
		return "borrow_start"
	case BorrowEvBorrowEnd:
		return "borrow_end"
	case BorrowEvMove:
		return "move"
	case BorrowEvCopy:
		return "copy"
	case BorrowEvRead:
		return "read"
	case BorrowEvWrite:
		return "write"
	case BorrowEvReinit:
		return "reinit"
	case BorrowEvDrop:
		return "drop"
	case BorrowEvScopeEnter:
		return "scope_enter"
	case BorrowEvScopeExit:
		return "scope_exit"
	case BorrowEvViolation:
		return "violation"
	default:
		return "unknown"
	}
}

// BorrowEvent is a lightweight log entry produced while replaying.
// It is meant for tracing and the --events output and must not affect verdicts.
type BorrowEvent struct {
	Kind BorrowEventKind
	Pos  Pos

	// Place is the accessed place (when applicable).
	Place Place
	Name  string

	// Borrow is the borrow entry associated with this event (when applicable).
	Borrow BorrowID
	// BorrowKind is only meaningful for BorrowEvBorrowStart.
	BorrowKind BorrowKind

	Depth int

	// Issue is set for BorrowEvViolation.
	Issue ViolationKind

	Note string
}
