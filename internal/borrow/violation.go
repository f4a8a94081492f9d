package borrow

import (
	"fmt"
	"strings"

	"borrowsim/internal/diag"
)

// ViolationKind enumerates the ownership rules an operation can break.
type ViolationKind uint8

const (
	ViolationNone ViolationKind = iota
	UseAfterMove
	AliasConflict
	DanglingBorrow
	BorrowedWhileMoving
	AssignToImmutable
	MutBorrowOfImmutable
	WriteThroughShared
	UnresolvedName
	UnbalancedScope
	InvalidOperand
)

var violationNames = [...]string{
	ViolationNone:        "none",
	UseAfterMove:         "use_after_move",
	AliasConflict:        "alias_conflict",
	DanglingBorrow:       "dangling_borrow",
	BorrowedWhileMoving:  "borrowed_while_moving",
	AssignToImmutable:    "assign_to_immutable",
	MutBorrowOfImmutable: "mut_borrow_of_immutable",
	WriteThroughShared:   "write_through_shared",
	UnresolvedName:       "unresolved_name",
	UnbalancedScope:      "unbalanced_scope",
	InvalidOperand:       "invalid_operand",
}

func (k ViolationKind) String() string {
	if int(k) < len(violationNames) {
		return violationNames[k]
	}
	return "unknown"
}

// ParseViolationKind accepts snake_case names and CamelCase names
// (use_after_move, UseAfterMove).
func ParseViolationKind(s string) (ViolationKind, error) {
	norm := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for i, name := range violationNames {
		if i == 0 {
			continue
		}
		if norm == name || norm == strings.ReplaceAll(name, "_", "") {
			return ViolationKind(i), nil // #nosec G115 -- table is tiny
		}
	}
	return ViolationNone, fmt.Errorf("unknown violation kind %q", s)
}

// Code maps the kind onto its diagnostic code.
func (k ViolationKind) Code() diag.Code {
	switch k {
	case UseAfterMove:
		return diag.BrwUseAfterMove
	case AliasConflict:
		return diag.BrwAliasConflict
	case DanglingBorrow:
		return diag.BrwDanglingBorrow
	case BorrowedWhileMoving:
		return diag.BrwBorrowedWhileMoving
	case AssignToImmutable:
		return diag.BrwAssignToImmutable
	case MutBorrowOfImmutable:
		return diag.BrwMutBorrowOfImmutable
	case WriteThroughShared:
		return diag.BrwWriteThroughShared
	case UnresolvedName:
		return diag.BrwUnresolvedName
	case UnbalancedScope:
		return diag.BrwUnbalancedScope
	case InvalidOperand:
		return diag.BrwInvalidOperand
	default:
		return diag.UnknownCode
	}
}

// Action is what the offending operation tried to do.
type Action uint8

const (
	ActRead Action = iota
	ActWrite
	ActBorrowShared
	ActBorrowMut
	ActMove
	ActClone
	ActExit
)

func borrowAction(kind BorrowKind) Action {
	if kind == BorrowMut {
		return ActBorrowMut
	}
	return ActBorrowShared
}

// Violation reports a broken rule. It is a value: replay continues after it.
type Violation struct {
	Kind   ViolationKind
	Action Action
	Pos    Pos
	Place  Place
	Name   string
	// Conflict is the competing borrow or binding, when there is one.
	Conflict     Place
	ConflictName string
	ConflictKind BorrowKind
	// Origin is where the competing state started: move site, borrow site or drop site.
	Origin Pos
}

func (v *Violation) Error() string {
	return fmt.Sprintf("op %d: %s: %s", v.Pos, v.Kind, v.Message())
}

// Message renders the violation the way a compiler would phrase it.
func (v *Violation) Message() string {
	name := v.Name
	if name == "" {
		name = "_"
	}
	switch v.Kind {
	case UseAfterMove:
		switch v.Action {
		case ActBorrowShared, ActBorrowMut:
			return fmt.Sprintf("borrow of moved value '%s'", name)
		case ActMove:
			return fmt.Sprintf("use of moved value '%s' (moved again)", name)
		default:
			return fmt.Sprintf("use of moved value '%s'", name)
		}
	case AliasConflict:
		return v.aliasMessage(name)
	case DanglingBorrow:
		if v.Place.Kind == PlaceBorrow {
			return fmt.Sprintf("borrow '%s' is used after it ended", name)
		}
		return fmt.Sprintf("'%s' does not live long enough", name)
	case BorrowedWhileMoving:
		return fmt.Sprintf("cannot move out of '%s' because it is borrowed", name)
	case AssignToImmutable:
		return fmt.Sprintf("cannot assign twice to immutable variable '%s'", name)
	case MutBorrowOfImmutable:
		if v.Place.Kind == PlaceBorrow {
			return fmt.Sprintf("cannot borrow '%s' as mutable, as it is behind an immutable reference or binding", name)
		}
		return fmt.Sprintf("cannot borrow immutable local variable '%s' as mutable", name)
	case WriteThroughShared:
		return fmt.Sprintf("cannot assign through '%s', which is an immutable reference", name)
	case UnresolvedName:
		return fmt.Sprintf("cannot find value '%s' in this scope", name)
	case UnbalancedScope:
		return "scope exit without a matching scope entry"
	case InvalidOperand:
		return fmt.Sprintf("'%s' is a borrow and cannot be moved or cloned as a binding", name)
	default:
		return "ownership violation"
	}
}

func (v *Violation) aliasMessage(name string) string {
	held := v.ConflictKind.Adjective()
	switch v.Action {
	case ActBorrowMut:
		if v.ConflictKind == BorrowMut {
			return fmt.Sprintf("cannot borrow '%s' as mutable more than once at a time", name)
		}
		return fmt.Sprintf("cannot borrow '%s' as mutable because it is also borrowed as immutable", name)
	case ActBorrowShared:
		return fmt.Sprintf("cannot borrow '%s' as immutable because it is also borrowed as mutable", name)
	case ActWrite:
		return fmt.Sprintf("cannot assign to '%s' because it is borrowed as %s", name, held)
	default:
		return fmt.Sprintf("cannot use '%s' because it is also borrowed as mutable", name)
	}
}

// OriginNote is the wording for the note attached at Origin.
func (v *Violation) OriginNote() string {
	switch v.Kind {
	case UseAfterMove:
		return fmt.Sprintf("value '%s' moved here", v.Name)
	case AliasConflict, BorrowedWhileMoving:
		who := v.ConflictName
		if who == "" {
			who = "borrow"
		}
		return fmt.Sprintf("%s borrow '%s' starts here", v.ConflictKind.Adjective(), who)
	case DanglingBorrow:
		return "dropped here when the scope ended"
	case AssignToImmutable, MutBorrowOfImmutable:
		return fmt.Sprintf("'%s' declared here without mutability", v.Name)
	default:
		return ""
	}
}

// Help returns a suggestion for the violation, or "".
func (v *Violation) Help() string {
	switch v.Kind {
	case UseAfterMove:
		return "consider cloning the value before it is moved"
	case AliasConflict:
		return "end the earlier borrow (its last use) before this access"
	case BorrowedWhileMoving:
		return "move the value after the last use of the borrow"
	case AssignToImmutable, MutBorrowOfImmutable:
		return "declare the binding as mutable"
	default:
		return ""
	}
}
