package borrow

import (
	"fmt"

	"borrowsim/internal/script"
)

// Pos is the 0-based index of an operation within a script.
type Pos int

// NoPos marks the absence of a script position.
const NoPos Pos = -1

// BindingID identifies a binding created by the simulator.
type BindingID uint32

// NoBindingID marks the absence of a binding.
const NoBindingID BindingID = 0

// IsValid reports whether id references a binding.
func (id BindingID) IsValid() bool { return id != NoBindingID }

// BorrowID identifies a borrow entry.
type BorrowID uint32

// NoBorrowID marks the absence of a borrow.
const NoBorrowID BorrowID = 0

// IsValid reports whether id references a borrow.
func (id BorrowID) IsValid() bool { return id != NoBorrowID }

// BorrowKind differentiates shared vs mutable borrows.
type BorrowKind uint8

const (
	BorrowShared BorrowKind = iota
	BorrowMut
)

func (k BorrowKind) String() string {
	if k == BorrowMut {
		return "mut"
	}
	return "shared"
}

// Adjective returns the wording used in diagnostics.
func (k BorrowKind) Adjective() string {
	if k == BorrowMut {
		return "mutable"
	}
	return "immutable"
}

// ParseBorrowKind accepts the spellings used by script files.
func ParseBorrowKind(s string) (BorrowKind, error) {
	kind, _ := script.CanonicalBorrowKind(s)
	switch kind {
	case script.KindShared:
		return BorrowShared, nil
	case script.KindMut:
		return BorrowMut, nil
	default:
		return BorrowShared, fmt.Errorf("invalid borrow kind %q (expected shared|mut)", s)
	}
}

// PlaceKind enumerates addressable locations.
type PlaceKind uint8

const (
	PlaceInvalid PlaceKind = iota
	PlaceLocal
	// PlaceBorrow addresses a borrow handle itself; borrowing it is a re-borrow.
	PlaceBorrow
)

// Place describes an addressable location participating in borrows.
type Place struct {
	Kind    PlaceKind
	Binding BindingID
	Borrow  BorrowID
}

// LocalPlace addresses a binding.
func LocalPlace(id BindingID) Place {
	return Place{Kind: PlaceLocal, Binding: id}
}

// BorrowPlace addresses a borrow handle.
func BorrowPlace(id BorrowID) Place {
	return Place{Kind: PlaceBorrow, Borrow: id}
}

// IsValid reports whether the place references a known binding or borrow.
func (p Place) IsValid() bool {
	switch p.Kind {
	case PlaceLocal:
		return p.Binding.IsValid()
	case PlaceBorrow:
		return p.Borrow.IsValid()
	default:
		return false
	}
}

func (p Place) String() string {
	switch p.Kind {
	case PlaceLocal:
		return fmt.Sprintf("binding#%d", p.Binding)
	case PlaceBorrow:
		return fmt.Sprintf("borrow#%d", p.Borrow)
	default:
		return "invalid"
	}
}

// Ownership is the state of a binding's value.
type Ownership uint8

const (
	Owned Ownership = iota
	MovedOut
	Dropped
)

func (o Ownership) String() string {
	switch o {
	case Owned:
		return "owned"
	case MovedOut:
		return "moved"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// BindFlags configure a binding at creation.
type BindFlags uint8

const (
	// BindCopy marks a Copy-like value: moves duplicate it instead of moving out.
	BindCopy BindFlags = 1 << iota
	// BindImmutable forbids assignment and mutable borrows.
	BindImmutable
)

// Binding is a named storage slot within a scope.
type Binding struct {
	ID        BindingID
	Name      string
	State     Ownership
	Depth     int
	Flags     BindFlags
	DeclPos   Pos
	MovedAt   Pos
	DroppedAt Pos
}

// Copy reports whether the binding has copy semantics.
func (b *Binding) Copy() bool { return b.Flags&BindCopy != 0 }

// Mutable reports whether the binding accepts writes and mutable borrows.
func (b *Binding) Mutable() bool { return b.Flags&BindImmutable == 0 }

// BorrowState is the lifecycle of a borrow entry.
type BorrowState uint8

const (
	BorrowActive BorrowState = iota
	// BorrowReleased: the last use has happened.
	BorrowReleased
	// BorrowInvalidated: the scope of the borrow or its referent has exited.
	BorrowInvalidated
	// BorrowPoisoned records a borrow that failed to start; uses of it are not checked again.
	BorrowPoisoned
)

func (s BorrowState) String() string {
	switch s {
	case BorrowActive:
		return "active"
	case BorrowReleased:
		return "released"
	case BorrowInvalidated:
		return "invalidated"
	case BorrowPoisoned:
		return "poisoned"
	default:
		return "unknown"
	}
}

// BorrowInfo stores metadata about each borrow.
type BorrowInfo struct {
	ID    BorrowID
	Kind  BorrowKind
	Place Place
	// Root is the binding ultimately borrowed, through any chain of re-borrows.
	Root   BindingID
	Parent BorrowID
	Label  string
	// Immutable forbids mutable re-borrows of this handle.
	Immutable bool
	Depth     int
	Pos       Pos
	// Until is the planned last use; NoPos keeps the borrow alive until its scope exits.
	Until   Pos
	State   BorrowState
	EndedAt Pos

	children       int
	pendingRelease bool
}

// Live reports whether the borrow is still active.
func (b *BorrowInfo) Live() bool {
	return b != nil && b.State == BorrowActive
}
