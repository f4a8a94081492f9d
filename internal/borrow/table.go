package borrow

import (
	"fmt"

	"fortio.org/safecast"
)

type borrowState struct {
	shared []BorrowID
	mut    BorrowID
}

// BorrowIssueKind enumerates reasons a borrow-related action fails.
type BorrowIssueKind uint8

const (
	BorrowIssueNone BorrowIssueKind = iota
	// BorrowIssueConflictShared: a mutable borrow was requested while shared borrows are active.
	BorrowIssueConflictShared
	// BorrowIssueConflictMut: any borrow was requested while a mutable borrow is active.
	BorrowIssueConflictMut
	// BorrowIssueFrozen: mutation or move under an active shared borrow.
	BorrowIssueFrozen
	// BorrowIssueTaken: use, mutation or move under an active mutable borrow.
	BorrowIssueTaken
)

// BorrowIssue carries information about conflicts.
type BorrowIssue struct {
	Kind   BorrowIssueKind
	Borrow BorrowID
}

// Blocked reports whether the issue forbids the action.
func (i BorrowIssue) Blocked() bool {
	return i.Kind != BorrowIssueNone
}

// BorrowTable tracks borrows and per-place state.
type BorrowTable struct {
	infos        []BorrowInfo
	placeState   map[Place]borrowState
	scopeBorrows map[int][]BorrowID
}

// NewBorrowTable builds an empty borrow table ready for tracking.
func NewBorrowTable() *BorrowTable {
	return &BorrowTable{
		infos:        []BorrowInfo{{}},
		placeState:   make(map[Place]borrowState),
		scopeBorrows: make(map[int][]BorrowID),
	}
}

func (bt *BorrowTable) nextID() BorrowID {
	value, err := safecast.Conv[uint32](len(bt.infos))
	if err != nil {
		panic(fmt.Errorf("borrow table overflow: %w", err))
	}
	return BorrowID(value)
}

// BeginBorrow registers a borrow of place. Exclusivity is checked against the
// borrows currently active on that exact place; re-borrows keep their parent
// active, so a binding stays visibly borrowed while any chain rooted at it lives.
func (bt *BorrowTable) BeginBorrow(info BorrowInfo) (BorrowID, BorrowIssue) {
	if bt == nil || !info.Place.IsValid() {
		return NoBorrowID, BorrowIssue{}
	}
	state := bt.placeState[info.Place]
	switch info.Kind {
	case BorrowShared:
		if state.mut != NoBorrowID {
			return NoBorrowID, BorrowIssue{Kind: BorrowIssueConflictMut, Borrow: state.mut}
		}
	case BorrowMut:
		if state.mut != NoBorrowID {
			return NoBorrowID, BorrowIssue{Kind: BorrowIssueConflictMut, Borrow: state.mut}
		}
		if len(state.shared) > 0 {
			return NoBorrowID, BorrowIssue{Kind: BorrowIssueConflictShared, Borrow: state.shared[0]}
		}
	}
	id := bt.nextID()
	info.ID = id
	info.State = BorrowActive
	info.EndedAt = NoPos
	bt.infos = append(bt.infos, info)
	switch info.Kind {
	case BorrowShared:
		state.shared = append(state.shared, id)
	case BorrowMut:
		state.mut = id
	}
	bt.placeState[info.Place] = state
	bt.scopeBorrows[info.Depth] = append(bt.scopeBorrows[info.Depth], id)
	if parent := bt.Info(info.Parent); parent != nil {
		parent.children++
	}
	return id, BorrowIssue{}
}

// Poison records a borrow that failed to start. It occupies an ID so a label
// can refer to it, but it never enters the per-place state.
func (bt *BorrowTable) Poison(info BorrowInfo) BorrowID {
	id := bt.nextID()
	info.ID = id
	info.State = BorrowPoisoned
	info.EndedAt = NoPos
	bt.infos = append(bt.infos, info)
	return id
}

// ReadAllowed verifies whether the place can be read; only a mutable borrow blocks reads.
func (bt *BorrowTable) ReadAllowed(place Place) BorrowIssue {
	if bt == nil || !place.IsValid() {
		return BorrowIssue{}
	}
	if state, ok := bt.placeState[place]; ok && state.mut != NoBorrowID {
		return BorrowIssue{Kind: BorrowIssueTaken, Borrow: state.mut}
	}
	return BorrowIssue{}
}

// MutationAllowed verifies whether the place can be mutated.
func (bt *BorrowTable) MutationAllowed(place Place) BorrowIssue {
	return bt.exclusiveAllowed(place)
}

// MoveAllowed verifies whether the place can be moved from.
func (bt *BorrowTable) MoveAllowed(place Place) BorrowIssue {
	return bt.exclusiveAllowed(place)
}

func (bt *BorrowTable) exclusiveAllowed(place Place) BorrowIssue {
	if bt == nil || !place.IsValid() {
		return BorrowIssue{}
	}
	state, ok := bt.placeState[place]
	if !ok {
		return BorrowIssue{}
	}
	if len(state.shared) > 0 {
		return BorrowIssue{Kind: BorrowIssueFrozen, Borrow: state.shared[0]}
	}
	if state.mut != NoBorrowID {
		return BorrowIssue{Kind: BorrowIssueTaken, Borrow: state.mut}
	}
	return BorrowIssue{}
}

// Release ends a borrow at its last use. A borrow with live re-borrows stays
// active until the last of them ends. It returns every borrow that actually ended.
func (bt *BorrowTable) Release(id BorrowID, pos Pos) []BorrowID {
	info := bt.Info(id)
	if !info.Live() {
		return nil
	}
	if info.children > 0 {
		info.pendingRelease = true
		return nil
	}
	return bt.end(id, BorrowReleased, pos)
}

// Invalidate ends a borrow and every re-borrow derived from it.
func (bt *BorrowTable) Invalidate(id BorrowID, pos Pos) []BorrowID {
	info := bt.Info(id)
	if !info.Live() {
		return nil
	}
	// children ending below must not cascade a release into this borrow
	info.pendingRelease = false
	var ended []BorrowID
	for i := range bt.infos {
		child := &bt.infos[i]
		if child.Parent == id && child.Live() {
			ended = append(ended, bt.Invalidate(child.ID, pos)...)
		}
	}
	return append(ended, bt.end(id, BorrowInvalidated, pos)...)
}

func (bt *BorrowTable) end(id BorrowID, state BorrowState, pos Pos) []BorrowID {
	info := bt.Info(id)
	info.State = state
	info.EndedAt = pos
	bt.detach(info)
	ended := []BorrowID{id}
	if parent := bt.Info(info.Parent); parent != nil {
		parent.children--
		if parent.children == 0 && parent.pendingRelease && parent.Live() {
			ended = append(ended, bt.end(parent.ID, BorrowReleased, pos)...)
		}
	}
	return ended
}

func (bt *BorrowTable) detach(info *BorrowInfo) {
	state := bt.placeState[info.Place]
	switch info.Kind {
	case BorrowShared:
		state.shared = dropBorrowID(state.shared, info.ID)
	case BorrowMut:
		if state.mut == info.ID {
			state.mut = NoBorrowID
		}
	}
	if len(state.shared) == 0 && state.mut == NoBorrowID {
		delete(bt.placeState, info.Place)
	} else {
		bt.placeState[info.Place] = state
	}
}

// EndScope invalidates all borrows created at depth.
func (bt *BorrowTable) EndScope(depth int, pos Pos) []BorrowID {
	if bt == nil {
		return nil
	}
	ids := bt.scopeBorrows[depth]
	var ended []BorrowID
	for _, id := range ids {
		ended = append(ended, bt.Invalidate(id, pos)...)
	}
	delete(bt.scopeBorrows, depth)
	return ended
}

// DueBy returns active borrows whose planned last use is at or before pos.
func (bt *BorrowTable) DueBy(pos Pos) []BorrowID {
	var out []BorrowID
	for i := 1; i < len(bt.infos); i++ {
		info := &bt.infos[i]
		if info.Live() && !info.pendingRelease && info.Until != NoPos && info.Until <= pos {
			out = append(out, info.ID)
		}
	}
	return out
}

// RootedAt returns active borrows whose root binding is id.
func (bt *BorrowTable) RootedAt(id BindingID) []BorrowID {
	var out []BorrowID
	for i := 1; i < len(bt.infos); i++ {
		if bt.infos[i].Live() && bt.infos[i].Root == id {
			out = append(out, bt.infos[i].ID)
		}
	}
	return out
}

// ActiveOn returns the borrows currently active directly on place.
func (bt *BorrowTable) ActiveOn(place Place) (shared []BorrowID, mut BorrowID) {
	state := bt.placeState[place]
	return append([]BorrowID(nil), state.shared...), state.mut
}

// Info returns metadata for the borrow.
func (bt *BorrowTable) Info(id BorrowID) *BorrowInfo {
	if bt == nil || id == NoBorrowID || int(id) >= len(bt.infos) {
		return nil
	}
	return &bt.infos[id]
}

// Infos returns a shallow copy of stored borrow infos (excluding sentinel).
func (bt *BorrowTable) Infos() []BorrowInfo {
	if bt == nil || len(bt.infos) <= 1 {
		return nil
	}
	out := make([]BorrowInfo, len(bt.infos)-1)
	copy(out, bt.infos[1:])
	return out
}

func dropBorrowID(ids []BorrowID, target BorrowID) []BorrowID {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
