package borrow

import (
	"fmt"

	"fortio.org/safecast"
)

type nameEntry struct {
	place Place
	depth int
	live  bool
}

// Simulator replays ownership operations against explicit binding and borrow
// state. It is single-threaded: one goroutine owns a Simulator for its lifetime.
//
// Every operation returns nil or a *Violation. A violation never stops the
// simulator; operations that would have declared a name still declare it
// (a poisoned borrow, a fresh destination binding) so that one mistake does not
// cascade into unrelated reports.
type Simulator struct {
	bindings   []Binding
	names      map[string][]nameEntry
	depth      int
	borrows    *BorrowTable
	events     []BorrowEvent
	violations []*Violation
	observer   func(BorrowEvent)
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithObserver registers fn to receive every event as it is recorded.
func WithObserver(fn func(BorrowEvent)) Option {
	return func(s *Simulator) { s.observer = fn }
}

// NewSimulator returns a simulator positioned in the root scope (depth 0).
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		bindings: []Binding{{}},
		names:    make(map[string][]nameEntry),
		borrows:  NewBorrowTable(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Depth returns the current scope depth.
func (s *Simulator) Depth() int { return s.depth }

// Binding returns the binding with id, or nil.
func (s *Simulator) Binding(id BindingID) *Binding {
	if id == NoBindingID || int(id) >= len(s.bindings) {
		return nil
	}
	return &s.bindings[id]
}

// BorrowInfo returns the borrow with id, or nil.
func (s *Simulator) BorrowInfo(id BorrowID) *BorrowInfo {
	return s.borrows.Info(id)
}

// Bindings returns a copy of all bindings (excluding the sentinel).
func (s *Simulator) Bindings() []Binding {
	out := make([]Binding, len(s.bindings)-1)
	copy(out, s.bindings[1:])
	return out
}

// Borrows returns a copy of all borrow entries.
func (s *Simulator) Borrows() []BorrowInfo { return s.borrows.Infos() }

// Table exposes the borrow table for inspection.
func (s *Simulator) Table() *BorrowTable { return s.borrows }

// Events returns the recorded event log.
func (s *Simulator) Events() []BorrowEvent { return s.events }

// Violations returns every violation reported so far, in order.
func (s *Simulator) Violations() []*Violation { return s.violations }

// Lookup resolves name. The newest declaration still in scope wins; when every
// declaration has gone out of scope the newest one is returned anyway so that
// callers observe a dangling place rather than an unknown name.
func (s *Simulator) Lookup(name string) (Place, bool) {
	entries := s.names[name]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].live {
			return entries[i].place, true
		}
	}
	if len(entries) > 0 {
		return entries[len(entries)-1].place, true
	}
	return Place{}, false
}

// NameOf renders a place for messages.
func (s *Simulator) NameOf(place Place) string {
	switch place.Kind {
	case PlaceLocal:
		if b := s.Binding(place.Binding); b != nil {
			return b.Name
		}
	case PlaceBorrow:
		if info := s.borrows.Info(place.Borrow); info != nil {
			if info.Label != "" {
				return info.Label
			}
			prefix := "&"
			if info.Kind == BorrowMut {
				prefix = "&mut "
			}
			return prefix + s.NameOf(info.Place)
		}
	}
	return "_"
}

// Bind creates an Owned binding at the current depth.
func (s *Simulator) Bind(pos Pos, name string, flags BindFlags) BindingID {
	value, err := safecast.Conv[uint32](len(s.bindings))
	if err != nil {
		panic(fmt.Errorf("binding table overflow: %w", err))
	}
	id := BindingID(value)
	s.bindings = append(s.bindings, Binding{
		ID:        id,
		Name:      name,
		State:     Owned,
		Depth:     s.depth,
		Flags:     flags,
		DeclPos:   pos,
		MovedAt:   NoPos,
		DroppedAt: NoPos,
	})
	s.declare(name, LocalPlace(id))
	s.record(BorrowEvent{Kind: BorrowEvBind, Pos: pos, Place: LocalPlace(id), Name: name, Depth: s.depth})
	return id
}

// Move transfers ownership of src into a new binding named dest. Copy bindings
// stay Owned. The destination binding is created even when the move is
// rejected, and its ID is returned alongside the violation.
func (s *Simulator) Move(pos Pos, src BindingID, dest string, flags BindFlags) (BindingID, error) {
	b := s.Binding(src)
	if b == nil {
		return s.Bind(pos, dest, flags), s.fail(&Violation{Kind: InvalidOperand, Action: ActMove, Pos: pos, Origin: NoPos})
	}
	place := LocalPlace(src)
	flags |= b.Flags & BindCopy
	if v := s.checkOwned(pos, b, ActMove); v != nil {
		return s.Bind(pos, dest, flags), s.fail(v)
	}
	if issue := s.borrows.MoveAllowed(place); issue.Blocked() {
		return s.Bind(pos, dest, flags), s.fail(s.conflict(pos, BorrowedWhileMoving, ActMove, place, issue))
	}
	if b.Copy() {
		s.record(BorrowEvent{Kind: BorrowEvCopy, Pos: pos, Place: place, Name: b.Name, Depth: s.depth})
	} else {
		b.State = MovedOut
		b.MovedAt = pos
		s.record(BorrowEvent{Kind: BorrowEvMove, Pos: pos, Place: place, Name: b.Name, Depth: s.depth, Note: dest})
	}
	return s.Bind(pos, dest, flags), nil
}

// Clone reads src and creates an independent Owned binding named dest.
func (s *Simulator) Clone(pos Pos, src BindingID, dest string, flags BindFlags) (BindingID, error) {
	b := s.Binding(src)
	if b == nil {
		return s.Bind(pos, dest, flags), s.fail(&Violation{Kind: InvalidOperand, Action: ActClone, Pos: pos, Origin: NoPos})
	}
	place := LocalPlace(src)
	flags |= b.Flags & BindCopy
	if v := s.checkOwned(pos, b, ActClone); v != nil {
		return s.Bind(pos, dest, flags), s.fail(v)
	}
	if issue := s.borrows.ReadAllowed(place); issue.Blocked() {
		return s.Bind(pos, dest, flags), s.fail(s.conflict(pos, AliasConflict, ActClone, place, issue))
	}
	s.record(BorrowEvent{Kind: BorrowEvRead, Pos: pos, Place: place, Name: b.Name, Depth: s.depth, Note: "clone"})
	return s.Bind(pos, dest, flags), nil
}

// Borrow starts a borrow of place. label names the borrow handle (empty for an
// unnamed borrow); BindImmutable in flags forbids mutable re-borrows of it.
// A rejected borrow still yields a poisoned BorrowID bound to label.
func (s *Simulator) Borrow(pos Pos, place Place, kind BorrowKind, label string, flags BindFlags) (BorrowID, error) {
	info := BorrowInfo{
		Kind:      kind,
		Place:     place,
		Label:     label,
		Immutable: flags&BindImmutable != 0,
		Depth:     s.depth,
		Pos:       pos,
		Until:     NoPos,
	}
	act := borrowAction(kind)

	var v *Violation
	switch place.Kind {
	case PlaceLocal:
		b := s.Binding(place.Binding)
		if b == nil {
			v = &Violation{Kind: InvalidOperand, Action: act, Pos: pos, Origin: NoPos}
			break
		}
		info.Root = b.ID
		if v = s.checkOwned(pos, b, act); v != nil {
			break
		}
		if kind == BorrowMut && !b.Mutable() {
			v = &Violation{Kind: MutBorrowOfImmutable, Action: act, Pos: pos, Place: place, Name: b.Name, Origin: b.DeclPos}
		}
	case PlaceBorrow:
		parent := s.borrows.Info(place.Borrow)
		if parent == nil {
			v = &Violation{Kind: InvalidOperand, Action: act, Pos: pos, Origin: NoPos}
			break
		}
		info.Root = parent.Root
		info.Parent = parent.ID
		if parent.State == BorrowPoisoned {
			return s.declareBorrow(s.borrows.Poison(info), label), nil
		}
		if v = s.checkLive(pos, parent, act); v != nil {
			break
		}
		if kind == BorrowMut && parent.Immutable {
			v = &Violation{Kind: MutBorrowOfImmutable, Action: act, Pos: pos, Place: place, Name: s.NameOf(place), Origin: parent.Pos}
		}
	default:
		v = &Violation{Kind: InvalidOperand, Action: act, Pos: pos, Origin: NoPos}
	}
	if v != nil {
		return s.declareBorrow(s.borrows.Poison(info), label), s.fail(v)
	}

	id, issue := s.borrows.BeginBorrow(info)
	if issue.Blocked() {
		v = s.conflict(pos, AliasConflict, act, place, issue)
		return s.declareBorrow(s.borrows.Poison(info), label), s.fail(v)
	}
	s.declareBorrow(id, label)
	s.record(BorrowEvent{Kind: BorrowEvBorrowStart, Pos: pos, Place: place, Name: s.NameOf(place), Borrow: id, BorrowKind: kind, Depth: s.depth})
	return id, nil
}

// Read uses place. Reading a borrow extends its liveness to pos.
func (s *Simulator) Read(pos Pos, place Place) error {
	switch place.Kind {
	case PlaceLocal:
		b := s.Binding(place.Binding)
		if b == nil {
			return s.fail(&Violation{Kind: InvalidOperand, Action: ActRead, Pos: pos, Origin: NoPos})
		}
		if v := s.checkOwned(pos, b, ActRead); v != nil {
			return s.fail(v)
		}
	case PlaceBorrow:
		info := s.borrows.Info(place.Borrow)
		if info == nil {
			return s.fail(&Violation{Kind: InvalidOperand, Action: ActRead, Pos: pos, Origin: NoPos})
		}
		if info.State == BorrowPoisoned {
			return nil
		}
		if v := s.checkLive(pos, info, ActRead); v != nil {
			return s.fail(v)
		}
		if info.Until != NoPos && info.Until < pos {
			info.Until = pos
		}
	default:
		return s.fail(&Violation{Kind: InvalidOperand, Action: ActRead, Pos: pos, Origin: NoPos})
	}
	if issue := s.borrows.ReadAllowed(place); issue.Blocked() {
		return s.fail(s.conflict(pos, AliasConflict, ActRead, place, issue))
	}
	s.record(BorrowEvent{Kind: BorrowEvRead, Pos: pos, Place: place, Name: s.NameOf(place), Depth: s.depth})
	return nil
}

// Write assigns to a binding or mutates through a borrow. Assigning to a
// moved-out mutable binding re-initialises it.
func (s *Simulator) Write(pos Pos, place Place) error {
	switch place.Kind {
	case PlaceLocal:
		b := s.Binding(place.Binding)
		if b == nil {
			return s.fail(&Violation{Kind: InvalidOperand, Action: ActWrite, Pos: pos, Origin: NoPos})
		}
		if b.State == Dropped {
			return s.fail(&Violation{Kind: DanglingBorrow, Action: ActWrite, Pos: pos, Place: place, Name: b.Name, Origin: b.DroppedAt})
		}
		if !b.Mutable() {
			return s.fail(&Violation{Kind: AssignToImmutable, Action: ActWrite, Pos: pos, Place: place, Name: b.Name, Origin: b.DeclPos})
		}
		if issue := s.borrows.MutationAllowed(place); issue.Blocked() {
			return s.fail(s.conflict(pos, AliasConflict, ActWrite, place, issue))
		}
		if b.State == MovedOut {
			b.State = Owned
			b.MovedAt = NoPos
			s.record(BorrowEvent{Kind: BorrowEvReinit, Pos: pos, Place: place, Name: b.Name, Depth: s.depth})
			return nil
		}
	case PlaceBorrow:
		info := s.borrows.Info(place.Borrow)
		if info == nil {
			return s.fail(&Violation{Kind: InvalidOperand, Action: ActWrite, Pos: pos, Origin: NoPos})
		}
		if info.State == BorrowPoisoned {
			return nil
		}
		if v := s.checkLive(pos, info, ActWrite); v != nil {
			return s.fail(v)
		}
		if info.Kind == BorrowShared {
			return s.fail(&Violation{Kind: WriteThroughShared, Action: ActWrite, Pos: pos, Place: place, Name: s.NameOf(place), Origin: info.Pos})
		}
		if issue := s.borrows.MutationAllowed(place); issue.Blocked() {
			return s.fail(s.conflict(pos, AliasConflict, ActWrite, place, issue))
		}
		if info.Until != NoPos && info.Until < pos {
			info.Until = pos
		}
	default:
		return s.fail(&Violation{Kind: InvalidOperand, Action: ActWrite, Pos: pos, Origin: NoPos})
	}
	s.record(BorrowEvent{Kind: BorrowEvWrite, Pos: pos, Place: place, Name: s.NameOf(place), Depth: s.depth})
	return nil
}

// EnterScope pushes a scope frame.
func (s *Simulator) EnterScope(pos Pos) {
	s.depth++
	s.record(BorrowEvent{Kind: BorrowEvScopeEnter, Pos: pos, Depth: s.depth})
}

// ExitScope pops the current frame: borrows created in it are invalidated,
// its bindings are dropped, and borrows rooted at dropped bindings end too.
func (s *Simulator) ExitScope(pos Pos) error {
	if s.depth == 0 {
		return s.fail(&Violation{Kind: UnbalancedScope, Action: ActExit, Pos: pos, Origin: NoPos})
	}
	s.recordEnded(pos, s.borrows.EndScope(s.depth, pos), "scope exit")
	for i := 1; i < len(s.bindings); i++ {
		b := &s.bindings[i]
		if b.Depth != s.depth || b.State == Dropped {
			continue
		}
		for _, id := range s.borrows.RootedAt(b.ID) {
			s.recordEnded(pos, s.borrows.Invalidate(id, pos), "referent dropped")
		}
		b.State = Dropped
		b.DroppedAt = pos
		s.record(BorrowEvent{Kind: BorrowEvDrop, Pos: pos, Place: LocalPlace(b.ID), Name: b.Name, Depth: s.depth})
	}
	for name, entries := range s.names {
		for i := range entries {
			if entries[i].depth == s.depth {
				entries[i].live = false
			}
		}
		s.names[name] = entries
	}
	s.record(BorrowEvent{Kind: BorrowEvScopeExit, Pos: pos, Depth: s.depth})
	s.depth--
	return nil
}

// Plan sets the planned last use of an active borrow.
func (s *Simulator) Plan(id BorrowID, until Pos) {
	if info := s.borrows.Info(id); info.Live() {
		info.Until = until
	}
}

// Release ends a borrow at its last use.
func (s *Simulator) Release(pos Pos, id BorrowID) {
	s.recordEnded(pos, s.borrows.Release(id, pos), "last use")
}

// EndOp releases every borrow whose planned last use is at or before pos.
// Callers invoke it once all places of the op at pos have been processed.
func (s *Simulator) EndOp(pos Pos) {
	for _, id := range s.borrows.DueBy(pos) {
		s.Release(pos, id)
	}
}

func (s *Simulator) checkOwned(pos Pos, b *Binding, act Action) *Violation {
	place := LocalPlace(b.ID)
	switch b.State {
	case Dropped:
		return &Violation{Kind: DanglingBorrow, Action: act, Pos: pos, Place: place, Name: b.Name, Origin: b.DroppedAt}
	case MovedOut:
		return &Violation{Kind: UseAfterMove, Action: act, Pos: pos, Place: place, Name: b.Name, Origin: b.MovedAt}
	}
	return nil
}

func (s *Simulator) checkLive(pos Pos, info *BorrowInfo, act Action) *Violation {
	if info.Live() {
		return nil
	}
	return &Violation{
		Kind:   DanglingBorrow,
		Action: act,
		Pos:    pos,
		Place:  BorrowPlace(info.ID),
		Name:   s.NameOf(BorrowPlace(info.ID)),
		Origin: info.EndedAt,
	}
}

func (s *Simulator) conflict(pos Pos, kind ViolationKind, act Action, place Place, issue BorrowIssue) *Violation {
	v := &Violation{Kind: kind, Action: act, Pos: pos, Place: place, Name: s.NameOf(place), Origin: NoPos}
	if info := s.borrows.Info(issue.Borrow); info != nil {
		v.Conflict = BorrowPlace(info.ID)
		v.ConflictName = s.NameOf(v.Conflict)
		v.ConflictKind = info.Kind
		v.Origin = info.Pos
	}
	return v
}

func (s *Simulator) declare(name string, place Place) {
	if name == "" {
		return
	}
	s.names[name] = append(s.names[name], nameEntry{place: place, depth: s.depth, live: true})
}

func (s *Simulator) declareBorrow(id BorrowID, label string) BorrowID {
	s.declare(label, BorrowPlace(id))
	return id
}

func (s *Simulator) fail(v *Violation) error {
	s.violations = append(s.violations, v)
	s.record(BorrowEvent{Kind: BorrowEvViolation, Pos: v.Pos, Place: v.Place, Name: v.Name, Depth: s.depth, Issue: v.Kind, Note: v.Message()})
	return v
}

func (s *Simulator) recordEnded(pos Pos, ids []BorrowID, note string) {
	for _, id := range ids {
		info := s.borrows.Info(id)
		s.record(BorrowEvent{Kind: BorrowEvBorrowEnd, Pos: pos, Place: info.Place, Name: s.NameOf(BorrowPlace(id)), Borrow: id, BorrowKind: info.Kind, Depth: s.depth, Note: note})
	}
}

func (s *Simulator) record(ev BorrowEvent) {
	s.events = append(s.events, ev)
	if s.observer != nil {
		s.observer(ev)
	}
}
