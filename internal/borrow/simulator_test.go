package borrow

import (
	"errors"
	"testing"
)

func wantViolation(t *testing.T, err error, kind ViolationKind) *Violation {
	t.Helper()
	var v *Violation
	if !errors.As(err, &v) {
		t.Fatalf("expected %s violation, got %v", kind, err)
	}
	if v.Kind != kind {
		t.Fatalf("expected %s violation, got %s (%v)", kind, v.Kind, v)
	}
	return v
}

func wantOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected violation: %v", err)
	}
}

func TestMoveThenReadIsUseAfterMove(t *testing.T) {
	sim := NewSimulator()
	s3 := sim.Bind(0, "s3", 0)
	if _, err := sim.Move(1, s3, "s4", 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	v := wantViolation(t, sim.Read(2, LocalPlace(s3)), UseAfterMove)
	if v.Origin != 1 {
		t.Fatalf("origin: want move site 1, got %d", v.Origin)
	}
	if got := sim.Binding(s3).State; got != MovedOut {
		t.Fatalf("source state: want moved, got %s", got)
	}
}

func TestCopyMoveLeavesSourceReadable(t *testing.T) {
	sim := NewSimulator()
	x := sim.Bind(0, "x", BindCopy)
	y, err := sim.Move(1, x, "y", 0)
	wantOK(t, err)
	wantOK(t, sim.Read(2, LocalPlace(x)))
	if !sim.Binding(y).Copy() {
		t.Fatalf("destination of a copy should keep copy semantics")
	}
}

func TestMoveTwiceIsUseAfterMove(t *testing.T) {
	sim := NewSimulator()
	s := sim.Bind(0, "s", 0)
	_, _ = sim.Move(1, s, "t", 0)
	dest, err := sim.Move(2, s, "u", 0)
	wantViolation(t, err, UseAfterMove)
	if !dest.IsValid() || sim.Binding(dest).State != Owned {
		t.Fatalf("destination should be declared despite the violation")
	}
}

func TestTwoMutableBorrowsConflict(t *testing.T) {
	sim := NewSimulator()
	s := sim.Bind(0, "s", 0)
	first, err := sim.Borrow(1, LocalPlace(s), BorrowMut, "", 0)
	wantOK(t, err)
	_, err = sim.Borrow(2, LocalPlace(s), BorrowMut, "", 0)
	v := wantViolation(t, err, AliasConflict)
	if v.Conflict != BorrowPlace(first) || v.Origin != 1 {
		t.Fatalf("conflict should point at the first borrow, got %+v", v)
	}
}

func TestSharedBorrowsCoexist(t *testing.T) {
	sim := NewSimulator()
	s := sim.Bind(0, "s", BindImmutable)
	for i := 1; i <= 3; i++ {
		_, err := sim.Borrow(Pos(i), LocalPlace(s), BorrowShared, "", 0)
		wantOK(t, err)
	}
	wantOK(t, sim.Read(4, LocalPlace(s)))
	shared, mut := sim.Table().ActiveOn(LocalPlace(s))
	if len(shared) != 3 || mut.IsValid() {
		t.Fatalf("want 3 shared borrows, got shared=%v mut=%v", shared, mut)
	}
}

func TestMutBorrowThenSharedConflicts(t *testing.T) {
	sim := NewSimulator()
	s := sim.Bind(0, "s", 0)
	_, err := sim.Borrow(1, LocalPlace(s), BorrowMut, "", 0)
	wantOK(t, err)
	_, err = sim.Borrow(2, LocalPlace(s), BorrowShared, "", 0)
	wantViolation(t, err, AliasConflict)
}

func TestReleasedMutBorrowAllowsShared(t *testing.T) {
	sim := NewSimulator()
	s := sim.Bind(0, "s", 0)
	id, err := sim.Borrow(1, LocalPlace(s), BorrowMut, "r", 0)
	wantOK(t, err)
	sim.Release(2, id)
	_, err = sim.Borrow(3, LocalPlace(s), BorrowShared, "", 0)
	wantOK(t, err)
	wantViolation(t, sim.Read(4, BorrowPlace(id)), DanglingBorrow)
}

func TestScopeExitDanglesBorrow(t *testing.T) {
	sim := NewSimulator()
	sim.EnterScope(0)
	s := sim.Bind(1, "s", 0)
	r, err := sim.Borrow(2, LocalPlace(s), BorrowShared, "r", 0)
	wantOK(t, err)
	wantOK(t, sim.ExitScope(3))
	v := wantViolation(t, sim.Read(4, BorrowPlace(r)), DanglingBorrow)
	if v.Origin != 3 {
		t.Fatalf("origin: want scope exit 3, got %d", v.Origin)
	}
	wantViolation(t, sim.Read(5, LocalPlace(s)), DanglingBorrow)
	if sim.Depth() != 0 {
		t.Fatalf("depth: want 0, got %d", sim.Depth())
	}
}

func TestBorrowOfOuterBindingInvalidatedAtInnerExit(t *testing.T) {
	sim := NewSimulator()
	s := sim.Bind(0, "s", 0)
	sim.EnterScope(1)
	r, _ := sim.Borrow(2, LocalPlace(s), BorrowMut, "r", 0)
	wantOK(t, sim.ExitScope(3))
	if info := sim.BorrowInfo(r); info.State != BorrowInvalidated {
		t.Fatalf("inner borrow should be invalidated, got %s", info.State)
	}
	_, err := sim.Borrow(4, LocalPlace(s), BorrowMut, "r2", 0)
	wantOK(t, err)
}

func TestMoveWhileBorrowed(t *testing.T) {
	sim := NewSimulator()
	s := sim.Bind(0, "s", 0)
	_, _ = sim.Borrow(1, LocalPlace(s), BorrowShared, "r", 0)
	_, err := sim.Move(2, s, "t", 0)
	wantViolation(t, err, BorrowedWhileMoving)
	if sim.Binding(s).State != Owned {
		t.Fatalf("rejected move must not change the source")
	}
}

func TestUnbalancedExit(t *testing.T) {
	sim := NewSimulator()
	wantViolation(t, sim.ExitScope(0), UnbalancedScope)
}

func TestImmutableBinding(t *testing.T) {
	sim := NewSimulator()
	v := sim.Bind(0, "v", BindImmutable)
	wantViolation(t, sim.Write(1, LocalPlace(v)), AssignToImmutable)
	_, err := sim.Borrow(2, LocalPlace(v), BorrowMut, "m", 0)
	wantViolation(t, err, MutBorrowOfImmutable)
	_, err = sim.Borrow(3, LocalPlace(v), BorrowShared, "r", 0)
	wantOK(t, err)
}

func TestWriteReinitialisesMovedBinding(t *testing.T) {
	sim := NewSimulator()
	s := sim.Bind(0, "s", 0)
	_, _ = sim.Move(1, s, "t", 0)
	wantOK(t, sim.Write(2, LocalPlace(s)))
	wantOK(t, sim.Read(3, LocalPlace(s)))
}

func TestWriteThroughShared(t *testing.T) {
	sim := NewSimulator()
	s := sim.Bind(0, "s", 0)
	r, _ := sim.Borrow(1, LocalPlace(s), BorrowShared, "r", 0)
	wantViolation(t, sim.Write(2, BorrowPlace(r)), WriteThroughShared)
}

func TestWriteWhileBorrowed(t *testing.T) {
	sim := NewSimulator()
	s := sim.Bind(0, "s", 0)
	_, _ = sim.Borrow(1, LocalPlace(s), BorrowShared, "r", 0)
	wantViolation(t, sim.Write(2, LocalPlace(s)), AliasConflict)
}

func TestReborrowKeepsParentAlive(t *testing.T) {
	sim := NewSimulator()
	s := sim.Bind(0, "s1", 0)
	t1, err := sim.Borrow(1, LocalPlace(s), BorrowMut, "t1", 0)
	wantOK(t, err)
	t2, err := sim.Borrow(2, BorrowPlace(t1), BorrowMut, "t2", 0)
	wantOK(t, err)

	sim.Release(3, t1)
	if !sim.BorrowInfo(t1).Live() {
		t.Fatalf("parent must stay active while its re-borrow lives")
	}
	wantViolation(t, sim.Read(3, BorrowPlace(t1)), AliasConflict)

	sim.Release(4, t2)
	if sim.BorrowInfo(t1).Live() {
		t.Fatalf("deferred release should end the parent with its last child")
	}
	_, err = sim.Borrow(5, LocalPlace(s), BorrowMut, "t3", 0)
	wantOK(t, err)
}

func TestMutReborrowOfImmutableHandle(t *testing.T) {
	sim := NewSimulator()
	s := sim.Bind(0, "s1", 0)
	t1, _ := sim.Borrow(1, LocalPlace(s), BorrowMut, "t1", BindImmutable)
	_, err := sim.Borrow(2, BorrowPlace(t1), BorrowMut, "t2", 0)
	wantViolation(t, err, MutBorrowOfImmutable)
}

func TestPoisonedBorrowIsQuiet(t *testing.T) {
	sim := NewSimulator()
	s := sim.Bind(0, "s", 0)
	_, _ = sim.Borrow(1, LocalPlace(s), BorrowMut, "a", 0)
	b, err := sim.Borrow(2, LocalPlace(s), BorrowMut, "b", 0)
	wantViolation(t, err, AliasConflict)
	wantOK(t, sim.Read(3, BorrowPlace(b)))
	if n := len(sim.Violations()); n != 1 {
		t.Fatalf("want exactly 1 violation, got %d", n)
	}
}

func TestLookupShadowing(t *testing.T) {
	sim := NewSimulator()
	outer := sim.Bind(0, "x", 0)
	sim.EnterScope(1)
	inner := sim.Bind(2, "x", 0)
	if p, _ := sim.Lookup("x"); p != LocalPlace(inner) {
		t.Fatalf("inner binding should shadow, got %v", p)
	}
	_ = sim.ExitScope(3)
	if p, _ := sim.Lookup("x"); p != LocalPlace(outer) {
		t.Fatalf("outer binding should be visible again, got %v", p)
	}
	if _, ok := sim.Lookup("nope"); ok {
		t.Fatalf("unknown names must not resolve")
	}
}

func TestEventsAreOrdered(t *testing.T) {
	var seen []BorrowEventKind
	sim := NewSimulator(WithObserver(func(ev BorrowEvent) { seen = append(seen, ev.Kind) }))
	s := sim.Bind(0, "s", 0)
	r, _ := sim.Borrow(1, LocalPlace(s), BorrowShared, "r", 0)
	sim.Release(2, r)
	_, _ = sim.Move(3, s, "t", 0)
	_ = sim.Read(4, LocalPlace(s))

	want := []BorrowEventKind{BorrowEvBind, BorrowEvBorrowStart, BorrowEvBorrowEnd, BorrowEvMove, BorrowEvBind, BorrowEvViolation}
	if len(seen) != len(want) {
		t.Fatalf("events: want %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("event %d: want %s, got %s", i, want[i], seen[i])
		}
	}
	if len(sim.Events()) != len(seen) {
		t.Fatalf("observer and log disagree")
	}
}
