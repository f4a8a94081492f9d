package testkit_test

import (
	"context"
	"testing"

	"borrowsim/internal/borrow"
	"borrowsim/internal/scenarios"
	"borrowsim/internal/testkit"
)

func TestBorrowInvariants_HoldForEveryScenario(t *testing.T) {
	all, err := scenarios.All()
	if err != nil {
		t.Fatal(err)
	}
	for _, lexical := range []bool{false, true} {
		for _, s := range all {
			var failure error
			inspect := func(pos borrow.Pos, sim *borrow.Simulator) {
				if failure != nil {
					return
				}
				if err := testkit.CheckBorrowInvariants(sim); err != nil {
					failure = err
					t.Errorf("%s (lexical=%v) after op %d: %v", s.Name, lexical, pos, err)
				}
			}
			if _, err := borrow.Run(context.Background(), s, borrow.RunOptions{Lexical: lexical, Inspect: inspect}); err != nil {
				t.Fatalf("%s: %v", s.Name, err)
			}
		}
	}
}

func TestBorrowInvariants_ReborrowChain(t *testing.T) {
	sim := borrow.NewSimulator()
	x := sim.Bind(0, "x", 0)
	r1, err := sim.Borrow(1, borrow.LocalPlace(x), borrow.BorrowMut, "r1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sim.Borrow(2, borrow.BorrowPlace(r1), borrow.BorrowShared, "r2", 0); err != nil {
		t.Fatal(err)
	}
	if err := testkit.CheckBorrowInvariants(sim); err != nil {
		t.Fatalf("chain: %v", err)
	}

	// the parent is released first: its end is deferred until r2 ends
	sim.Release(3, r1)
	if !sim.BorrowInfo(r1).Live() {
		t.Fatal("parent must stay live while a re-borrow is active")
	}
	if err := testkit.CheckBorrowInvariants(sim); err != nil {
		t.Fatalf("deferred release: %v", err)
	}

	sim.EnterScope(4)
	if _, err := sim.Borrow(5, borrow.LocalPlace(x), borrow.BorrowShared, "r3", 0); err == nil {
		t.Fatal("shared borrow under a live mutable borrow must fail")
	}
	if err := sim.ExitScope(6); err != nil {
		t.Fatal(err)
	}
	if err := testkit.CheckBorrowInvariants(sim); err != nil {
		t.Fatalf("after scope: %v", err)
	}
}

func TestBorrowInvariants_NilSimulator(t *testing.T) {
	if err := testkit.CheckBorrowInvariants(nil); err == nil {
		t.Fatal("expected an error for a nil simulator")
	}
}
