package testkit

import (
	"fmt"

	"borrowsim/internal/borrow"
)

// CheckBorrowInvariants runs a set of consistency checks on a simulator:
// 1) a place never holds a mutable borrow together with shared ones
// 2) per-place state lists exactly the live borrows of that place
// 3) live borrows have no end position, ended ones have one
// 4) a live re-borrow has a live parent
// 5) no live borrow is rooted at a dropped binding
func CheckBorrowInvariants(sim *borrow.Simulator) error {
	if sim == nil {
		return fmt.Errorf("nil simulator")
	}
	table := sim.Table()
	infos := sim.Borrows()

	livePerPlace := make(map[borrow.Place]int)
	for i := range infos {
		info := &infos[i]
		switch info.State {
		case borrow.BorrowActive:
			if info.EndedAt != borrow.NoPos {
				return fmt.Errorf("borrow#%d is active but ended at op %d", info.ID, info.EndedAt)
			}
			livePerPlace[info.Place]++
			if !onPlace(table, info) {
				return fmt.Errorf("borrow#%d is active but missing from %s", info.ID, info.Place)
			}
			if info.Parent.IsValid() {
				if parent := table.Info(info.Parent); !parent.Live() {
					return fmt.Errorf("borrow#%d outlives its parent borrow#%d", info.ID, info.Parent)
				}
			}
			if root := sim.Binding(info.Root); root != nil && root.State == borrow.Dropped {
				return fmt.Errorf("borrow#%d is rooted at dropped binding %q", info.ID, root.Name)
			}
		case borrow.BorrowReleased, borrow.BorrowInvalidated:
			if info.EndedAt == borrow.NoPos {
				return fmt.Errorf("borrow#%d is %s without an end position", info.ID, info.State)
			}
		}
	}

	for place, live := range livePerPlace {
		shared, mut := table.ActiveOn(place)
		if mut.IsValid() && len(shared) > 0 {
			return fmt.Errorf("%s has a mutable borrow and %d shared borrows", place, len(shared))
		}
		n := len(shared)
		if mut.IsValid() {
			n++
		}
		if n != live {
			return fmt.Errorf("%s tracks %d borrows, %d are live", place, n, live)
		}
	}
	return nil
}

func onPlace(table *borrow.BorrowTable, info *borrow.BorrowInfo) bool {
	shared, mut := table.ActiveOn(info.Place)
	if info.Kind == borrow.BorrowMut {
		return mut == info.ID
	}
	for _, id := range shared {
		if id == info.ID {
			return true
		}
	}
	return false
}
