package borrow

import "borrowsim/internal/script"

// LivenessPlan records, for each borrow-creating op, the last op that uses
// the borrow handle.
type LivenessPlan struct {
	lastUse map[Pos]Pos
}

// LastUse returns the planned end of the borrow created at pos. Unlabelled
// borrows have no plan and are held until their scope exits.
func (p LivenessPlan) LastUse(pos Pos) (Pos, bool) {
	until, ok := p.lastUse[pos]
	return until, ok
}

// Len returns the number of planned borrows.
func (p LivenessPlan) Len() int { return len(p.lastUse) }

// PlanLiveness resolves names statically, following the same shadowing rules
// as Simulator.Lookup, and records the last read, write or re-borrow of every
// labelled borrow. A labelled borrow that is never used ends at the op that
// created it.
func PlanLiveness(s *script.Script) LivenessPlan {
	plan := LivenessPlan{lastUse: make(map[Pos]Pos)}
	frames := []map[string]Pos{{}}

	resolve := func(name string) (Pos, bool) {
		for i := len(frames) - 1; i >= 0; i-- {
			if decl, ok := frames[i][name]; ok {
				return decl, true
			}
		}
		return NoPos, false
	}

	for i := range s.Ops {
		op := &s.Ops[i]
		pos := Pos(i)
		switch op.Op {
		case script.OpEnter:
			frames = append(frames, map[string]Pos{})
			continue
		case script.OpExit:
			if len(frames) > 1 {
				frames = frames[:len(frames)-1]
			}
			continue
		}
		for _, name := range op.Places() {
			decl, ok := resolve(name)
			if !ok {
				continue
			}
			if _, planned := plan.lastUse[decl]; planned && pos > plan.lastUse[decl] {
				plan.lastUse[decl] = pos
			}
		}
		if name := op.Declares(); name != "" {
			frames[len(frames)-1][name] = pos
			if op.Op == script.OpBorrow {
				plan.lastUse[pos] = pos
			}
		}
	}
	return plan
}
