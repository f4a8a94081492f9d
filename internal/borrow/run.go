package borrow

import (
	"context"
	"fmt"

	"borrowsim/internal/script"
)

// Outcome classifies a replayed op against its expectation.
type Outcome uint8

const (
	// OutcomeOK: no violation and none expected.
	OutcomeOK Outcome = iota
	// OutcomeExpected: the expected violation occurred.
	OutcomeExpected
	// OutcomeViolation: a violation occurred and none was expected.
	OutcomeViolation
	// OutcomeUnmet: a violation was expected but the op succeeded.
	OutcomeUnmet
	// OutcomeMismatch: a different violation than the expected one occurred.
	OutcomeMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeExpected:
		return "expected"
	case OutcomeViolation:
		return "violation"
	case OutcomeUnmet:
		return "unmet"
	case OutcomeMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// Failed reports whether the outcome makes a run fail.
func (o Outcome) Failed() bool {
	return o == OutcomeViolation || o == OutcomeUnmet || o == OutcomeMismatch
}

// StepResult is the verdict for one op.
type StepResult struct {
	Pos Pos
	Op  script.Op
	// Err is the first violation of the op, or nil.
	Err        error
	Violations []*Violation
	Expect     ViolationKind
	Outcome    Outcome
}

// Report is the result of replaying a script.
type Report struct {
	Script     *script.Script
	Steps      []StepResult
	Violations []*Violation
	Events     []BorrowEvent
	Bindings   []Binding
	Borrows    []BorrowInfo
}

// Failed reports whether any step failed against its expectation.
func (r *Report) Failed() bool {
	for i := range r.Steps {
		if r.Steps[i].Outcome.Failed() {
			return true
		}
	}
	return false
}

// Count returns how many steps ended with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for i := range r.Steps {
		if r.Steps[i].Outcome == o {
			n++
		}
	}
	return n
}

// RunOptions tune a replay.
type RunOptions struct {
	// Observer receives every event as it is recorded.
	Observer func(BorrowEvent)
	// Lexical disables liveness planning: every borrow is held until its scope exits.
	Lexical bool
	// Inspect, if set, sees the simulator after each op. It must not mutate it.
	Inspect func(Pos, *Simulator)
}

// ValidationChecks are the script checks that depend on this package's vocabulary.
func ValidationChecks() script.Checks {
	return script.Checks{
		BorrowKind: func(s string) error {
			_, err := ParseBorrowKind(s)
			return err
		},
		Expectation: func(s string) error {
			_, err := ParseViolationKind(s)
			return err
		},
	}
}

// Run replays s op by op on a fresh simulator. Replay never stops at a
// violation; it stops only when ctx is cancelled. Scripts with structural
// problems are rejected with script.Problems before any op runs.
func Run(ctx context.Context, s *script.Script, opts RunOptions) (*Report, error) {
	if ps := script.Validate(s, ValidationChecks()); ps.HasErrors() {
		return nil, ps
	}
	var simOpts []Option
	if opts.Observer != nil {
		simOpts = append(simOpts, WithObserver(opts.Observer))
	}
	r := &runner{sim: NewSimulator(simOpts...)}
	if !opts.Lexical {
		r.plan = PlanLiveness(s)
	}

	rep := &Report{Script: s, Steps: make([]StepResult, 0, len(s.Ops))}
	for i := range s.Ops {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("replay %s: %w", s.Name, err)
		}
		pos := Pos(i)
		before := len(r.sim.violations)
		r.step(pos, &s.Ops[i])
		r.sim.EndOp(pos)
		if opts.Inspect != nil {
			opts.Inspect(pos, r.sim)
		}
		rep.Steps = append(rep.Steps, judge(pos, s.Ops[i], r.sim.violations[before:]))
	}

	rep.Violations = r.sim.Violations()
	rep.Events = r.sim.Events()
	rep.Bindings = r.sim.Bindings()
	rep.Borrows = r.sim.Borrows()
	return rep, nil
}

func judge(pos Pos, op script.Op, vs []*Violation) StepResult {
	res := StepResult{Pos: pos, Op: op}
	if len(vs) > 0 {
		res.Violations = append([]*Violation(nil), vs...)
		res.Err = vs[0]
	}
	if op.Expect != "" {
		res.Expect, _ = ParseViolationKind(op.Expect)
	}
	switch {
	case res.Expect == ViolationNone && len(vs) == 0:
		res.Outcome = OutcomeOK
	case res.Expect == ViolationNone:
		res.Outcome = OutcomeViolation
	case len(vs) == 0:
		res.Outcome = OutcomeUnmet
	default:
		res.Outcome = OutcomeMismatch
		for _, v := range vs {
			if v.Kind == res.Expect {
				res.Outcome = OutcomeExpected
				break
			}
		}
	}
	return res
}

type runner struct {
	sim  *Simulator
	plan LivenessPlan
}

func opFlags(op *script.Op) BindFlags {
	var flags BindFlags
	if op.Copy {
		flags |= BindCopy
	}
	if op.Immutable {
		flags |= BindImmutable
	}
	return flags
}

func (r *runner) step(pos Pos, op *script.Op) {
	sim := r.sim
	flags := opFlags(op)
	switch op.Op {
	case script.OpBind:
		sim.Bind(pos, op.Name, flags)

	case script.OpMove, script.OpClone:
		act := ActMove
		if op.Op == script.OpClone {
			act = ActClone
		}
		place, ok := r.resolve(pos, op.Target, act)
		if !ok {
			sim.Bind(pos, op.Dest, flags)
			return
		}
		if place.Kind != PlaceLocal {
			_ = sim.fail(&Violation{Kind: InvalidOperand, Action: act, Pos: pos, Place: place, Name: op.Target, Origin: NoPos})
			sim.Bind(pos, op.Dest, flags)
			return
		}
		if act == ActClone {
			_, _ = sim.Clone(pos, place.Binding, op.Dest, flags)
		} else {
			_, _ = sim.Move(pos, place.Binding, op.Dest, flags)
		}

	case script.OpBorrow:
		kind, _ := ParseBorrowKind(op.Kind)
		place, ok := r.resolve(pos, op.Target, borrowAction(kind))
		if !ok {
			id := sim.borrows.Poison(BorrowInfo{Kind: kind, Label: op.Name, Depth: sim.depth, Pos: pos, Until: NoPos})
			sim.declareBorrow(id, op.Name)
			return
		}
		id, err := sim.Borrow(pos, place, kind, op.Name, flags)
		if err != nil {
			return
		}
		if until, planned := r.plan.LastUse(pos); planned {
			sim.Plan(id, until)
		}

	case script.OpRead:
		// Every place of the op is checked before any borrow it ends is released.
		for _, name := range op.Places() {
			if place, ok := r.resolve(pos, name, ActRead); ok {
				_ = sim.Read(pos, place)
			}
		}

	case script.OpWrite:
		if place, ok := r.resolve(pos, op.Target, ActWrite); ok {
			_ = sim.Write(pos, place)
		}

	case script.OpEnter:
		sim.EnterScope(pos)

	case script.OpExit:
		_ = sim.ExitScope(pos)
	}
}

func (r *runner) resolve(pos Pos, name string, act Action) (Place, bool) {
	place, ok := r.sim.Lookup(name)
	if !ok {
		_ = r.sim.fail(&Violation{Kind: UnresolvedName, Action: act, Pos: pos, Name: name, Origin: NoPos})
	}
	return place, ok
}
