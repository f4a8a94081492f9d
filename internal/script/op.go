package script

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"borrowsim/internal/source"
)

// OpKind is the tag of an operation record.
type OpKind string

const (
	OpBind   OpKind = "bind"
	OpMove   OpKind = "move"
	OpBorrow OpKind = "borrow"
	OpRead   OpKind = "read"
	OpWrite  OpKind = "write"
	OpClone  OpKind = "clone"
	OpEnter  OpKind = "enter"
	OpExit   OpKind = "exit"
)

// Known reports whether k is one of the supported tags.
func (k OpKind) Known() bool {
	switch k {
	case OpBind, OpMove, OpBorrow, OpRead, OpWrite, OpClone, OpEnter, OpExit:
		return true
	}
	return false
}

// Op is one operation record. Which fields matter depends on Op:
//
//	bind    name [copy] [immutable]
//	move    target dest [immutable]
//	clone   target dest [immutable]
//	borrow  target kind [name] [immutable]   name labels the borrow
//	read    target | targets                 several targets are used by one op
//	write   target
//	enter / exit
//
// Expect names the violation a didactic script anticipates for this op.
type Op struct {
	Op        OpKind   `toml:"op" yaml:"op" json:"op" msgpack:"op"`
	Name      string   `toml:"name,omitempty" yaml:"name,omitempty" json:"name,omitempty" msgpack:"name,omitempty"`
	Target    string   `toml:"target,omitempty" yaml:"target,omitempty" json:"target,omitempty" msgpack:"target,omitempty"`
	Targets   []string `toml:"targets,omitempty" yaml:"targets,omitempty" json:"targets,omitempty" msgpack:"targets,omitempty"`
	Dest      string   `toml:"dest,omitempty" yaml:"dest,omitempty" json:"dest,omitempty" msgpack:"dest,omitempty"`
	Kind      string   `toml:"kind,omitempty" yaml:"kind,omitempty" json:"kind,omitempty" msgpack:"kind,omitempty"`
	Copy      bool     `toml:"copy,omitempty" yaml:"copy,omitempty" json:"copy,omitempty" msgpack:"copy,omitempty"`
	Immutable bool     `toml:"immutable,omitempty" yaml:"immutable,omitempty" json:"immutable,omitempty" msgpack:"immutable,omitempty"`
	Expect    string   `toml:"expect,omitempty" yaml:"expect,omitempty" json:"expect,omitempty" msgpack:"expect,omitempty"`
	Note      string   `toml:"note,omitempty" yaml:"note,omitempty" json:"note,omitempty" msgpack:"note,omitempty"`

	Span source.Span `toml:"-" yaml:"-" json:"-" msgpack:"-"`
}

// Places returns the names the op uses, in order.
func (o *Op) Places() []string {
	if len(o.Targets) > 0 {
		return o.Targets
	}
	if o.Target != "" {
		return []string{o.Target}
	}
	return nil
}

// Declares returns the name the op introduces, or "".
func (o *Op) Declares() string {
	switch o.Op {
	case OpBind, OpBorrow:
		return o.Name
	case OpMove, OpClone:
		return o.Dest
	}
	return ""
}

// normalize canonicalises tags and identifiers. Identifiers are NFC-normalised
// so that visually identical names resolve to the same binding.
func (o *Op) normalize() {
	o.Op = OpKind(strings.ToLower(strings.TrimSpace(string(o.Op))))
	o.Name = normName(o.Name)
	o.Target = normName(o.Target)
	o.Dest = normName(o.Dest)
	for i := range o.Targets {
		o.Targets[i] = normName(o.Targets[i])
	}
	if kind, ok := CanonicalBorrowKind(o.Kind); ok {
		o.Kind = kind
	} else {
		o.Kind = strings.ToLower(strings.TrimSpace(o.Kind))
	}
	o.Expect = strings.TrimSpace(o.Expect)
}

// Canonical borrow kind spellings.
const (
	KindShared = "shared"
	KindMut    = "mut"
)

// CanonicalBorrowKind maps every accepted spelling of a borrow kind to
// KindShared or KindMut.
func CanonicalBorrowKind(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shared", "immutable", "imm", "&", "ref":
		return KindShared, true
	case "mut", "mutable", "&mut", "ref_mut":
		return KindMut, true
	}
	return "", false
}

func normName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// String renders the op in a compact, Rust-like form ("let s2 = s1", "&mut x").
func (o Op) String() string {
	var b strings.Builder
	switch o.Op {
	case OpBind:
		b.WriteString("let ")
		if !o.Immutable {
			b.WriteString("mut ")
		}
		b.WriteString(o.Name)
		if o.Copy {
			b.WriteString(" (copy)")
		}
	case OpMove, OpClone:
		b.WriteString("let ")
		if !o.Immutable {
			b.WriteString("mut ")
		}
		b.WriteString(o.Dest + " = " + o.Target)
		if o.Op == OpClone {
			b.WriteString(".clone()")
		}
	case OpBorrow:
		if o.Name != "" {
			b.WriteString("let " + o.Name + " = ")
		}
		b.WriteByte('&')
		if kind, _ := CanonicalBorrowKind(o.Kind); kind == KindMut {
			b.WriteString("mut ")
		}
		b.WriteString(o.Target)
	case OpRead:
		b.WriteString("use " + strings.Join(o.Places(), ", "))
	case OpWrite:
		b.WriteString(o.Target + " = ...")
	case OpEnter:
		b.WriteByte('{')
	case OpExit:
		b.WriteByte('}')
	default:
		b.WriteString(string(o.Op))
	}
	if o.Note != "" {
		b.WriteString("  // " + o.Note)
	}
	return b.String()
}
