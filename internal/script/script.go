package script

import (
	"crypto/sha256"
	"fmt"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"

	"borrowsim/internal/source"
)

// Script is an ordered sequence of operations replayed by the simulator.
type Script struct {
	Name        string `toml:"name" yaml:"name" json:"name" msgpack:"name"`
	Title       string `toml:"title,omitempty" yaml:"title,omitempty" json:"title,omitempty" msgpack:"title,omitempty"`
	Description string `toml:"description,omitempty" yaml:"description,omitempty" json:"description,omitempty" msgpack:"description,omitempty"`
	Ops         []Op   `toml:"op" yaml:"ops" json:"ops" msgpack:"ops"`

	File source.FileID `toml:"-" yaml:"-" json:"-" msgpack:"-"`
}

// Digest is a sha256 of the canonical msgpack form of a script.
type Digest [32]byte

// Normalize canonicalises every op and assigns op spans.
func (s *Script) Normalize() {
	for i := range s.Ops {
		s.Ops[i].normalize()
	}
	s.assignSpans()
}

func (s *Script) assignSpans() {
	for i := range s.Ops {
		idx, err := safecast.Conv[uint32](i)
		if err != nil {
			panic(fmt.Errorf("script too long: %w", err))
		}
		s.Ops[i].Span.File = s.File
		s.Ops[i].Span.Op = idx
	}
}

// SpanOf returns the span of op i; out-of-range positions map to the script itself.
func (s *Script) SpanOf(i int) source.Span {
	if i >= 0 && i < len(s.Ops) {
		return s.Ops[i].Span
	}
	return source.Span{File: s.File}
}

// Digest hashes the script content. Spans and file identity are excluded, so
// the same script loaded from TOML or YAML yields the same digest.
func (s *Script) Digest() (Digest, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return Digest{}, fmt.Errorf("encode script %q: %w", s.Name, err)
	}
	return sha256.Sum256(data), nil
}

// Clone returns a deep copy of the script.
func (s *Script) Clone() *Script {
	out := *s
	out.Ops = make([]Op, len(s.Ops))
	for i, op := range s.Ops {
		if op.Targets != nil {
			op.Targets = append([]string(nil), op.Targets...)
		}
		out.Ops[i] = op
	}
	return &out
}
