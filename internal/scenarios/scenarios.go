// Package scenarios holds the built-in scripts: one per example of the
// ownership chapter, with the lines that fail to compile kept as ops that
// expect their violation.
package scenarios

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"borrowsim/internal/script"
)

// ErrUnknown is returned for names that match no built-in scenario.
var ErrUnknown = errors.New("unknown scenario")

//go:embed data/*.toml
var data embed.FS

// order is the presentation order; it follows the chapter, not the alphabet.
var order = []string{
	"basic_string_moves",
	"ownership_and_functions",
	"return_values_and_scope",
	"returning_ownership_of_parameters",
	"string_length_with_borrow",
	"immutable_local",
	"mutable_local",
	"multiple_immutable_borrows_of_mutable_variable_is_ok",
	"multiple_immutable_borrows_of_immutable_variable_is_ok",
	"cannot_borrow_immutable_local_variable_as_mutable_1",
	"mutable_borrow_of_mutable_variable",
	"mutable_borrow_of_mutable_variable_used_late",
	"can_only_borrow_one_mutable_reference_to_a_mutable_variable",
	"can_only_borrow_one_mutable_reference_used_later",
	"cannot_modify_an_immutable_borrowed_value",
	"mixed_mutability_borrow_ok",
	"cannot_borrow_mutable_if_already_borrowed_as_immutable_1",
	"cannot_borrow_mutable_if_already_borrowed_as_immutable_1_used",
	"cannot_borrow_mutable_if_already_borrowed_as_immutable_2",
	"can_modify_a_borrowed_mutable_value",
	"cannot_move_borrowed_mutable_reference",
	"cannot_move_borrowed_mutable_reference_used_later",
	"cannot_borrow_immutable_local_variable_as_mutable_2",
	"borrowing_combos",
	"more_borrowing_combos",
	"multiple_scopes",
	"variables_shadowing",
}

// Info summarises a scenario for listings.
type Info struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Ops         int    `json:"ops"`
	// Expected counts ops that anticipate a violation.
	Expected int `json:"expected"`
}

var (
	loadOnce sync.Once
	byName   map[string]*script.Script
	loadErr  error
)

func load() {
	byName = make(map[string]*script.Script, len(order))
	for _, name := range order {
		raw, err := data.ReadFile(path.Join("data", name+".toml"))
		if err != nil {
			loadErr = fmt.Errorf("scenario %s: %w", name, err)
			return
		}
		s, err := script.Decode(script.FormatTOML, name, raw)
		if err != nil {
			loadErr = fmt.Errorf("scenario %s: %w", name, err)
			return
		}
		byName[name] = s
	}
}

// Names returns scenario names in presentation order.
func Names() []string {
	return append([]string(nil), order...)
}

// Get returns a private copy of the named scenario.
func Get(name string) (*script.Script, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return nil, loadErr
	}
	s, ok := byName[name]
	if !ok {
		if alt := suggest(name); alt != "" {
			return nil, fmt.Errorf("%w %q (did you mean %q?)", ErrUnknown, name, alt)
		}
		return nil, fmt.Errorf("%w %q", ErrUnknown, name)
	}
	return s.Clone(), nil
}

// All returns copies of every scenario in presentation order.
func All() ([]*script.Script, error) {
	out := make([]*script.Script, 0, len(order))
	for _, name := range order {
		s, err := Get(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// List describes every scenario in presentation order.
func List() ([]Info, error) {
	all, err := All()
	if err != nil {
		return nil, err
	}
	infos := make([]Info, 0, len(all))
	for _, s := range all {
		info := Info{Name: s.Name, Title: s.Title, Description: s.Description, Ops: len(s.Ops)}
		for i := range s.Ops {
			if s.Ops[i].Expect != "" {
				info.Expected++
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Match returns the scenario names containing substr, sorted.
func Match(substr string) []string {
	var out []string
	for _, name := range order {
		if strings.Contains(name, substr) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// suggest returns the single scenario name containing name, if any.
func suggest(name string) string {
	if name == "" {
		return ""
	}
	if m := Match(name); len(m) == 1 {
		return m[0]
	}
	return ""
}
