// Package permission implements the scope vocabulary attached to API keys
// and the authorization check evaluated on every keyed request.
//
// Scopes are persisted as strings ("read", "write:all", "resume:read") but
// parsed into a closed tagged form at the boundary. Unknown strings are
// rejected rather than silently accepted.
package permission

import (
	"errors"
	"fmt"
	"strings"
)

// Verb is an action a key may perform on a resource.
type Verb string

const (
	Read   Verb = "read"
	Write  Verb = "write"
	Delete Verb = "delete"
)

// CategoryResume is the only resource category in the vocabulary. Bare
// verbs ("read") and categorized verbs ("resume:read") are equivalent at
// check time; the categorized form exists for UI grouping.
const CategoryResume = "resume"

// ErrEmptySet is returned when a permission set resolves to nothing.
// A key must always grant at least one scope.
var ErrEmptySet = errors.New("permission set must not be empty")

// Scope is one parsed permission entry.
type Scope struct {
	Verb     Verb
	Category string // empty for bare and global scopes
	Global   bool   // "<verb>:all", subsumes every check for the verb
}

// String renders the scope in its persisted form.
func (s Scope) String() string {
	if s.Global {
		return string(s.Verb) + ":all"
	}
	if s.Category != "" {
		return s.Category + ":" + string(s.Verb)
	}
	return string(s.Verb)
}

func validVerb(v Verb) bool {
	switch v {
	case Read, Write, Delete:
		return true
	}
	return false
}

// Parse converts a persisted scope string into its tagged form. Only the
// closed vocabulary is accepted: bare verbs, "<verb>:all" for read and
// write, and "resume:<verb>".
func Parse(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Scope{}, errors.New("empty scope")
	}

	left, right, found := strings.Cut(raw, ":")
	if !found {
		v := Verb(left)
		if !validVerb(v) {
			return Scope{}, fmt.Errorf("unknown scope %q", raw)
		}
		return Scope{Verb: v}, nil
	}

	if right == "all" {
		v := Verb(left)
		// Only read and write have global forms.
		if v != Read && v != Write {
			return Scope{}, fmt.Errorf("unknown scope %q", raw)
		}
		return Scope{Verb: v, Global: true}, nil
	}

	if left != CategoryResume {
		return Scope{}, fmt.Errorf("unknown scope category %q", left)
	}
	v := Verb(right)
	if !validVerb(v) {
		return Scope{}, fmt.Errorf("unknown scope %q", raw)
	}
	return Scope{Verb: v, Category: left}, nil
}

// Set is an ordered, deduplicated collection of scopes.
type Set []Scope

// ParseSet parses and validates a list of scope strings. Duplicates are
// collapsed, order is preserved, and an empty result is an error.
func ParseSet(raw []string) (Set, error) {
	set := make(Set, 0, len(raw))
	for _, r := range raw {
		s, err := Parse(r)
		if err != nil {
			return nil, err
		}
		if !set.Contains(s) {
			set = append(set, s)
		}
	}
	if len(set) == 0 {
		return nil, ErrEmptySet
	}
	return set, nil
}

// Normalize applies global/narrow exclusivity to the set in order, as if
// each scope had been toggled on one at a time: a scope supersedes every
// earlier scope of the same verb when either side is global. The result is
// what Toggle would have built, so a set read back from storage never
// carries "<verb>:all" next to a narrower scope of that verb.
func (set Set) Normalize() Set {
	out := make(Set, 0, len(set))
	for _, s := range set {
		if out.Contains(s) {
			continue
		}
		next := make(Set, 0, len(out)+1)
		for _, e := range out {
			if e.Verb == s.Verb && (s.Global || e.Global) {
				continue
			}
			next = append(next, e)
		}
		out = append(next, s)
	}
	return out
}

// Contains reports whether the set holds the exact scope.
func (set Set) Contains(s Scope) bool {
	for _, e := range set {
		if e == s {
			return true
		}
	}
	return false
}

// Strings renders the set back to its persisted form.
func (set Set) Strings() []string {
	out := make([]string, len(set))
	for i, s := range set {
		out[i] = s.String()
	}
	return out
}

// Check decides whether a key authorizes (category, verb).
//
//  1. Admin keys satisfy every check.
//  2. "<verb>:all" subsumes every check for the verb.
//  3. "<category>:<verb>" and the bare verb both authorize the pair.
//  4. Anything else is denied.
func Check(isAdmin bool, set Set, category string, verb Verb) bool {
	if isAdmin {
		return true
	}
	for _, s := range set {
		if s.Verb != verb {
			continue
		}
		if s.Global {
			return true
		}
		if s.Category == category || s.Category == "" {
			return true
		}
	}
	return false
}

// Toggle flips a scope in the set and enforces global/narrow exclusivity
// for the scope's verb: enabling "<verb>:all" drops every narrower scope
// of that verb, and enabling a narrow scope drops "<verb>:all". The last
// toggle wins. Toggling an enabled scope off removes it; the caller must
// reject an empty result before persisting.
func Toggle(set Set, s Scope) Set {
	if set.Contains(s) {
		out := make(Set, 0, len(set))
		for _, e := range set {
			if e != s {
				out = append(out, e)
			}
		}
		return out
	}

	out := make(Set, 0, len(set)+1)
	for _, e := range set {
		if e.Verb == s.Verb && (s.Global || e.Global) {
			continue
		}
		out = append(out, e)
	}
	return append(out, s)
}
