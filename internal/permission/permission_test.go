package permission

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		want    Scope
		wantErr bool
	}{
		{"read", Scope{Verb: Read}, false},
		{"write", Scope{Verb: Write}, false},
		{"delete", Scope{Verb: Delete}, false},
		{"read:all", Scope{Verb: Read, Global: true}, false},
		{"write:all", Scope{Verb: Write, Global: true}, false},
		{"resume:read", Scope{Verb: Read, Category: "resume"}, false},
		{"resume:write", Scope{Verb: Write, Category: "resume"}, false},
		{"resume:delete", Scope{Verb: Delete, Category: "resume"}, false},
		{"delete:all", Scope{}, true},
		{"admin", Scope{}, true},
		{"resume:*", Scope{}, true},
		{"user:read", Scope{}, true},
		{"", Scope{}, true},
		{"read:", Scope{}, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Parse(%q): expected error, got %+v", tt.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestScopeStringRoundTrip(t *testing.T) {
	for _, raw := range []string{"read", "write:all", "resume:delete"} {
		s, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", raw, err)
		}
		if s.String() != raw {
			t.Errorf("String() = %q, want %q", s.String(), raw)
		}
	}
}

func TestParseSetRejectsEmpty(t *testing.T) {
	if _, err := ParseSet(nil); err != ErrEmptySet {
		t.Errorf("expected ErrEmptySet, got %v", err)
	}
	if _, err := ParseSet([]string{}); err != ErrEmptySet {
		t.Errorf("expected ErrEmptySet, got %v", err)
	}
}

func TestParseSetDedupes(t *testing.T) {
	set, err := ParseSet([]string{"read", "read", "resume:write"})
	if err != nil {
		t.Fatalf("ParseSet: %v", err)
	}
	if len(set) != 2 {
		t.Errorf("got %d scopes, want 2", len(set))
	}
}

func TestCheck(t *testing.T) {
	readAll := Set{{Verb: Read, Global: true}}
	narrow := Set{{Verb: Read, Category: "resume"}}
	bare := Set{{Verb: Read}}

	tests := []struct {
		name     string
		isAdmin  bool
		set      Set
		category string
		verb     Verb
		want     bool
	}{
		{"admin passes everything", true, nil, "resume", Delete, true},
		{"global subsumes categorized", false, readAll, "resume", Read, true},
		{"global wrong verb denied", false, readAll, "resume", Write, false},
		{"narrow matches category", false, narrow, "resume", Read, true},
		{"narrow wrong verb denied", false, narrow, "resume", Write, false},
		{"bare verb covers category", false, bare, "resume", Read, true},
		{"empty set denies", false, nil, "resume", Read, false},
	}

	for _, tt := range tests {
		if got := Check(tt.isAdmin, tt.set, tt.category, tt.verb); got != tt.want {
			t.Errorf("%s: Check = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestToggleGlobalDropsNarrow(t *testing.T) {
	set := Set{{Verb: Write, Category: "resume"}, {Verb: Read}}

	set = Toggle(set, Scope{Verb: Write, Global: true})

	if set.Contains(Scope{Verb: Write, Category: "resume"}) {
		t.Error("write:all should have removed resume:write")
	}
	if !set.Contains(Scope{Verb: Write, Global: true}) {
		t.Error("write:all missing after toggle")
	}
	if !set.Contains(Scope{Verb: Read}) {
		t.Error("unrelated read scope should survive")
	}
}

func TestToggleNarrowDropsGlobal(t *testing.T) {
	set := Set{{Verb: Write, Global: true}}

	set = Toggle(set, Scope{Verb: Write, Category: "resume"})

	if set.Contains(Scope{Verb: Write, Global: true}) {
		t.Error("narrow toggle should have removed write:all")
	}
	if !set.Contains(Scope{Verb: Write, Category: "resume"}) {
		t.Error("resume:write missing after toggle")
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want []string
	}{
		{"narrow after global wins", []string{"write:all", "resume:write"}, []string{"resume:write"}},
		{"global after narrow wins", []string{"resume:write", "write:all"}, []string{"write:all"}},
		{"bare verb conflicts too", []string{"write", "write:all"}, []string{"write:all"}},
		{"other verbs untouched", []string{"read:all", "resume:write", "resume:delete"}, []string{"read:all", "resume:write", "resume:delete"}},
		{"already exclusive", []string{"resume:read", "resume:write"}, []string{"resume:read", "resume:write"}},
	}

	for _, tc := range cases {
		set, err := ParseSet(tc.in)
		if err != nil {
			t.Fatalf("%s: ParseSet: %v", tc.name, err)
		}
		got := set.Normalize().Strings()
		if len(got) != len(tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
				break
			}
		}
	}
}

func TestToggleNeverHoldsGlobalAndNarrow(t *testing.T) {
	// Arbitrary toggle sequence; after each step the set must not contain
	// both write:all and another write-verb scope.
	seq := []Scope{
		{Verb: Write},
		{Verb: Write, Global: true},
		{Verb: Write, Category: "resume"},
		{Verb: Write, Global: true},
		{Verb: Write},
		{Verb: Write, Global: true},
	}

	var set Set
	for i, s := range seq {
		set = Toggle(set, s)
		if set.Contains(Scope{Verb: Write, Global: true}) {
			for _, e := range set {
				if e.Verb == Write && !e.Global {
					t.Fatalf("step %d: set holds write:all alongside %v", i, e)
				}
			}
		}
	}
}

func TestToggleOffRemoves(t *testing.T) {
	set := Set{{Verb: Read}}
	set = Toggle(set, Scope{Verb: Read})
	if len(set) != 0 {
		t.Errorf("expected empty set after toggling off, got %v", set)
	}
}

func TestSetStrings(t *testing.T) {
	set, err := ParseSet([]string{"read:all", "resume:write"})
	if err != nil {
		t.Fatalf("ParseSet: %v", err)
	}
	want := []string{"read:all", "resume:write"}
	if !reflect.DeepEqual(set.Strings(), want) {
		t.Errorf("Strings() = %v, want %v", set.Strings(), want)
	}
}
