// Copyright 2025 EngFlow Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package macro holds the macro table: the set of currently-defined
// object-like and function-like macros, keyed by name, with the
// redefinition-compatibility rule the standard requires.
package macro

import (
	"github.com/LogicEu/zcc/internal/cc/lexer"
)

// Kind distinguishes object-like from function-like macros.
type Kind int

const (
	Object Kind = iota
	Function
)

// BodyToken is one token of a macro's replacement list, paired with whether
// at least one whitespace byte preceded it in the definition. Whitespace
// tokens themselves are stripped out of a Body; SpaceBefore is how the
// expansion engine and the stringizing operator recover spacing without
// re-scanning raw source bytes.
type BodyToken struct {
	Tok         lexer.Token
	SpaceBefore bool
}

// Macro is a single #define'd name.
type Macro struct {
	Name     string
	Kind     Kind
	Params   []string // function-like parameter names, in order
	Variadic bool      // true if the parameter list ends in "..." or ", args..."
	VarName  string    // GNU named variadic parameter, or "__VA_ARGS__" if "..."
	Body     []BodyToken

	DefPos lexer.Cursor
}

// sameText reports whether two Macro definitions are identical per the
// standard's redefinition rule: same kind, same parameter list, and
// replacement lists that agree token-for-token with the same inter-token
// whitespace boundaries (spacing need only agree on presence, not on
// exact width).
func sameText(a, b *Macro) bool {
	if a.Kind != b.Kind || a.Variadic != b.Variadic || a.VarName != b.VarName {
		return false
	}
	if len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	if len(a.Body) != len(b.Body) {
		return false
	}
	for i := range a.Body {
		if a.Body[i].SpaceBefore != b.Body[i].SpaceBefore {
			return false
		}
		if a.Body[i].Tok.Kind != b.Body[i].Tok.Kind || a.Body[i].Tok.Text() != b.Body[i].Tok.Text() {
			return false
		}
	}
	return true
}

// Table is the set of macros currently visible to the expansion engine. It
// is not safe for concurrent use by multiple goroutines; each translation
// unit's Session owns its own Table.
type Table struct {
	byName map[string]*Macro
}

// NewTable returns an empty macro table.
func NewTable() *Table {
	return &Table{byName: make(map[string]*Macro)}
}

// DefineResult reports how a #define request interacted with any existing
// definition of the same name.
type DefineResult int

const (
	// Defined means the name was previously undefined.
	Defined DefineResult = iota
	// Redefined means the name was already defined with an identical
	// replacement list; the standard allows this silently.
	Redefined
	// Conflicted means the name was already defined with a different
	// replacement list; the caller should warn or error per its policy.
	Conflicted
)

// Define installs m, reporting how it relates to any prior definition of
// the same name. The caller decides what a Conflicted result means for
// diagnostics; this layer never calls into diag itself.
func (t *Table) Define(m *Macro) DefineResult {
	if existing, ok := t.byName[m.Name]; ok {
		if sameText(existing, m) {
			t.byName[m.Name] = m
			return Redefined
		}
		t.byName[m.Name] = m
		return Conflicted
	}
	t.byName[m.Name] = m
	return Defined
}

// Undef removes a macro definition, reporting whether one existed.
func (t *Table) Undef(name string) bool {
	if _, ok := t.byName[name]; ok {
		delete(t.byName, name)
		return true
	}
	return false
}

// Lookup returns the macro named name, if any is currently defined.
func (t *Table) Lookup(name string) (*Macro, bool) {
	m, ok := t.byName[name]
	return m, ok
}

// IsDefined reports whether name currently has a definition, the question
// the defined() operator and #ifdef/#ifndef ask.
func (t *Table) IsDefined(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Names returns every currently-defined macro name, for diagnostics and
// for seeding a child table (e.g. predefined platform macros).
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.byName))
	for n := range t.byName {
		out = append(out, n)
	}
	return out
}

// Clone returns a Table with the same definitions, so a platform's
// predefined macro set can be seeded once and reused across Sessions
// without one translation unit's #undef affecting another's.
func (t *Table) Clone() *Table {
	c := NewTable()
	for name, m := range t.byName {
		cp := *m
		c.byName[name] = &cp
	}
	return c
}

// NewBody converts a slice of significant (non-whitespace) lexer.Tokens and
// a parallel spacing slice into a Body. The two slices must be the same
// length.
func NewBody(toks []lexer.Token, spaceBefore []bool) []BodyToken {
	out := make([]BodyToken, len(toks))
	for i, tk := range toks {
		sb := false
		if i < len(spaceBefore) {
			sb = spaceBefore[i]
		}
		out[i] = BodyToken{Tok: tk, SpaceBefore: sb}
	}
	return out
}
