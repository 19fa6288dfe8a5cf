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

// Package zcc is the driver-facing surface of the preprocessor core: a
// Session ties together the lexer, textual pre-pass, macro table, include
// resolver, directive handler and expansion engine into the single
// operation a host needs: preprocess(source) -> (tokens, diagnostics).
package zcc

import (
	"fmt"
	"io/fs"
	"log"
	"path"

	"github.com/LogicEu/zcc/internal/cc/diag"
	"github.com/LogicEu/zcc/internal/cc/directive"
	"github.com/LogicEu/zcc/internal/cc/expand"
	"github.com/LogicEu/zcc/internal/cc/eval"
	"github.com/LogicEu/zcc/internal/cc/include"
	"github.com/LogicEu/zcc/internal/cc/lexer"
	"github.com/LogicEu/zcc/internal/cc/macro"
	"github.com/LogicEu/zcc/internal/cc/textpp"
)

// Token is one token of a preprocessed output stream, in the external
// (kind, source_name, line, col, text) shape of the core's driver-facing
// interface; unlike lexer.Token it owns its text and carries no reference
// back to a source buffer, so it survives past the Session that produced it.
type Token struct {
	Kind       lexer.Kind
	SourceName string
	Line, Col  int
	Text       string
}

// TokenStream is the ordered output of a single Preprocess call.
type TokenStream []Token

// Diagnostics is the ordered set of diagnostics a Preprocess call produced.
type Diagnostics []diag.Diagnostic

// Session owns everything exclusive to preprocessing a single translation
// unit: its macro table, include search state and diagnostics. Per the
// core's concurrency model, a Session shares no mutable state with any
// other Session; build one per translation unit, or use a SessionPool to
// run several concurrently.
type Session struct {
	Macros   *macro.Table
	Resolver include.Resolver

	// Logger, if non-nil, receives opt-in operational tracing (include
	// pushes/pops, macro redefinitions) -- never the diagnostics
	// themselves, which always flow through the returned Diagnostics.
	Logger *log.Logger

	diags       *diag.Bag
	includes    *include.Stack
	onceGuarded map[string]struct{}
}

// NewSession builds a Session seeded with initialMacros (typically
// __STDC__, __STDC_VERSION__, -D command-line definitions and any
// platform.NewMacroTable entries the host wants predefined) and a resolver
// for #include lookups. initialMacros with an empty value define an
// object-like macro whose body is the single token "1", the same
// convention platform.Environment uses.
func NewSession(initialMacros map[string]string, resolver include.Resolver) *Session {
	table := macro.NewTable()
	for name, value := range initialMacros {
		body := value
		if body == "" {
			body = "1"
		}
		tok := lexer.NewSynthetic(lexer.Number, body, "<command-line>", lexer.CursorInit)
		if !isNumericLiteral(body) {
			tok = lexer.NewSynthetic(lexer.Identifier, body, "<command-line>", lexer.CursorInit)
		}
		table.Define(&macro.Macro{
			Name: name,
			Kind: macro.Object,
			Body: macro.NewBody([]lexer.Token{tok}, []bool{false}),
		})
	}
	return &Session{
		Macros:      table,
		Resolver:    resolver,
		includes:    include.NewStack(),
		onceGuarded: make(map[string]struct{}),
	}
}

func isNumericLiteral(s string) bool {
	if s == "" {
		return false
	}
	for _, b := range []byte(s) {
		if b < '0' || b > '9' {
			return false
		}
	}
	return true
}

// NewFileSession is a convenience constructor matching the common case: an
// fs.FS rooted at the project and an ordered list of -I style search
// directories (which may contain glob patterns; see
// include.PathResolver).
func NewFileSession(fsys fs.FS, includePath []string, initialMacros map[string]string) *Session {
	return NewSession(initialMacros, include.NewPathResolver(fsys, includePath))
}

// WithPlatform seeds s's macro table with plat's predefined macros in
// addition to whatever NewSession already installed, without disturbing
// either set.
func (s *Session) WithPlatform(plat *macro.Table) {
	for _, name := range plat.Names() {
		m, _ := plat.Lookup(name)
		if _, exists := s.Macros.Lookup(name); !exists {
			cp := *m
			s.Macros.Define(&cp)
		}
	}
}

func (s *Session) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

// Preprocess runs the full pipeline over sourceBytes, named sourceName for
// diagnostics and __FILE__, and returns the emitted token stream together
// with every diagnostic recorded along the way.
func (s *Session) Preprocess(sourceBytes []byte, sourceName string) (TokenStream, Diagnostics) {
	s.diags = &diag.Bag{}
	toks := s.preprocessBuffer(sourceBytes, sourceName)
	return toExternal(toks), s.diags.All()
}

func toExternal(toks []lexer.Token) TokenStream {
	out := make(TokenStream, 0, len(toks))
	for _, t := range toks {
		out = append(out, Token{
			Kind:       t.Kind,
			SourceName: t.Source(),
			Line:       t.Cursor.Line,
			Col:        t.Cursor.Column,
			Text:       t.Text(),
		})
	}
	return out
}

// lineState tracks the effect of #line directives within one buffer: the
// delta added to physical line numbers, and the overridden source name, for
// __LINE__/__FILE__ expansion only -- diagnostics and the emitted token
// stream keep real physical positions and the real source name.
type lineState struct {
	delta int
	file  string
}

func (ls *lineState) effLine(physical int) int { return physical + ls.delta }
func (ls *lineState) effFile() string          { return ls.file }

// preprocessBuffer runs the driver loop of spec.md §4.9 over one buffer
// (the top-level translation unit, or an included file), returning the
// tokens it emits. Diagnostics are reported through s.diags, which the
// caller (Preprocess, or a recursive #include) already owns.
func (s *Session) preprocessBuffer(data []byte, sourceName string) []lexer.Token {
	processed := textpp.Prepass(data, sourceName, s.diags)
	buf := lexer.NewBuffer(sourceName, processed)
	l := lexer.New(buf, s.diags)
	cond := &conditionalStack{}
	ls := &lineState{file: sourceName}

	var out []lexer.Token
	for !l.AtEOF() {
		if l.PeekIsDirectiveStart() {
			// Inside a skipped group a directive line is parsed only to keep
			// #if nesting in step; its parse diagnostics are discarded.
			parseDiags := s.diags
			if skipping(cond.frames) {
				parseDiags = &diag.Bag{}
			}
			d := directive.Parse(l, parseDiags)
			s.dispatch(d, cond, sourceName, ls, l, &out)
			continue
		}
		if skipping(cond.frames) {
			readLine(l)
			continue
		}
		line, ok := readLine(l)
		if !ok {
			break
		}
		line = substituteMagic(line, sourceName, ls)
		var expanded []lexer.Token
		if needsExpansion(line, s.Macros) {
			more := func() ([]lexer.Token, bool) { return readLine(l) }
			ex := expand.New(s.Macros, s.diags, sourceName)
			expanded = ex.Expand(line, more)
		} else {
			expanded = line
		}
		out = append(out, expanded...)
		out = append(out, lexer.NewSynthetic(lexer.Newline, "\n", sourceName, l.Pos()))
	}

	if !cond.empty() {
		s.diags.Add(diag.Error, diag.Position{Source: sourceName, Line: l.Pos().Line, Column: l.Pos().Column},
			"unterminated conditional directive")
	}
	return out
}

// readLine collects one logical line's raw tokens (Whitespace included, for
// exact token reconstruction on lines that never need macro expansion),
// stopping at and consuming the line's Newline. It returns ok=false only
// when called at EOF with nothing left to read.
func readLine(l *lexer.Lexer) ([]lexer.Token, bool) {
	if l.AtEOF() {
		return nil, false
	}
	var toks []lexer.Token
	for {
		t := l.Next()
		if t.Kind == lexer.Newline || t.Kind == lexer.EOF {
			return toks, true
		}
		toks = append(toks, t)
	}
}

// needsExpansion reports whether line contains any identifier currently
// bound in macros. Lines that don't need it are passed through completely
// unmodified (including original Whitespace tokens), satisfying spec.md
// §8's token-reconstruction property; expand.Expand's whitespace
// normalization only ever applies to a line that actually invokes a macro.
func needsExpansion(line []lexer.Token, macros *macro.Table) bool {
	for _, t := range line {
		if t.Kind == lexer.Identifier && macros.IsDefined(t.Text()) {
			return true
		}
	}
	return false
}

// substituteMagic replaces __FILE__/__LINE__ identifiers with the current
// location, a rewrite that happens unconditionally and before macro table
// lookup because these names are magic rather than stored macros (spec.md
// §6).
func substituteMagic(line []lexer.Token, sourceName string, ls *lineState) []lexer.Token {
	var out []lexer.Token
	for _, t := range line {
		switch {
		case t.Kind == lexer.Identifier && t.Text() == "__LINE__":
			n := ls.effLine(t.Cursor.Line)
			out = append(out, lexer.NewSynthetic(lexer.Number, fmt.Sprintf("%d", n), sourceName, t.Cursor))
		case t.Kind == lexer.Identifier && t.Text() == "__FILE__":
			out = append(out, lexer.NewSynthetic(lexer.String, fmt.Sprintf("%q", ls.effFile()), sourceName, t.Cursor))
		default:
			out = append(out, t)
		}
	}
	return out
}

func posOfCursor(sourceName string, c lexer.Cursor) diag.Position {
	return diag.Position{Source: sourceName, Line: c.Line, Column: c.Column}
}

// dispatch interprets a single already-parsed Directive, matching spec.md
// §4.7's skipping discipline: conditional directives (if/elif/else/endif)
// are always interpreted, to keep nesting in sync, while every other
// directive is dropped unread whenever the ConditionalStack says the
// current line is skipped.
func (s *Session) dispatch(d directive.Directive, cond *conditionalStack, sourceName string, ls *lineState, l *lexer.Lexer, out *[]lexer.Token) {
	switch d.Kind {
	case directive.If:
		if skipping(cond.frames) {
			cond.push(frame{state: stateSkipping})
			return
		}
		st := stateSkipping
		if s.evalCondition(d.Raw, sourceName) {
			st = stateTaking
		}
		cond.push(frame{state: st})

	case directive.Elif:
		if cond.empty() {
			s.diags.Add(diag.Error, posOfCursor(sourceName, d.Pos), "#elif without #if")
			return
		}
		top := cond.top()
		if top.elseSeen {
			s.diags.Add(diag.Error, posOfCursor(sourceName, d.Pos), "#elif after #else")
			return
		}
		if cond.outerSkipping() {
			top.state = stateSkipping
			return
		}
		switch top.state {
		case stateTaking:
			top.state = stateDone
		case stateSkipping:
			if s.evalCondition(d.Raw, sourceName) {
				top.state = stateTaking
			}
		}

	case directive.Else:
		if cond.empty() {
			s.diags.Add(diag.Error, posOfCursor(sourceName, d.Pos), "#else without #if")
			return
		}
		top := cond.top()
		if top.elseSeen {
			s.diags.Add(diag.Error, posOfCursor(sourceName, d.Pos), "#else after #else")
			return
		}
		top.elseSeen = true
		if cond.outerSkipping() {
			top.state = stateSkipping
			return
		}
		switch top.state {
		case stateTaking:
			top.state = stateDone
		case stateSkipping:
			top.state = stateTaking
		}

	case directive.Endif:
		if !cond.pop() {
			s.diags.Add(diag.Error, posOfCursor(sourceName, d.Pos), "#endif without #if")
		}

	default:
		if skipping(cond.frames) {
			return
		}
		s.dispatchActive(d, sourceName, ls, out)
	}
}

// dispatchActive handles every non-conditional directive kind, only ever
// called on a line the ConditionalStack says is active.
func (s *Session) dispatchActive(d directive.Directive, sourceName string, ls *lineState, out *[]lexer.Token) {
	switch d.Kind {
	case directive.Null, directive.Unknown:
		// Null is a no-op; Unknown was already diagnosed by directive.Parse.

	case directive.Include:
		s.handleInclude(d, sourceName, out)

	case directive.Define:
		switch s.Macros.Define(d.Macro) {
		case macro.Conflicted:
			s.diags.Add(diag.Error, posOfCursor(sourceName, d.Pos), "%q redefined incompatibly", d.Name)
		case macro.Redefined:
			s.logf("%s: %q redefined identically", sourceName, d.Name)
		case macro.Defined:
			s.logf("%s: defined %q", sourceName, d.Name)
		}

	case directive.Undef:
		s.Macros.Undef(d.Name)

	case directive.Warning:
		s.diags.Add(diag.Warning, posOfCursor(sourceName, d.Pos), "%s", joinRaw(d.Raw))

	case directive.Error:
		s.diags.Add(diag.Error, posOfCursor(sourceName, d.Pos), "%s", joinRaw(d.Raw))

	case directive.Line:
		s.handleLine(d, sourceName, ls)

	case directive.Pragma:
		// Unrecognized pragmas are acknowledged and ignored, per spec.md
		// §4.7 and §1's "pragmas beyond recognition and pass-through" scope.

	case directive.PragmaOnce:
		if top := s.includes.Top(); top != "" {
			s.onceGuarded[top] = struct{}{}
		} else {
			s.onceGuarded[sourceName] = struct{}{}
		}
	}
}

func joinRaw(toks []lexer.Token) string {
	s := ""
	for i, t := range toks {
		if i > 0 {
			s += " "
		}
		s += t.Text()
	}
	return s
}

// handleLine implements the "#line N" and "#line N \"file\"" SUPPLEMENTED
// FEATURE: subsequent __LINE__/__FILE__ expansions in this buffer report N
// (and, optionally, the new file name) instead of the physical position,
// until the next #line or end of buffer. Diagnostics are not affected; they
// keep the physical line and the real source name.
func (s *Session) handleLine(d directive.Directive, sourceName string, ls *lineState) {
	if len(d.Raw) == 0 || d.Raw[0].Kind != lexer.Number {
		s.diags.Add(diag.Error, posOfCursor(sourceName, d.Pos), "#line requires a line number")
		return
	}
	n, err := parseDecimal(d.Raw[0].Text())
	if err != nil {
		s.diags.Add(diag.Error, posOfCursor(sourceName, d.Pos), "invalid #line number %q", d.Raw[0].Text())
		return
	}
	if len(d.Raw) >= 2 && d.Raw[1].Kind == lexer.String {
		text := d.Raw[1].Text()
		if len(text) >= 2 {
			ls.file = text[1 : len(text)-1]
		}
	}
	// The line following "#line N" is reported as N.
	ls.delta = n - (d.Pos.Line + 1)
}

func parseDecimal(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	for _, b := range []byte(s) {
		if b < '0' || b > '9' {
			return 0, fmt.Errorf("not a decimal integer: %q", s)
		}
		n = n*10 + int(b-'0')
	}
	return n, nil
}

// handleInclude resolves and recursively preprocesses an #include target,
// splicing its output directly into out, per spec.md §4.7.
func (s *Session) handleInclude(d directive.Directive, sourceName string, out *[]lexer.Token) {
	if s.Resolver == nil {
		s.diags.Add(diag.Fatal, posOfCursor(sourceName, d.Pos), "no include resolver configured for #include %q", d.Include.Name)
		return
	}
	fromDir := path.Dir(sourceName)
	resolved, data, err := s.Resolver.Resolve(d.Include, fromDir)
	if err != nil {
		s.diags.Add(diag.Error, posOfCursor(sourceName, d.Pos), "%v", err)
		return
	}
	if _, guarded := s.onceGuarded[resolved]; guarded {
		s.logf("skipping already-#pragma-once %q", resolved)
		return
	}
	if err := s.includes.Push(resolved); err != nil {
		s.diags.Add(diag.Fatal, posOfCursor(sourceName, d.Pos), "%v", err)
		return
	}
	defer s.includes.Pop()
	s.logf("entering %q", resolved)
	included := s.preprocessBuffer(data, resolved)
	s.logf("leaving %q", resolved)
	*out = append(*out, included...)
}

// evalCondition implements spec.md §4.6's prelude for a #if/#elif
// controlling expression: eager, non-expanded defined()/defined
// substitution, then macro expansion of the remainder, then evaluation.
func (s *Session) evalCondition(raw []lexer.Token, sourceName string) bool {
	if raw == nil {
		s.diags.Add(diag.Error, diag.Position{Source: sourceName}, "#if with no expression")
		return false
	}
	substituted := replaceDefined(raw, s.Macros)
	ex := expand.New(s.Macros, s.diags, sourceName)
	expanded := ex.Expand(substituted, nil)
	v, ok := eval.New(expanded, sourceName, s.diags, s.Macros.IsDefined).Eval()
	return ok && v != 0
}

// replaceDefined eagerly resolves every "defined(NAME)" or "defined NAME"
// occurrence to a literal 1 or 0 token, before general macro expansion runs,
// so a macro-expansion pass can never be handed defined()'s operand.
func replaceDefined(toks []lexer.Token, macros *macro.Table) []lexer.Token {
	var out []lexer.Token
	i := 0
	for i < len(toks) {
		t := toks[i]
		if t.Kind == lexer.Identifier && t.Text() == "defined" {
			j := i + 1
			paren := j < len(toks) && toks[j].Kind == lexer.Punctuator && toks[j].Text() == "("
			if paren {
				j++
			}
			if j < len(toks) && toks[j].Kind == lexer.Identifier {
				name := toks[j].Text()
				j++
				if paren {
					if j < len(toks) && toks[j].Kind == lexer.Punctuator && toks[j].Text() == ")" {
						j++
					}
				}
				val := "0"
				if macros.IsDefined(name) {
					val = "1"
				}
				out = append(out, lexer.NewSynthetic(lexer.Number, val, t.Source(), t.Cursor))
				i = j
				continue
			}
		}
		out = append(out, t)
		i++
	}
	return out
}
