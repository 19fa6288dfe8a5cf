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

// Package expand implements macro expansion: Dave Prosser's classic
// algorithm for substituting macro invocations while carrying a per-token
// hide set ("blue paint") that stops a macro from expanding inside its own
// replacement, however indirectly it gets there.
package expand

import (
	"strings"

	"github.com/LogicEu/zcc/internal/cc/diag"
	"github.com/LogicEu/zcc/internal/cc/lexer"
	"github.com/LogicEu/zcc/internal/cc/macro"
)

// HideSet is the set of macro names a token may not trigger expansion of,
// because expanding one of them already produced this token.
type HideSet map[string]struct{}

func hsHas(hs HideSet, name string) bool {
	if hs == nil {
		return false
	}
	_, ok := hs[name]
	return ok
}

func hsWith(hs HideSet, name string) HideSet {
	out := make(HideSet, len(hs)+1)
	for k := range hs {
		out[k] = struct{}{}
	}
	out[name] = struct{}{}
	return out
}

func hsUnion(a, b HideSet) HideSet {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make(HideSet, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func hsIntersect(a, b HideSet) HideSet {
	out := make(HideSet)
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

// sigTok is a significant (non-whitespace, non-newline) token carrying
// whether source whitespace preceded it and the hide set it has
// accumulated so far.
type sigTok struct {
	Tok         lexer.Token
	SpaceBefore bool
	Hide        HideSet
}

// DefaultMaxDepth bounds the number of macro expansions performed while
// processing one logical line, guarding against runaway expansion of a
// macro set that is not self-referential but is neverthless absurdly deep
// (e.g. A expands to B, B to C, ..., thousands deep).
const DefaultMaxDepth = 200

// Expander expands macro invocations against a macro.Table.
type Expander struct {
	Table    *macro.Table
	Diags    *diag.Bag
	Source   string
	MaxDepth int
}

// New builds an Expander with DefaultMaxDepth.
func New(table *macro.Table, diags *diag.Bag, source string) *Expander {
	return &Expander{Table: table, Diags: diags, Source: source, MaxDepth: DefaultMaxDepth}
}

func (ex *Expander) errf(at lexer.Cursor, format string, args ...any) {
	if ex.Diags != nil {
		ex.Diags.Add(diag.Error, diag.Position{Source: ex.Source, Line: at.Line, Column: at.Column}, format, args...)
	}
}

func (ex *Expander) fatalf(at lexer.Cursor, format string, args ...any) {
	if ex.Diags != nil {
		ex.Diags.Add(diag.Fatal, diag.Position{Source: ex.Source, Line: at.Line, Column: at.Column}, format, args...)
	}
}

func toSigToks(raw []lexer.Token, leadingSpace bool) []sigTok {
	out := make([]sigTok, 0, len(raw))
	space := leadingSpace
	for _, t := range raw {
		switch t.Kind {
		case lexer.Whitespace, lexer.Newline:
			space = true
		case lexer.EOF:
			// buffers' terminal marker never participates in expansion.
		default:
			out = append(out, sigTok{Tok: t, SpaceBefore: space})
			space = false
		}
	}
	return out
}

func fromSigToks(toks []sigTok, source string) []lexer.Token {
	out := make([]lexer.Token, 0, len(toks)*2)
	for i, t := range toks {
		if i > 0 && t.SpaceBefore {
			out = append(out, lexer.NewSynthetic(lexer.Whitespace, " ", source, t.Tok.Cursor))
		}
		out = append(out, t.Tok)
	}
	return out
}

// Expand performs full macro expansion of tokens, a single logical line's
// worth of significant source tokens (Whitespace and Newline tokens are
// tolerated and treated as spacing). more, if non-nil, is called to fetch
// additional raw tokens when a function-like macro invocation's argument
// list has not yet seen its closing ')' by the end of tokens, implementing
// the rule that a macro call may span multiple physical lines.
func (ex *Expander) Expand(tokens []lexer.Token, more func() ([]lexer.Token, bool)) []lexer.Token {
	pending := toSigToks(tokens, false)
	out := ex.expandList(pending, more)
	return fromSigToks(out, ex.Source)
}

func (ex *Expander) pull(pending *[]sigTok, more func() ([]lexer.Token, bool)) (sigTok, bool) {
	for len(*pending) == 0 {
		if more == nil {
			return sigTok{}, false
		}
		raw, ok := more()
		if !ok {
			return sigTok{}, false
		}
		*pending = append(*pending, toSigToks(raw, true)...)
	}
	t := (*pending)[0]
	*pending = (*pending)[1:]
	return t, true
}

func (ex *Expander) peek(pending *[]sigTok, more func() ([]lexer.Token, bool)) (sigTok, bool) {
	t, ok := ex.pull(pending, more)
	if !ok {
		return sigTok{}, false
	}
	*pending = append([]sigTok{t}, *pending...)
	return t, true
}

// expandList drains pending (optionally replenished by more) into a fully
// expanded output slice. It is also used, with more == nil, to expand a
// finite token list such as a macro argument.
func (ex *Expander) expandList(pending []sigTok, more func() ([]lexer.Token, bool)) []sigTok {
	var out []sigTok
	depth := 0
	for {
		t, ok := ex.pull(&pending, more)
		if !ok {
			return out
		}
		if t.Tok.Kind != lexer.Identifier || hsHas(t.Hide, t.Tok.Text()) {
			out = append(out, t)
			continue
		}
		name := t.Tok.Text()
		m, found := ex.Table.Lookup(name)
		if !found {
			out = append(out, t)
			continue
		}

		var body []sigTok
		switch m.Kind {
		case macro.Object:
			hs := hsWith(t.Hide, name)
			body = ex.substituteBody(m, nil, hs)

		case macro.Function:
			open, ok := ex.peek(&pending, more)
			if !ok || !(open.Tok.Kind == lexer.Punctuator && open.Tok.Text() == "(") {
				out = append(out, t)
				continue
			}
			args, closeHide, ok := ex.collectArgs(m, &pending, more)
			if !ok {
				out = append(out, t)
				continue
			}
			hs := hsWith(hsIntersect(t.Hide, closeHide), name)
			body = ex.substituteBody(m, args, hs)
		}

		if len(body) > 0 {
			body[0].SpaceBefore = t.SpaceBefore
		}
		depth++
		if depth > ex.MaxDepth {
			ex.fatalf(t.Tok.Cursor, "macro expansion exceeded depth limit while expanding %q", name)
			out = append(out, body...)
			out = append(out, pending...)
			return out
		}
		pending = append(body, pending...)
	}
}

func paramIndex(m *macro.Macro, name string) (int, bool) {
	for i, p := range m.Params {
		if p == name {
			return i, true
		}
	}
	if m.Variadic && name == m.VarName {
		return len(m.Params), true
	}
	return 0, false
}

func isPunct(t sigTok, text string) bool {
	return t.Tok.Kind == lexer.Punctuator && t.Tok.Text() == text
}

// substituteBody implements Prosser's subst: it walks a macro's
// replacement list performing stringizing, token pasting and parameter
// substitution, then paints every resulting token with hs.
func (ex *Expander) substituteBody(m *macro.Macro, args [][]sigTok, hs HideSet) []sigTok {
	body := bodyToSig(m.Body)
	var out []sigTok
	i := 0
	for i < len(body) {
		t := body[i]

		if m.Kind == macro.Function && isPunct(t, "#") && i+1 < len(body) {
			if pidx, ok := paramIndex(m, body[i+1].Tok.Text()); ok && body[i+1].Tok.Kind == lexer.Identifier {
				s := ex.stringize(args[pidx], t.Tok.Cursor)
				s.SpaceBefore = t.SpaceBefore
				out = append(out, s)
				i += 2
				continue
			}
		}

		if isPunct(t, "##") && i+1 < len(body) {
			rhsBody := body[i+1]
			var rhsRaw []sigTok
			rhsIsVariadic := false
			if pidx, ok := paramIndex(m, rhsBody.Tok.Text()); ok && rhsBody.Tok.Kind == lexer.Identifier {
				rhsRaw = args[pidx]
				rhsIsVariadic = m.Variadic && pidx == len(m.Params)
			} else {
				rhsRaw = []sigTok{rhsBody}
			}
			if len(rhsRaw) == 0 {
				if rhsIsVariadic && len(out) > 0 && isPunct(out[len(out)-1], ",") {
					out = out[:len(out)-1]
				}
				i += 2
				continue
			}
			if rhsIsVariadic && len(out) > 0 && isPunct(out[len(out)-1], ",") {
				// GNU ", ## __VA_ARGS__" with a non-empty tail keeps the
				// comma and pastes nothing.
				out = append(out, rhsRaw...)
				i += 2
				continue
			}
			if len(out) == 0 {
				out = append(out, rhsRaw...)
			} else {
				lhs := out[len(out)-1]
				pasted, ok := ex.glue(lhs.Tok, rhsRaw[0].Tok)
				if !ok {
					ex.errf(lhs.Tok.Cursor, "pasting %q and %q does not give a valid preprocessing token",
						lhs.Tok.Text(), rhsRaw[0].Tok.Text())
					out = append(out, rhsRaw[0])
				} else {
					out[len(out)-1] = sigTok{Tok: pasted, SpaceBefore: lhs.SpaceBefore}
				}
				out = append(out, rhsRaw[1:]...)
			}
			i += 2
			continue
		}

		if pidx, ok := paramIndex(m, t.Tok.Text()); ok && t.Tok.Kind == lexer.Identifier {
			if i+1 < len(body) && isPunct(body[i+1], "##") {
				// Left operand of a paste: contribute the argument's raw,
				// unexpanded tokens; the "##" step above will glue the
				// boundary once it is reached.
				raw := args[pidx]
				if len(raw) > 0 {
					first := raw[0]
					first.SpaceBefore = t.SpaceBefore
					out = append(out, first)
					out = append(out, raw[1:]...)
				}
				i++
				continue
			}
			expanded := ex.expandList(cloneSig(args[pidx]), nil)
			if len(expanded) > 0 {
				first := expanded[0]
				first.SpaceBefore = t.SpaceBefore
				out = append(out, first)
				out = append(out, expanded[1:]...)
			}
			i++
			continue
		}

		out = append(out, t)
		i++
	}

	for idx := range out {
		out[idx].Hide = hsUnion(out[idx].Hide, hs)
	}
	return out
}

func bodyToSig(body []macro.BodyToken) []sigTok {
	out := make([]sigTok, len(body))
	for i, b := range body {
		out[i] = sigTok{Tok: b.Tok, SpaceBefore: b.SpaceBefore}
	}
	return out
}

func cloneSig(in []sigTok) []sigTok {
	out := make([]sigTok, len(in))
	copy(out, in)
	return out
}

// collectArgs consumes a function-like macro invocation's argument list, up
// to and including the matching ')'. The caller must already have
// confirmed (via peek) that the very next token is '('.
// collectArgs reads a function-like macro's parenthesized argument list.
// On a non-variadic argument-count mismatch it diagnoses the error, pushes
// every token it pulled (the '(' through the matching ')') back onto
// pending, and returns ok=false so the caller treats the macro name as an
// ordinary identifier and reprocesses the call's tokens normally, per
// spec.md §7's stated recovery ("bad macro call: treat as identifier").
func (ex *Expander) collectArgs(m *macro.Macro, pending *[]sigTok, more func() ([]lexer.Token, bool)) ([][]sigTok, HideSet, bool) {
	open, _ := ex.pull(pending, more) // consume '('
	consumed := []sigTok{open}

	fixed := len(m.Params)
	var raw [][]sigTok
	var cur []sigTok
	depth := 1
	var closeHide HideSet

	for {
		t, ok := ex.pull(pending, more)
		if !ok {
			ex.errf(t.Tok.Cursor, "unterminated argument list invoking macro %q", m.Name)
			raw = append(raw, cur)
			break
		}
		consumed = append(consumed, t)
		if t.Tok.Kind == lexer.Punctuator {
			switch t.Tok.Text() {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
				if depth == 0 {
					raw = append(raw, cur)
					closeHide = t.Hide
					goto done
				}
			case ",":
				if depth == 1 {
					raw = append(raw, cur)
					cur = nil
					continue
				}
			}
		}
		cur = append(cur, t)
	}
done:

	if fixed == 0 && !m.Variadic && len(raw) == 1 && len(raw[0]) == 0 {
		raw = nil
	}

	if !m.Variadic && len(raw) != fixed {
		ex.errf(lexer.CursorInit, "macro %q requires %d arguments, but %d given", m.Name, fixed, len(raw))
		*pending = append(consumed, *pending...)
		return nil, nil, false
	}

	args := make([][]sigTok, fixed, fixed+1)
	for i := 0; i < fixed; i++ {
		if i < len(raw) {
			args[i] = raw[i]
		}
	}
	if m.Variadic {
		var tail []sigTok
		if len(raw) > fixed {
			for i := fixed; i < len(raw); i++ {
				if i > fixed {
					tail = append(tail, sigTok{Tok: lexer.NewSynthetic(lexer.Punctuator, ",", ex.Source, lexer.CursorInit)})
				}
				tail = append(tail, raw[i]...)
			}
		}
		args = append(args, tail)
	}

	return args, closeHide, true
}

// stringize implements the '#' operator: it spells out arg's original
// (unexpanded) tokens as a single string literal, escaping '\\' and '"'
// inside nested string and character literals.
func (ex *Expander) stringize(arg []sigTok, at lexer.Cursor) sigTok {
	var b strings.Builder
	b.WriteByte('"')
	for i, a := range arg {
		if i > 0 && a.SpaceBefore {
			b.WriteByte(' ')
		}
		text := a.Tok.Text()
		if a.Tok.Kind == lexer.String || a.Tok.Kind == lexer.CharLiteral {
			for j := 0; j < len(text); j++ {
				c := text[j]
				if c == '"' || c == '\\' {
					b.WriteByte('\\')
				}
				b.WriteByte(c)
			}
		} else {
			b.WriteString(text)
		}
	}
	b.WriteByte('"')
	return sigTok{Tok: lexer.NewSynthetic(lexer.String, b.String(), ex.Source, at)}
}

// glue concatenates a and b's spellings and re-lexes them as a single
// token, the behavior '##' must have per the standard. If the
// concatenation does not form exactly one valid preprocessing token, ok is
// false and the caller is responsible for diagnosing it.
func (ex *Expander) glue(a, b lexer.Token) (lexer.Token, bool) {
	combined := a.Text() + b.Text()
	buf := lexer.NewBuffer("<paste>", []byte(combined))
	var bag diag.Bag
	l := lexer.New(buf, &bag)
	first := l.Next()
	if bag.Failed() || first.Kind == lexer.EOF {
		return lexer.Token{}, false
	}
	second := l.Next()
	if second.Kind != lexer.EOF {
		return lexer.Token{}, false
	}
	return lexer.NewSynthetic(first.Kind, combined, ex.Source, a.Cursor), true
}
