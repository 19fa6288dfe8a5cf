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

// Package directive recognizes a single '#'-introduced preprocessing
// directive line and reports it as a flat, kind-tagged record for a driver
// to dispatch on. Unlike a directive parser that builds a nested AST of
// conditional blocks, Parse never looks past one logical line: the driver
// owns the conditional-nesting discipline, using only the directive's Kind
// and raw operand tokens.
package directive

import (
	"github.com/LogicEu/zcc/internal/cc/diag"
	"github.com/LogicEu/zcc/internal/cc/include"
	"github.com/LogicEu/zcc/internal/cc/lexer"
	"github.com/LogicEu/zcc/internal/cc/macro"
)

// Kind classifies a recognized directive line.
type Kind int

const (
	// Null is the empty directive: a line containing only '#'. A no-op.
	Null Kind = iota
	Include
	Define
	Undef
	If
	Elif
	Else
	Endif
	Warning
	Error
	Line
	Pragma
	// PragmaOnce is the recognized '#pragma once' form; see SUPPLEMENTED
	// FEATURES. Other pragmas fall through as Pragma with Raw set.
	PragmaOnce
	// Unknown is an unrecognized directive word, already diagnosed.
	Unknown
)

// Directive is the result of parsing one logical '#' line. Only the fields
// relevant to Kind are populated; the rest are zero.
type Directive struct {
	Kind Kind
	Pos  lexer.Cursor

	// Name is the macro name for Define/Undef, or the directive word for
	// Unknown.
	Name string

	// Raw holds the operand tokens (no leading/trailing whitespace tokens,
	// no Newline) for If, Elif, Warning, Error, Line and Pragma. For an If
	// produced from #ifdef/#ifndef, Raw is a synthesized
	// "defined ( NAME )" or "! defined ( NAME )" token sequence, not the
	// original source text.
	Raw []lexer.Token

	// Macro is populated for Define.
	Macro *macro.Macro

	// Include is populated for Include.
	Include include.Ref
}

// Parse recognizes the directive introduced by a '#' that l has not yet
// consumed, reading exactly one logical line from l (through its trailing
// Newline or EOF) and reporting diagnostics to diags. l must be positioned
// so that the next significant token is '#'; callers decide that a line is
// a directive line before calling Parse.
func Parse(l *lexer.Lexer, diags *diag.Bag) Directive {
	hash := nextSig(l)
	if !isPunct(hash, "#") {
		diags.Add(diag.Error, posOf(hash), "Parse called on a line that is not a directive")
		skipToEOL(l)
		return Directive{Kind: Unknown, Pos: hash.Cursor}
	}

	word := nextSig(l)
	if word.Kind == lexer.Newline || word.Kind == lexer.EOF {
		return Directive{Kind: Null, Pos: hash.Cursor}
	}
	if word.Kind != lexer.Identifier {
		diags.Add(diag.Error, posOf(word), "invalid preprocessing directive")
		skipToEOL(l)
		return Directive{Kind: Unknown, Pos: word.Cursor}
	}

	switch word.Text() {
	case "include":
		l.ExpectHeaderName()
		return parseInclude(l, word.Cursor, diags)
	case "define":
		return parseDefine(l, word.Cursor, diags)
	case "undef":
		name := nextSig(l)
		if name.Kind != lexer.Identifier {
			diags.Add(diag.Error, posOf(name), "macro name must be an identifier")
			skipToEOL(l)
			return Directive{Kind: Unknown, Pos: word.Cursor}
		}
		skipToEOL(l)
		return Directive{Kind: Undef, Name: name.Text(), Pos: word.Cursor}
	case "if":
		return Directive{Kind: If, Raw: collectSigRest(l), Pos: word.Cursor}
	case "ifdef":
		return Directive{Kind: If, Raw: rewriteDefinedCheck(l, word.Cursor, false, diags), Pos: word.Cursor}
	case "ifndef":
		return Directive{Kind: If, Raw: rewriteDefinedCheck(l, word.Cursor, true, diags), Pos: word.Cursor}
	case "elif":
		return Directive{Kind: Elif, Raw: collectSigRest(l), Pos: word.Cursor}
	case "else":
		skipToEOL(l)
		return Directive{Kind: Else, Pos: word.Cursor}
	case "endif":
		skipToEOL(l)
		return Directive{Kind: Endif, Pos: word.Cursor}
	case "warning":
		return Directive{Kind: Warning, Raw: collectSigRest(l), Pos: word.Cursor}
	case "error":
		return Directive{Kind: Error, Raw: collectSigRest(l), Pos: word.Cursor}
	case "line":
		return Directive{Kind: Line, Raw: collectSigRest(l), Pos: word.Cursor}
	case "pragma":
		return parsePragma(l, word.Cursor)
	default:
		diags.Add(diag.Error, posOf(word), "invalid preprocessing directive #%s", word.Text())
		skipToEOL(l)
		return Directive{Kind: Unknown, Name: word.Text(), Pos: word.Cursor}
	}
}

func posOf(t lexer.Token) diag.Position {
	return diag.Position{Source: t.Source(), Line: t.Cursor.Line, Column: t.Cursor.Column}
}

func isPunct(t lexer.Token, text string) bool {
	return t.Kind == lexer.Punctuator && t.Text() == text
}

// nextSig reads tokens from l until one that is not Whitespace, returning
// it. Newline and EOF are themselves significant and are returned as-is.
func nextSig(l *lexer.Lexer) lexer.Token {
	for {
		t := l.Next()
		if t.Kind != lexer.Whitespace {
			return t
		}
	}
}

// skipToEOL discards tokens up to and including the line's Newline, or up
// to EOF. Directive kinds that take no operand (else, endif) or that
// diagnose and bail out call this to leave l ready for the next line.
func skipToEOL(l *lexer.Lexer) {
	for {
		t := l.Next()
		if t.Kind == lexer.Newline || t.Kind == lexer.EOF {
			return
		}
	}
}

// collectSigRest reads the remaining significant tokens of the line
// (skipping Whitespace, stopping before Newline/EOF) and consumes the
// Newline itself.
func collectSigRest(l *lexer.Lexer) []lexer.Token {
	var out []lexer.Token
	for {
		t := nextSig(l)
		if t.Kind == lexer.Newline || t.Kind == lexer.EOF {
			return out
		}
		out = append(out, t)
	}
}

// rewriteDefinedCheck implements spec.md §4.7's rule that #ifdef NAME and
// #ifndef NAME are handled as #if defined(NAME) and #if !defined(NAME),
// by synthesizing the equivalent token sequence rather than special-casing
// two directive kinds through the rest of the pipeline.
func rewriteDefinedCheck(l *lexer.Lexer, pos lexer.Cursor, negate bool, diags *diag.Bag) []lexer.Token {
	name := nextSig(l)
	skipToEOL(l)
	if name.Kind != lexer.Identifier {
		diags.Add(diag.Error, posOf(name), "macro name must be an identifier")
		return nil
	}
	toks := []lexer.Token{
		lexer.NewSynthetic(lexer.Identifier, "defined", name.Source(), pos),
		lexer.NewSynthetic(lexer.Punctuator, "(", name.Source(), pos),
		lexer.NewSynthetic(lexer.Identifier, name.Text(), name.Source(), pos),
		lexer.NewSynthetic(lexer.Punctuator, ")", name.Source(), pos),
	}
	if negate {
		toks = append([]lexer.Token{lexer.NewSynthetic(lexer.Punctuator, "!", name.Source(), pos)}, toks...)
	}
	return toks
}

func parseInclude(l *lexer.Lexer, pos lexer.Cursor, diags *diag.Bag) Directive {
	// Header-name mode covers only the lexer's very next token, so it is
	// re-armed past any whitespace between "include" and the operand.
	tok := l.Next()
	for tok.Kind == lexer.Whitespace {
		l.ExpectHeaderName()
		tok = l.Next()
	}
	if tok.Kind != lexer.Header {
		diags.Add(diag.Error, posOf(tok), "#include expects \"FILENAME\" or <FILENAME>")
		skipToEOL(l)
		return Directive{Kind: Unknown, Pos: pos}
	}
	text := tok.Text()
	delim := include.Quoted
	if len(text) >= 2 && text[0] == '<' {
		delim = include.Angled
	}
	name := text
	if len(text) >= 2 {
		name = text[1 : len(text)-1]
	}
	skipToEOL(l)
	return Directive{Kind: Include, Include: include.Ref{Delim: delim, Name: name}, Pos: pos}
}

func parsePragma(l *lexer.Lexer, pos lexer.Cursor) Directive {
	rest := collectSigRest(l)
	if len(rest) == 1 && rest[0].Kind == lexer.Identifier && rest[0].Text() == "once" {
		return Directive{Kind: PragmaOnce, Pos: pos}
	}
	return Directive{Kind: Pragma, Raw: rest, Pos: pos}
}

func parseDefine(l *lexer.Lexer, pos lexer.Cursor, diags *diag.Bag) Directive {
	nameTok := nextSig(l)
	if nameTok.Kind != lexer.Identifier {
		diags.Add(diag.Error, posOf(nameTok), "macro name must be an identifier")
		skipToEOL(l)
		return Directive{Kind: Unknown, Pos: pos}
	}

	m := &macro.Macro{Name: nameTok.Text(), DefPos: nameTok.Cursor}

	// Peek the raw next token (not skipping whitespace) to tell a
	// function-like macro's adjacent '(' from an object-like macro whose
	// body happens to start with '('.
	next := l.Next()
	if isPunct(next, "(") {
		m.Kind = macro.Function
		params, variadic, varName, ok := parseParamList(l, diags)
		if !ok {
			skipToEOL(l)
			return Directive{Kind: Unknown, Pos: pos}
		}
		m.Params = params
		m.Variadic = variadic
		m.VarName = varName
		next = l.Next()
	} else {
		m.Kind = macro.Object
	}

	body, spacing := collectBody(l, next)
	if len(spacing) > 0 {
		// Leading whitespace between the macro name (or parameter list) and
		// the body's first token carries no meaning; only inter-token
		// spacing within the body matters to stringize/paste.
		spacing[0] = false
	}
	m.Body = macro.NewBody(body, spacing)
	return Directive{Kind: Define, Macro: m, Name: m.Name, Pos: pos}
}

// collectBody gathers the macro body starting with first (a token already
// read from l, possibly Whitespace), continuing through l.Next() calls
// until Newline or EOF, and returns the significant tokens together with
// whether a Whitespace token preceded each one in the source.
func collectBody(l *lexer.Lexer, first lexer.Token) ([]lexer.Token, []bool) {
	var toks []lexer.Token
	var spacing []bool
	space := false
	t := first
	for {
		switch t.Kind {
		case lexer.Whitespace:
			space = true
		case lexer.Newline, lexer.EOF:
			return toks, spacing
		default:
			toks = append(toks, t)
			spacing = append(spacing, space)
			space = false
		}
		t = l.Next()
	}
}

// parseParamList reads a function-like macro's parameter list, with the
// opening '(' already consumed by the caller. It supports a trailing
// anonymous '...' (__VA_ARGS__) and GNU named variadic params ("args...").
func parseParamList(l *lexer.Lexer, diags *diag.Bag) (params []string, variadic bool, varName string, ok bool) {
	t := nextSig(l)
	if isPunct(t, ")") {
		return nil, false, "", true
	}
	for {
		switch {
		case isPunct(t, "..."):
			closing := nextSig(l)
			if !isPunct(closing, ")") {
				diags.Add(diag.Error, posOf(closing), "missing ')' after '...' in macro parameter list")
				return nil, false, "", false
			}
			return params, true, "__VA_ARGS__", true

		case t.Kind == lexer.Identifier:
			name := t.Text()
			for _, p := range params {
				if p == name {
					diags.Add(diag.Error, posOf(t), "duplicate macro parameter %q", name)
					return nil, false, "", false
				}
			}
			after := nextSig(l)
			if isPunct(after, "...") {
				closing := nextSig(l)
				if !isPunct(closing, ")") {
					diags.Add(diag.Error, posOf(closing), "missing ')' after '...' in macro parameter list")
					return nil, false, "", false
				}
				return params, true, name, true
			}
			params = append(params, name)
			if isPunct(after, ")") {
				return params, false, "", true
			}
			if !isPunct(after, ",") {
				diags.Add(diag.Error, posOf(after), "expected ',' or ')' in macro parameter list")
				return nil, false, "", false
			}
			t = nextSig(l)

		default:
			diags.Add(diag.Error, posOf(t), "expected parameter name in macro parameter list")
			return nil, false, "", false
		}
	}
}
