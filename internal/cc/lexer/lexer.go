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

// Package lexer implements the scannerless, byte-level tokenizer that turns
// a pre-passed source buffer into a stream of preprocessing tokens. It does
// not know about macros or directives; it only knows how to carve the next
// token out of raw bytes.
package lexer

import (
	"fmt"
	"sort"

	"github.com/LogicEu/zcc/internal/cc/charclass"
	"github.com/LogicEu/zcc/internal/cc/diag"
)

// punctuators lists every multi-character punctuator this core recognizes,
// longest first within each starting byte so a greedy scan finds the
// longest match. Single-character punctuators are handled by the fallback
// at the end of Lexer.next and need no entry here.
var punctuators = sortedByLengthDesc([]string{
	"...", "<<=", ">>=",
	"->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=", "&&", "||",
	"+=", "-=", "*=", "/=", "%=", "^=", "&=", "|=", "##",
})

func sortedByLengthDesc(in []string) []string {
	out := append([]string(nil), in...)
	sort.Slice(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// Lexer scans a single Buffer, producing Tokens on demand.
type Lexer struct {
	buf    *Buffer
	pos    int
	cursor Cursor
	diags  *diag.Bag

	// headerNext, when set by the caller of #include handling, tells the
	// next call to Next to scan a <...> or "..." header-name token instead
	// of a string literal or punctuator run.
	headerNext bool
}

// New creates a Lexer positioned at the start of buf. diags receives lex
// errors (unterminated literal, stray byte); the caller decides whether
// those are fatal.
func New(buf *Buffer, diags *diag.Bag) *Lexer {
	return &Lexer{buf: buf, cursor: CursorInit, diags: diags}
}

// Pos returns the cursor of the next byte to be scanned.
func (l *Lexer) Pos() Cursor { return l.cursor }

// AtEOF reports whether every byte of the buffer has been consumed.
func (l *Lexer) AtEOF() bool { return l.pos >= len(l.buf.Data) }

// ExpectHeaderName tells the lexer that the very next token, if it starts
// with '<' or '"', should be scanned as a whole Header token running up to
// the matching '>' or '"' rather than as a string literal or a run of
// punctuators. This mirrors the grammar's context-sensitivity: header-name
// is only a token kind inside a #include operand.
func (l *Lexer) ExpectHeaderName() { l.headerNext = true }

// PeekIsDirectiveStart reports whether, skipping any leading horizontal
// whitespace on the current line, the next byte is '#'. It consumes
// nothing; the driver uses it to decide whether a logical line is a
// directive before handing the Lexer to the directive package, which
// consumes the '#' itself.
func (l *Lexer) PeekIsDirectiveStart() bool {
	i := l.pos
	for i < len(l.buf.Data) && charclass.IsSpace(l.buf.Data[i]) {
		i++
	}
	return i < len(l.buf.Data) && l.buf.Data[i] == '#'
}

func (l *Lexer) byteAt(i int) byte {
	if i < 0 || i >= len(l.buf.Data) {
		return 0
	}
	return l.buf.Data[i]
}

func (l *Lexer) advance(n int) string {
	s := string(l.buf.Data[l.pos : l.pos+n])
	l.pos += n
	l.cursor = l.cursor.AdvancedBy(s)
	return s
}

func (l *Lexer) emit(kind Kind, start int, startCursor Cursor) Token {
	return Token{Kind: kind, Buf: l.buf, Start: start, Len: l.pos - start, Cursor: startCursor}
}

func (l *Lexer) errf(at Cursor, format string, args ...any) {
	if l.diags == nil {
		return
	}
	l.diags.Add(diag.Error, diag.Position{Source: l.buf.Name, Line: at.Line, Column: at.Column}, format, args...)
}

// Next returns the next token in the buffer, including Whitespace and
// Newline tokens. It returns an EOF token forever once the buffer is
// exhausted.
func (l *Lexer) Next() Token {
	wantHeader := l.headerNext
	l.headerNext = false

	if l.AtEOF() {
		return EOFToken(l.buf, l.cursor)
	}

	start := l.pos
	startCursor := l.cursor
	b := l.byteAt(l.pos)

	switch {
	case charclass.IsNewline(b):
		l.advance(1)
		return l.emit(Newline, start, startCursor)

	case charclass.IsSpace(b):
		for !l.AtEOF() && charclass.IsSpace(l.byteAt(l.pos)) {
			l.advance(1)
		}
		return l.emit(Whitespace, start, startCursor)

	case wantHeader && b == '<':
		return l.scanHeader(start, startCursor, '<', '>')

	case wantHeader && b == '"':
		return l.scanHeader(start, startCursor, '"', '"')

	case charclass.IsStrDelim(b):
		return l.scanQuoted(start, startCursor, b)

	case charclass.IsAlpha(b):
		return l.scanIdentifier(start, startCursor)

	case charclass.IsDigit(b) || (b == '.' && charclass.IsDigit(l.byteAt(l.pos+1))):
		return l.scanNumber(start, startCursor)

	case charclass.IsPunct(b):
		return l.scanPunctuator(start, startCursor)

	default:
		// Stray byte: non-ASCII outside a literal, or a control byte. Emit
		// it as a one-byte Punctuator so the stream stays total; a parser
		// that cares can reject it downstream with better context.
		l.errf(startCursor, "stray byte 0x%02x in program", b)
		l.advance(1)
		return l.emit(Punctuator, start, startCursor)
	}
}

// scanHeader consumes a header-name token delimited by open/close, which
// are either '<'/'>' or '"'/'"'. Header-name text may not contain the
// closing delimiter; an unterminated header is a lex error but the token is
// still returned, spanning to end of line.
func (l *Lexer) scanHeader(start int, startCursor Cursor, open, close byte) Token {
	l.advance(1) // opening delimiter
	for !l.AtEOF() {
		c := l.byteAt(l.pos)
		if c == close {
			l.advance(1)
			return l.emit(Header, start, startCursor)
		}
		if charclass.IsNewline(c) {
			break
		}
		l.advance(1)
	}
	l.errf(startCursor, "missing terminating %q character in header name", close)
	return l.emit(Header, start, startCursor)
}

// scanQuoted consumes a string or character literal, honoring backslash
// escapes so an escaped quote does not end the literal early.
func (l *Lexer) scanQuoted(start int, startCursor Cursor, delim byte) Token {
	kind := String
	if delim == '\'' {
		kind = CharLiteral
	}
	l.advance(1)
	for !l.AtEOF() {
		c := l.byteAt(l.pos)
		if c == '\\' && !l.AtEOF() {
			l.advance(1)
			if !l.AtEOF() {
				l.advance(1)
			}
			continue
		}
		if c == delim {
			l.advance(1)
			return l.emit(kind, start, startCursor)
		}
		if charclass.IsNewline(c) {
			break
		}
		l.advance(1)
	}
	l.errf(startCursor, "missing terminating %c character", delim)
	return l.emit(kind, start, startCursor)
}

// scanIdentifier consumes a maximal run of identifier bytes.
func (l *Lexer) scanIdentifier(start int, startCursor Cursor) Token {
	for !l.AtEOF() && charclass.IsID(l.byteAt(l.pos)) {
		l.advance(1)
	}
	return l.emit(Identifier, start, startCursor)
}

// scanNumber consumes a preprocessing number per the C grammar: a digit or
// leading dot-digit, followed by any mixture of identifier bytes, dots, and
// signed exponents ('e'/'E'/'p'/'P' followed by '+' or '-').
func (l *Lexer) scanNumber(start int, startCursor Cursor) Token {
	l.advance(1)
	for !l.AtEOF() {
		c := l.byteAt(l.pos)
		if (c == 'e' || c == 'E' || c == 'p' || c == 'P') && isSign(l.byteAt(l.pos+1)) {
			l.advance(2)
			continue
		}
		if c == '.' || charclass.IsID(c) {
			l.advance(1)
			continue
		}
		break
	}
	return l.emit(Number, start, startCursor)
}

func isSign(b byte) bool { return b == '+' || b == '-' }

// scanPunctuator consumes the longest recognized multi-character
// punctuator starting at the cursor, falling back to a single byte.
func (l *Lexer) scanPunctuator(start int, startCursor Cursor) Token {
	remaining := l.buf.Data[l.pos:]
	for _, p := range punctuators {
		if len(p) <= len(remaining) && string(remaining[:len(p)]) == p {
			l.advance(len(p))
			return l.emit(Punctuator, start, startCursor)
		}
	}
	l.advance(1)
	return l.emit(Punctuator, start, startCursor)
}

// Tokenize consumes the whole buffer, including Whitespace and Newline
// tokens, and is mainly useful for tests and for lexing a standalone snippet
// in one call.
func Tokenize(buf *Buffer, diags *diag.Bag) []Token {
	l := New(buf, diags)
	var toks []Token
	for {
		t := l.Next()
		toks = append(toks, t)
		if t.Kind == EOF {
			return toks
		}
	}
}

// Significant filters out Whitespace tokens, collapsing runs of formatting
// into nothing while keeping Newline tokens, which are significant to the
// directive handler and the driver's line discipline.
func Significant(toks []Token) []Token {
	out := make([]Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind == Whitespace {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ErrUnterminated is a convenience formatter used by callers that want a Go
// error rather than a diagnostic, e.g. when scanning a macro body in
// isolation.
func ErrUnterminated(kind string, at Cursor) error {
	return fmt.Errorf("%s: unterminated at %s", kind, at)
}
