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

package lexer

// Kind classifies a Token.
type Kind int

const (
	// Identifier is a C identifier or keyword.
	Identifier Kind = iota
	// Number is a preprocessing number: digits, letters, dots and signed
	// exponents, lexed without regard to whether it denotes a valid C
	// integer or floating constant.
	Number
	// String is a string literal, quotes included.
	String
	// CharLiteral is a character constant, quotes included.
	CharLiteral
	// Punctuator is an operator or separator, e.g. "->", "##", ";".
	Punctuator
	// Header is a header-name token, only produced when the lexer is told
	// it is scanning the operand of #include.
	Header
	// Whitespace is a run of horizontal whitespace (space, tab, CR).
	Whitespace
	// Newline is a single '\n', marking the end of a logical line.
	Newline
	// Synthetic is a kind for a token that owns its text and has no more
	// specific kind. Tokens the expansion engine builds by stringizing or
	// pasting also own their text, but carry their real kind (String, or
	// whatever the pasted text lexes as), not Synthetic; see NewSynthetic.
	Synthetic
	// EOF marks the end of a buffer.
	EOF
)

func (k Kind) String() string {
	switch k {
	case Identifier:
		return "identifier"
	case Number:
		return "number"
	case String:
		return "string"
	case CharLiteral:
		return "char"
	case Punctuator:
		return "punctuator"
	case Header:
		return "header-name"
	case Whitespace:
		return "whitespace"
	case Newline:
		return "newline"
	case Synthetic:
		return "synthetic"
	case EOF:
		return "eof"
	default:
		return "unknown"
	}
}

// Buffer is an immutable source buffer: the bytes of one translation unit or
// included file after the textual pre-pass has spliced continuation lines
// and elided comments. Every non-synthetic Token produced by a Lexer over a
// Buffer refers back to it by byte range, so tokens stay cheap and the
// buffer's bytes stay the single owner of that text for the buffer's
// lifetime.
type Buffer struct {
	Name string // source_name used in diagnostics and __FILE__
	Data []byte
}

// NewBuffer wraps data, which the caller must not mutate afterwards.
func NewBuffer(name string, data []byte) *Buffer {
	return &Buffer{Name: name, Data: data}
}

// Token is a (kind, start, len) triple referencing a byte range of some
// Buffer, or, for a token built by NewSynthetic, owning its own bytes
// directly regardless of which Kind it reports.
type Token struct {
	Kind   Kind
	Buf    *Buffer
	Start  int
	Len    int
	synth  string // populated whenever Buf == nil, i.e. built by NewSynthetic
	source string // source name for synthetic tokens, which have no Buf
	Cursor Cursor // position of Start within Buf, or of synthesis site
}

// Text returns the token's textual content. A token with no backing Buffer
// owns its bytes directly -- not only the Synthetic kind, but every token
// NewSynthetic builds with whatever real Kind the produced text actually
// has (e.g. a pasted identifier, a stringized String, a substituted
// Number) -- so the absence of a Buffer, not the Kind, is what selects the
// owned-text path.
func (t Token) Text() string {
	if t.Buf == nil {
		return t.synth
	}
	return string(t.Buf.Data[t.Start : t.Start+t.Len])
}

// Source returns the name of the buffer the token came from, or the cursor's
// recorded source name for synthetic tokens.
func (t Token) Source() string {
	if t.Buf != nil {
		return t.Buf.Name
	}
	return t.source
}

// NewSynthetic builds a token that owns text, for use by the expansion
// engine when stringizing or pasting produces bytes absent from any input
// buffer.
func NewSynthetic(kind Kind, text string, source string, at Cursor) Token {
	return Token{Kind: kind, synth: text, source: source, Cursor: at}
}

// EOFToken is the token returned once a Lexer has no more bytes to consume.
func EOFToken(buf *Buffer, at Cursor) Token {
	return Token{Kind: EOF, Buf: buf, Start: len(buf.Data), Len: 0, Cursor: at}
}

// IsSignificant reports whether the token carries content a parser or the
// expansion engine should look at, as opposed to pure formatting.
func (t Token) IsSignificant() bool {
	switch t.Kind {
	case Whitespace, Newline:
		return false
	default:
		return true
	}
}
