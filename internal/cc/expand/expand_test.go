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

package expand

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LogicEu/zcc/internal/cc/diag"
	"github.com/LogicEu/zcc/internal/cc/lexer"
	"github.com/LogicEu/zcc/internal/cc/macro"
)

func lexLine(t *testing.T, src string) []lexer.Token {
	t.Helper()
	buf := lexer.NewBuffer("t.c", []byte(src))
	var bag diag.Bag
	toks := lexer.Tokenize(buf, &bag)
	require.False(t, bag.Failed())
	// drop trailing EOF, keep Whitespace/Newline for spacing fidelity
	return toks[:len(toks)-1]
}

func render(toks []lexer.Token) string {
	var b strings.Builder
	for _, t := range toks {
		b.WriteString(t.Text())
	}
	return b.String()
}

// bodyTokensAndSpacing lexes body and returns its significant tokens
// alongside a parallel slice recording whether whitespace preceded each
// one, the input macro.NewBody expects.
func bodyTokensAndSpacing(t *testing.T, body string) ([]lexer.Token, []bool) {
	t.Helper()
	raw := lexLine(t, body)
	var toks []lexer.Token
	var spacing []bool
	space := false
	for _, tk := range raw {
		if tk.Kind == lexer.Whitespace || tk.Kind == lexer.Newline {
			space = true
			continue
		}
		toks = append(toks, tk)
		spacing = append(spacing, space)
		space = false
	}
	return toks, spacing
}

func defineObject(t *testing.T, table *macro.Table, name, body string) {
	t.Helper()
	toks, sb := bodyTokensAndSpacing(t, body)
	table.Define(&macro.Macro{Name: name, Kind: macro.Object, Body: macro.NewBody(toks, sb)})
}

func defineFunction(t *testing.T, table *macro.Table, name string, params []string, variadic bool, varName, body string) {
	t.Helper()
	toks, sb := bodyTokensAndSpacing(t, body)
	table.Define(&macro.Macro{Name: name, Kind: macro.Function, Params: params, Variadic: variadic, VarName: varName,
		Body: macro.NewBody(toks, sb)})
}

func TestObjectLikeExpansion(t *testing.T) {
	table := macro.NewTable()
	defineObject(t, table, "FOO", "1 + 2")
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	out := ex.Expand(lexLine(t, "FOO * 3"), nil)
	assert.False(t, bag.Failed())
	assert.Equal(t, "1 + 2 * 3", render(out))
}

func TestSelfReferentialObjectMacroDoesNotRecurse(t *testing.T) {
	table := macro.NewTable()
	defineObject(t, table, "EXPR", "(1 + EXPR)")
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	out := ex.Expand(lexLine(t, "EXPR"), nil)
	assert.False(t, bag.Failed())
	assert.Equal(t, "(1 + EXPR)", render(out))
}

func TestMutuallyRecursiveMacrosTerminate(t *testing.T) {
	table := macro.NewTable()
	defineObject(t, table, "A", "B")
	defineObject(t, table, "B", "A")
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	out := ex.Expand(lexLine(t, "A"), nil)
	assert.False(t, bag.Failed())
	assert.Equal(t, "A", render(out))
}

func TestFunctionLikeMacroExpandsArguments(t *testing.T) {
	table := macro.NewTable()
	defineObject(t, table, "FIVE", "5")
	defineFunction(t, table, "ADD", []string{"a", "b"}, false, "", "((a) + (b))")
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	out := ex.Expand(lexLine(t, "ADD(FIVE, 2)"), nil)
	assert.False(t, bag.Failed())
	assert.Equal(t, "((5) + (2))", render(out))
}

func TestFunctionLikeNameWithoutParensIsNotInvoked(t *testing.T) {
	table := macro.NewTable()
	defineFunction(t, table, "ADD", []string{"a", "b"}, false, "", "(a + b)")
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	out := ex.Expand(lexLine(t, "ADD ;"), nil)
	assert.False(t, bag.Failed())
	assert.Equal(t, "ADD ;", render(out))
}

func TestStringizeOperator(t *testing.T) {
	table := macro.NewTable()
	defineFunction(t, table, "STR", []string{"x"}, false, "", `#x`)
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	out := ex.Expand(lexLine(t, `STR(hello world)`), nil)
	assert.False(t, bag.Failed())
	assert.Equal(t, `"hello world"`, render(out))
}

func TestStringizeEscapesQuotesAndBackslashes(t *testing.T) {
	table := macro.NewTable()
	defineFunction(t, table, "STR", []string{"x"}, false, "", `#x`)
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	out := ex.Expand(lexLine(t, `STR("a\b")`), nil)
	assert.False(t, bag.Failed())
	assert.Equal(t, `"\"a\\b\""`, render(out))
}

func TestTokenPasteOperator(t *testing.T) {
	table := macro.NewTable()
	defineFunction(t, table, "CAT", []string{"a", "b"}, false, "", "a ## b")
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	out := ex.Expand(lexLine(t, "CAT(foo, bar)"), nil)
	assert.False(t, bag.Failed())
	assert.Equal(t, "foobar", render(out))
}

func TestTokenPasteUsesUnexpandedArguments(t *testing.T) {
	table := macro.NewTable()
	defineObject(t, table, "FOO", "should_not_appear")
	defineFunction(t, table, "CAT", []string{"a", "b"}, false, "", "a ## b")
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	out := ex.Expand(lexLine(t, "CAT(FOO, 2)"), nil)
	assert.False(t, bag.Failed())
	assert.Equal(t, "FOO2", render(out))
}

func TestInvalidPasteIsDiagnosed(t *testing.T) {
	table := macro.NewTable()
	defineFunction(t, table, "CAT", []string{"a", "b"}, false, "", "a ## b")
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	ex.Expand(lexLine(t, "CAT(+, -)"), nil)
	assert.True(t, bag.Failed())
}

func TestVariadicMacroExpandsVaArgs(t *testing.T) {
	table := macro.NewTable()
	defineFunction(t, table, "LOG", []string{"fmt"}, true, "__VA_ARGS__", "printf(fmt, __VA_ARGS__)")
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	out := ex.Expand(lexLine(t, `LOG("x", 1, 2)`), nil)
	assert.False(t, bag.Failed())
	assert.Equal(t, `printf("x", 1, 2)`, render(out))
}

func TestVariadicCommaElisionWhenEmpty(t *testing.T) {
	table := macro.NewTable()
	defineFunction(t, table, "LOG", []string{"fmt"}, true, "__VA_ARGS__", "printf(fmt , ## __VA_ARGS__)")
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	out := ex.Expand(lexLine(t, `LOG("x")`), nil)
	assert.False(t, bag.Failed())
	assert.Equal(t, `printf("x")`, render(out))
}

func TestNestedFunctionMacroInArgument(t *testing.T) {
	table := macro.NewTable()
	defineFunction(t, table, "INC", []string{"x"}, false, "", "((x) + 1)")
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	out := ex.Expand(lexLine(t, "INC(INC(1))"), nil)
	assert.False(t, bag.Failed())
	assert.Equal(t, "(((1) + 1) + 1)", render(out))
}

func TestMultiLineInvocationViaMoreCallback(t *testing.T) {
	table := macro.NewTable()
	defineFunction(t, table, "ADD", []string{"a", "b"}, false, "", "(a + b)")
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	lines := [][]lexer.Token{lexLine(t, "2)")}
	more := func() ([]lexer.Token, bool) {
		if len(lines) == 0 {
			return nil, false
		}
		next := lines[0]
		lines = lines[1:]
		return next, true
	}
	out := ex.Expand(lexLine(t, "ADD(1,"), more)
	assert.False(t, bag.Failed())
	assert.Equal(t, "(1 + 2)", render(out))
}

func TestExpansionDepthLimitIsFatal(t *testing.T) {
	table := macro.NewTable()
	for i := 0; i < 300; i++ {
		defineObject(t, table, nameAt(i), nameAt(i+1))
	}
	var bag diag.Bag
	ex := New(table, &bag, "t.c")
	ex.Expand(lexLine(t, nameAt(0)), nil)
	assert.True(t, bag.Failed())
}

func nameAt(i int) string {
	return "M" + strings.Repeat("X", 0) + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}
