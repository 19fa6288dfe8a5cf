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

package macro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LogicEu/zcc/internal/cc/diag"
	"github.com/LogicEu/zcc/internal/cc/lexer"
)

func tok(t *testing.T, src string) lexer.Token {
	t.Helper()
	buf := lexer.NewBuffer("t.c", []byte(src))
	var bag diag.Bag
	toks := lexer.Significant(lexer.Tokenize(buf, &bag))
	require.NotEmpty(t, toks)
	return toks[0]
}

func TestDefineFreshName(t *testing.T) {
	table := NewTable()
	m := &Macro{Name: "FOO", Kind: Object, Body: NewBody([]lexer.Token{tok(t, "1")}, []bool{true})}
	assert.Equal(t, Defined, table.Define(m))
	got, ok := table.Lookup("FOO")
	require.True(t, ok)
	assert.Equal(t, "1", got.Body[0].Tok.Text())
}

func TestRedefineIdenticalIsSilent(t *testing.T) {
	table := NewTable()
	body := NewBody([]lexer.Token{tok(t, "1")}, []bool{true})
	table.Define(&Macro{Name: "FOO", Kind: Object, Body: body})
	res := table.Define(&Macro{Name: "FOO", Kind: Object, Body: body})
	assert.Equal(t, Redefined, res)
}

func TestRedefineDifferentBodyConflicts(t *testing.T) {
	table := NewTable()
	table.Define(&Macro{Name: "FOO", Kind: Object, Body: NewBody([]lexer.Token{tok(t, "1")}, []bool{true})})
	res := table.Define(&Macro{Name: "FOO", Kind: Object, Body: NewBody([]lexer.Token{tok(t, "2")}, []bool{true})})
	assert.Equal(t, Conflicted, res)
	got, _ := table.Lookup("FOO")
	assert.Equal(t, "2", got.Body[0].Tok.Text())
}

func TestUndefRemovesMacro(t *testing.T) {
	table := NewTable()
	table.Define(&Macro{Name: "FOO", Kind: Object})
	assert.True(t, table.Undef("FOO"))
	assert.False(t, table.IsDefined("FOO"))
	assert.False(t, table.Undef("FOO"))
}

func TestCloneIsIndependent(t *testing.T) {
	table := NewTable()
	table.Define(&Macro{Name: "FOO", Kind: Object})
	clone := table.Clone()
	clone.Undef("FOO")
	assert.True(t, table.IsDefined("FOO"))
	assert.False(t, clone.IsDefined("FOO"))
}

func TestFunctionLikeParamsCompareByName(t *testing.T) {
	table := NewTable()
	table.Define(&Macro{Name: "MAX", Kind: Function, Params: []string{"a", "b"}})
	res := table.Define(&Macro{Name: "MAX", Kind: Function, Params: []string{"x", "y"}})
	assert.Equal(t, Conflicted, res)
}
