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

package zcc

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LogicEu/zcc/internal/cc/diag"
	"github.com/LogicEu/zcc/internal/cc/lexer"
	"github.com/LogicEu/zcc/internal/cc/macro"
)

func macroTableWith(pairs ...string) *macro.Table {
	table := macro.NewTable()
	for i := 0; i+1 < len(pairs); i += 2 {
		tok := lexer.NewSynthetic(lexer.Number, pairs[i+1], "<test>", lexer.CursorInit)
		table.Define(&macro.Macro{
			Name: pairs[i],
			Kind: macro.Object,
			Body: macro.NewBody([]lexer.Token{tok}, []bool{false}),
		})
	}
	return table
}

func text(toks TokenStream) string {
	s := ""
	for _, t := range toks {
		s += t.Text
	}
	return s
}

func TestObjectLikeMacroExpandsWithoutRecursion(t *testing.T) {
	sess := NewSession(nil, nil)
	toks, diags := sess.Preprocess([]byte("#define X 1+2\nX*X\n"), "t.c")
	assert.Empty(t, diags)
	assert.Equal(t, "1+2*1+2\n", text(toks))
}

func TestSelfReferentialMacroIsNotReexpanded(t *testing.T) {
	sess := NewSession(nil, nil)
	toks, diags := sess.Preprocess([]byte("#define X X+1\nX\n"), "t.c")
	assert.Empty(t, diags)
	assert.Equal(t, "X+1\n", text(toks))
}

func TestFunctionLikeMacroStringizeAndPaste(t *testing.T) {
	sess := NewSession(nil, nil)
	src := "#define CAT(a,b) a ## b\n#define STR(a) #a\nCAT(fo,o)\nSTR(hi)\n"
	toks, diags := sess.Preprocess([]byte(src), "t.c")
	assert.Empty(t, diags)
	assert.Equal(t, "foo\n\"hi\"\n", text(toks))
}

func TestVariadicMacroCommaElision(t *testing.T) {
	sess := NewSession(nil, nil)
	src := "#define LOG(fmt, ...) fmt, ##__VA_ARGS__\nLOG(\"x\")\nLOG(\"x\", 1, 2)\n"
	toks, diags := sess.Preprocess([]byte(src), "t.c")
	assert.Empty(t, diags)
	assert.Equal(t, "\"x\"\n\"x\", 1, 2\n", text(toks))
}

func TestConditionalWithExpression(t *testing.T) {
	sess := NewSession(nil, nil)
	src := "#define V 5\n#if V > 3\nyes\n#else\nno\n#endif\n"
	toks, diags := sess.Preprocess([]byte(src), "t.c")
	assert.Empty(t, diags)
	assert.Equal(t, "yes\n", text(toks))
}

func TestIncludeSplicesIncludedTokens(t *testing.T) {
	fsys := fstest.MapFS{
		"a.h": &fstest.MapFile{Data: []byte("#define K 7\n")},
	}
	sess := NewFileSession(fsys, nil, nil)
	toks, diags := sess.Preprocess([]byte("#include \"a.h\"\nK\n"), "main.c")
	assert.Empty(t, diags)
	assert.Equal(t, "7\n", text(toks))
}

func TestConditionalTotalityEveryLineHasSomeState(t *testing.T) {
	sess := NewSession(nil, nil)
	src := "#ifdef NOPE\na\n#elif 1\nb\n#else\nc\n#endif\n"
	toks, diags := sess.Preprocess([]byte(src), "t.c")
	assert.Empty(t, diags)
	assert.Equal(t, "b\n", text(toks))
}

func TestNestedConditionalOuterSkipSuppressesInnerBranchSelection(t *testing.T) {
	sess := NewSession(nil, nil)
	src := "#if 0\n#if 1\ninner\n#else\nalso-skipped\n#endif\n#endif\nafter\n"
	toks, diags := sess.Preprocess([]byte(src), "t.c")
	assert.Empty(t, diags)
	assert.Equal(t, "after\n", text(toks))
}

func TestTokenReconstructionForLinesWithoutDirectivesOrMacros(t *testing.T) {
	sess := NewSession(nil, nil)
	src := "int   x =  1;\n"
	toks, diags := sess.Preprocess([]byte(src), "t.c")
	assert.Empty(t, diags)
	assert.Equal(t, src, text(toks))
}

func TestIfdefAndIfndefRewriteToDefinedChecks(t *testing.T) {
	sess := NewSession(map[string]string{"FOO": ""}, nil)
	src := "#ifdef FOO\na\n#endif\n#ifndef FOO\nb\n#endif\n#ifndef BAR\nc\n#endif\n"
	toks, diags := sess.Preprocess([]byte(src), "t.c")
	assert.Empty(t, diags)
	assert.Equal(t, "a\nc\n", text(toks))
}

func TestUndefRemovesMacro(t *testing.T) {
	sess := NewSession(nil, nil)
	src := "#define X 1\n#undef X\n#ifdef X\nyes\n#else\nno\n#endif\n"
	toks, _ := sess.Preprocess([]byte(src), "t.c")
	assert.Equal(t, "no\n", text(toks))
}

func TestErrorDirectiveRecordsDiagnostic(t *testing.T) {
	sess := NewSession(nil, nil)
	_, diags := sess.Preprocess([]byte("#error boom\n"), "t.c")
	require.Len(t, diags, 1)
	assert.Equal(t, diag.Error, diags[0].Severity)
	assert.Contains(t, diags[0].Message, "boom")
}

func TestWarningDirectiveDoesNotFailSession(t *testing.T) {
	sess := NewSession(nil, nil)
	toks, diags := sess.Preprocess([]byte("#warning careful\nok\n"), "t.c")
	require.Len(t, diags, 1)
	assert.Equal(t, diag.Warning, diags[0].Severity)
	assert.Equal(t, "ok\n", text(toks))
}

func TestUnterminatedConditionalIsDiagnosed(t *testing.T) {
	sess := NewSession(nil, nil)
	_, diags := sess.Preprocess([]byte("#if 1\nx\n"), "t.c")
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "unterminated conditional")
}

func TestElifWithoutIfIsDiagnosed(t *testing.T) {
	sess := NewSession(nil, nil)
	_, diags := sess.Preprocess([]byte("#elif 1\nx\n"), "t.c")
	require.NotEmpty(t, diags)
	assert.Contains(t, diags[0].Message, "#elif without #if")
}

func TestPragmaOnceGuardsSecondInclude(t *testing.T) {
	fsys := fstest.MapFS{
		"a.h": &fstest.MapFile{Data: []byte("#pragma once\n#define K 1\nK\n")},
	}
	sess := NewFileSession(fsys, nil, nil)
	src := "#include \"a.h\"\n#include \"a.h\"\n"
	toks, diags := sess.Preprocess([]byte(src), "main.c")
	assert.Empty(t, diags)
	assert.Equal(t, "1\n", text(toks))
}

func TestLineDirectiveOverridesLineAndFileForMagicMacros(t *testing.T) {
	sess := NewSession(nil, nil)
	src := "#line 100 \"other.c\"\n__LINE__ __FILE__\n"
	toks, diags := sess.Preprocess([]byte(src), "t.c")
	assert.Empty(t, diags)
	assert.Equal(t, `100 "other.c"`+"\n", text(toks))
}

func TestMagicLineAndFileWithoutLineDirective(t *testing.T) {
	sess := NewSession(nil, nil)
	toks, diags := sess.Preprocess([]byte("__LINE__ __FILE__\n"), "t.c")
	assert.Empty(t, diags)
	assert.Equal(t, `1 "t.c"`+"\n", text(toks))
}

func TestIncludeNotFoundIsDiagnosed(t *testing.T) {
	sess := NewFileSession(fstest.MapFS{}, nil, nil)
	_, diags := sess.Preprocess([]byte("#include \"missing.h\"\n"), "main.c")
	require.NotEmpty(t, diags)
}

func TestSelfIncludeCycleIsDiagnosed(t *testing.T) {
	fsys := fstest.MapFS{
		"a.h": &fstest.MapFile{Data: []byte("#include \"a.h\"\n")},
	}
	sess := NewFileSession(fsys, nil, nil)
	_, diags := sess.Preprocess([]byte("#include \"a.h\"\n"), "main.c")
	require.NotEmpty(t, diags)
}

func TestWithPlatformSeedsPredefinedMacrosWithoutOverwritingExisting(t *testing.T) {
	sess := NewSession(map[string]string{"__linux__": "0"}, nil)
	sess.WithPlatform(macroTableWith("__linux__", "1", "__unix__", "1"))
	toks, _ := sess.Preprocess([]byte("__linux__ __unix__\n"), "t.c")
	assert.Equal(t, "0 1\n", text(toks))
}
