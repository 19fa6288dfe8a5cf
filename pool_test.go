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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionPoolRunsEachUnitWithAnIndependentSession(t *testing.T) {
	pool := NewSessionPool(func() *Session { return NewSession(nil, nil) }, 4)
	units := []Unit{
		{Source: []byte("#define X 1\nX\n"), SourceName: "a.c"},
		{Source: []byte("#define X 2\nX\n"), SourceName: "b.c"},
		{Source: []byte("#define X 3\nX\n"), SourceName: "c.c"},
	}
	results, err := pool.Run(context.Background(), units)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "1\n", text(results[0].Tokens))
	assert.Equal(t, "2\n", text(results[1].Tokens))
	assert.Equal(t, "3\n", text(results[2].Tokens))
	assert.Equal(t, "a.c", results[0].Unit.SourceName)
}

func TestSessionPoolPreservesInputOrder(t *testing.T) {
	pool := NewSessionPool(func() *Session { return NewSession(nil, nil) }, 1)
	var units []Unit
	for i := 0; i < 8; i++ {
		units = append(units, Unit{Source: []byte("x\n"), SourceName: string(rune('a' + i))})
	}
	results, err := pool.Run(context.Background(), units)
	require.NoError(t, err)
	for i, r := range results {
		assert.Equal(t, string(rune('a'+i)), r.Unit.SourceName)
	}
}

func TestSessionPoolStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pool := NewSessionPool(func() *Session { return NewSession(nil, nil) }, 1)
	units := []Unit{{Source: []byte("x\n"), SourceName: "a.c"}}
	_, err := pool.Run(ctx, units)
	assert.Error(t, err)
}
