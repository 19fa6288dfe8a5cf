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

	"golang.org/x/sync/errgroup"
)

// Unit names one translation unit for a SessionPool run.
type Unit struct {
	Source     []byte
	SourceName string
}

// Result pairs a Unit's output with the Unit itself, since results from a
// SessionPool arrive in input order but each Session ran independently.
type Result struct {
	Unit        Unit
	Tokens      TokenStream
	Diagnostics Diagnostics
}

// SessionPool runs many independent translation units concurrently. Per
// spec.md §5 ("multiple sessions for multiple translation units may run in
// parallel but do not share mutable state"), every Unit gets its own fresh
// Session built by the newSession closure -- nothing here is shared across goroutines
// except the read-only configuration captured by newSession.
type SessionPool struct {
	newSession func() *Session
	limit      int
}

// NewSessionPool builds a pool that creates a fresh Session per unit via
// newSession (so each gets its own macro table seeded identically but
// mutated independently). limit caps concurrent Sessions; 0 means
// unbounded (bounded only by errgroup's scheduling of goroutines).
func NewSessionPool(newSession func() *Session, limit int) *SessionPool {
	return &SessionPool{newSession: newSession, limit: limit}
}

// Run preprocesses every unit concurrently, returning one Result per input
// unit in the same order units was given. The first Session to return an
// error via ctx cancellation stops new work from starting, but every
// already-started unit still finishes and is reported.
func (p *SessionPool) Run(ctx context.Context, units []Unit) ([]Result, error) {
	results := make([]Result, len(units))
	g, gctx := errgroup.WithContext(ctx)
	if p.limit > 0 {
		g.SetLimit(p.limit)
	}
	for i, u := range units {
		i, u := i, u
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			sess := p.newSession()
			toks, diags := sess.Preprocess(u.Source, u.SourceName)
			results[i] = Result{Unit: u, Tokens: toks, Diagnostics: diags}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
