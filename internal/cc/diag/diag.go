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

// Package diag defines the diagnostic record shared by every stage of the
// preprocessor pipeline: the lexer, the textual pre-pass, the macro table,
// the expression evaluator, the directive handler and the expansion engine
// all report through the same Diagnostic type so a driver can present a
// single, source-ordered list to its caller.
package diag

import "fmt"

// Severity classifies how a Diagnostic should affect the surrounding session.
type Severity int

const (
	Warning Severity = iota
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// Position locates a Diagnostic within a named source buffer. Line and Column
// are 1-based.
type Position struct {
	Source string
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%s:%d:%d", p.Source, p.Line, p.Column)
}

// Diagnostic is a single message produced while preprocessing a translation
// unit, in the format described by the core's external interface.
type Diagnostic struct {
	Severity Severity
	Pos      Position
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Severity, d.Message)
}

// Bag accumulates diagnostics in source order and tracks whether a Fatal or
// Error entry was ever recorded, which is how a session decides whether the
// translation unit as a whole failed.
type Bag struct {
	entries []Diagnostic
	failed  bool
}

func (b *Bag) Add(sev Severity, pos Position, format string, args ...any) {
	d := Diagnostic{Severity: sev, Pos: pos, Message: fmt.Sprintf(format, args...)}
	b.entries = append(b.entries, d)
	if sev == Error || sev == Fatal {
		b.failed = true
	}
}

// Failed reports whether any Error or Fatal diagnostic was recorded.
func (b *Bag) Failed() bool { return b.failed }

// All returns every diagnostic recorded so far, in source order.
func (b *Bag) All() []Diagnostic { return b.entries }
