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

// Package include resolves #include operands to file contents, honoring
// the standard's quoted-vs-angled search order and this core's bounded
// include depth.
package include

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Delim distinguishes the two #include spellings.
type Delim int

const (
	Quoted Delim = iota // #include "name"
	Angled              // #include <name>
)

// Ref is a parsed #include operand.
type Ref struct {
	Delim Delim
	Name  string // header name with delimiters stripped
}

// DefaultMaxDepth bounds #include nesting so a file that (directly or
// indirectly) includes itself without a header guard fails cleanly instead
// of exhausting memory.
const DefaultMaxDepth = 200

// ErrNotFound is returned by Resolver.Resolve when no search directory
// contains the requested header.
type ErrNotFound struct {
	Name string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%q: no such file or directory", e.Name)
}

// Resolver turns a Ref, plus the directory of the file containing the
// #include, into file content.
type Resolver interface {
	Resolve(ref Ref, fromDir string) (path string, data []byte, err error)
}

// PathResolver is the default Resolver: a quoted include first searches
// fromDir (the includer's own directory) and then, like an angled include,
// searches SearchPath in order. Each SearchPath entry may be a
// doublestar glob pattern (e.g. "vendor/**/include"), expanded against FS
// once per Resolve call so newly created directories are picked up.
type PathResolver struct {
	FS         fs.FS
	SearchPath []string
}

// NewPathResolver builds a PathResolver rooted at fsys, searching dirs in
// order after the includer's own directory for quoted includes.
func NewPathResolver(fsys fs.FS, dirs []string) *PathResolver {
	return &PathResolver{FS: fsys, SearchPath: dirs}
}

func (r *PathResolver) candidateDirs(fromDir string, delim Delim) []string {
	var dirs []string
	if delim == Quoted && fromDir != "" {
		dirs = append(dirs, fromDir)
	}
	for _, pattern := range r.SearchPath {
		matches, err := doublestar.Glob(r.FS, pattern)
		if err != nil {
			continue
		}
		if len(matches) == 0 {
			// Not a glob, or a glob that matched nothing: treat the
			// pattern itself as a literal directory, so a plain "-I"
			// style entry still works without glob metacharacters.
			dirs = append(dirs, pattern)
			continue
		}
		dirs = append(dirs, matches...)
	}
	return dirs
}

// Resolve implements Resolver.
func (r *PathResolver) Resolve(ref Ref, fromDir string) (string, []byte, error) {
	for _, dir := range r.candidateDirs(fromDir, ref.Delim) {
		candidate := filepath.ToSlash(filepath.Join(dir, ref.Name))
		data, err := fs.ReadFile(r.FS, candidate)
		if err == nil {
			return candidate, data, nil
		}
	}
	return "", nil, &ErrNotFound{Name: ref.Name}
}

// Stack tracks the chain of files currently being included, both to bound
// nesting depth and to let a driver implement "#pragma once" and the
// classic include-guard idiom by recognizing a file already open higher up
// the stack.
type Stack struct {
	paths    []string
	MaxDepth int
}

// NewStack returns an empty include stack with DefaultMaxDepth.
func NewStack() *Stack {
	return &Stack{MaxDepth: DefaultMaxDepth}
}

// Push records path as newly entered, failing if doing so would exceed
// MaxDepth or if path is already on the stack (a direct or indirect
// self-include with no effective guard).
func (s *Stack) Push(path string) error {
	if len(s.paths) >= s.MaxDepth {
		return fmt.Errorf("#include nested too deeply (limit %d), possibly in a self-inclusion cycle", s.MaxDepth)
	}
	for _, p := range s.paths {
		if p == path {
			return fmt.Errorf("%q includes itself", path)
		}
	}
	s.paths = append(s.paths, path)
	return nil
}

// Pop removes the most recently pushed path.
func (s *Stack) Pop() {
	if len(s.paths) > 0 {
		s.paths = s.paths[:len(s.paths)-1]
	}
}

// Depth reports how many files are currently open.
func (s *Stack) Depth() int { return len(s.paths) }

// Top returns the path of the file currently being processed, or "" if the
// stack is empty.
func (s *Stack) Top() string {
	if len(s.paths) == 0 {
		return ""
	}
	return s.paths[len(s.paths)-1]
}
