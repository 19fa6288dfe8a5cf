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

// Package config loads a translation unit's initial state -- predefined
// macros, include search path, target platform -- from a YAML document, the
// same shape of configuration surface the teacher's own Bazel tooling
// expresses as YAML/JSON rather than ad hoc flags (flag parsing is out of
// this core's scope; see spec.md §1).
package config

import (
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/LogicEu/zcc"
	"github.com/LogicEu/zcc/internal/cc/include"
	"github.com/LogicEu/zcc/internal/cc/platform"
)

// PreprocessorConfig is the YAML-loadable description of a translation
// unit's starting state.
type PreprocessorConfig struct {
	// Macros maps name to replacement text for object-like predefined
	// macros ("-D name=value"); an empty value defines the macro with
	// body "1", matching the command-line "-D name" convention.
	Macros map[string]string `yaml:"macros"`

	// IncludePaths is the ordered -I search list; entries may be glob
	// patterns (see include.PathResolver).
	IncludePaths []string `yaml:"include_paths"`

	// Platform selects a predefined-macro set by "os/arch" name, e.g.
	// "linux/x86_64"; empty means none.
	Platform string `yaml:"platform"`
}

// Load parses a PreprocessorConfig from YAML bytes.
func Load(data []byte) (*PreprocessorConfig, error) {
	var c PreprocessorConfig
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing preprocessor config: %w", err)
	}
	return &c, nil
}

// NewSession builds a zcc.Session from c, resolving #include references
// against fsys.
func (c *PreprocessorConfig) NewSession(fsys fs.FS) (*zcc.Session, error) {
	sess := zcc.NewSession(c.Macros, include.NewPathResolver(fsys, c.IncludePaths))
	if c.Platform == "" {
		return sess, nil
	}
	p, err := platform.Parse(c.Platform)
	if err != nil {
		return nil, fmt.Errorf("config: platform %q: %w", c.Platform, err)
	}
	sess.WithPlatform(platform.NewMacroTable(p))
	return sess, nil
}
