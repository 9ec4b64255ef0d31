//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

package sourceconfig

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// Registry holds the ordered list of SourceConfigs a process was started
// with. Match order is deterministic: the first pattern match wins.
// A Registry is built once at startup and never mutated afterward.
type Registry struct {
	sources []*SourceConfig
}

// NewRegistry constructs a Registry from an already-validated slice, in the
// order they should be matched.
func NewRegistry(sources []*SourceConfig) (*Registry, error) {
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("sourceconfig registry: duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
	}
	return &Registry{sources: sources}, nil
}

// LoadDir reads every *.yaml/*.yml file in dir as a SourceConfig and builds
// a Registry from them, sorted by filename for a deterministic match order.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sourceconfig: reading %s: %w", dir, err)
	}
	var sources []*SourceConfig
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		full := path.Join(dir, e.Name())
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, fmt.Errorf("sourceconfig: reading %s: %w", full, err)
		}
		var sc SourceConfig
		if err := yaml.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("sourceconfig: parsing %s: %w", full, err)
		}
		sources = append(sources, &sc)
	}
	return NewRegistry(sources)
}

// Sources returns the ordered slice of registered SourceConfigs.
func (r *Registry) Sources() []*SourceConfig { return r.sources }

// ByName looks up a SourceConfig by its unique name, used by the Dispatcher
// to resolve a matched job's source.
func (r *Registry) ByName(name string) (*SourceConfig, bool) {
	for _, s := range r.sources {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Match returns the first SourceConfig whose file pattern matches the base
// filename of path, or (nil, false) if no source claims it.
func (r *Registry) Match(filePath string) (*SourceConfig, bool) {
	base := strings.ToLower(path.Base(filePath))
	// A gzip-wrapped file matches on the pattern of its inner name too, so
	// "orders.csv.gz" still matches a source declared with "*.csv".
	trimmed := strings.TrimSuffix(base, ".gz")
	for _, s := range r.sources {
		pattern := strings.ToLower(s.FilePattern)
		if ok, _ := path.Match(pattern, base); ok {
			return s, true
		}
		if ok, _ := path.Match(pattern, trimmed); ok {
			return s, true
		}
	}
	return nil, false
}
