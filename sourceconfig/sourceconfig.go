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

// Package sourceconfig declares the SourceConfig data model: the immutable,
// process-lifetime binding between a filename pattern and a target table,
// schema, grain, validation rules, audits, and notification policy.
package sourceconfig

import (
	"fmt"

	"github.com/fileloader/fileloader/core"
)

// FileType tags which Reader implementation a SourceConfig requires.
type FileType string

const (
	CSV     FileType = "csv"
	Excel   FileType = "excel"
	JSON    FileType = "json"
	Parquet FileType = "parquet"
)

// AuditQuery is a single user-supplied post-write check: an SQL template
// producing one scalar, plus the predicate that scalar must satisfy.
type AuditQuery struct {
	Name      string `yaml:"name"`
	SQL       string `yaml:"sql"`
	Predicate string `yaml:"predicate"` // e.g. "= 0", ">= 100"
}

// NotificationPolicy controls who is emailed and which failure kinds page.
type NotificationPolicy struct {
	Recipients []string `yaml:"recipients"`
	CC         []string `yaml:"cc"`
	Enabled    []core.FailureKind `yaml:"enabled_kinds"`
}

// IsEnabled reports whether kind should trigger a notification. An empty
// Enabled list means all file-level kinds notify, matching the original
// system's default of "always email on file failure."
func (p NotificationPolicy) IsEnabled(kind core.FailureKind) bool {
	if len(p.Enabled) == 0 {
		return kind.IsFileLevel()
	}
	for _, k := range p.Enabled {
		if k == kind {
			return true
		}
	}
	return false
}

// SourceConfig is the declarative binding of a filename pattern to
// everything FileLoader needs to ingest matching files. Instances are
// constructed once at startup and never mutated afterward.
type SourceConfig struct {
	Name                     string              `yaml:"name"`
	FilePattern              string              `yaml:"file_pattern"`
	FileType                 FileType            `yaml:"file_type"`
	Gzip                     bool                `yaml:"gzip"`
	TableName                string              `yaml:"table_name"`
	Schema                   core.Schema         `yaml:"-"`
	SchemaFields             []core.FieldSchema  `yaml:"schema"`
	Grain                    []string            `yaml:"grain"`
	ValidationErrorThreshold int                 `yaml:"validation_error_threshold"`
	AuditQueries             []AuditQuery        `yaml:"audit_queries"`
	Notifications            NotificationPolicy  `yaml:"notifications"`

	// Format-specific options.
	Delimiter string `yaml:"delimiter"`
	Encoding  string `yaml:"encoding"`
	SkipRows  int    `yaml:"skip_rows"`
	SheetName string `yaml:"sheet_name"`
	ArrayPath string `yaml:"array_path"`
}

// Validate checks the invariants spec.md requires of a SourceConfig: grain
// fields are a subset of the schema and are all non-nullable.
func (s *SourceConfig) Validate() error {
	s.Schema = core.Schema{Fields: s.SchemaFields}
	if s.Name == "" {
		return fmt.Errorf("sourceconfig: name is required")
	}
	if len(s.Grain) == 0 {
		return fmt.Errorf("sourceconfig %s: grain must be non-empty", s.Name)
	}
	for _, g := range s.Grain {
		field, ok := s.Schema.Field(g)
		if !ok {
			return fmt.Errorf("sourceconfig %s: grain field %q is not in schema", s.Name, g)
		}
		if field.Nullable {
			return fmt.Errorf("sourceconfig %s: grain field %q must be non-nullable", s.Name, g)
		}
	}
	if s.ValidationErrorThreshold < 0 {
		return fmt.Errorf("sourceconfig %s: validation_error_threshold must be >= 0", s.Name)
	}
	return nil
}

// GrainKey deterministically joins a record's grain field values into a
// single comparable string, used both for the streaming duplicate-grain
// pre-check and for DLQ self-healing lookups.
func (s *SourceConfig) GrainKey(record core.Record) string {
	key := ""
	for i, g := range s.Grain {
		if i > 0 {
			key += "\x1f"
		}
		key += fmt.Sprintf("%v", record[g])
	}
	return key
}

// StageTableName derives the deterministic ephemeral stage table name.
func (s *SourceConfig) StageTableName(fileLoadID int64) string {
	return fmt.Sprintf("stg_%s_%d", s.Name, fileLoadID)
}
