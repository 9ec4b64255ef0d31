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

// Package validate implements core.Validator: schema coercion, per-field
// rule checks, and the streaming grain-duplicate pre-check, against one
// SourceConfig.
package validate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/sourceconfig"
)

const maxSampleFailures = 5

// Validator applies one SourceConfig's schema, rules, and grain
// pre-check to every Batch a Reader produces for a single file.
type Validator struct {
	cfg         *sourceconfig.SourceConfig
	fileLoadID  int64
	filename    string
	sortedKeys  []string
	seenGrain   map[string]bool
	patterns    map[string]*regexp.Regexp
	validated   int64
	errored     int64
	samples     []core.ValidationFailure
	nextRowSeen int64
}

// New builds a Validator scoped to one file's load.
func New(cfg *sourceconfig.SourceConfig, fileLoadID int64, filename string) *Validator {
	keys := append([]string(nil), cfg.Schema.Names()...)
	sort.Strings(keys)

	patterns := make(map[string]*regexp.Regexp)
	for _, f := range cfg.Schema.Fields {
		if f.Pattern != "" {
			if re, err := regexp.Compile(f.Pattern); err == nil {
				patterns[f.Name] = re
			}
		}
	}

	return &Validator{
		cfg:        cfg,
		fileLoadID: fileLoadID,
		filename:   filename,
		sortedKeys: keys,
		seenGrain:  make(map[string]bool),
		patterns:   patterns,
	}
}

// Validate coerces and rule-checks every record in batch, in order.
func (v *Validator) Validate(ctx context.Context, batch core.Batch) ([]core.ValidationOutcome, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	outcomes := make([]core.ValidationOutcome, 0, batch.Len())
	for i, rec := range batch.Records {
		rowNumber := batch.StartRow + int64(i)
		outcomes = append(outcomes, v.validateOne(rec, rowNumber))
	}
	return outcomes, nil
}

func (v *Validator) validateOne(rec core.Record, rowNumber int64) core.ValidationOutcome {
	coerced := make(core.Record, len(rec))
	var reasons []string
	var failedFields []string

	for _, field := range v.cfg.Schema.Fields {
		raw, present := rec[field.Name]
		if !present || raw == nil {
			if !field.Nullable {
				reasons = append(reasons, fmt.Sprintf("%s is required", field.Name))
				failedFields = append(failedFields, field.Name)
			}
			coerced[field.Name] = nil
			continue
		}

		val, err := coerce(raw, field.Type)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", field.Name, err))
			failedFields = append(failedFields, field.Name)
			continue
		}
		if reason := checkRules(field, val, v.patterns[field.Name]); reason != "" {
			reasons = append(reasons, reason)
			failedFields = append(failedFields, field.Name)
			continue
		}
		coerced[field.Name] = val
	}

	if len(reasons) == 0 {
		if grainKey := v.cfg.GrainKey(coerced); v.seenGrain[grainKey] {
			reasons = append(reasons, "duplicate grain key within file")
			failedFields = append(failedFields, v.cfg.Grain...)
		} else {
			v.seenGrain[grainKey] = true
		}
	}

	v.validated++

	if len(reasons) > 0 {
		v.errored++
		dlq := v.buildDLQRow(rec, rowNumber, failedFields, reasons)
		if len(v.samples) < maxSampleFailures {
			v.samples = append(v.samples, dlq)
		}
		return core.ValidationOutcome{Valid: false, DLQRow: dlq}
	}

	coerced["etl_row_hash"] = v.rowHash(coerced)
	coerced["etl_file_load_id"] = v.fileLoadID
	return core.ValidationOutcome{Valid: true, Record: coerced}
}

func (v *Validator) buildDLQRow(rec core.Record, rowNumber int64, failedFields, reasons []string) core.ValidationFailure {
	body, _ := json.Marshal(rec)
	return core.ValidationFailure{
		FileLoadID:      v.fileLoadID,
		SourceRowNumber: rowNumber,
		FailedFields:    failedFields,
		Reasons:         reasons,
		OriginalRowJSON: body,
		GrainKey:        v.cfg.GrainKey(rec),
	}
}

// rowHash hashes the sorted, coerced field values, matching the
// deterministic dedup hash the system this replaces stamps on every row.
func (v *Validator) rowHash(rec core.Record) string {
	h := sha256.New()
	for _, k := range v.sortedKeys {
		fmt.Fprintf(h, "%s=%v\x1f", k, rec[k])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (v *Validator) RecordsValidated() int64                { return v.validated }
func (v *Validator) ValidationErrors() int64                 { return v.errored }
func (v *Validator) SampleFailures() []core.ValidationFailure { return v.samples }

// CheckThreshold evaluates the error count once the whole file has been
// validated, never per-batch: a file's error count is only meaningful over
// its full row count. validation_error_threshold is an absolute count
// (default 0), not a rate: the rule is invalid_count > threshold.
func (v *Validator) CheckThreshold() error {
	if v.errored <= int64(v.cfg.ValidationErrorThreshold) {
		return nil
	}

	var sampleLines []string
	for _, s := range v.samples {
		sampleLines = append(sampleLines, fmt.Sprintf("row %d: %s", s.SourceRowNumber, strings.Join(s.Reasons, "; ")))
	}

	return core.NewFileError(core.ValidationThresholdExceeded, v.cfg.Name, v.filename, map[string]interface{}{
		"threshold":          v.cfg.ValidationErrorThreshold,
		"records_validated":  v.validated,
		"validation_errors":  v.errored,
		"additional_details": strings.Join(sampleLines, "\n"),
	})
}

// coerce converts a raw reader value (usually a string) to the field's
// declared semantic type.
func coerce(raw interface{}, t core.FieldType) (interface{}, error) {
	s, isString := raw.(string)

	switch t {
	case core.FieldString:
		if isString {
			return s, nil
		}
		return fmt.Sprintf("%v", raw), nil
	case core.FieldInt:
		if !isString {
			return raw, nil
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", s)
		}
		return n, nil
	case core.FieldFloat, core.FieldDecimal:
		if !isString {
			return raw, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", s)
		}
		return f, nil
	case core.FieldBool:
		if !isString {
			return raw, nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("not a boolean: %q", s)
		}
		return b, nil
	case core.FieldDate:
		if !isString {
			return raw, nil
		}
		return parseTime(s, []string{"2006-01-02", "01/02/2006", "2006/01/02"})
	case core.FieldDateTime:
		if !isString {
			return raw, nil
		}
		return parseTime(s, []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"})
	default:
		return raw, nil
	}
}

func parseTime(s string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("not a recognized date/time: %q", s)
}

// checkRules applies min/max/pattern/one-of constraints once a value has
// already been coerced to its declared type.
func checkRules(field core.FieldSchema, val interface{}, pattern *regexp.Regexp) string {
	if field.MinValue != nil || field.MaxValue != nil {
		if n, ok := numericValue(val); ok {
			if field.MinValue != nil && n < *field.MinValue {
				return fmt.Sprintf("%s: %v is below minimum %v", field.Name, n, *field.MinValue)
			}
			if field.MaxValue != nil && n > *field.MaxValue {
				return fmt.Sprintf("%s: %v exceeds maximum %v", field.Name, n, *field.MaxValue)
			}
		}
	}
	if pattern != nil {
		if s, ok := val.(string); ok && !pattern.MatchString(s) {
			return fmt.Sprintf("%s: %q does not match required pattern", field.Name, s)
		}
	}
	if len(field.OneOf) > 0 {
		s := fmt.Sprintf("%v", val)
		found := false
		for _, allowed := range field.OneOf {
			if allowed == s {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("%s: %q is not one of the allowed values", field.Name, s)
		}
	}
	return ""
}

func numericValue(val interface{}) (float64, bool) {
	switch v := val.(type) {
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

var _ core.Validator = (*Validator)(nil)
