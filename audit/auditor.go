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

// Package audit implements core.Auditor: the grain-uniqueness check and any
// user-declared AuditQuery checks a SourceConfig carries, run read-only
// against a completed stage table before it is merged into its target.
package audit

import (
	"fmt"
	"strconv"
	"strings"

	"context"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/sourceconfig"
)

// Auditor runs post-write checks against one file's stage table, never
// mutating it.
type Auditor struct {
	adapter core.Adapter
	cfg     *sourceconfig.SourceConfig
	stage   core.StageTable
}

// New builds an Auditor for one file's stage table.
func New(adapter core.Adapter, cfg *sourceconfig.SourceConfig, stage core.StageTable) *Auditor {
	return &Auditor{adapter: adapter, cfg: cfg, stage: stage}
}

// AuditGrain verifies the stage table has no duplicate grain keys; the
// validator's streaming pre-check should already guarantee this, so a
// failure here indicates the pre-check and the stage table have diverged.
func (a *Auditor) AuditGrain(ctx context.Context) error {
	cols := strings.Join(a.cfg.Grain, ", ")
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT %s FROM %s GROUP BY %s HAVING COUNT(*) > 1) dup",
		cols, a.stage.Name, cols,
	)
	result, err := a.adapter.ExecuteScalar(ctx, query)
	if err != nil {
		return core.NewInternalError(core.DBUnavailable, "audit_grain_query", err)
	}
	dupes := toInt64(result)
	if dupes > 0 {
		return core.NewFileError(core.GrainValidationError, a.cfg.Name, a.stage.SourceName, map[string]interface{}{
			"duplicate_grain_count": dupes,
		})
	}
	return nil
}

// AuditData runs every user-declared AuditQuery against the stage table and
// checks its scalar result against the declared predicate.
func (a *Auditor) AuditData(ctx context.Context) error {
	for _, q := range a.cfg.AuditQueries {
		result, err := a.adapter.ExecuteScalar(ctx, q.SQL)
		if err != nil {
			return core.NewInternalError(core.DBUnavailable, "audit_query:"+q.Name, err)
		}
		ok, err := satisfiesPredicate(toInt64(result), q.Predicate)
		if err != nil {
			return core.NewInternalError(core.DBUnavailable, "audit_predicate:"+q.Name, err)
		}
		if !ok {
			return core.NewFileError(core.AuditFailedError, a.cfg.Name, a.stage.SourceName, map[string]interface{}{
				"audit_name":   q.Name,
				"audit_result": result,
				"predicate":    q.Predicate,
			})
		}
	}
	return nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		i, _ := strconv.ParseInt(string(n), 10, 64)
		return i
	default:
		return 0
	}
}

// satisfiesPredicate evaluates predicates of the form "<op> <value>", e.g.
// "= 0" or ">= 100", against an audit query's scalar result.
func satisfiesPredicate(result int64, predicate string) (bool, error) {
	fields := strings.Fields(strings.TrimSpace(predicate))
	if len(fields) != 2 {
		return false, fmt.Errorf("audit: malformed predicate %q", predicate)
	}
	threshold, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return false, fmt.Errorf("audit: malformed predicate threshold %q: %w", predicate, err)
	}
	switch fields[0] {
	case "=", "==":
		return result == threshold, nil
	case "!=":
		return result != threshold, nil
	case ">":
		return result > threshold, nil
	case ">=":
		return result >= threshold, nil
	case "<":
		return result < threshold, nil
	case "<=":
		return result <= threshold, nil
	default:
		return false, fmt.Errorf("audit: unknown predicate operator %q", fields[0])
	}
}

var _ core.Auditor = (*Auditor)(nil)
