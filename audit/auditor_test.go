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

package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/sourceconfig"
)

type fakeAdapter struct {
	core.Adapter
	results map[string]interface{}
	err     error
}

func (f *fakeAdapter) ExecuteScalar(ctx context.Context, query string) (interface{}, error) {
	if f.err != nil {
		return nil, f.err
	}
	if v, ok := f.results[query]; ok {
		return v, nil
	}
	return int64(0), nil
}

func testCfg() *sourceconfig.SourceConfig {
	return &sourceconfig.SourceConfig{
		Name:  "orders",
		Grain: []string{"order_id"},
		AuditQueries: []sourceconfig.AuditQuery{
			{Name: "no_nulls", SQL: "SELECT COUNT(*) FROM stg WHERE customer_id IS NULL", Predicate: "= 0"},
		},
	}
}

func TestAuditGrainPassesWhenNoDuplicates(t *testing.T) {
	a := New(&fakeAdapter{}, testCfg(), core.StageTable{Name: "stg_orders_1", SourceName: "orders"})
	require.NoError(t, a.AuditGrain(context.Background()))
}

func TestAuditGrainFailsWhenDuplicatesFound(t *testing.T) {
	adapter := &fakeAdapter{results: map[string]interface{}{}}
	a := New(adapter, testCfg(), core.StageTable{Name: "stg_orders_1", SourceName: "orders"})
	adapter.results["SELECT COUNT(*) FROM (SELECT order_id FROM stg_orders_1 GROUP BY order_id HAVING COUNT(*) > 1) dup"] = int64(2)

	err := a.AuditGrain(context.Background())
	require.Error(t, err)
	var fe *core.FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, core.GrainValidationError, fe.Kind)
}

func TestAuditDataFailsWhenPredicateUnsatisfied(t *testing.T) {
	adapter := &fakeAdapter{results: map[string]interface{}{
		"SELECT COUNT(*) FROM stg WHERE customer_id IS NULL": int64(5),
	}}
	a := New(adapter, testCfg(), core.StageTable{Name: "stg_orders_1", SourceName: "orders"})

	err := a.AuditData(context.Background())
	require.Error(t, err)
	var fe *core.FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, core.AuditFailedError, fe.Kind)
}

func TestAuditGrainReturnsInternalErrorOnQueryFailure(t *testing.T) {
	adapter := &fakeAdapter{err: errors.New("connection reset")}
	a := New(adapter, testCfg(), core.StageTable{Name: "stg_orders_1", SourceName: "orders"})

	err := a.AuditGrain(context.Background())
	require.Error(t, err)
	var ie *core.InternalError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, core.DBUnavailable, ie.Kind)
}

func TestAuditDataReturnsInternalErrorOnQueryFailure(t *testing.T) {
	adapter := &fakeAdapter{err: errors.New("connection reset")}
	a := New(adapter, testCfg(), core.StageTable{Name: "stg_orders_1", SourceName: "orders"})

	err := a.AuditData(context.Background())
	require.Error(t, err)
	var ie *core.InternalError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, core.DBUnavailable, ie.Kind)
}

func TestSatisfiesPredicate(t *testing.T) {
	ok, err := satisfiesPredicate(0, "= 0")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = satisfiesPredicate(5, ">= 100")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = satisfiesPredicate(0, "bogus")
	assert.Error(t, err)
}
