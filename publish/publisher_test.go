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

package publish

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/sourceconfig"
)

type fakeAdapter struct {
	core.Adapter
	mergeInserts, mergeUpdates int64
	mergeErr                   error
	deletedKeys                []string
	deleteErr                  error
}

func (f *fakeAdapter) Merge(ctx context.Context, stage core.StageTable, target string, grain, columns []string) (int64, int64, error) {
	return f.mergeInserts, f.mergeUpdates, f.mergeErr
}

func (f *fakeAdapter) DeleteResolvedDLQ(ctx context.Context, sourceName string, grainKeys []string) error {
	f.deletedKeys = grainKeys
	return f.deleteErr
}

func testCfg() *sourceconfig.SourceConfig {
	return &sourceconfig.SourceConfig{
		Name:      "orders",
		TableName: "orders",
		Grain:     []string{"order_id"},
		Schema:    core.Schema{Fields: []core.FieldSchema{{Name: "order_id", Type: core.FieldInt}}},
	}
}

func TestPublisherPublishRecordsCounts(t *testing.T) {
	adapter := &fakeAdapter{mergeInserts: 3, mergeUpdates: 2}
	p := New(adapter, testCfg(), core.StageTable{Name: "stg_orders_1"}, nil)

	require.NoError(t, p.Publish(context.Background()))
	assert.EqualValues(t, 3, p.PublishInserts())
	assert.EqualValues(t, 2, p.PublishUpdates())
}

func TestPublisherReconcileDLQPassesGrainKeys(t *testing.T) {
	adapter := &fakeAdapter{}
	p := New(adapter, testCfg(), core.StageTable{Name: "stg_orders_1"}, []string{"1001", "1002"})

	require.NoError(t, p.ReconcileDLQ(context.Background()))
	assert.Equal(t, []string{"1001", "1002"}, adapter.deletedKeys)
}

func TestPublisherReconcileDLQNoOpWhenNoKeys(t *testing.T) {
	adapter := &fakeAdapter{}
	p := New(adapter, testCfg(), core.StageTable{Name: "stg_orders_1"}, nil)

	require.NoError(t, p.ReconcileDLQ(context.Background()))
	assert.Nil(t, adapter.deletedKeys)
}
