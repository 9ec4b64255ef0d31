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

package writers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileloader/fileloader/core"
)

type fakeAdapter struct {
	core.Adapter
	stageBatches [][]core.Record
	dlqBatches   [][]core.ValidationFailure
}

func (f *fakeAdapter) BulkInsertStage(ctx context.Context, stage core.StageTable, records []core.Record) error {
	cp := append([]core.Record(nil), records...)
	f.stageBatches = append(f.stageBatches, cp)
	return nil
}

func (f *fakeAdapter) BulkInsertDLQ(ctx context.Context, rows []core.ValidationFailure) error {
	cp := append([]core.ValidationFailure(nil), rows...)
	f.dlqBatches = append(f.dlqBatches, cp)
	return nil
}

func TestStageWriterFlushesAtBatchSize(t *testing.T) {
	adapter := &fakeAdapter{}
	w := New(adapter, core.StageTable{Name: "stg_x_1"}, 2)

	outcomes := []core.ValidationOutcome{
		{Valid: true, Record: core.Record{"id": 1}},
		{Valid: true, Record: core.Record{"id": 2}},
		{Valid: true, Record: core.Record{"id": 3}},
	}
	require.NoError(t, w.Write(context.Background(), outcomes))

	assert.Len(t, adapter.stageBatches, 1)
	assert.Len(t, adapter.stageBatches[0], 2)
	assert.EqualValues(t, 2, w.RowsWrittenToStage())

	require.NoError(t, w.Flush(context.Background()))
	assert.Len(t, adapter.stageBatches, 2)
	assert.Len(t, adapter.stageBatches[1], 1)
	assert.EqualValues(t, 3, w.RowsWrittenToStage())
}

func TestStageWriterPartitionsValidAndDLQ(t *testing.T) {
	adapter := &fakeAdapter{}
	w := New(adapter, core.StageTable{Name: "stg_x_1"}, 10)

	outcomes := []core.ValidationOutcome{
		{Valid: true, Record: core.Record{"id": 1}},
		{Valid: false, DLQRow: core.ValidationFailure{SourceRowNumber: 2}},
	}
	require.NoError(t, w.Write(context.Background(), outcomes))
	require.NoError(t, w.Flush(context.Background()))

	assert.EqualValues(t, 1, w.RowsWrittenToStage())
	assert.EqualValues(t, 1, w.RowsWrittenToDLQ())
	assert.Len(t, adapter.stageBatches, 1)
	assert.Len(t, adapter.dlqBatches, 1)
}

func TestStageWriterFlushIsNoOpWhenEmpty(t *testing.T) {
	adapter := &fakeAdapter{}
	w := New(adapter, core.StageTable{Name: "stg_x_1"}, 10)

	require.NoError(t, w.Flush(context.Background()))
	assert.Empty(t, adapter.stageBatches)
	assert.Empty(t, adapter.dlqBatches)
}
