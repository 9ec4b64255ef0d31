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

// Package writers implements core.Writer: it partitions validated batches
// into the stage-bound and DLQ-bound halves, buffers each side to a batch
// size, and flushes through an Adapter's bulk-insert calls.
package writers

import (
	"context"

	"github.com/fileloader/fileloader/core"
)

// StageWriter buffers ValidationOutcomes and flushes them to one Adapter's
// stage table and DLQ table once a buffer fills or Flush is called.
type StageWriter struct {
	adapter   core.Adapter
	stage     core.StageTable
	batchSize int

	validBuf []core.Record
	dlqBuf   []core.ValidationFailure

	toStage int64
	toDLQ   int64
}

// New builds a StageWriter bound to one stage table on adapter.
func New(adapter core.Adapter, stage core.StageTable, batchSize int) *StageWriter {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &StageWriter{adapter: adapter, stage: stage, batchSize: batchSize}
}

// Write buffers outcomes, flushing the valid and/or DLQ buffers separately
// whenever either reaches batchSize. A record that reached the DLQ still
// counts toward progress: partial success within a file is expected.
func (w *StageWriter) Write(ctx context.Context, outcomes []core.ValidationOutcome) error {
	for _, o := range outcomes {
		if o.Valid {
			w.validBuf = append(w.validBuf, o.Record)
			if len(w.validBuf) >= w.batchSize {
				if err := w.flushStage(ctx); err != nil {
					return err
				}
			}
		} else {
			w.dlqBuf = append(w.dlqBuf, o.DLQRow)
			if len(w.dlqBuf) >= w.batchSize {
				if err := w.flushDLQ(ctx); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Flush drains any remaining buffered rows; called once at end-of-file.
func (w *StageWriter) Flush(ctx context.Context) error {
	if err := w.flushStage(ctx); err != nil {
		return err
	}
	return w.flushDLQ(ctx)
}

func (w *StageWriter) flushStage(ctx context.Context) error {
	if len(w.validBuf) == 0 {
		return nil
	}
	if err := w.adapter.BulkInsertStage(ctx, w.stage, w.validBuf); err != nil {
		return err
	}
	w.toStage += int64(len(w.validBuf))
	w.validBuf = w.validBuf[:0]
	return nil
}

func (w *StageWriter) flushDLQ(ctx context.Context) error {
	if len(w.dlqBuf) == 0 {
		return nil
	}
	if err := w.adapter.BulkInsertDLQ(ctx, w.dlqBuf); err != nil {
		return err
	}
	w.toDLQ += int64(len(w.dlqBuf))
	w.dlqBuf = w.dlqBuf[:0]
	return nil
}

func (w *StageWriter) RowsWrittenToStage() int64 { return w.toStage }
func (w *StageWriter) RowsWrittenToDLQ() int64   { return w.toDLQ }

var _ core.Writer = (*StageWriter)(nil)
