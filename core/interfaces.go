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

package core

import (
	"context"
)

// Package core defines the core interfaces for FileLoader: the
// batch-oriented stage contracts (Reader, Validator, Writer, Auditor,
// Publisher) and the external capability interfaces (FileStore, Adapter,
// Notifier) that the pipeline is built from.

// Reader streams a file's contents as a sequence of Batches. One Reader is
// constructed per file per pipeline run and is not reused.
type Reader interface {
	// Next returns the next Batch or io.EOF when the file is exhausted.
	// Implementations must enforce the header/empty-file contract of their
	// format before the first Batch is returned.
	Next(ctx context.Context) (Batch, error)
	// StartingRowNumber returns the 1-based source row number that the
	// first record of the first Batch will carry.
	StartingRowNumber() int64
	// RowsRead returns the cumulative count of records yielded so far.
	RowsRead() int64
	Close() error
}

// ValidationOutcome pairs a record with its post-validation verdict.
type ValidationOutcome struct {
	Valid  bool
	Record Record                 // typed values, present when Valid
	DLQRow ValidationFailure      // present when !Valid
}

// Validator applies a SourceConfig's schema, rules, and grain pre-check to a
// Batch, returning one ValidationOutcome per input record in input order.
type Validator interface {
	Validate(ctx context.Context, batch Batch) ([]ValidationOutcome, error)
	// RecordsValidated and ValidationErrors report running totals across
	// every Batch seen so far, used for the threshold check.
	RecordsValidated() int64
	ValidationErrors() int64
	// SampleFailures returns up to the first 5 DLQ rows seen, for the
	// threshold-exceeded notification body.
	SampleFailures() []ValidationFailure
}

// Writer drains validated/invalid partitions into the stage table and DLQ
// table via bulk inserts, flushing whenever an internal buffer reaches the
// configured batch size and once more at end-of-stream.
type Writer interface {
	Write(ctx context.Context, outcomes []ValidationOutcome) error
	Flush(ctx context.Context) error
	RowsWrittenToStage() int64
	RowsWrittenToDLQ() int64
}

// Auditor runs the grain-uniqueness check and any user-supplied audit
// queries against a completed stage table. Each query runs as a plain
// scalar query on the adapter; no read-only transaction is opened.
type Auditor interface {
	AuditGrain(ctx context.Context) error
	AuditData(ctx context.Context) error
}

// Publisher merges a stage table into its target table by grain, then
// clears DLQ rows that the merge superseded.
type Publisher interface {
	Publish(ctx context.Context) error
	ReconcileDLQ(ctx context.Context) error
	PublishInserts() int64
	PublishUpdates() int64
}

// FileStore is the capability interface for local and object-store access
// to the drop/archive/duplicates/quarantine directories.
type FileStore interface {
	List(ctx context.Context, dir string) ([]FileInfo, error)
	Open(ctx context.Context, path string) (ReadCloser, error)
	Move(ctx context.Context, src, dst string) error
	// Copy duplicates src to dst, leaving src in place.
	Copy(ctx context.Context, src, dst string) error
	// Archive moves a file out of the drop directory into long-term
	// storage, distinct from Move in name only: used for dispositions
	// (unmatched files) that are a recorded outcome, not a failure.
	Archive(ctx context.Context, src, dst string) error
	Delete(ctx context.Context, path string) error
	Hash(ctx context.Context, path string) (string, error)
}

// FileInfo describes one entry returned by FileStore.List.
type FileInfo struct {
	Path      string
	Size      int64
	ModTime   int64
	Extension string
}

// ReadCloser is the minimal byte-stream interface a FileStore.Open result
// must satisfy; satisfied by *os.File and any io.ReadCloser.
type ReadCloser interface {
	Read(p []byte) (n int, err error)
	Close() error
}

// Adapter is the capability interface each SQL/analytic dialect implements.
type Adapter interface {
	Dialect() string
	Ping(ctx context.Context) error
	CreateStageTable(ctx context.Context, stage StageTable, schema Schema) error
	DropStageTable(ctx context.Context, stage StageTable) error
	BulkInsertStage(ctx context.Context, stage StageTable, records []Record) error
	BulkInsertDLQ(ctx context.Context, rows []ValidationFailure) error
	ExecuteScalar(ctx context.Context, sql string) (interface{}, error)
	Merge(ctx context.Context, stage StageTable, target string, grain []string, columns []string) (inserts, updates int64, err error)
	DeleteResolvedDLQ(ctx context.Context, sourceName string, grainKeys []string) error
	NextFileLoadID(ctx context.Context) (int64, error)
	InsertLogRow(ctx context.Context, log FileLoadLog) error
	UpdateLogRow(ctx context.Context, log FileLoadLog) error
	FindSucceededByHash(ctx context.Context, filename, contentHash string) (bool, error)
}

// Notifier is the capability interface for stakeholder/operator alerting.
type Notifier interface {
	Email(ctx context.Context, recipients, cc []string, subject, body string) error
	Webhook(ctx context.Context, level string, title, message string) error
}
