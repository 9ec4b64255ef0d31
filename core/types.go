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

// Package core defines the domain types shared by every FileLoader
// component: records, batches, file jobs, and the log/DLQ row shapes.
//
// This file contains the primary record, batch, and bookkeeping types.

import "time"

// Record represents a single row of a file, keyed by schema field name.
// Pre-validation it holds raw values; post-validation it holds values
// coerced to the field's declared semantic type.
type Record map[string]interface{}

// Batch is an in-memory ordered sequence of records handed between pipeline
// stages. StartRow is the 1-based source row number of Records[0]; row
// numbers are monotone and contiguous within a single Reader's output.
type Batch struct {
	Records  []Record
	StartRow int64
}

// Len returns the number of records in the batch.
func (b Batch) Len() int { return len(b.Records) }

// JobState is the lifecycle state of a FileJob.
type JobState string

const (
	JobQueued    JobState = "Queued"
	JobMatched   JobState = "Matched"
	JobRunning   JobState = "Running"
	JobSucceeded JobState = "Succeeded"
	JobFailed    JobState = "Failed"
)

// FileJob is produced by FileDiscovery and consumed once by the Dispatcher.
// A FileJob is owned by the queue, then transferred exclusively to one
// worker; it is never shared between workers.
type FileJob struct {
	Path         string
	Size         int64
	Extension    string
	DiscoveredAt time.Time
	SourceName   string // set once Matched
	WorkerID     int
	State        JobState
	FailureKind  FailureKind // meaningful only when State == JobFailed
}

// ValidationFailure is a single DLQ-bound row: a record that failed schema,
// type, rule, or grain-uniqueness validation. Idempotency key is
// (FileLoadID, SourceRowNumber).
type ValidationFailure struct {
	FileLoadID      int64
	SourceRowNumber int64
	FailedFields    []string
	Reasons         []string
	OriginalRowJSON []byte
	GrainKey        string
}

// LogState is the terminal (or in-flight) state recorded in file_load_log.
type LogState string

const (
	LogRunning   LogState = "Running"
	LogSucceeded LogState = "Succeeded"
	LogFailed    LogState = "Failed"
	LogDuplicate LogState = "Duplicate"
	LogCancelled LogState = "Cancelled"
)

// FileLoadLog mirrors one row of the append-only file_load_log table.
type FileLoadLog struct {
	FileLoadID    int64
	SourceName    string
	Filename      string
	ContentHash   string
	StartedAt     time.Time
	EndedAt       time.Time
	State         LogState
	RowsRead      int64
	RowsValid     int64
	RowsInvalid   int64
	RowsPublished int64
	ErrorKind     FailureKind
	ErrorDetail   string
}

// StageTable identifies the ephemeral per-file staging table. Name is
// derived deterministically from (SourceName, FileLoadID). The adapters
// create it with the target schema's columns plus the etl_row_hash and
// etl_file_load_id bookkeeping columns; no index is created on grain fields.
type StageTable struct {
	Name       string
	SourceName string
	FileLoadID int64
}
