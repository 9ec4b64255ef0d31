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

// Package pipeline runs the per-file Reader->Validator->Writer->Auditor->
// Publisher state machine; a single Runner is shared by every worker.
package pipeline

import "github.com/fileloader/fileloader/core"

// Outcome classifies how one file's run ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "Success"
	OutcomeFailure   Outcome = "Failure"
	OutcomeDuplicate Outcome = "Duplicate"
	OutcomeNoSource  Outcome = "NoSource"
)

// Result carries the full bookkeeping a completed run produced, whatever
// its Outcome, for logging and notification.
type Result struct {
	Outcome       Outcome
	FailureKind   core.FailureKind
	Err           error
	RowsRead      int64
	RowsValid     int64
	RowsInvalid   int64
	RowsPublished int64
	PublishInserts int64
	PublishUpdates int64
}
