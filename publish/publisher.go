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

// Package publish implements core.Publisher: merging a completed stage
// table into its target table by grain, then clearing the DLQ rows that
// merge superseded.
package publish

import (
	"context"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/sourceconfig"
)

// Publisher merges one file's stage table into its SourceConfig's target
// table, then reconciles the DLQ for grain keys the merge resolved.
type Publisher struct {
	adapter   core.Adapter
	cfg       *sourceconfig.SourceConfig
	stage     core.StageTable
	grainKeys []string

	inserts int64
	updates int64
}

// New builds a Publisher for one file's stage table. grainKeys are the
// grain keys of every row that passed validation in this file: exactly the
// set that either got published fresh or could be correcting a prior DLQ
// entry sharing the same grain.
func New(adapter core.Adapter, cfg *sourceconfig.SourceConfig, stage core.StageTable, grainKeys []string) *Publisher {
	return &Publisher{adapter: adapter, cfg: cfg, stage: stage, grainKeys: grainKeys}
}

// Publish merges the stage table into the target table by the
// SourceConfig's grain, recording insert/update counts for the run log.
func (p *Publisher) Publish(ctx context.Context) error {
	inserts, updates, err := p.adapter.Merge(ctx, p.stage, p.cfg.TableName, p.cfg.Grain, p.cfg.Schema.Names())
	if err != nil {
		return core.NewInternalError(core.PublishFailed, "merge", err)
	}
	p.inserts = inserts
	p.updates = updates
	return nil
}

// ReconcileDLQ deletes DLQ rows for this source whose grain key now has a
// successfully published row, i.e. a previously-bad row was corrected and
// resubmitted in this or an earlier successful load.
func (p *Publisher) ReconcileDLQ(ctx context.Context) error {
	if len(p.grainKeys) == 0 {
		return nil
	}
	if err := p.adapter.DeleteResolvedDLQ(ctx, p.cfg.Name, p.grainKeys); err != nil {
		return core.NewInternalError(core.PublishFailed, "reconcile_dlq_delete", err)
	}
	return nil
}

func (p *Publisher) PublishInserts() int64 { return p.inserts }
func (p *Publisher) PublishUpdates() int64 { return p.updates }

var _ core.Publisher = (*Publisher)(nil)
