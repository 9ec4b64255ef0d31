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

// Package dispatcher discovers files in a FileStore's drop directory,
// matches them against a sourceconfig.Registry, and fans them out to a
// bounded worker pool.
package dispatcher

import (
	"context"
	"time"

	"github.com/fileloader/fileloader/core"
)

// Discovery lists a directory once per Discover call and turns each file into a
// FileJob, in FileStore.List's order (implementation-defined, so callers
// should not rely on a specific ordering beyond "stable within one run").
type Discovery struct {
	store core.FileStore
	dir   string
}

// NewDiscovery builds a Discovery over one FileStore directory.
func NewDiscovery(store core.FileStore, dir string) *Discovery {
	return &Discovery{store: store, dir: dir}
}

// Discover lists every file currently in the drop directory.
func (d *Discovery) Discover(ctx context.Context) ([]core.FileJob, error) {
	infos, err := d.store.List(ctx, d.dir)
	if err != nil {
		return nil, err
	}
	jobs := make([]core.FileJob, 0, len(infos))
	for _, fi := range infos {
		jobs = append(jobs, core.FileJob{
			Path:         fi.Path,
			Size:         fi.Size,
			Extension:    fi.Extension,
			DiscoveredAt: time.Now(),
			State:        core.JobQueued,
		})
	}
	return jobs, nil
}
