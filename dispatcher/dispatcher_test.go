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

package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/sourceconfig"
)

type fakeStore struct {
	core.FileStore
	files   []core.FileInfo
	mu      sync.Mutex
	moved   []string
	archived []string
}

func (f *fakeStore) List(ctx context.Context, dir string) ([]core.FileInfo, error) {
	return f.files, nil
}

func (f *fakeStore) Move(ctx context.Context, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.moved = append(f.moved, src+"->"+dst)
	return nil
}

func (f *fakeStore) Archive(ctx context.Context, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, src+"->"+dst)
	return nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	webhooks []string
}

func (f *fakeNotifier) Email(ctx context.Context, recipients, cc []string, subject, body string) error {
	return nil
}

func (f *fakeNotifier) Webhook(ctx context.Context, level, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks = append(f.webhooks, title)
	return nil
}

type fakeRunner struct {
	failPaths map[string]error
	panicPath string
}

func (f *fakeRunner) Run(ctx context.Context, job core.FileJob, source *sourceconfig.SourceConfig) error {
	if job.Path == f.panicPath {
		panic("boom")
	}
	if err, ok := f.failPaths[job.Path]; ok {
		return err
	}
	return nil
}

func testRegistry(t *testing.T) *sourceconfig.Registry {
	reg, err := sourceconfig.NewRegistry([]*sourceconfig.SourceConfig{
		{
			Name: "orders", FilePattern: "orders_*.csv", TableName: "orders",
			Grain:  []string{"id"},
			Schema: core.Schema{Fields: []core.FieldSchema{{Name: "id", Type: core.FieldInt}}},
			SchemaFields: []core.FieldSchema{{Name: "id", Type: core.FieldInt}},
		},
	})
	require.NoError(t, err)
	return reg
}

func TestDispatcherRunSucceedsAndFails(t *testing.T) {
	store := &fakeStore{files: []core.FileInfo{
		{Path: "/drop/orders_1.csv"},
		{Path: "/drop/orders_2.csv"},
		{Path: "/drop/unknown.txt"},
	}}
	runner := &fakeRunner{failPaths: map[string]error{
		"/drop/orders_2.csv": core.NewFileError(core.MissingColumns, "orders", "orders_2.csv", nil),
	}}
	d := New(Config{Store: store, Registry: testRegistry(t), Runner: runner, Workers: 2, DropDir: "/drop", ArchiveDir: "/archive", QuarantineDir: "/quarantine"})

	jobs, err := NewDiscovery(store, "/drop").Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	summary := d.Run(context.Background(), jobs)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.NoSource)
	assert.Contains(t, store.archived, "/drop/unknown.txt->/archive/unknown.txt")
}

func TestDispatcherRecoversWorkerPanic(t *testing.T) {
	store := &fakeStore{files: []core.FileInfo{{Path: "/drop/orders_1.csv"}}}
	runner := &fakeRunner{panicPath: "/drop/orders_1.csv"}
	notifier := &fakeNotifier{}
	d := New(Config{Store: store, Registry: testRegistry(t), Runner: runner, Notifier: notifier, Workers: 1, DropDir: "/drop", ArchiveDir: "/archive", QuarantineDir: "/quarantine"})

	jobs, err := NewDiscovery(store, "/drop").Discover(context.Background())
	require.NoError(t, err)

	summary := d.Run(context.Background(), jobs)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, core.WorkerPanic, summary.Failures[0].FailureKind)
	assert.Contains(t, store.moved, "/drop/orders_1.csv->/drop/orders_1.csv")
	assert.Len(t, notifier.webhooks, 1)
}

func TestSummarizeFormatsCounts(t *testing.T) {
	s := Summary{Total: 4, Succeeded: 2, Failed: 1, Duplicate: 1}
	assert.Equal(t, fmt.Sprintf("processed 4 file(s): 2 succeeded, 1 failed, 1 duplicate, 0 unmatched"), s.Summarize())
}
