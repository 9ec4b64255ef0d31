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

package pipeline

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/sourceconfig"
)

type memStore struct {
	mu      sync.Mutex
	files   map[string]string
	moved   []string
	copied  []string
	deleted []string
}

func newMemStore(path, content string) *memStore {
	return &memStore{files: map[string]string{path: content}}
}

func (m *memStore) List(ctx context.Context, dir string) ([]core.FileInfo, error) { return nil, nil }

func (m *memStore) Open(ctx context.Context, path string) (core.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[path]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader([]byte(content))), nil
}

func (m *memStore) Move(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moved = append(m.moved, src+"->"+dst)
	content := m.files[src]
	delete(m.files, src)
	m.files[dst] = content
	return nil
}

func (m *memStore) Archive(ctx context.Context, src, dst string) error {
	return m.Move(ctx, src, dst)
}

func (m *memStore) Copy(ctx context.Context, src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[src]
	if !ok {
		return io.ErrUnexpectedEOF
	}
	m.copied = append(m.copied, src+"->"+dst)
	m.files[dst] = content
	return nil
}

func (m *memStore) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, path)
	delete(m.files, path)
	return nil
}

func (m *memStore) Hash(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return "hash:" + m.files[path], nil
}

type memAdapter struct {
	mu            sync.Mutex
	nextID        int64
	stageRows     map[string][]core.Record
	dlqRows       []core.ValidationFailure
	succeeded     map[string]bool
	mergeInserts  int64
	mergeUpdates  int64
	forceMergeErr error
}

func newMemAdapter() *memAdapter {
	return &memAdapter{stageRows: map[string][]core.Record{}, succeeded: map[string]bool{}}
}

func (a *memAdapter) Dialect() string                  { return "mem" }
func (a *memAdapter) Ping(ctx context.Context) error    { return nil }
func (a *memAdapter) CreateStageTable(ctx context.Context, stage core.StageTable, schema core.Schema) error {
	return nil
}
func (a *memAdapter) DropStageTable(ctx context.Context, stage core.StageTable) error { return nil }

func (a *memAdapter) BulkInsertStage(ctx context.Context, stage core.StageTable, records []core.Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stageRows[stage.Name] = append(a.stageRows[stage.Name], records...)
	return nil
}

func (a *memAdapter) BulkInsertDLQ(ctx context.Context, rows []core.ValidationFailure) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dlqRows = append(a.dlqRows, rows...)
	return nil
}

func (a *memAdapter) ExecuteScalar(ctx context.Context, query string) (interface{}, error) {
	return int64(0), nil
}

func (a *memAdapter) Merge(ctx context.Context, stage core.StageTable, target string, grain, columns []string) (int64, int64, error) {
	if a.forceMergeErr != nil {
		return 0, 0, a.forceMergeErr
	}
	return a.mergeInserts, a.mergeUpdates, nil
}

func (a *memAdapter) DeleteResolvedDLQ(ctx context.Context, sourceName string, grainKeys []string) error {
	return nil
}

func (a *memAdapter) NextFileLoadID(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	return a.nextID, nil
}

func (a *memAdapter) InsertLogRow(ctx context.Context, log core.FileLoadLog) error { return nil }
func (a *memAdapter) UpdateLogRow(ctx context.Context, log core.FileLoadLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if log.State == core.LogSucceeded {
		a.succeeded[log.Filename+"|"+log.ContentHash] = true
	}
	return nil
}

func (a *memAdapter) FindSucceededByHash(ctx context.Context, filename, contentHash string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.succeeded[filename+"|"+contentHash], nil
}

func testSource() *sourceconfig.SourceConfig {
	src := &sourceconfig.SourceConfig{
		Name:      "orders",
		FileType:  sourceconfig.CSV,
		TableName: "orders",
		Grain:     []string{"id"},
		SchemaFields: []core.FieldSchema{
			{Name: "id", Type: core.FieldInt},
			{Name: "amount", Type: core.FieldFloat},
		},
		ValidationErrorThreshold: 50,
	}
	src.Schema = core.Schema{Fields: src.SchemaFields}
	return src
}

func TestRunnerHappyPath(t *testing.T) {
	csv := "id,amount\n1,10.5\n2,20.0\n"
	store := newMemStore("/drop/orders_1.csv", csv)
	adapter := newMemAdapter()
	runner := New(Config{Store: store, Adapter: adapter, Notifier: noopNotifier{}, ArchiveDir: "/archive", QuarantineDir: "/quarantine", DuplicateDir: "/dup", BatchSize: 10, RetryAttempts: 1})

	err := runner.Run(context.Background(), core.FileJob{Path: "/drop/orders_1.csv"}, testSource())
	require.NoError(t, err)

	assert.Contains(t, store.copied, "/drop/orders_1.csv->/archive/orders_1.csv")
	assert.Contains(t, store.deleted, "/drop/orders_1.csv")
	assert.Len(t, adapter.dlqRows, 0)
}

func TestRunnerQuarantinesOnValidationThreshold(t *testing.T) {
	csv := "id,amount\n1,notanumber\n2,alsobad\n"
	store := newMemStore("/drop/orders_2.csv", csv)
	adapter := newMemAdapter()
	src := testSource()
	src.ValidationErrorThreshold = 0
	runner := New(Config{Store: store, Adapter: adapter, Notifier: noopNotifier{}, ArchiveDir: "/archive", QuarantineDir: "/quarantine", DuplicateDir: "/dup", BatchSize: 10, RetryAttempts: 1})

	err := runner.Run(context.Background(), core.FileJob{Path: "/drop/orders_2.csv"}, src)
	require.Error(t, err)
	assert.Contains(t, store.moved, "/drop/orders_2.csv->/quarantine/orders_2.csv")
}

func TestRunnerSkipsDuplicateContentHash(t *testing.T) {
	csv := "id,amount\n1,10.5\n"
	store := newMemStore("/drop/orders_3.csv", csv)
	adapter := newMemAdapter()
	adapter.succeeded["orders_3.csv|hash:"+csv] = true
	runner := New(Config{Store: store, Adapter: adapter, Notifier: noopNotifier{}, ArchiveDir: "/archive", QuarantineDir: "/quarantine", DuplicateDir: "/dup", BatchSize: 10, RetryAttempts: 1})

	err := runner.Run(context.Background(), core.FileJob{Path: "/drop/orders_3.csv"}, testSource())
	require.Error(t, err)
	var fe *core.FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, core.DuplicateFile, fe.Kind)
	assert.Contains(t, store.moved, "/drop/orders_3.csv->/dup/orders_3.csv")
}

type noopNotifier struct{}

func (noopNotifier) Email(ctx context.Context, recipients, cc []string, subject, body string) error {
	return nil
}
func (noopNotifier) Webhook(ctx context.Context, level, title, message string) error { return nil }
