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

package readers

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/sourceconfig"
)

func testSchemaCfg() *sourceconfig.SourceConfig {
	cfg := &sourceconfig.SourceConfig{
		Name: "orders",
		Schema: core.Schema{Fields: []core.FieldSchema{
			{Name: "id", Type: core.FieldInt},
			{Name: "amount", Type: core.FieldFloat},
		}},
	}
	return cfg
}

type closeCounter struct {
	io.Reader
	closed bool
}

func (c *closeCounter) Close() error { c.closed = true; return nil }

func TestCSVReaderHappyPath(t *testing.T) {
	body := "id,amount\n1,9.5\n2,3\n"
	rc := &closeCounter{Reader: bytes.NewBufferString(body)}
	r, err := NewCSVReader(rc, testSchemaCfg(), 10)
	require.NoError(t, err)

	batch, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Len())
	assert.Equal(t, int64(1), batch.StartRow)
	assert.Equal(t, "1", batch.Records[0]["id"])

	_, err = r.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, r.Close())
	assert.True(t, rc.closed)
}

func TestCSVReaderMissingColumnsIsFileError(t *testing.T) {
	body := "id\n1\n"
	rc := &closeCounter{Reader: bytes.NewBufferString(body)}
	_, err := NewCSVReader(rc, testSchemaCfg(), 10)
	require.Error(t, err)
	fe, ok := err.(*core.FileError)
	require.True(t, ok)
	assert.Equal(t, core.MissingColumns, fe.Kind)
}

func TestCSVReaderEmptyFileIsMissingHeader(t *testing.T) {
	rc := &closeCounter{Reader: bytes.NewBufferString("")}
	_, err := NewCSVReader(rc, testSchemaCfg(), 10)
	require.Error(t, err)
	fe, ok := err.(*core.FileError)
	require.True(t, ok)
	assert.Equal(t, core.MissingHeader, fe.Kind)
}

func TestCSVReaderBatchesRespectSize(t *testing.T) {
	body := "id,amount\n1,1\n2,2\n3,3\n"
	rc := &closeCounter{Reader: bytes.NewBufferString(body)}
	r, err := NewCSVReader(rc, testSchemaCfg(), 2)
	require.NoError(t, err)

	b1, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, b1.Len())

	b2, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, b2.Len())
	assert.Equal(t, int64(3), b2.StartRow)
}

func TestFactoryGunzipsWhenFlagged(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write([]byte("id,amount\n1,5\n"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	cfg := testSchemaCfg()
	cfg.FileType = sourceconfig.CSV
	cfg.Gzip = true

	reader, err := New(io.NopCloser(&buf), "orders.csv.gz", cfg, 10)
	require.NoError(t, err)
	defer reader.Close()

	batch, err := reader.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Len())
}

func TestJSONReaderResolvesArrayPath(t *testing.T) {
	body := `{"payload":{"item":[{"id":"1","amount":"5"},{"id":"2","amount":"6"}]}}`
	cfg := testSchemaCfg()
	cfg.ArrayPath = "payload.item"

	r, err := NewJSONReader(io.NopCloser(bytes.NewBufferString(body)), cfg, 10)
	require.NoError(t, err)

	batch, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Len())
}

func TestJSONReaderMissingArrayIsFileError(t *testing.T) {
	body := `{"payload":{}}`
	cfg := testSchemaCfg()
	cfg.ArrayPath = "payload.item"

	_, err := NewJSONReader(io.NopCloser(bytes.NewBufferString(body)), cfg, 10)
	require.Error(t, err)
	_, ok := err.(*core.FileError)
	assert.True(t, ok)
}
