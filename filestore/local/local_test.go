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

package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyLeavesSourceInPlace(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "drop", "orders_1.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("id,amount\n1,10\n"), 0o644))

	s := New()
	dst := filepath.Join(dir, "archive", "orders_1.csv")
	require.NoError(t, s.Copy(context.Background(), src, dst))

	srcBody, err := os.ReadFile(src)
	require.NoError(t, err)
	dstBody, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, srcBody, dstBody)
}

func TestArchiveRemovesSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "drop", "unknown.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("junk"), 0o644))

	s := New()
	dst := filepath.Join(dir, "archive", "unknown.txt")
	require.NoError(t, s.Archive(context.Background(), src, dst))

	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dst)
	require.NoError(t, err)
}
