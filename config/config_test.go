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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTestEnvUsesInMemorySQLite(t *testing.T) {
	cfg, err := Load("test")
	require.NoError(t, err)
	assert.Equal(t, Test, cfg.EnvState)
	assert.Equal(t, "sqlite::memory:", cfg.DatabaseURL)
	assert.Equal(t, 100, cfg.BatchSize)
}

func TestLoadRequiresDatabaseURLInProd(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load("prod")
	assert.Error(t, err)
}

func TestLoadDevPrefixOverride(t *testing.T) {
	t.Setenv("DEV_DIRECTORY_PATH", "/tmp/custom-drop")
	t.Setenv("DEV_DATABASE_URL", "postgresql://u:p@host/db")
	cfg, err := Load("dev")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom-drop", cfg.DirectoryPath)
}

func TestDialectSniffsFromDatabaseURL(t *testing.T) {
	cases := map[string]string{
		"postgresql://u:p@host/db": "postgresql",
		"mysql://u:p@host/db":      "mysql",
		"sqlserver://u:p@host/db":  "mssql",
		"bigquery://project/data":  "bigquery",
	}
	for url, want := range cases {
		cfg := &Config{DatabaseURL: url}
		got, err := cfg.Dialect()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestDialectRejectsUnknownScheme(t *testing.T) {
	cfg := &Config{DatabaseURL: "oracle://host/db"}
	_, err := cfg.Dialect()
	assert.Error(t, err)
}
