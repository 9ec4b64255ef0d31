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

package sourceconfig

import (
	"testing"

	"github.com/fileloader/fileloader/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customersSource() *SourceConfig {
	return &SourceConfig{
		Name:        "customers",
		FilePattern: "customers*.csv",
		FileType:    CSV,
		TableName:   "customers",
		SchemaFields: []core.FieldSchema{
			{Name: "id", Type: core.FieldInt},
			{Name: "name", Type: core.FieldString},
			{Name: "age", Type: core.FieldInt, Nullable: true},
		},
		Grain: []string{"id"},
	}
}

func TestSourceConfigValidate(t *testing.T) {
	sc := customersSource()
	require.NoError(t, sc.Validate())
	assert.Equal(t, []string{"id", "name", "age"}, sc.Schema.Names())
}

func TestSourceConfigValidateRejectsNullableGrain(t *testing.T) {
	sc := customersSource()
	sc.Grain = []string{"age"}
	err := sc.Validate()
	assert.ErrorContains(t, err, "non-nullable")
}

func TestSourceConfigValidateRejectsUnknownGrainField(t *testing.T) {
	sc := customersSource()
	sc.Grain = []string{"missing"}
	err := sc.Validate()
	assert.ErrorContains(t, err, "not in schema")
}

func TestRegistryMatchFirstWins(t *testing.T) {
	broad := customersSource()
	broad.Name = "broad"
	broad.FilePattern = "*.csv"

	specific := customersSource()
	specific.Name = "customers"
	specific.FilePattern = "customers*.csv"

	reg, err := NewRegistry([]*SourceConfig{specific, broad})
	require.NoError(t, err)

	matched, ok := reg.Match("customers_2026-08-03.csv")
	require.True(t, ok)
	assert.Equal(t, "customers", matched.Name)
}

func TestRegistryMatchGzipInnerName(t *testing.T) {
	sc := customersSource()
	sc.FilePattern = "*.csv"
	reg, err := NewRegistry([]*SourceConfig{sc})
	require.NoError(t, err)

	_, ok := reg.Match("sales.csv.gz")
	assert.True(t, ok)
}

func TestRegistryMatchNoSource(t *testing.T) {
	reg, err := NewRegistry([]*SourceConfig{customersSource()})
	require.NoError(t, err)

	_, ok := reg.Match("unknown.xyz")
	assert.False(t, ok)
}

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	a := customersSource()
	b := customersSource()
	_, err := NewRegistry([]*SourceConfig{a, b})
	assert.ErrorContains(t, err, "duplicate source name")
}

func TestGrainKeyDeterministic(t *testing.T) {
	sc := customersSource()
	require.NoError(t, sc.Validate())
	k1 := sc.GrainKey(core.Record{"id": 77, "name": "a"})
	k2 := sc.GrainKey(core.Record{"id": 77, "name": "b"})
	assert.Equal(t, k1, k2)
}

func TestStageTableName(t *testing.T) {
	sc := customersSource()
	assert.Equal(t, "stg_customers_42", sc.StageTableName(42))
}
