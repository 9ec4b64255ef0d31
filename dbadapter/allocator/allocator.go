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

// Package allocator provides a transactional file_load_id sequence for
// target dialects, like BigQuery, that have no native auto-increment or
// sequence object of their own. It is backed by a tiny GORM-managed
// SQLite/PostgreSQL side table, one row per FileLoader deployment, updated
// under a row lock.
package allocator

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// counterRow is the single-row table gorm manages: file_load_id_counter.
type counterRow struct {
	ID    uint `gorm:"primaryKey"`
	Value int64
}

func (counterRow) TableName() string { return "file_load_id_counter" }

// Allocator hands out monotonically increasing file_load_id values.
type Allocator struct {
	db *gorm.DB
}

// New migrates the counter table on the already-opened db, and seeds the
// single counter row if it does not already exist.
func New(db *gorm.DB) (*Allocator, error) {
	if err := db.AutoMigrate(&counterRow{}); err != nil {
		return nil, fmt.Errorf("allocator: migrate: %w", err)
	}
	if err := db.FirstOrCreate(&counterRow{}, counterRow{ID: 1, Value: 0}).Error; err != nil {
		return nil, fmt.Errorf("allocator: seed: %w", err)
	}
	return &Allocator{db: db}, nil
}

// Next atomically increments and returns the counter, serialized by a
// row-level transaction so concurrent workers never observe the same id.
func (a *Allocator) Next(ctx context.Context) (int64, error) {
	var next int64
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row counterRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, 1).Error; err != nil {
			return err
		}
		row.Value++
		next = row.Value
		return tx.Save(&row).Error
	})
	if err != nil {
		return 0, fmt.Errorf("allocator: next: %w", err)
	}
	return next, nil
}
