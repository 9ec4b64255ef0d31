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

// Package mysql implements core.Adapter for MySQL/MariaDB target databases.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/fileloader/fileloader/core"
)

// Adapter is a core.Adapter backed by database/sql + go-sql-driver/mysql.
type Adapter struct {
	db *sql.DB
}

// Open connects to dsn (a go-sql-driver DSN, not a mysql:// URL).
func Open(dsn string) (*Adapter, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql adapter: open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Adapter{db: db}, nil
}

func (a *Adapter) Dialect() string { return "mysql" }

func (a *Adapter) Ping(ctx context.Context) error { return a.db.PingContext(ctx) }

func sqlType(f core.FieldType) string {
	switch f {
	case core.FieldInt:
		return "BIGINT"
	case core.FieldFloat:
		return "DOUBLE"
	case core.FieldDecimal:
		return "DECIMAL(38,10)"
	case core.FieldBool:
		return "BOOLEAN"
	case core.FieldDate:
		return "DATE"
	case core.FieldDateTime:
		return "DATETIME"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string { return "`" + strings.ReplaceAll(name, "`", "``") + "`" }

func (a *Adapter) CreateStageTable(ctx context.Context, stage core.StageTable, schema core.Schema) error {
	var cols []string
	for _, f := range schema.Fields {
		nullability := "NULL"
		if !f.Nullable {
			nullability = "NOT NULL"
		}
		cols = append(cols, fmt.Sprintf("%s %s %s", quoteIdent(f.Name), sqlType(f.Type), nullability))
	}
	cols = append(cols, "`etl_row_hash` VARCHAR(64) NOT NULL", "`etl_file_load_id` BIGINT NOT NULL")

	stmt := fmt.Sprintf("CREATE TABLE %s (%s) ENGINE=InnoDB", quoteIdent(stage.Name), strings.Join(cols, ", "))
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return core.NewInternalError(core.StageCreateFailed, "create_stage_table", err)
	}
	return nil
}

func (a *Adapter) DropStageTable(ctx context.Context, stage core.StageTable) error {
	_, err := a.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(stage.Name)))
	return err
}

// BulkInsertStage batches records into multi-row INSERT statements; MySQL
// has no server-side COPY equivalent, so this is the fastest bulk path the
// driver offers.
func (a *Adapter) BulkInsertStage(ctx context.Context, stage core.StageTable, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	cols := columnsOf(records[0])
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}

	placeholders := make([]string, len(records))
	args := make([]interface{}, 0, len(records)*len(cols))
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"
	for i, rec := range records {
		placeholders[i] = rowPlaceholder
		for _, c := range cols {
			args = append(args, rec[c])
		}
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", quoteIdent(stage.Name),
		strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if _, err := a.db.ExecContext(ctx, stmt, args...); err != nil {
		return core.NewInternalError(core.BulkInsertFailed, "insert_stage_batch", err)
	}
	return nil
}

func columnsOf(rec core.Record) []string {
	cols := make([]string, 0, len(rec))
	for k := range rec {
		cols = append(cols, k)
	}
	return cols
}

func (a *Adapter) BulkInsertDLQ(ctx context.Context, rows []core.ValidationFailure) error {
	if len(rows) == 0 {
		return nil
	}
	placeholders := make([]string, len(rows))
	args := make([]interface{}, 0, len(rows)*6)
	for i, row := range rows {
		placeholders[i] = "(?,?,?,?,?,?)"
		args = append(args, row.FileLoadID, row.SourceRowNumber,
			strings.Join(row.FailedFields, ","), strings.Join(row.Reasons, ";"),
			string(row.OriginalRowJSON), row.GrainKey)
	}
	stmt := "INSERT INTO file_load_dlq (file_load_id, source_row_number, failed_fields, reasons, original_row_json, grain_key) VALUES " +
		strings.Join(placeholders, ", ")
	if _, err := a.db.ExecContext(ctx, stmt, args...); err != nil {
		return core.NewInternalError(core.BulkInsertFailed, "insert_dlq_batch", err)
	}
	return nil
}

func (a *Adapter) ExecuteScalar(ctx context.Context, query string) (interface{}, error) {
	row := a.db.QueryRowContext(ctx, query)
	var result interface{}
	if err := row.Scan(&result); err != nil {
		return nil, err
	}
	return result, nil
}

// Merge upserts via INSERT ... ON DUPLICATE KEY UPDATE, which requires the
// target table's grain columns to carry a UNIQUE constraint.
func (a *Adapter) Merge(ctx context.Context, stage core.StageTable, target string, grain []string, columns []string) (int64, int64, error) {
	quotedCols := make([]string, len(columns))
	for i, c := range columns {
		quotedCols[i] = quoteIdent(c)
	}
	var updateSet []string
	for _, c := range columns {
		if !contains(grain, c) {
			updateSet = append(updateSet, fmt.Sprintf("%s = VALUES(%s)", quoteIdent(c), quoteIdent(c)))
		}
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON DUPLICATE KEY UPDATE %s",
		quoteIdent(target), strings.Join(quotedCols, ", "), strings.Join(quotedCols, ", "),
		quoteIdent(stage.Name), strings.Join(updateSet, ", "),
	)
	countStmt := "SELECT COUNT(*) FROM " + quoteIdent(target)
	var before int64
	if err := a.db.QueryRowContext(ctx, countStmt).Scan(&before); err != nil {
		return 0, 0, core.NewInternalError(core.PublishFailed, "merge_count_before", err)
	}
	res, err := a.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, 0, core.NewInternalError(core.PublishFailed, "merge_upsert", err)
	}
	// MySQL reports 1 per insert and 2 per update for ON DUPLICATE KEY UPDATE,
	// so inserts come from the target's row-count delta and the rest are updates.
	affected, _ := res.RowsAffected()
	var after int64
	if err := a.db.QueryRowContext(ctx, countStmt).Scan(&after); err != nil {
		return 0, 0, core.NewInternalError(core.PublishFailed, "merge_count_after", err)
	}
	inserts := after - before
	updates := (affected - inserts) / 2
	if updates < 0 {
		updates = 0
	}
	return inserts, updates, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (a *Adapter) DeleteResolvedDLQ(ctx context.Context, sourceName string, grainKeys []string) error {
	if len(grainKeys) == 0 {
		return nil
	}
	placeholders := make([]string, len(grainKeys))
	args := make([]interface{}, 0, len(grainKeys)+1)
	for i, k := range grainKeys {
		placeholders[i] = "?"
		args = append(args, k)
	}
	args = append(args, sourceName)
	stmt := fmt.Sprintf(
		`DELETE FROM file_load_dlq WHERE grain_key IN (%s) AND file_load_id IN (
			SELECT file_load_id FROM file_load_log WHERE source_name = ?)`,
		strings.Join(placeholders, ","))
	_, err := a.db.ExecContext(ctx, stmt, args...)
	return err
}

func (a *Adapter) NextFileLoadID(ctx context.Context) (int64, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE file_load_id_seq SET value = LAST_INSERT_ID(value + 1)"); err != nil {
		return 0, err
	}
	var id int64
	if err := tx.QueryRowContext(ctx, "SELECT LAST_INSERT_ID()").Scan(&id); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func (a *Adapter) InsertLogRow(ctx context.Context, log core.FileLoadLog) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO file_load_log
			(file_load_id, source_name, filename, content_hash, started_at, ended_at, state,
			 rows_read, rows_valid, rows_invalid, rows_published, error_kind, error_detail)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		log.FileLoadID, log.SourceName, log.Filename, log.ContentHash, log.StartedAt, log.EndedAt, log.State,
		log.RowsRead, log.RowsValid, log.RowsInvalid, log.RowsPublished, log.ErrorKind, log.ErrorDetail)
	return err
}

func (a *Adapter) UpdateLogRow(ctx context.Context, log core.FileLoadLog) error {
	_, err := a.db.ExecContext(ctx,
		`UPDATE file_load_log SET ended_at=?, state=?, rows_read=?, rows_valid=?,
			rows_invalid=?, rows_published=?, error_kind=?, error_detail=?
		 WHERE file_load_id=?`,
		log.EndedAt, log.State, log.RowsRead, log.RowsValid, log.RowsInvalid,
		log.RowsPublished, log.ErrorKind, log.ErrorDetail, log.FileLoadID)
	return err
}

func (a *Adapter) FindSucceededByHash(ctx context.Context, filename, contentHash string) (bool, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_load_log WHERE filename=? AND content_hash=? AND state=?`,
		filename, contentHash, core.LogSucceeded).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ core.Adapter = (*Adapter)(nil)
