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

// Package mssql implements core.Adapter for SQL Server target databases. It
// uses go-mssqldb's native mssql.CopyIn bulk-copy support directly, in
// place of the pythonnet/.NET SqlBulkCopy bootstrap the system this was
// modeled on required.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/fileloader/fileloader/core"
)

// Adapter is a core.Adapter backed by database/sql + go-mssqldb.
type Adapter struct {
	db *sql.DB
}

// Open connects to dsn (a sqlserver:// URL).
func Open(dsn string) (*Adapter, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("mssql adapter: open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Adapter{db: db}, nil
}

func (a *Adapter) Dialect() string { return "mssql" }

func (a *Adapter) Ping(ctx context.Context) error { return a.db.PingContext(ctx) }

func sqlType(f core.FieldType) string {
	switch f {
	case core.FieldInt:
		return "BIGINT"
	case core.FieldFloat:
		return "FLOAT"
	case core.FieldDecimal:
		return "DECIMAL(38,10)"
	case core.FieldBool:
		return "BIT"
	case core.FieldDate:
		return "DATE"
	case core.FieldDateTime:
		return "DATETIME2"
	default:
		return "NVARCHAR(MAX)"
	}
}

func quoteIdent(name string) string { return "[" + strings.ReplaceAll(name, "]", "]]") + "]" }

func (a *Adapter) CreateStageTable(ctx context.Context, stage core.StageTable, schema core.Schema) error {
	var cols []string
	for _, f := range schema.Fields {
		nullability := "NULL"
		if !f.Nullable {
			nullability = "NOT NULL"
		}
		cols = append(cols, fmt.Sprintf("%s %s %s", quoteIdent(f.Name), sqlType(f.Type), nullability))
	}
	cols = append(cols, "[etl_row_hash] NVARCHAR(64) NOT NULL", "[etl_file_load_id] BIGINT NOT NULL")

	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(stage.Name), strings.Join(cols, ", "))
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return core.NewInternalError(core.StageCreateFailed, "create_stage_table", err)
	}
	return nil
}

func (a *Adapter) DropStageTable(ctx context.Context, stage core.StageTable) error {
	_, err := a.db.ExecContext(ctx, fmt.Sprintf("IF OBJECT_ID('%s') IS NOT NULL DROP TABLE %s", stage.Name, quoteIdent(stage.Name)))
	return err
}

// BulkInsertStage uses go-mssqldb's mssql.CopyIn bulk-copy statement, the
// direct equivalent of ADO.NET's SqlBulkCopy without a .NET runtime.
func (a *Adapter) BulkInsertStage(ctx context.Context, stage core.StageTable, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	cols := columnsOf(records[0])

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewInternalError(core.BulkInsertFailed, "begin_bulk_copy", err)
	}
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(stage.Name, mssql.BulkOptions{}, cols...))
	if err != nil {
		tx.Rollback()
		return core.NewInternalError(core.BulkInsertFailed, "prepare_bulk_copy", err)
	}
	for _, rec := range records {
		vals := make([]interface{}, len(cols))
		for i, c := range cols {
			vals[i] = rec[c]
		}
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			stmt.Close()
			tx.Rollback()
			return core.NewInternalError(core.BulkInsertFailed, "bulk_copy_row", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		tx.Rollback()
		return core.NewInternalError(core.BulkInsertFailed, "bulk_copy_flush", err)
	}
	stmt.Close()
	return tx.Commit()
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
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewInternalError(core.BulkInsertFailed, "begin_dlq_bulk_copy", err)
	}
	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn("file_load_dlq", mssql.BulkOptions{},
		"file_load_id", "source_row_number", "failed_fields", "reasons", "original_row_json", "grain_key"))
	if err != nil {
		tx.Rollback()
		return core.NewInternalError(core.BulkInsertFailed, "prepare_dlq_bulk_copy", err)
	}
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.FileLoadID, row.SourceRowNumber,
			strings.Join(row.FailedFields, ","), strings.Join(row.Reasons, ";"),
			string(row.OriginalRowJSON), row.GrainKey); err != nil {
			stmt.Close()
			tx.Rollback()
			return core.NewInternalError(core.BulkInsertFailed, "dlq_bulk_copy_row", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		tx.Rollback()
		return core.NewInternalError(core.BulkInsertFailed, "dlq_bulk_copy_flush", err)
	}
	stmt.Close()
	return tx.Commit()
}

func (a *Adapter) ExecuteScalar(ctx context.Context, query string) (interface{}, error) {
	row := a.db.QueryRowContext(ctx, query)
	var result interface{}
	if err := row.Scan(&result); err != nil {
		return nil, err
	}
	return result, nil
}

// Merge upserts via T-SQL's MERGE statement.
func (a *Adapter) Merge(ctx context.Context, stage core.StageTable, target string, grain []string, columns []string) (int64, int64, error) {
	var onClauses []string
	for _, g := range grain {
		onClauses = append(onClauses, fmt.Sprintf("t.%s = s.%s", quoteIdent(g), quoteIdent(g)))
	}
	var updateSet []string
	for _, c := range columns {
		if !contains(grain, c) {
			updateSet = append(updateSet, fmt.Sprintf("t.%s = s.%s", quoteIdent(c), quoteIdent(c)))
		}
	}
	quotedCols := make([]string, len(columns))
	sourceCols := make([]string, len(columns))
	for i, c := range columns {
		quotedCols[i] = quoteIdent(c)
		sourceCols[i] = "s." + quoteIdent(c)
	}

	stmt := fmt.Sprintf(
		`MERGE %s AS t USING %s AS s ON %s
		 WHEN MATCHED THEN UPDATE SET %s
		 WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)
		 OUTPUT $action;`,
		quoteIdent(target), quoteIdent(stage.Name), strings.Join(onClauses, " AND "),
		strings.Join(updateSet, ", "), strings.Join(quotedCols, ", "), strings.Join(sourceCols, ", "),
	)
	rows, err := a.db.QueryContext(ctx, stmt)
	if err != nil {
		return 0, 0, core.NewInternalError(core.PublishFailed, "merge_upsert", err)
	}
	defer rows.Close()

	var inserts, updates int64
	for rows.Next() {
		var action string
		if err := rows.Scan(&action); err != nil {
			return 0, 0, core.NewInternalError(core.PublishFailed, "merge_scan_action", err)
		}
		switch action {
		case "INSERT":
			inserts++
		case "UPDATE":
			updates++
		}
	}
	return inserts, updates, rows.Err()
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
		placeholders[i] = fmt.Sprintf("@p%d", i+1)
		args = append(args, k)
	}
	args = append(args, sourceName)
	stmt := fmt.Sprintf(
		`DELETE FROM file_load_dlq WHERE grain_key IN (%s) AND file_load_id IN (
			SELECT file_load_id FROM file_load_log WHERE source_name = @p%d)`,
		strings.Join(placeholders, ","), len(grainKeys)+1)
	_, err := a.db.ExecContext(ctx, stmt, args...)
	return err
}

func (a *Adapter) NextFileLoadID(ctx context.Context) (int64, error) {
	var id int64
	err := a.db.QueryRowContext(ctx,
		"UPDATE file_load_id_seq SET value = value + 1; SELECT value FROM file_load_id_seq").Scan(&id)
	return id, err
}

func (a *Adapter) InsertLogRow(ctx context.Context, log core.FileLoadLog) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO file_load_log
			(file_load_id, source_name, filename, content_hash, started_at, ended_at, state,
			 rows_read, rows_valid, rows_invalid, rows_published, error_kind, error_detail)
		 VALUES (@p1,@p2,@p3,@p4,@p5,@p6,@p7,@p8,@p9,@p10,@p11,@p12,@p13)`,
		log.FileLoadID, log.SourceName, log.Filename, log.ContentHash, log.StartedAt, log.EndedAt, log.State,
		log.RowsRead, log.RowsValid, log.RowsInvalid, log.RowsPublished, log.ErrorKind, log.ErrorDetail)
	return err
}

func (a *Adapter) UpdateLogRow(ctx context.Context, log core.FileLoadLog) error {
	_, err := a.db.ExecContext(ctx,
		`UPDATE file_load_log SET ended_at=@p1, state=@p2, rows_read=@p3, rows_valid=@p4,
			rows_invalid=@p5, rows_published=@p6, error_kind=@p7, error_detail=@p8
		 WHERE file_load_id=@p9`,
		log.EndedAt, log.State, log.RowsRead, log.RowsValid, log.RowsInvalid,
		log.RowsPublished, log.ErrorKind, log.ErrorDetail, log.FileLoadID)
	return err
}

func (a *Adapter) FindSucceededByHash(ctx context.Context, filename, contentHash string) (bool, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_load_log WHERE filename=@p1 AND content_hash=@p2 AND state=@p3`,
		filename, contentHash, core.LogSucceeded).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ core.Adapter = (*Adapter)(nil)
