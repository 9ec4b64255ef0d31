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

// Package postgres implements core.Adapter for PostgreSQL target databases.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/fileloader/fileloader/core"
)

// Adapter is a core.Adapter backed by database/sql + lib/pq.
type Adapter struct {
	db *sql.DB
}

// Open connects to dsn and tunes the connection pool the way a
// multi-tenant staging workload needs: many short-lived connections rather
// than a handful of long-lived ones.
func Open(dsn string) (*Adapter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres adapter: open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
	return &Adapter{db: db}, nil
}

func (a *Adapter) Dialect() string { return "postgresql" }

func (a *Adapter) Ping(ctx context.Context) error { return a.db.PingContext(ctx) }

func sqlType(f core.FieldType) string {
	switch f {
	case core.FieldInt:
		return "BIGINT"
	case core.FieldFloat:
		return "DOUBLE PRECISION"
	case core.FieldDecimal:
		return "NUMERIC"
	case core.FieldBool:
		return "BOOLEAN"
	case core.FieldDate:
		return "DATE"
	case core.FieldDateTime:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

func quoteIdent(name string) string { return pq.QuoteIdentifier(name) }

// CreateStageTable creates an unlogged table scoped to one file's load,
// mirroring the target schema plus the bookkeeping columns the Validator
// and Auditor need.
func (a *Adapter) CreateStageTable(ctx context.Context, stage core.StageTable, schema core.Schema) error {
	var cols []string
	for _, f := range schema.Fields {
		nullability := "NULL"
		if !f.Nullable {
			nullability = "NOT NULL"
		}
		cols = append(cols, fmt.Sprintf("%s %s %s", quoteIdent(f.Name), sqlType(f.Type), nullability))
	}
	cols = append(cols, `"etl_row_hash" TEXT NOT NULL`, `"etl_file_load_id" BIGINT NOT NULL`)

	stmt := fmt.Sprintf("CREATE UNLOGGED TABLE %s (%s)", quoteIdent(stage.Name), strings.Join(cols, ", "))
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return core.NewInternalError(core.StageCreateFailed, "create_stage_table", err)
	}
	return nil
}

func (a *Adapter) DropStageTable(ctx context.Context, stage core.StageTable) error {
	_, err := a.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdent(stage.Name)))
	return err
}

// BulkInsertStage streams records into the stage table via COPY, the
// fastest bulk-load path lib/pq exposes.
func (a *Adapter) BulkInsertStage(ctx context.Context, stage core.StageTable, records []core.Record) error {
	if len(records) == 0 {
		return nil
	}
	cols := columnsOf(records[0])

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewInternalError(core.BulkInsertFailed, "begin_copy", err)
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(stage.Name, cols...))
	if err != nil {
		tx.Rollback()
		return core.NewInternalError(core.BulkInsertFailed, "prepare_copy", err)
	}
	for _, rec := range records {
		vals := make([]interface{}, len(cols))
		for i, c := range cols {
			vals[i] = rec[c]
		}
		if _, err := stmt.ExecContext(ctx, vals...); err != nil {
			stmt.Close()
			tx.Rollback()
			return core.NewInternalError(core.BulkInsertFailed, "copy_row", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		tx.Rollback()
		return core.NewInternalError(core.BulkInsertFailed, "copy_flush", err)
	}
	if err := stmt.Close(); err != nil {
		tx.Rollback()
		return core.NewInternalError(core.BulkInsertFailed, "copy_close", err)
	}
	if err := tx.Commit(); err != nil {
		return core.NewInternalError(core.BulkInsertFailed, "copy_commit", err)
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

// BulkInsertDLQ writes invalid rows to the shared file_load_dlq table.
func (a *Adapter) BulkInsertDLQ(ctx context.Context, rows []core.ValidationFailure) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return core.NewInternalError(core.BulkInsertFailed, "begin_dlq_copy", err)
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn("file_load_dlq",
		"file_load_id", "source_row_number", "failed_fields", "reasons", "original_row_json", "grain_key"))
	if err != nil {
		tx.Rollback()
		return core.NewInternalError(core.BulkInsertFailed, "prepare_dlq_copy", err)
	}
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.FileLoadID, row.SourceRowNumber,
			pq.Array(row.FailedFields), pq.Array(row.Reasons), string(row.OriginalRowJSON), row.GrainKey); err != nil {
			stmt.Close()
			tx.Rollback()
			return core.NewInternalError(core.BulkInsertFailed, "dlq_copy_row", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		tx.Rollback()
		return core.NewInternalError(core.BulkInsertFailed, "dlq_copy_flush", err)
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

// Merge upserts the stage table into target by grain, using INSERT ...
// ON CONFLICT DO UPDATE, and reports how many rows landed in each branch.
func (a *Adapter) Merge(ctx context.Context, stage core.StageTable, target string, grain []string, columns []string) (int64, int64, error) {
	quotedGrain := make([]string, len(grain))
	for i, g := range grain {
		quotedGrain[i] = quoteIdent(g)
	}
	quotedCols := make([]string, len(columns))
	var updateSet []string
	for i, c := range columns {
		quotedCols[i] = quoteIdent(c)
		if !contains(grain, c) {
			updateSet = append(updateSet, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c)))
		}
	}

	before, err := a.countRows(ctx, target)
	if err != nil {
		return 0, 0, core.NewInternalError(core.PublishFailed, "merge_count_before", err)
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		quoteIdent(target), strings.Join(quotedCols, ", "), strings.Join(quotedCols, ", "),
		quoteIdent(stage.Name), strings.Join(quotedGrain, ", "), strings.Join(updateSet, ", "),
	)
	res, err := a.db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, 0, core.NewInternalError(core.PublishFailed, "merge_upsert", err)
	}
	affected, _ := res.RowsAffected()

	after, err := a.countRows(ctx, target)
	if err != nil {
		return 0, 0, core.NewInternalError(core.PublishFailed, "merge_count_after", err)
	}
	inserts := after - before
	updates := affected - inserts
	if updates < 0 {
		updates = 0
	}
	return inserts, updates, nil
}

func (a *Adapter) countRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := a.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))).Scan(&n)
	return n, err
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// DeleteResolvedDLQ clears DLQ rows whose grain key was just republished
// successfully, the self-healing step the original system calls separately
// from the merge itself.
func (a *Adapter) DeleteResolvedDLQ(ctx context.Context, sourceName string, grainKeys []string) error {
	if len(grainKeys) == 0 {
		return nil
	}
	_, err := a.db.ExecContext(ctx,
		`DELETE FROM file_load_dlq WHERE grain_key = ANY($1) AND file_load_id IN (
			SELECT file_load_id FROM file_load_log WHERE source_name = $2)`,
		pq.Array(grainKeys), sourceName)
	return err
}

// NextFileLoadID allocates the next identifier from a dedicated sequence.
func (a *Adapter) NextFileLoadID(ctx context.Context) (int64, error) {
	var id int64
	err := a.db.QueryRowContext(ctx, "SELECT nextval('file_load_id_seq')").Scan(&id)
	return id, err
}

func (a *Adapter) InsertLogRow(ctx context.Context, log core.FileLoadLog) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO file_load_log
			(file_load_id, source_name, filename, content_hash, started_at, ended_at, state,
			 rows_read, rows_valid, rows_invalid, rows_published, error_kind, error_detail)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		log.FileLoadID, log.SourceName, log.Filename, log.ContentHash, log.StartedAt, log.EndedAt, log.State,
		log.RowsRead, log.RowsValid, log.RowsInvalid, log.RowsPublished, log.ErrorKind, log.ErrorDetail)
	return err
}

func (a *Adapter) UpdateLogRow(ctx context.Context, log core.FileLoadLog) error {
	_, err := a.db.ExecContext(ctx,
		`UPDATE file_load_log SET ended_at=$1, state=$2, rows_read=$3, rows_valid=$4,
			rows_invalid=$5, rows_published=$6, error_kind=$7, error_detail=$8
		 WHERE file_load_id=$9`,
		log.EndedAt, log.State, log.RowsRead, log.RowsValid, log.RowsInvalid,
		log.RowsPublished, log.ErrorKind, log.ErrorDetail, log.FileLoadID)
	return err
}

// FindSucceededByHash implements the duplicate-file check: a prior run with
// the same content hash that reached LogSucceeded means this file is a
// repeat delivery, not a new one.
func (a *Adapter) FindSucceededByHash(ctx context.Context, filename, contentHash string) (bool, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM file_load_log WHERE filename=$1 AND content_hash=$2 AND state=$3`,
		filename, contentHash, core.LogSucceeded).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

var _ core.Adapter = (*Adapter)(nil)
