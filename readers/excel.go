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
	"context"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/sourceconfig"
)

// ExcelReader implements core.Reader over a single worksheet of an .xlsx
// workbook. excelize loads a worksheet's rows already formatted per the
// cell's number format, so date-serial cells arrive as display strings
// rather than raw floating-point day counts.
type ExcelReader struct {
	rows      [][]string
	headers   []string
	pos       int
	batchSize int
	rowsRead  int64
}

// NewExcelReader opens the workbook, reads cfg.SheetName (or the first
// sheet when unset), and validates the header row against cfg.Schema.
func NewExcelReader(rc io.ReadCloser, cfg *sourceconfig.SourceConfig, batchSize int) (*ExcelReader, error) {
	defer rc.Close()

	f, err := excelize.OpenReader(rc)
	if err != nil {
		return nil, core.NewFileError(core.NoDataInFile, cfg.Name, "", map[string]interface{}{"reason": err.Error()})
	}
	defer f.Close()

	sheet := cfg.SheetName
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, core.NewFileError(core.NoDataInFile, cfg.Name, "", map[string]interface{}{"reason": err.Error(), "sheet": sheet})
	}
	if cfg.SkipRows > 0 && cfg.SkipRows < len(rows) {
		rows = rows[cfg.SkipRows:]
	}
	if len(rows) == 0 {
		return nil, core.NewFileError(core.MissingHeader, cfg.Name, "", map[string]interface{}{"reason": "sheet is empty", "sheet": sheet})
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}
	if missing := missingColumns(cfg.Schema.Names(), headers); len(missing) > 0 {
		return nil, core.NewFileError(core.MissingColumns, cfg.Name, "", map[string]interface{}{"missing_columns": missing, "sheet": sheet})
	}
	if len(rows) == 1 {
		return nil, core.NewFileError(core.NoDataInFile, cfg.Name, "", map[string]interface{}{"reason": "sheet has a header but no data rows", "sheet": sheet})
	}

	if batchSize <= 0 {
		batchSize = 1000
	}
	return &ExcelReader{rows: rows[1:], headers: headers, batchSize: batchSize}, nil
}

// Next reads up to batchSize rows into one Batch.
func (e *ExcelReader) Next(ctx context.Context) (core.Batch, error) {
	select {
	case <-ctx.Done():
		return core.Batch{}, ctx.Err()
	default:
	}

	if e.pos >= len(e.rows) {
		return core.Batch{}, io.EOF
	}

	end := e.pos + e.batchSize
	if end > len(e.rows) {
		end = len(e.rows)
	}

	batch := core.Batch{StartRow: int64(e.pos) + 1}
	for _, row := range e.rows[e.pos:end] {
		rec := make(core.Record, len(e.headers))
		for i, h := range e.headers {
			if i >= len(row) || strings.TrimSpace(row[i]) == "" {
				rec[h] = nil
				continue
			}
			rec[h] = row[i]
		}
		batch.Records = append(batch.Records, rec)
	}
	e.rowsRead += int64(end - e.pos)
	e.pos = end
	return batch, nil
}

func (e *ExcelReader) StartingRowNumber() int64 { return 1 }
func (e *ExcelReader) RowsRead() int64          { return e.rowsRead }
func (e *ExcelReader) Close() error             { return nil }
