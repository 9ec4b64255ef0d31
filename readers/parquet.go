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
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow/go/arrow/memory"
	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/sourceconfig"
)

// ParquetReader implements core.Reader over an Arrow RecordReader. Parquet's
// footer-first layout requires random access, so the source stream is read
// into memory once at construction rather than consumed incrementally, so,
// like the JSON and Excel readers, it cannot handle a file larger than
// available memory.
type ParquetReader struct {
	arrowReader    *pqarrow.FileReader
	recordReader   pqarrow.RecordReader
	schema         *arrow.Schema
	columnIndexMap map[string]int
	rowsRead       int64
	nextStartRow   int64
	nullCounts     map[string]int64
}

// NewParquetReader buffers rc, opens it as a Parquet/Arrow file, and
// validates cfg's declared schema against the file's column names.
func NewParquetReader(rc io.ReadCloser, cfg *sourceconfig.SourceConfig, batchSize int64) (*ParquetReader, error) {
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, core.NewInternalError(core.BulkInsertFailed, "parquet_buffer", err)
	}

	parquetReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, core.NewFileError(core.NoDataInFile, cfg.Name, "", map[string]interface{}{"reason": err.Error()})
	}

	allocator := memory.NewGoAllocator()
	arrowReader, err := pqarrow.NewFileReader(parquetReader, pqarrow.ArrowReadProperties{BatchSize: batchSize}, allocator)
	if err != nil {
		return nil, core.NewInternalError(core.BulkInsertFailed, "parquet_arrow_reader", err)
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, core.NewInternalError(core.BulkInsertFailed, "parquet_schema", err)
	}

	fieldNames := make([]string, len(schema.Fields()))
	for i, f := range schema.Fields() {
		fieldNames[i] = f.Name
	}
	if missing := missingColumns(cfg.Schema.Names(), fieldNames); len(missing) > 0 {
		return nil, core.NewFileError(core.MissingColumns, cfg.Name, "", map[string]interface{}{"missing_columns": missing})
	}
	if parquetReader.NumRows() == 0 {
		return nil, core.NewFileError(core.NoDataInFile, cfg.Name, "", map[string]interface{}{"reason": "file has no rows"})
	}

	recordReader, err := arrowReader.GetRecordReader(context.Background(), nil, nil)
	if err != nil {
		return nil, core.NewInternalError(core.BulkInsertFailed, "parquet_record_reader", err)
	}

	colIdx := make(map[string]int, len(fieldNames))
	for i, name := range fieldNames {
		colIdx[name] = i
	}

	return &ParquetReader{
		arrowReader:    arrowReader,
		recordReader:   recordReader,
		schema:         schema,
		columnIndexMap: colIdx,
		nextStartRow:   1,
		nullCounts:     make(map[string]int64),
	}, nil
}

// Next reads one Arrow record batch and converts it to a core.Batch.
func (p *ParquetReader) Next(ctx context.Context) (core.Batch, error) {
	select {
	case <-ctx.Done():
		return core.Batch{}, ctx.Err()
	default:
	}

	rec, err := p.recordReader.Read()
	if err != nil {
		if err == io.EOF {
			return core.Batch{}, io.EOF
		}
		return core.Batch{}, core.NewInternalError(core.BulkInsertFailed, "parquet_read", err)
	}
	if rec == nil || rec.NumRows() == 0 {
		return core.Batch{}, io.EOF
	}
	defer rec.Release()

	batch := core.Batch{StartRow: p.nextStartRow}
	sch := rec.Schema()
	for row := 0; row < int(rec.NumRows()); row++ {
		r := make(core.Record, int(rec.NumCols()))
		for col := 0; col < int(rec.NumCols()); col++ {
			field := sch.Field(col)
			r[field.Name] = p.extractValue(rec.Column(col), row, field.Name)
		}
		batch.Records = append(batch.Records, r)
	}

	p.rowsRead += int64(rec.NumRows())
	p.nextStartRow += int64(rec.NumRows())
	return batch, nil
}

// extractValue converts one Arrow array element to a Go value, tracking
// per-column null counts.
func (p *ParquetReader) extractValue(col arrow.Array, rowIdx int, fieldName string) interface{} {
	if col.IsNull(rowIdx) {
		p.nullCounts[fieldName]++
		return nil
	}

	switch arr := col.(type) {
	case *array.Boolean:
		return arr.Value(rowIdx)
	case *array.Int8:
		return int64(arr.Value(rowIdx))
	case *array.Int16:
		return int64(arr.Value(rowIdx))
	case *array.Int32:
		return int64(arr.Value(rowIdx))
	case *array.Int64:
		return arr.Value(rowIdx)
	case *array.Uint8:
		return int64(arr.Value(rowIdx))
	case *array.Uint16:
		return int64(arr.Value(rowIdx))
	case *array.Uint32:
		return int64(arr.Value(rowIdx))
	case *array.Uint64:
		return int64(arr.Value(rowIdx))
	case *array.Float32:
		return float64(arr.Value(rowIdx))
	case *array.Float64:
		return arr.Value(rowIdx)
	case *array.String:
		return arr.Value(rowIdx)
	case *array.Binary:
		return arr.Value(rowIdx)
	case *array.Timestamp:
		return arr.Value(rowIdx).ToTime(arrow.Microsecond)
	case *array.Date32:
		return arr.Value(rowIdx).ToTime()
	case *array.Date64:
		return arr.Value(rowIdx).ToTime()
	default:
		return fmt.Sprintf("%v", col.GetOneForMarshal(rowIdx))
	}
}

func (p *ParquetReader) StartingRowNumber() int64 { return 1 }
func (p *ParquetReader) RowsRead() int64          { return p.rowsRead }

// Close releases the Arrow record reader. The source stream was already
// consumed and closed at construction time.
func (p *ParquetReader) Close() error {
	p.recordReader.Release()
	return nil
}
