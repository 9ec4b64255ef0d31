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
	"encoding/csv"
	"io"
	"strings"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/sourceconfig"
)

// CSVReader implements core.Reader over a delimited text stream. It enforces
// the header/columns contract eagerly, at construction time, so a malformed
// file fails before a single Batch is handed to the Validator.
type CSVReader struct {
	reader    *csv.Reader
	closer    io.Closer
	headers   []string
	batchSize int
	rowsRead  int64
	startRow  int64
	done      bool
}

// NewCSVReader constructs a CSVReader bound to cfg's delimiter, skip-rows,
// and declared schema.
func NewCSVReader(rc io.ReadCloser, cfg *sourceconfig.SourceConfig, batchSize int) (*CSVReader, error) {
	r := csv.NewReader(rc)
	r.TrimLeadingSpace = true
	if cfg.Delimiter != "" {
		r.Comma = rune(cfg.Delimiter[0])
	}

	for i := 0; i < cfg.SkipRows; i++ {
		if _, err := r.Read(); err != nil {
			rc.Close()
			return nil, core.NewFileError(core.NoDataInFile, cfg.Name, "", map[string]interface{}{"reason": "file shorter than skip_rows"})
		}
	}

	headers, err := r.Read()
	if err == io.EOF {
		rc.Close()
		return nil, core.NewFileError(core.MissingHeader, cfg.Name, "", map[string]interface{}{"reason": "file is empty"})
	}
	if err != nil {
		rc.Close()
		return nil, core.NewFileError(core.MissingHeader, cfg.Name, "", map[string]interface{}{"reason": err.Error()})
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	if missing := missingColumns(cfg.Schema.Names(), headers); len(missing) > 0 {
		rc.Close()
		return nil, core.NewFileError(core.MissingColumns, cfg.Name, "", map[string]interface{}{"missing_columns": missing})
	}

	if batchSize <= 0 {
		batchSize = 1000
	}
	return &CSVReader{reader: r, closer: rc, headers: headers, batchSize: batchSize, startRow: 1}, nil
}

// missingColumns returns the schema fields absent from a header row.
func missingColumns(required, have []string) []string {
	present := make(map[string]bool, len(have))
	for _, h := range have {
		present[h] = true
	}
	var missing []string
	for _, r := range required {
		if !present[r] {
			missing = append(missing, r)
		}
	}
	return missing
}

// Next reads up to batchSize rows into one Batch.
func (c *CSVReader) Next(ctx context.Context) (core.Batch, error) {
	if c.done {
		return core.Batch{}, io.EOF
	}

	select {
	case <-ctx.Done():
		return core.Batch{}, ctx.Err()
	default:
	}

	batch := core.Batch{StartRow: c.startRow}
	for len(batch.Records) < c.batchSize {
		row, err := c.reader.Read()
		if err == io.EOF {
			c.done = true
			break
		}
		if err != nil {
			return core.Batch{}, core.NewInternalError(core.BulkInsertFailed, "csv_read", err)
		}

		rec := make(core.Record, len(c.headers))
		for i, h := range c.headers {
			if i >= len(row) {
				rec[h] = nil
				continue
			}
			v := row[i]
			if strings.TrimSpace(v) == "" {
				rec[h] = nil
			} else {
				rec[h] = v
			}
		}
		batch.Records = append(batch.Records, rec)
		c.rowsRead++
	}

	c.startRow += int64(len(batch.Records))

	if len(batch.Records) == 0 {
		if c.rowsRead == 0 {
			return core.Batch{}, core.NewFileError(core.NoDataInFile, "", "", map[string]interface{}{"reason": "file has a header but no data rows"})
		}
		return core.Batch{}, io.EOF
	}
	return batch, nil
}

func (c *CSVReader) StartingRowNumber() int64 { return 1 }
func (c *CSVReader) RowsRead() int64          { return c.rowsRead }
func (c *CSVReader) Close() error             { return c.closer.Close() }
