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
	"encoding/json"
	"io"
	"strings"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/sourceconfig"
)

// JSONReader implements core.Reader over a single JSON document holding an
// array of row objects somewhere inside it. ArrayPath is a dot-separated
// path to that array; an empty ArrayPath means the document root is the
// array itself.
type JSONReader struct {
	records   []core.Record
	pos       int
	batchSize int
	rowsRead  int64
}

// NewJSONReader decodes the whole document up front: FileLoader's JSON
// sources are drop files, not streams, and array_path navigation requires
// seeing the full structure before the first row can be produced.
func NewJSONReader(rc io.ReadCloser, cfg *sourceconfig.SourceConfig, batchSize int) (*JSONReader, error) {
	defer rc.Close()

	var doc interface{}
	dec := json.NewDecoder(rc)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, core.NewFileError(core.NoDataInFile, cfg.Name, "", map[string]interface{}{"reason": "file is empty"})
		}
		return nil, core.NewFileError(core.NoDataInFile, cfg.Name, "", map[string]interface{}{"reason": err.Error()})
	}

	arr, err := navigateArray(doc, cfg.ArrayPath)
	if err != nil {
		return nil, core.NewFileError(core.NoDataInFile, cfg.Name, "", map[string]interface{}{"reason": err.Error()})
	}
	if len(arr) == 0 {
		return nil, core.NewFileError(core.NoDataInFile, cfg.Name, "", map[string]interface{}{"reason": "array_path resolved to zero rows"})
	}

	records := make([]core.Record, 0, len(arr))
	var headerKeys []string
	for i, item := range arr {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, core.NewFileError(core.MissingColumns, cfg.Name, "", map[string]interface{}{"reason": "array element is not an object", "index": i})
		}
		if headerKeys == nil {
			headerKeys = keysOf(obj)
		}
		records = append(records, core.Record(obj))
	}

	if missing := missingColumns(cfg.Schema.Names(), headerKeys); len(missing) > 0 {
		return nil, core.NewFileError(core.MissingColumns, cfg.Name, "", map[string]interface{}{"missing_columns": missing})
	}

	if batchSize <= 0 {
		batchSize = 1000
	}
	return &JSONReader{records: records, batchSize: batchSize}, nil
}

// navigateArray walks a dot-separated path of object keys down to an array.
// An empty path expects the root itself to be an array.
func navigateArray(doc interface{}, path string) ([]interface{}, error) {
	cur := doc
	if path != "" {
		for _, key := range strings.Split(path, ".") {
			obj, ok := cur.(map[string]interface{})
			if !ok {
				return nil, errNotObject(key)
			}
			next, ok := obj[key]
			if !ok {
				return nil, errMissingKey(key)
			}
			cur = next
		}
	}
	arr, ok := cur.([]interface{})
	if !ok {
		return nil, errNotArray(path)
	}
	return arr, nil
}

func errNotObject(key string) error  { return &pathError{"expected an object while resolving " + key} }
func errMissingKey(key string) error { return &pathError{"array_path key not found: " + key} }
func errNotArray(path string) error  { return &pathError{"array_path did not resolve to an array: " + path} }

type pathError struct{ msg string }

func (e *pathError) Error() string { return e.msg }

func keysOf(obj map[string]interface{}) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return keys
}

// Next returns up to batchSize buffered records per call.
func (j *JSONReader) Next(ctx context.Context) (core.Batch, error) {
	select {
	case <-ctx.Done():
		return core.Batch{}, ctx.Err()
	default:
	}

	if j.pos >= len(j.records) {
		return core.Batch{}, io.EOF
	}

	end := j.pos + j.batchSize
	if end > len(j.records) {
		end = len(j.records)
	}
	batch := core.Batch{
		Records:  j.records[j.pos:end],
		StartRow: int64(j.pos) + 1,
	}
	j.rowsRead += int64(end - j.pos)
	j.pos = end
	return batch, nil
}

func (j *JSONReader) StartingRowNumber() int64 { return 1 }
func (j *JSONReader) RowsRead() int64          { return j.rowsRead }
func (j *JSONReader) Close() error             { return nil }
