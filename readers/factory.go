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
	"fmt"
	"io"
	"sync"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/sourceconfig"
)

// Constructor builds a core.Reader for a decompressed file stream, bound to
// the matched SourceConfig and the configured batch size.
type Constructor func(rc io.ReadCloser, cfg *sourceconfig.SourceConfig, batchSize int) (core.Reader, error)

var (
	registryMu sync.RWMutex
	registry   = map[sourceconfig.FileType]Constructor{}
)

// Register binds a Constructor to a file type. The built-in readers are
// registered by this file's init(); lookup goes through the registry map,
// so adding a format never requires touching a central switch statement.
func Register(fileType sourceconfig.FileType, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[fileType] = ctor
}

func init() {
	Register(sourceconfig.CSV, func(rc io.ReadCloser, cfg *sourceconfig.SourceConfig, batchSize int) (core.Reader, error) {
		return NewCSVReader(rc, cfg, batchSize)
	})
	Register(sourceconfig.JSON, func(rc io.ReadCloser, cfg *sourceconfig.SourceConfig, batchSize int) (core.Reader, error) {
		return NewJSONReader(rc, cfg, batchSize)
	})
	Register(sourceconfig.Excel, func(rc io.ReadCloser, cfg *sourceconfig.SourceConfig, batchSize int) (core.Reader, error) {
		return NewExcelReader(rc, cfg, batchSize)
	})
	Register(sourceconfig.Parquet, func(rc io.ReadCloser, cfg *sourceconfig.SourceConfig, batchSize int) (core.Reader, error) {
		return NewParquetReader(rc, cfg, int64(batchSize))
	})
}

// New opens rc (gzip-unwrapping it first when cfg.Gzip or the filename says
// so) and constructs the core.Reader registered for cfg.FileType.
func New(rc io.ReadCloser, filename string, cfg *sourceconfig.SourceConfig, batchSize int) (core.Reader, error) {
	stream, err := maybeGunzip(rc, filename, cfg.Gzip)
	if err != nil {
		return nil, err
	}

	registryMu.RLock()
	ctor, ok := registry[cfg.FileType]
	registryMu.RUnlock()
	if !ok {
		stream.Close()
		return nil, fmt.Errorf("readers: no reader registered for file type %q", cfg.FileType)
	}
	return ctor(stream, cfg, batchSize)
}
