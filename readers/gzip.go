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

// Package readers implements core.Reader for every file format FileLoader
// ingests: CSV, Excel, JSON, and Parquet, each optionally gzip-wrapped.
package readers

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"
)

// maybeGunzip wraps r in a gzip.Reader when gz is true or when name ends in
// ".gz", so a SourceConfig's Gzip flag and a bare ".gz" extension both work
// without the caller having to sniff magic bytes itself.
func maybeGunzip(r io.ReadCloser, name string, gz bool) (io.ReadCloser, error) {
	if !gz && !strings.HasSuffix(strings.ToLower(name), ".gz") {
		return r, nil
	}
	zr, err := gzip.NewReader(r)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("readers: gunzip %s: %w", name, err)
	}
	return &gzipReadCloser{zr: zr, under: r}, nil
}

// gzipReadCloser closes both the gzip stream and the underlying byte source.
type gzipReadCloser struct {
	zr    *gzip.Reader
	under io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.zr.Read(p) }

func (g *gzipReadCloser) Close() error {
	zerr := g.zr.Close()
	uerr := g.under.Close()
	if zerr != nil {
		return zerr
	}
	return uerr
}

// innerName strips a trailing ".gz" so format sniffing based on extension
// sees "sales.csv" instead of "sales.csv.gz".
func innerName(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".gz") {
		return name[:len(name)-3]
	}
	return name
}
