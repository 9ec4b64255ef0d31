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

// Package local implements core.FileStore over the local filesystem.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fileloader/fileloader/core"
)

// Store is a core.FileStore backed by os.* calls, used for file://
// directories and for tests.
type Store struct{}

// New constructs a local Store.
func New() *Store { return &Store{} }

// List returns every regular file under dir, recursively.
func (s *Store) List(ctx context.Context, dir string) ([]core.FileInfo, error) {
	var infos []core.FileInfo
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		infos = append(infos, core.FileInfo{
			Path:      path,
			Size:      fi.Size(),
			ModTime:   fi.ModTime().Unix(),
			Extension: strings.ToLower(filepath.Ext(path)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local filestore: list %s: %w", dir, err)
	}
	return infos, nil
}

// Open opens path for streaming read.
func (s *Store) Open(ctx context.Context, path string) (core.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("local filestore: open %s: %w", path, err)
	}
	return f, nil
}

// Move renames src to dst, creating dst's parent directory if needed.
func (s *Store) Move(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("local filestore: mkdir for %s: %w", dst, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("local filestore: move %s -> %s: %w", src, dst, err)
	}
	return nil
}

// Copy duplicates src to dst byte-for-byte, creating dst's parent directory
// if needed and leaving src in place.
func (s *Store) Copy(ctx context.Context, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("local filestore: copy %s -> %s: %w", src, dst, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("local filestore: mkdir for %s: %w", dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("local filestore: copy %s -> %s: %w", src, dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("local filestore: copy %s -> %s: %w", src, dst, err)
	}
	return out.Close()
}

// Archive is Move under another name; used for dispositions that are a
// recorded outcome rather than a failure.
func (s *Store) Archive(ctx context.Context, src, dst string) error {
	return s.Move(ctx, src, dst)
}

// Delete removes path.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("local filestore: delete %s: %w", path, err)
	}
	return nil
}

// Hash streams path through SHA-256, stable on gzip-decoded content is the
// caller's responsibility (Hash operates on the bytes at rest).
func (s *Store) Hash(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("local filestore: hash %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("local filestore: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
