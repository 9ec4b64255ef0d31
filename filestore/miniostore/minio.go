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

// Package miniostore implements core.FileStore against any S3-compatible
// endpoint (MinIO, on-prem object stores) via minio-go, for deployments
// that are not talking to AWS S3 itself.
package miniostore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fileloader/fileloader/core"
)

// Store is a core.FileStore backed by a MinIO/S3-compatible client. Paths
// are gs://-agnostic bucket/key URIs of the form scheme://bucket/key.
type Store struct {
	client *minio.Client
}

// Options configures the endpoint and credentials for the client.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// New builds a MinIO-backed Store.
func New(opts Options) (*Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio filestore: %w", err)
	}
	return &Store{client: client}, nil
}

func splitURI(uri string) (bucket, key string) {
	trimmed := uri
	if idx := strings.Index(uri, "://"); idx >= 0 {
		trimmed = uri[idx+3:]
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// List enumerates every object under the bucket/prefix in dir.
func (s *Store) List(ctx context.Context, dir string) ([]core.FileInfo, error) {
	bucket, prefix := splitURI(dir)
	var infos []core.FileInfo
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio filestore: list %s: %w", dir, obj.Err)
		}
		infos = append(infos, core.FileInfo{
			Path:      fmt.Sprintf("s3://%s/%s", bucket, obj.Key),
			Size:      obj.Size,
			ModTime:   obj.LastModified.Unix(),
			Extension: strings.ToLower(extOf(obj.Key)),
		})
	}
	return infos, nil
}

func extOf(key string) string {
	if idx := strings.LastIndex(key, "."); idx >= 0 {
		return key[idx:]
	}
	return ""
}

// Open streams an object's body.
func (s *Store) Open(ctx context.Context, path string) (core.ReadCloser, error) {
	bucket, key := splitURI(path)
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio filestore: open %s: %w", path, err)
	}
	return obj, nil
}

// Move copies then removes the source object.
func (s *Store) Move(ctx context.Context, src, dst string) error {
	srcBucket, srcKey := splitURI(src)
	dstBucket, dstKey := splitURI(dst)
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("minio filestore: copy %s -> %s: %w", src, dst, err)
	}
	return s.Delete(ctx, src)
}

// Copy duplicates src to dst via a server-side CopyObject, leaving src in
// place.
func (s *Store) Copy(ctx context.Context, src, dst string) error {
	srcBucket, srcKey := splitURI(src)
	dstBucket, dstKey := splitURI(dst)
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("minio filestore: copy %s -> %s: %w", src, dst, err)
	}
	return nil
}

// Archive is Move under another name; used for dispositions that are a
// recorded outcome rather than a failure.
func (s *Store) Archive(ctx context.Context, src, dst string) error {
	return s.Move(ctx, src, dst)
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, path string) error {
	bucket, key := splitURI(path)
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio filestore: delete %s: %w", path, err)
	}
	return nil
}

// Hash downloads the object and streams it through SHA-256.
func (s *Store) Hash(ctx context.Context, path string) (string, error) {
	rc, err := s.Open(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("minio filestore: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
