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

// Package s3store implements core.FileStore against AWS S3.
package s3store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fileloader/fileloader/core"
)

// Store is a core.FileStore backed by an S3 bucket. All paths passed to its
// methods are s3://bucket/key URIs.
type Store struct {
	client *s3.Client
}

// Options configures the S3 store's client.
type Options struct {
	Region             string
	AccessKeyID        string
	SecretAccessKey    string
	SessionToken       string
	EndpointURL        string
}

// New builds an S3-backed Store, resolving credentials the same way the
// underlying reader/writer paths of this codebase's ETL engine do: explicit
// static credentials when given, falling back to the default AWS chain.
func New(ctx context.Context, opts Options) (*Store, error) {
	var cfgOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 filestore: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
			o.UsePathStyle = true
		}
	})
	return &Store{client: client}, nil
}

func splitURI(uri string) (bucket, key string) {
	trimmed := strings.TrimPrefix(uri, "s3://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

// List enumerates every object under the s3://bucket/prefix URI in dir.
func (s *Store) List(ctx context.Context, dir string) ([]core.FileInfo, error) {
	bucket, prefix := splitURI(dir)
	var infos []core.FileInfo
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 filestore: list %s: %w", dir, err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			infos = append(infos, core.FileInfo{
				Path:      fmt.Sprintf("s3://%s/%s", bucket, key),
				Size:      aws.ToInt64(obj.Size),
				ModTime:   timeOrZero(obj.LastModified),
				Extension: strings.ToLower(path.Ext(key)),
			})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	return infos, nil
}

func timeOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}

// Open streams an object's body.
func (s *Store) Open(ctx context.Context, path string) (core.ReadCloser, error) {
	bucket, key := splitURI(path)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("s3 filestore: open %s: %w", path, err)
	}
	return out.Body, nil
}

// Move copies src to dst then deletes src; S3 has no native rename.
func (s *Store) Move(ctx context.Context, src, dst string) error {
	srcBucket, srcKey := splitURI(src)
	dstBucket, dstKey := splitURI(dst)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(fmt.Sprintf("%s/%s", srcBucket, srcKey)),
	})
	if err != nil {
		return fmt.Errorf("s3 filestore: copy %s -> %s: %w", src, dst, err)
	}
	return s.Delete(ctx, src)
}

// Copy duplicates src to dst via a server-side CopyObject, leaving src in
// place.
func (s *Store) Copy(ctx context.Context, src, dst string) error {
	srcBucket, srcKey := splitURI(src)
	dstBucket, dstKey := splitURI(dst)
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(fmt.Sprintf("%s/%s", srcBucket, srcKey)),
	})
	if err != nil {
		return fmt.Errorf("s3 filestore: copy %s -> %s: %w", src, dst, err)
	}
	return nil
}

// Archive is Move under another name; used for dispositions that are a
// recorded outcome rather than a failure.
func (s *Store) Archive(ctx context.Context, src, dst string) error {
	return s.Move(ctx, src, dst)
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, p string) error {
	bucket, key := splitURI(p)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return fmt.Errorf("s3 filestore: delete %s: %w", p, err)
	}
	return nil
}

// Hash downloads the object and streams it through SHA-256. S3's ETag is
// not used because it is not a plain MD5 for multipart uploads.
func (s *Store) Hash(ctx context.Context, p string) (string, error) {
	rc, err := s.Open(ctx, p)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	h := sha256.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("s3 filestore: hash %s: %w", p, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
