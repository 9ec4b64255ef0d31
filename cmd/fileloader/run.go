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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fileloader/fileloader/config"
	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/dbadapter/allocator"
	"github.com/fileloader/fileloader/dbadapter/bigquery"
	"github.com/fileloader/fileloader/dbadapter/mssql"
	"github.com/fileloader/fileloader/dbadapter/mysql"
	"github.com/fileloader/fileloader/dbadapter/postgres"
	"github.com/fileloader/fileloader/dispatcher"
	"github.com/fileloader/fileloader/filestore/local"
	"github.com/fileloader/fileloader/filestore/miniostore"
	"github.com/fileloader/fileloader/filestore/s3store"
	"github.com/fileloader/fileloader/notify"
	"github.com/fileloader/fileloader/pipeline"
	"github.com/fileloader/fileloader/sourceconfig"
)

var (
	runFile      string
	runDirectory string
	runSource    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover and load matching files once, then exit",
	RunE:  runE,
}

func init() {
	runCmd.Flags().StringVar(&runFile, "file", "", "process a single file, regardless of the configured directory")
	runCmd.Flags().StringVar(&runDirectory, "directory", "", "override the configured drop directory")
	runCmd.Flags().StringVar(&runSource, "source", "", "restrict matching to a single named source")
}

func runE(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(envState)
	if err != nil {
		logrus.WithError(err).Error("configuration error")
		os.Exit(exitConfig)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	store, err := buildFileStore(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to build file store")
		os.Exit(exitConfig)
	}

	adapter, err := buildAdapter(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Error("failed to build database adapter")
		os.Exit(exitConfig)
	}

	registry, err := sourceconfig.LoadDir(cfg.SourceConfigDir)
	if err != nil {
		logrus.WithError(err).Error("failed to load source configurations")
		os.Exit(exitConfig)
	}

	notifier := notify.New(
		notify.NewEmail(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.FromEmail, cfg.DataTeamEmail),
		notify.NewWebhook(cfg.WebhookURL),
	)

	directory := cfg.DirectoryPath
	if runDirectory != "" {
		directory = runDirectory
	}

	runner := pipeline.New(pipeline.Config{
		Store:         store,
		Adapter:       adapter,
		Notifier:      notifier,
		ArchiveDir:    cfg.ArchivePath,
		QuarantineDir: cfg.QuarantinePath,
		DuplicateDir:  cfg.DuplicateFilesPath,
		BatchSize:     cfg.BatchSize,
		RetryAttempts: cfg.RetryAttempts,
		Logger:        logrus.WithField("pkg", "pipeline"),
	})

	disp := dispatcher.New(dispatcher.Config{
		Store:         store,
		Registry:      registry,
		Runner:        runner,
		Notifier:      notifier,
		Workers:       cfg.WorkerCount,
		DropDir:       directory,
		ArchiveDir:    cfg.ArchivePath,
		QuarantineDir: cfg.QuarantinePath,
		Logger:        logrus.WithField("pkg", "dispatcher"),
	})

	jobs, err := discoverJobs(ctx, store, directory, runFile, runSource, registry)
	if err != nil {
		logrus.WithError(err).Error("failed to discover files")
		os.Exit(exitFail)
	}

	summary := disp.Run(ctx, jobs)
	logrus.WithFields(logrus.Fields{
		"total": summary.Total, "succeeded": summary.Succeeded, "failed": summary.Failed,
		"duplicate": summary.Duplicate, "no_source": summary.NoSource,
	}).Info(summary.Summarize())
	if notifyErr := notifier.Webhook(ctx, string(notify.LevelInfo), "FileLoader run complete", summary.Summarize()); notifyErr != nil {
		logrus.WithError(notifyErr).Error("failed to publish run summary")
	}

	if err := ctx.Err(); err != nil {
		logrus.WithError(err).Warn("run interrupted before completion")
		os.Exit(exitFail)
	}

	// Per-file failures are not process failures: a run that gets here exits
	// 0; only a failed discovery or an interrupted run exits 1 (above).
	os.Exit(exitOK)
	return nil
}

func discoverJobs(ctx context.Context, store core.FileStore, directory, file, source string, registry *sourceconfig.Registry) ([]core.FileJob, error) {
	if file != "" {
		info, err := store.List(ctx, directory)
		if err != nil {
			return nil, err
		}
		for _, fi := range info {
			if fi.Path == file {
				return []core.FileJob{{Path: fi.Path, Size: fi.Size, Extension: fi.Extension, State: core.JobQueued}}, nil
			}
		}
		return []core.FileJob{{Path: file, State: core.JobQueued}}, nil
	}

	disco := dispatcher.NewDiscovery(store, directory)
	jobs, err := disco.Discover(ctx)
	if err != nil {
		return nil, err
	}
	if source == "" {
		return jobs, nil
	}
	filtered := jobs[:0]
	for _, job := range jobs {
		if src, ok := registry.Match(job.Path); ok && src.Name == source {
			filtered = append(filtered, job)
		}
	}
	return filtered, nil
}

func buildFileStore(ctx context.Context, cfg *config.Config) (core.FileStore, error) {
	switch cfg.FileHelperPlatform {
	case "aws":
		return s3store.New(ctx, s3store.Options{
			Region: cfg.AWSRegion, AccessKeyID: cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey, SessionToken: cfg.AWSSessionToken,
		})
	case "minio":
		return miniostore.New(miniostore.Options{
			Endpoint: cfg.MinioEndpoint, AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey, UseSSL: cfg.MinioUseSSL,
		})
	default:
		return local.New(), nil
	}
}

func buildAdapter(ctx context.Context, cfg *config.Config) (core.Adapter, error) {
	dialect, err := cfg.Dialect()
	if err != nil {
		return nil, err
	}
	switch dialect {
	case "postgresql":
		return postgres.Open(cfg.DatabaseURL)
	case "mysql":
		return mysql.Open(cfg.DatabaseURL)
	case "mssql":
		return mssql.Open(cfg.DatabaseURL)
	case "bigquery":
		db, err := gorm.Open(sqlite.Open("fileloader_allocator.db"), &gorm.Config{})
		if err != nil {
			return nil, fmt.Errorf("open allocator store: %w", err)
		}
		ids, err := allocator.New(db)
		if err != nil {
			return nil, err
		}
		return bigquery.Open(ctx, cfg.BigQueryProjectID, cfg.BigQueryDataset, cfg.GoogleApplicationCredentials, ids)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
}
