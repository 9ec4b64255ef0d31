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

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fileloader/fileloader/audit"
	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/notify"
	"github.com/fileloader/fileloader/publish"
	"github.com/fileloader/fileloader/readers"
	"github.com/fileloader/fileloader/sourceconfig"
	"github.com/fileloader/fileloader/validate"
	"github.com/fileloader/fileloader/writers"
)

// Runner drives one file through Reader->Validator->Writer->Auditor->
// Publisher to completion. A Runner is stateless across files: Run is
// safe to call concurrently from multiple dispatcher workers.
type Runner struct {
	store         core.FileStore
	adapter       core.Adapter
	notifier      core.Notifier
	archiveDir    string
	quarantineDir string
	duplicateDir  string
	batchSize     int
	retryAttempts int
	logger        *logrus.Entry
}

// Config bundles the dependencies a Runner needs. Kept as a struct rather
// than a long positional constructor since most callers build exactly one
// Runner from a fully-populated config.Config at startup.
type Config struct {
	Store         core.FileStore
	Adapter       core.Adapter
	Notifier      core.Notifier
	ArchiveDir    string
	QuarantineDir string
	DuplicateDir  string
	BatchSize     int
	RetryAttempts int
	Logger        *logrus.Entry
}

// New builds a Runner from cfg.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.WithField("pkg", "pipeline")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}
	retryAttempts := cfg.RetryAttempts
	if retryAttempts <= 0 {
		retryAttempts = 1
	}
	return &Runner{
		store:         cfg.Store,
		adapter:       cfg.Adapter,
		notifier:      cfg.Notifier,
		archiveDir:    cfg.ArchiveDir,
		quarantineDir: cfg.QuarantineDir,
		duplicateDir:  cfg.DuplicateDir,
		batchSize:     batchSize,
		retryAttempts: retryAttempts,
		logger:        logger,
	}
}

// Run executes the full state machine for one file. It always leaves the
// drop copy gone by the time it returns: the file is archived (and the
// drop copy deleted) on success, quarantined on failure, or moved to the
// duplicates directory when a load of the same filename with the same
// content hash already succeeded. The file is archived before any DB call is made, so a
// copy survives even faults that strike before a file_load_id exists.
func (r *Runner) Run(ctx context.Context, job core.FileJob, source *sourceconfig.SourceConfig) error {
	filename := path.Base(job.Path)
	started := time.Now()

	if err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.store.Copy(ctx, job.Path, path.Join(r.archiveDir, filename))
	}); err != nil {
		archErr := core.NewInternalError(core.ArchiveFailed, "archive_file", err)
		r.moveQuietly(ctx, job.Path, r.quarantineDir, filename)
		r.notifyFailure(ctx, source, filename, archErr)
		r.logger.WithField("filename", filename).WithError(err).Error("failed to archive file")
		return archErr
	}

	fileLoadID, err := r.withRetryInt64(ctx, func(ctx context.Context) (int64, error) {
		return r.adapter.NextFileLoadID(ctx)
	})
	if err != nil {
		r.moveQuietly(ctx, job.Path, r.quarantineDir, filename)
		return core.NewInternalError(core.DBUnavailable, "allocate_file_load_id", err)
	}

	logRow := core.FileLoadLog{
		FileLoadID: fileLoadID,
		SourceName: source.Name,
		Filename:   filename,
		StartedAt:  started,
		State:      core.LogRunning,
	}
	if err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.adapter.InsertLogRow(ctx, logRow)
	}); err != nil {
		r.moveQuietly(ctx, job.Path, r.quarantineDir, filename)
		return core.NewInternalError(core.DBUnavailable, "insert_log_row", err)
	}

	contentHash, err := r.store.Hash(ctx, job.Path)
	if err != nil {
		r.moveQuietly(ctx, job.Path, r.quarantineDir, filename)
		return core.NewInternalError(core.StoreUnavailable, "hash_file", err)
	}
	logRow.ContentHash = contentHash

	duplicate, err := r.adapter.FindSucceededByHash(ctx, filename, contentHash)
	if err != nil {
		r.moveQuietly(ctx, job.Path, r.quarantineDir, filename)
		return core.NewInternalError(core.DBUnavailable, "check_duplicate", err)
	}

	if duplicate {
		dupErr := core.NewFileError(core.DuplicateFile, source.Name, filename, nil)
		logRow.EndedAt = time.Now()
		logRow.State = core.LogDuplicate
		logRow.ErrorKind = core.DuplicateFile
		if err := r.adapter.UpdateLogRow(ctx, logRow); err != nil {
			r.logger.WithField("file_load_id", fileLoadID).WithError(err).Error("failed to update file_load_log")
		}
		r.moveQuietly(ctx, job.Path, r.duplicateDir, filename)
		r.logger.WithFields(logrus.Fields{"filename": filename, "outcome": OutcomeDuplicate}).Info("file skipped as duplicate")
		return dupErr
	}

	stage := core.StageTable{Name: source.StageTableName(fileLoadID), SourceName: source.Name, FileLoadID: fileLoadID}

	result, runErr := r.process(ctx, job, source, filename, stage)
	logRow.EndedAt = time.Now()
	logRow.RowsRead = result.RowsRead
	logRow.RowsValid = result.RowsValid
	logRow.RowsInvalid = result.RowsInvalid
	logRow.RowsPublished = result.RowsPublished

	if runErr != nil {
		logRow.State = core.LogFailed
		logRow.ErrorKind = classifyErr(runErr)
		logRow.ErrorDetail = runErr.Error()
		result.Outcome = OutcomeFailure
		result.FailureKind = logRow.ErrorKind
		result.Err = runErr
	} else {
		logRow.State = core.LogSucceeded
		result.Outcome = OutcomeSuccess
	}

	if err := r.adapter.UpdateLogRow(ctx, logRow); err != nil {
		r.logger.WithField("file_load_id", fileLoadID).WithError(err).Error("failed to update file_load_log")
	}

	// Best-effort cleanup: the stage table has already served its purpose
	// once published, and a leftover one on drop is just noise for the
	// next reconciliation pass to ignore.
	_ = r.adapter.DropStageTable(ctx, stage)

	if runErr != nil {
		r.moveQuietly(ctx, job.Path, r.quarantineDir, filename)
		r.notifyFailure(ctx, source, filename, runErr)
		r.logger.WithFields(logrus.Fields{"filename": filename, "outcome": result.Outcome, "kind": result.FailureKind}).Warn("file load failed")
		return runErr
	}

	r.deleteQuietly(ctx, job.Path)
	r.logger.WithFields(logrus.Fields{
		"filename":     filename,
		"outcome":      result.Outcome,
		"rows_read":    result.RowsRead,
		"rows_valid":   result.RowsValid,
		"rows_invalid": result.RowsInvalid,
		"inserts":      result.PublishInserts,
		"updates":      result.PublishUpdates,
	}).Info("file load succeeded")
	return nil
}

// process runs the Reader->Validator->Writer->Auditor->Publisher chain,
// separated from Run so Run's bookkeeping (log row, cleanup) always
// happens regardless of where in the chain a failure occurs.
func (r *Runner) process(ctx context.Context, job core.FileJob, source *sourceconfig.SourceConfig, filename string, stage core.StageTable) (Result, error) {
	var result Result

	rc, err := r.store.Open(ctx, job.Path)
	if err != nil {
		return result, core.NewInternalError(core.StoreUnavailable, "open_file", err)
	}
	defer rc.Close()

	reader, err := readers.New(rc, filename, source, r.batchSize)
	if err != nil {
		return result, err
	}
	defer reader.Close()

	if err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.adapter.CreateStageTable(ctx, stage, source.Schema)
	}); err != nil {
		return result, core.NewInternalError(core.StageCreateFailed, "create_stage_table", err)
	}

	validator := validate.New(source, stage.FileLoadID, filename)
	writer := writers.New(r.adapter, stage, r.batchSize)

	var grainKeys []string
	for {
		batch, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, err
		}

		outcomes, err := validator.Validate(ctx, batch)
		if err != nil {
			return result, err
		}
		for _, o := range outcomes {
			if o.Valid {
				grainKeys = append(grainKeys, source.GrainKey(o.Record))
			}
		}

		if err := r.withRetry(ctx, func(ctx context.Context) error {
			return writer.Write(ctx, outcomes)
		}); err != nil {
			return result, core.NewInternalError(core.BulkInsertFailed, "write_batch", err)
		}
	}

	if err := r.withRetry(ctx, func(ctx context.Context) error {
		return writer.Flush(ctx)
	}); err != nil {
		return result, core.NewInternalError(core.BulkInsertFailed, "flush_writer", err)
	}

	result.RowsRead = reader.RowsRead()
	result.RowsValid = writer.RowsWrittenToStage()
	result.RowsInvalid = writer.RowsWrittenToDLQ()

	if err := validator.CheckThreshold(); err != nil {
		return result, err
	}

	auditor := audit.New(r.adapter, source, stage)
	if err := auditor.AuditGrain(ctx); err != nil {
		return result, err
	}
	if err := auditor.AuditData(ctx); err != nil {
		return result, err
	}

	publisher := publish.New(r.adapter, source, stage, grainKeys)
	if err := r.withRetry(ctx, func(ctx context.Context) error {
		return publisher.Publish(ctx)
	}); err != nil {
		return result, err
	}
	if err := r.withRetry(ctx, func(ctx context.Context) error {
		return publisher.ReconcileDLQ(ctx)
	}); err != nil {
		return result, err
	}

	result.RowsPublished = publisher.PublishInserts() + publisher.PublishUpdates()
	result.PublishInserts = publisher.PublishInserts()
	result.PublishUpdates = publisher.PublishUpdates()
	result.Outcome = OutcomeSuccess
	return result, nil
}

func (r *Runner) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	return withRetry(ctx, r.retryAttempts, op)
}

func (r *Runner) withRetryInt64(ctx context.Context, op func(ctx context.Context) (int64, error)) (int64, error) {
	var result int64
	err := withRetry(ctx, r.retryAttempts, func(ctx context.Context) error {
		v, err := op(ctx)
		result = v
		return err
	})
	return result, err
}

func (r *Runner) moveQuietly(ctx context.Context, src, destDir, filename string) {
	if destDir == "" {
		return
	}
	if err := r.store.Move(ctx, src, path.Join(destDir, filename)); err != nil {
		r.logger.WithFields(logrus.Fields{"src": src, "dest_dir": destDir}).WithError(err).Error("failed to move file")
	}
}

func (r *Runner) deleteQuietly(ctx context.Context, path string) {
	if err := r.store.Delete(ctx, path); err != nil {
		r.logger.WithField("src", path).WithError(err).Error("failed to delete file")
	}
}

// notifyFailure emails stakeholders for file-level faults and webhooks
// operators for internal ones, per the failure kind's own audience.
func (r *Runner) notifyFailure(ctx context.Context, source *sourceconfig.SourceConfig, filename string, err error) {
	kind := classifyErr(err)
	if kind.IsFileLevel() {
		if !source.Notifications.IsEnabled(kind) {
			return
		}
		subject := fmt.Sprintf("[FileLoader] %s failed to load: %s", filename, kind)
		if notifyErr := r.notifier.Email(ctx, source.Notifications.Recipients, source.Notifications.CC, subject, err.Error()); notifyErr != nil {
			r.logger.WithField("filename", filename).WithError(notifyErr).Error("failed to send failure email")
		}
		return
	}
	if notifyErr := r.notifier.Webhook(ctx, string(notify.LevelCritical), fmt.Sprintf("%s: %s", kind, filename), err.Error()); notifyErr != nil {
		r.logger.WithField("filename", filename).WithError(notifyErr).Error("failed to send failure webhook")
	}
}

func classifyErr(err error) core.FailureKind {
	switch e := err.(type) {
	case *core.FileError:
		return e.Kind
	case *core.InternalError:
		return e.Kind
	default:
		return core.WorkerPanic
	}
}
