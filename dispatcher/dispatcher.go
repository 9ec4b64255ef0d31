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

package dispatcher

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fileloader/fileloader/core"
	"github.com/fileloader/fileloader/notify"
	"github.com/fileloader/fileloader/pipeline"
	"github.com/fileloader/fileloader/sourceconfig"
)

// FileRunner executes one file's Reader->Validator->Writer->Auditor->
// Publisher state machine to completion. Defined as an interface so the
// Dispatcher can be driven by a fake in tests; pipeline.Runner satisfies it.
type FileRunner interface {
	Run(ctx context.Context, job core.FileJob, source *sourceconfig.SourceConfig) error
}

// Summary aggregates one Run's outcome across every discovered file.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Duplicate int
	NoSource  int
	Failures  []core.FileJob
}

// Dispatcher owns the bounded worker pool that drains a Discovery's queue.
type Dispatcher struct {
	store         core.FileStore
	registry      *sourceconfig.Registry
	runner        FileRunner
	notifier      core.Notifier
	workers       int
	dropDir       string
	archiveDir    string
	quarantineDir string
	logger        *logrus.Entry
}

// Config bundles the dependencies a Dispatcher needs.
type Config struct {
	Store         core.FileStore
	Registry      *sourceconfig.Registry
	Runner        FileRunner
	Notifier      core.Notifier
	Workers       int // <= 0 means runtime.NumCPU()
	DropDir       string
	ArchiveDir    string
	QuarantineDir string
	Logger        *logrus.Entry
}

// New builds a Dispatcher from cfg.
func New(cfg Config) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.WithField("pkg", "dispatcher")
	}
	return &Dispatcher{
		store:         cfg.Store,
		registry:      cfg.Registry,
		runner:        cfg.Runner,
		notifier:      cfg.Notifier,
		workers:       workers,
		dropDir:       cfg.DropDir,
		archiveDir:    cfg.ArchiveDir,
		quarantineDir: cfg.QuarantineDir,
		logger:        logger,
	}
}

// Run matches every job against the registry, archives unmatched files,
// and processes matched files through the worker pool. It returns once
// every job has reached a terminal state.
func (d *Dispatcher) Run(ctx context.Context, jobs []core.FileJob) Summary {
	queue := make(chan core.FileJob)
	results := make(chan core.FileJob, len(jobs))

	var wg sync.WaitGroup
	for w := 0; w < d.workers; w++ {
		wg.Add(1)
		go d.worker(ctx, w, queue, results, &wg)
	}

	go func() {
		defer close(queue)
		for _, job := range jobs {
			source, ok := d.registry.Match(job.Path)
			if !ok {
				job.State = core.JobFailed // no FailureKind set: distinguishes "no source matched" from a real failure
				d.archiveUnmatched(ctx, job)
				results <- job
				continue
			}
			job.SourceName = source.Name
			job.State = core.JobMatched
			select {
			case queue <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	summary := Summary{Total: len(jobs)}
	for job := range results {
		summary.tally(job)
	}
	return summary
}

// Summarize renders a one-line, human-readable end-of-run summary suitable
// for a log line or a webhook notification body.
func (s Summary) Summarize() string {
	return fmt.Sprintf("processed %d file(s): %d succeeded, %d failed, %d duplicate, %d unmatched",
		s.Total, s.Succeeded, s.Failed, s.Duplicate, s.NoSource)
}

func (s *Summary) tally(job core.FileJob) {
	switch job.State {
	case core.JobSucceeded:
		s.Succeeded++
	case core.JobFailed:
		switch job.FailureKind {
		case core.DuplicateFile:
			s.Duplicate++
		case "":
			s.NoSource++
		default:
			s.Failed++
			s.Failures = append(s.Failures, job)
		}
	}
}

// archiveUnmatched archives a file nothing in the registry claims, so a
// bad drop does not sit in the source directory forever waiting for a
// pattern that will never arrive. Unlike a real failure, an unmatched
// file is not the file's fault, so it is archived rather than quarantined.
func (d *Dispatcher) archiveUnmatched(ctx context.Context, job core.FileJob) {
	dest := d.archiveDir + "/" + baseName(job.Path)
	if err := d.store.Archive(ctx, job.Path, dest); err != nil {
		d.logger.WithField("path", job.Path).WithError(err).Error("failed to archive unmatched file")
		return
	}
	d.logger.WithFields(logrus.Fields{"path": job.Path, "outcome": pipeline.OutcomeNoSource}).Warn("file has no matching source")
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

// worker pulls jobs off queue until it closes, recovering from panics so
// one bad file cannot take the whole pool down.
func (d *Dispatcher) worker(ctx context.Context, id int, queue <-chan core.FileJob, results chan<- core.FileJob, wg *sync.WaitGroup) {
	defer wg.Done()
	for job := range queue {
		job.WorkerID = id
		results <- d.runOne(ctx, job)
	}
}

func (d *Dispatcher) runOne(ctx context.Context, job core.FileJob) (result core.FileJob) {
	result = job
	result.State = core.JobRunning

	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{"path": job.Path, "worker": job.WorkerID, "panic": fmt.Sprint(r)}).Error("worker panic")
			result.State = core.JobFailed
			result.FailureKind = core.WorkerPanic
			d.notifyPanic(ctx, job, r)
			d.restoreToDrop(ctx, job)
		}
	}()

	source, ok := d.registry.ByName(job.SourceName)
	if !ok {
		result.State = core.JobFailed
		result.FailureKind = core.ConfigError
		return result
	}

	if err := d.runner.Run(ctx, job, source); err != nil {
		result.State = core.JobFailed
		result.FailureKind = classify(err)
		return result
	}

	result.State = core.JobSucceeded
	return result
}

// notifyPanic webhooks operators about a worker panic; the file itself
// gets no stakeholder email since a panic is an internal fault, not a
// verdict on the file's content.
func (d *Dispatcher) notifyPanic(ctx context.Context, job core.FileJob, r interface{}) {
	if d.notifier == nil {
		return
	}
	msg := fmt.Sprintf("worker panic processing %s: %v", job.Path, r)
	if err := d.notifier.Webhook(ctx, string(notify.LevelCritical), "WorkerPanic", msg); err != nil {
		d.logger.WithField("path", job.Path).WithError(err).Error("failed to send worker panic webhook")
	}
}

// restoreToDrop moves a panicked file back to the drop directory so the
// next run picks it up again rather than losing track of it.
func (d *Dispatcher) restoreToDrop(ctx context.Context, job core.FileJob) {
	if d.dropDir == "" {
		return
	}
	dest := d.dropDir + "/" + baseName(job.Path)
	if err := d.store.Move(ctx, job.Path, dest); err != nil {
		d.logger.WithField("path", job.Path).WithError(err).Error("failed to restore panicked file to drop directory")
	}
}

// classify maps a Run error to the FailureKind a Summary and its
// notifications key off, falling back to WorkerPanic for anything
// untyped: an untyped error from Run is itself a defect worth flagging
// loudly rather than silently swallowing.
func classify(err error) core.FailureKind {
	type kinded interface{ Kind() core.FailureKind }
	if k, ok := err.(kinded); ok {
		return k.Kind()
	}
	switch e := err.(type) {
	case *core.FileError:
		return e.Kind
	case *core.InternalError:
		return e.Kind
	default:
		return core.WorkerPanic
	}
}
