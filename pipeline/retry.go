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
	"time"

	"github.com/fileloader/fileloader/core"
)

// backoff doubles a fixed base delay per attempt, capped at a maximum delay.
func backoff(attempt int) time.Duration {
	const base = 500 * time.Millisecond
	const max = 10 * time.Second
	delay := base * time.Duration(1<<uint(attempt))
	if delay > max {
		delay = max
	}
	return delay
}

// withRetry runs op up to maxAttempts times, retrying only when the error
// it returns is retryable per FailureKind.IsRetryable: file-level
// verdicts about a file's own content are never retried, since retrying
// them would just reproduce the same verdict.
func withRetry(ctx context.Context, maxAttempts int, op func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-time.After(backoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func isRetryable(err error) bool {
	switch e := err.(type) {
	case *core.FileError:
		return e.Kind.IsRetryable()
	case *core.InternalError:
		return e.Kind.IsRetryable()
	default:
		return false
	}
}
