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

// Package notify implements core.Notifier: file-level failure emails to
// business stakeholders, and internal-fault webhooks to operators.
package notify

// Level is the severity of an internal webhook alert, mirroring the
// alert-level taxonomy the system this replaces used for its Slack
// integration.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Composite satisfies core.Notifier by pairing an EmailNotifier with a
// WebhookNotifier, so callers wire one Notifier even though each channel is
// configured (and can be disabled) independently.
type Composite struct {
	*EmailNotifier
	*WebhookNotifier
}

// New builds a Composite from the two channel-specific notifiers.
func New(email *EmailNotifier, webhook *WebhookNotifier) *Composite {
	return &Composite{EmailNotifier: email, WebhookNotifier: webhook}
}
