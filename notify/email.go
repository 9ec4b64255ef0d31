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

package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// EmailNotifier sends file-level failure emails through one SMTP relay.
// DataTeamEmail is always CC'd, matching this deployment's standing policy
// that the data team sees every stakeholder-facing failure notice.
type EmailNotifier struct {
	host          string
	port          int
	user          string
	password      string
	from          string
	dataTeamEmail string
}

// NewEmail builds an EmailNotifier from SMTP relay settings.
func NewEmail(host string, port int, user, password, from, dataTeamEmail string) *EmailNotifier {
	return &EmailNotifier{host: host, port: port, user: user, password: password, from: from, dataTeamEmail: dataTeamEmail}
}

// Email sends a plaintext message to recipients, CC'ing cc plus
// DataTeamEmail. An empty host makes this a no-op, mirroring
// WebhookNotifier's behavior for deployments without SMTP configured.
func (e *EmailNotifier) Email(ctx context.Context, recipients, cc []string, subject, body string) error {
	if e.host == "" {
		return nil
	}
	allCC := append(append([]string(nil), cc...), e.dataTeamEmail)
	to := append(append([]string(nil), recipients...), allCC...)
	if len(to) == 0 {
		return fmt.Errorf("notify: email has no recipients")
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nCc: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		e.from, strings.Join(recipients, ", "), strings.Join(allCC, ", "), subject, body)

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	var auth smtp.Auth
	if e.user != "" {
		auth = smtp.PlainAuth("", e.user, e.password, e.host)
	}

	if err := smtp.SendMail(addr, auth, e.from, to, []byte(msg)); err != nil {
		return fmt.Errorf("notify: send email: %w", err)
	}
	return nil
}
