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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifierNoOpWhenURLEmpty(t *testing.T) {
	w := NewWebhook("")
	require.NoError(t, w.Webhook(context.Background(), string(LevelWarning), "title", "message"))
}

func TestWebhookNotifierPostsPayload(t *testing.T) {
	var received WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		rw.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	require.NoError(t, w.Webhook(context.Background(), string(LevelCritical), "stage create failed", "detail"))

	assert.Equal(t, "critical", received.Level)
	assert.Equal(t, "stage create failed", received.Title)
}

func TestWebhookNotifierReturnsErrorOnNonSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL)
	err := w.Webhook(context.Background(), string(LevelWarning), "t", "m")
	assert.Error(t, err)
}

func TestEmailNotifierNoOpWhenHostEmpty(t *testing.T) {
	e := NewEmail("", 0, "", "", "", "")
	require.NoError(t, e.Email(context.Background(), []string{"a@example.com"}, nil, "subject", "body"))
}
