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

// Package config loads FileLoader's environment configuration. One Config
// is built per process from an environment-scoped default set (dev/test/
// prod) refined by envconfig-driven environment variables, matching the
// dev/test/prod settings-class split of the system this was modeled on.
package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Env is the deployment environment a Config was loaded for.
type Env string

const (
	Dev  Env = "dev"
	Test Env = "test"
	Prod Env = "prod"
)

// Config holds every environment-recognised option from spec.md §6.
type Config struct {
	EnvState Env `envconfig:"-"`

	DatabaseURL        string `split_words:"true"`
	DirectoryPath      string `split_words:"true"`
	ArchivePath        string `split_words:"true"`
	DuplicateFilesPath string `split_words:"true"`
	QuarantinePath     string `split_words:"true"`

	BatchSize int    `split_words:"true"`
	LogLevel  string `split_words:"true"`

	FileHelperPlatform string `split_words:"true"` // aws | minio; any other value selects local

	SourceConfigDir string `split_words:"true"`

	WorkerCount int `split_words:"true"`
	RetryAttempts int `split_words:"true"`

	// Email notification settings.
	SMTPHost      string `split_words:"true"`
	SMTPPort      int    `split_words:"true"`
	SMTPUser      string `split_words:"true"`
	SMTPPassword  string `split_words:"true"`
	FromEmail     string `split_words:"true"`
	DataTeamEmail string `split_words:"true"` // always CC'd on failure notifications

	// Webhook notification settings.
	WebhookURL string `split_words:"true"`

	// AWS S3 settings.
	AWSAccessKeyID     string `split_words:"true"`
	AWSSecretAccessKey string `split_words:"true"`
	AWSSessionToken    string `split_words:"true"`
	AWSRegion          string `split_words:"true"`

	// MinIO / S3-compatible settings.
	MinioEndpoint  string `split_words:"true"`
	MinioAccessKey string `split_words:"true"`
	MinioSecretKey string `split_words:"true"`
	MinioUseSSL    bool   `split_words:"true"`

	// GCP settings.
	GoogleApplicationCredentials string `split_words:"true"`
	BigQueryProjectID            string `split_words:"true"`
	BigQueryDataset               string `split_words:"true"`

	SQLServerSQLBulkCopyFlag bool `split_words:"true"`

	OpenTelemetryFlag              bool   `split_words:"true"`
	OpenTelemetryTraceEndpoint     string `split_words:"true"`
	OpenTelemetryLogEndpoint       string `split_words:"true"`
	OpenTelemetryAuthorizationToken string `split_words:"true"`
}

// defaults returns the environment-scoped baseline, applied before
// envconfig.Process overlays anything the environment actually sets.
func defaults(env Env) Config {
	switch env {
	case Dev:
		return Config{
			EnvState:      Dev,
			DirectoryPath: "testdata/drop",
			ArchivePath:   "testdata/archive",
			DuplicateFilesPath: "testdata/duplicates",
			QuarantinePath: "testdata/quarantine",
			BatchSize:     10000,
			LogLevel:      "debug",
			FileHelperPlatform: "local",
			SourceConfigDir: "sources.d",
			WorkerCount:   2,
			RetryAttempts: 3,
		}
	case Test:
		return Config{
			EnvState:      Test,
			DatabaseURL:   "sqlite::memory:",
			DirectoryPath: "testdata/test_drop",
			ArchivePath:   "testdata/test_archive",
			DuplicateFilesPath: "testdata/test_duplicates",
			QuarantinePath: "testdata/test_quarantine",
			BatchSize:     100,
			LogLevel:      "info",
			FileHelperPlatform: "local",
			SourceConfigDir: "sources.d",
			WorkerCount:   1,
			RetryAttempts: 1,
		}
	default:
		return Config{
			EnvState:      Prod,
			BatchSize:     100000,
			LogLevel:      "warning",
			FileHelperPlatform: "local",
			SourceConfigDir: "sources.d",
			WorkerCount:   0, // 0 means "use runtime.NumCPU()"
			RetryAttempts: 3,
		}
	}
}

// envPrefix returns the envconfig prefix for an environment. Prod carries
// no prefix, matching the plain (unprefixed) variable names FileLoader
// documents as its default; dev and test are prefixed so a developer can
// run against a live DATABASE_URL alongside DEV_-prefixed overrides without
// clobbering it.
func envPrefix(env Env) string {
	switch env {
	case Dev:
		return "DEV"
	case Test:
		return "TEST"
	default:
		return ""
	}
}

// Load builds a Config for the given environment name ("dev", "test", or
// anything else, treated as "prod"), applying environment-scoped defaults
// and then overlaying whatever the process environment sets.
func Load(envState string) (*Config, error) {
	env := Prod
	switch strings.ToLower(envState) {
	case "dev":
		env = Dev
	case "test":
		env = Test
	}

	cfg := defaults(env)
	if err := envconfig.Process(envPrefix(env), &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.EnvState = env

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	return &cfg, nil
}

// Dialect sniffs the SQL dialect from DatabaseURL's scheme, matching the
// DRIVERNAME property of the settings model this config replaces.
func (c *Config) Dialect() (string, error) {
	url := strings.ToLower(c.DatabaseURL)
	for _, d := range []string{"postgresql", "postgres", "mysql", "mssql", "sqlserver", "sqlite", "bigquery"} {
		if strings.Contains(url, d) {
			switch d {
			case "postgres":
				return "postgresql", nil
			case "sqlserver":
				return "mssql", nil
			default:
				return d, nil
			}
		}
	}
	return "", fmt.Errorf("config: unsupported database driver in DATABASE_URL: %s", c.DatabaseURL)
}
