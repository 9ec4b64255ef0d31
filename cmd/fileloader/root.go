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
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// exit codes per the external interface contract: 0 means the process ran
// to completion with no fatal internal error (per-file failures are not
// process failures), 1 means a fatal internal error occurred, 2 means the
// process could not even start due to a configuration error.
const (
	exitOK   = 0
	exitFail = 1
	exitConfig = 2
)

var envState string

var rootCmd = &cobra.Command{
	Use:   "fileloader",
	Short: "Loads structured data files into a relational or analytic target",
	Long: "fileloader watches a drop directory for structured data files (CSV, Excel, JSON, Parquet, " +
		"optionally gzip-compressed), matches them against declared source configurations, validates " +
		"and stages their rows, merges valid rows into a target database, and routes invalid rows to " +
		"a dead-letter queue.",
}

// Execute adds all child commands to the root command and runs it, exiting
// the process with exitConfig if cobra itself could not even parse flags.
func Execute() {
	rootCmd.PersistentFlags().StringVar(&envState, "env", "prod", "deployment environment: dev, test, or prod")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logrus.WithError(err).Error("command failed")
		os.Exit(exitConfig)
	}
}
