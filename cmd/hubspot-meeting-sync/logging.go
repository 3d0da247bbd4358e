// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

// The hubspot-meeting-sync service.
package main

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger creates the JSON logger. When logFile is set, logs are also
// written to a size-rotated file. The returned closer releases the file.
func newLogger(debug bool, logFile string) (*slog.Logger, io.Closer) {
	logOptions := &slog.HandlerOptions{}

	// Optional debug logging.
	if debug {
		logOptions.Level = slog.LevelDebug
		logOptions.AddSource = true
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if logFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closer = rotating
	}

	return slog.New(slog.NewJSONHandler(out, logOptions)), closer
}
