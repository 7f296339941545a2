// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/bbnote/sttrace/gostlink"
	"github.com/bbnote/sttrace/tracer"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// set at build time with -ldflags "-X main.version=..."
var version = "1.0.0"

func initLogger() *logrus.Logger {
	formatter := &prefixed.TextFormatter{
		DisableColors:   false,
		TimestampFormat: "15:04:05",
		FullTimestamp:   true,
		ForceFormatting: true,
	}

	logger := logrus.New()

	logger.SetFormatter(formatter)
	// stdout carries the target output
	logger.SetOutput(os.Stderr)

	return logger
}

// handleOptions parses args and serves the requests that end the program
// before a probe is opened. done reports whether the exit code is final.
func handleOptions(args []string, stdout io.Writer, stderr io.Writer, logger *logrus.Logger) (settings tracer.Settings, code int, done bool) {
	settings, err := parseOptions(args, stderr, logger.WithField("prefix", "options"))

	logger.SetLevel(settings.LogLevel())

	if err != nil {
		logger.Error(err)
		usage(stderr)
		return settings, tracer.ExitCode(err), true
	}

	settings.Dump(logger.WithField("prefix", "settings"))

	if settings.ShowHelp {
		usage(stdout)
		return settings, tracer.ExitSuccess, true
	}

	if settings.ShowVersion {
		fmt.Fprintf(stdout, "v%s\n", version)
		return settings, tracer.ExitSuccess, true
	}

	return settings, tracer.ExitSuccess, false
}

func run(logger *logrus.Logger) int {
	settings, code, done := handleOptions(os.Args[1:], os.Stdout, os.Stderr, logger)
	if done {
		return code
	}

	gostlink.SetLogger(logger.WithField("prefix", "stlink"))

	if err := gostlink.InitUsb(); err != nil {
		logger.Error(err)
		return tracer.ExitProbeNotFound
	}
	defer gostlink.CloseUsb()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGPIPE)
	defer stop()

	out := bufio.NewWriter(os.Stdout)

	session := tracer.NewSession(settings, stLinkDriver{log: logger.WithField("prefix", "stlink")}, out,
		tracer.WithLogger(logger.WithField("prefix", "trace")))

	err := session.Execute(ctx)

	if err != nil {
		logger.Error(err)
	}

	return tracer.ExitCode(err)
}

func main() {
	logger := initLogger()

	os.Exit(run(logger))
}
