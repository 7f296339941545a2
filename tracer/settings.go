// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package tracer

import (
	"github.com/sirupsen/logrus"
)

const (
	DefaultLoggingLevel = 50
	DebugLoggingLevel   = 100
)

type Settings struct {
	ShowHelp     bool
	ShowVersion  bool
	LoggingLevel int
	CoreClockMHz uint32
	ResetBoard   bool
	Force        bool
	SerialNumber string // hex text, empty for any probe
}

func DefaultSettings() Settings {
	return Settings{
		LoggingLevel: DefaultLoggingLevel,
		ResetBoard:   true,
	}
}

// LogLevel maps the 0..100 verbosity scale onto logrus levels.
func (s Settings) LogLevel() logrus.Level {
	switch {
	case s.LoggingLevel >= 100:
		return logrus.TraceLevel
	case s.LoggingLevel >= 90:
		return logrus.DebugLevel
	case s.LoggingLevel >= 50:
		return logrus.InfoLevel
	case s.LoggingLevel >= 30:
		return logrus.WarnLevel
	case s.LoggingLevel >= 20:
		return logrus.ErrorLevel
	default:
		return logrus.FatalLevel
	}
}

func (s Settings) Dump(log logrus.FieldLogger) {
	serial := s.SerialNumber
	if serial == "" {
		serial = "any"
	}

	log.Debugf("show_help = %t", s.ShowHelp)
	log.Debugf("show_version = %t", s.ShowVersion)
	log.Debugf("logging_level = %d", s.LoggingLevel)
	log.Debugf("core_frequency = %d MHz", s.CoreClockMHz)
	log.Debugf("reset_board = %t", s.ResetBoard)
	log.Debugf("force = %t", s.Force)
	log.Debugf("serial_number = %s", serial)
}
