// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package tracer drives a SWO trace session: it opens a probe, programs the
// target for asynchronous trace output and feeds the captured stream into
// the ITM decoder until it is cancelled.
package tracer

import (
	"context"
	"fmt"
	"time"

	"github.com/bbnote/sttrace/itm"
	"github.com/bbnote/sttrace/swo"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	TraceBufferSize = 4096
	// the probe buffer fills in around 2ms, poll at half of that when idle
	PollBackoff = time.Millisecond
)

type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateConfigured
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("unknown (%d)", int(s))
	}
}

type Session struct {
	settings Settings
	driver   Driver
	out      itm.Output

	clock      clock.Clock
	thresholds itm.Thresholds
	log        logrus.FieldLogger

	state State
	probe Probe

	decoder     *itm.Decoder
	diagnostics *itm.Diagnostics
}

type Option func(*Session)

func WithClock(clk clock.Clock) Option {
	return func(s *Session) { s.clock = clk }
}

func WithThresholds(thresholds itm.Thresholds) Option {
	return func(s *Session) { s.thresholds = thresholds }
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Session) { s.log = log }
}

func NewSession(settings Settings, driver Driver, out itm.Output, opts ...Option) *Session {
	s := &Session{
		settings:   settings,
		driver:     driver,
		out:        out,
		clock:      clock.New(),
		thresholds: itm.DefaultThresholds,
		log:        logrus.StandardLogger(),
		state:      StateDisconnected,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Session) State() State {
	return s.state
}

// Decoder returns the packet decoder of the running session, nil before Run.
func (s *Session) Decoder() *itm.Decoder {
	return s.decoder
}

// forced logs err and reports whether the session may continue anyway.
func (s *Session) forced(err error) bool {
	s.log.Error(err)
	return s.settings.Force
}

// Connect opens the probe and checks that it is able to capture SWO trace
// from the attached target.
func (s *Session) Connect() error {
	if s.state != StateDisconnected {
		return errors.Errorf("cannot connect in state %s", s.state)
	}

	var serial []byte
	if s.settings.SerialNumber != "" {
		serial = DecodeSerial(s.settings.SerialNumber, s.driver.MaxSerialLength())
		s.log.Debugf("looking for stlink with serial %x", serial)
	}

	probe, err := s.driver.Open(serial)
	if err != nil {
		s.log.Error(err)
		return errors.Wrap(ErrProbeNotFound, err.Error())
	}

	s.probe = probe
	s.state = StateConnected

	caps := probe.Capabilities()
	s.log.Debugf("connected to chip 0x%03x (%s)", caps.ChipId, caps.ChipDescription)

	if caps.ChipId == 0 && !s.forced(ErrNoTarget) {
		return ErrNoTarget
	}

	if !caps.HasTrace && !s.forced(ErrTraceUnsupported) {
		return ErrTraceUnsupported
	}

	if !caps.HasSwoTracing {
		err := errors.Wrapf(ErrChipUnsupported, "device '%s'", caps.ChipDescription)
		if !s.forced(err) {
			return err
		}
	}

	return nil
}

// Configure programs the target for SWO output and lets the core run.
func (s *Session) Configure() error {
	if s.state != StateConnected {
		return errors.Errorf("cannot configure in state %s", s.state)
	}

	cfg := swo.Config{
		Reset:          s.settings.ResetBoard,
		Force:          s.settings.Force,
		CoreClockMHz:   s.settings.CoreClockMHz,
		TraceFrequency: s.probe.Capabilities().TraceFrequency,
	}

	if err := swo.Configure(s.probe, cfg, s.log); err != nil {
		err = errors.Wrap(ErrConfiguration, err.Error())
		if !s.forced(err) {
			return err
		}
	}

	if err := s.probe.Run(); err != nil {
		err = errors.Wrapf(ErrConfiguration, "unable to run device: %v", err)
		if !s.forced(err) {
			return err
		}
	}

	s.state = StateConfigured
	return nil
}

// Run polls the probe for trace data until ctx is cancelled, reading the
// probe fails or the output breaks. Cancellation is checked once per poll.
func (s *Session) Run(ctx context.Context) error {
	if s.state != StateConfigured {
		return errors.Errorf("cannot run in state %s", s.state)
	}

	s.state = StateRunning
	s.decoder = itm.NewDecoder(s.out, s.log)
	s.diagnostics = itm.NewDiagnostics(s.clock, s.thresholds, s.log)

	s.log.Info("Reading Trace")

	buffer := make([]byte, TraceBufferSize)

	for ctx.Err() == nil {
		if !s.poll(buffer) {
			break
		}

		s.diagnostics.Check(s.decoder)
	}

	if err := s.out.Flush(); err != nil {
		s.log.Debugf("flushing output failed: %v", err)
	}

	return nil
}

func (s *Session) poll(buffer []byte) bool {
	n, err := s.probe.ReadTrace(buffer)
	if err != nil {
		s.log.Errorf("error reading trace (%v)", errors.Wrap(ErrProbeIO, err.Error()))
		return false
	}

	if n == 0 {
		s.clock.Sleep(PollBackoff)
		return true
	}

	if _, err := s.decoder.Write(buffer[:n]); err != nil {
		s.log.Errorf("error writing target output: %v", err)
		return false
	}

	return true
}

// Stop disables trace capture and releases the probe. It is safe to call in
// any state and more than once.
func (s *Session) Stop() {
	if s.probe != nil {
		if err := s.probe.DisableTrace(); err != nil {
			s.log.Debugf("disabling trace failed: %v", err)
		}

		s.probe.Close()
		s.probe = nil
	}

	s.state = StateStopped
}

// Execute runs a complete session. The probe is always released before it
// returns.
func (s *Session) Execute(ctx context.Context) error {
	defer s.Stop()

	if err := s.Connect(); err != nil {
		return err
	}

	if err := s.Configure(); err != nil {
		return err
	}

	return s.Run(ctx)
}
