// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package tracer

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bbnote/sttrace/itm"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProbe struct {
	caps      Capabilities
	registers map[uint32]uint32

	chunks  [][]byte // served one per ReadTrace call
	readErr error
	onDrain func()  // called once all chunks were served
	reads   int

	failEnableTrace bool
	failRun         bool

	traceEnabled  bool
	traceDisabled int
	closed        int
}

func newFakeProbe() *fakeProbe {
	return &fakeProbe{
		caps: Capabilities{
			ChipId:          0x413,
			ChipDescription: "STM32F4x5/F4x7",
			HasTrace:        true,
			HasSwoTracing:   true,
			TraceFrequency:  2000000,
			MaxSerialLength: 64,
		},
		registers: map[uint32]uint32{},
	}
}

func (p *fakeProbe) Read32(addr uint32) (uint32, error) { return p.registers[addr], nil }
func (p *fakeProbe) Write32(addr uint32, value uint32) error {
	p.registers[addr] = value
	return nil
}
func (p *fakeProbe) ForceDebug() error { return nil }
func (p *fakeProbe) Reset() error      { return nil }

func (p *fakeProbe) Run() error {
	if p.failRun {
		return errors.New("run failed")
	}
	return nil
}

func (p *fakeProbe) EnableTrace() error {
	if p.failEnableTrace {
		return errors.New("trace rx failed")
	}
	p.traceEnabled = true
	return nil
}

func (p *fakeProbe) DisableTrace() error {
	p.traceDisabled++
	p.traceEnabled = false
	return nil
}

func (p *fakeProbe) ReadTrace(buffer []byte) (int, error) {
	p.reads++

	if len(p.chunks) > 0 {
		n := copy(buffer, p.chunks[0])
		p.chunks = p.chunks[1:]
		return n, nil
	}

	if p.readErr != nil {
		return 0, p.readErr
	}

	if p.onDrain != nil {
		p.onDrain()
		p.onDrain = nil
	}

	return 0, nil
}

func (p *fakeProbe) Capabilities() Capabilities { return p.caps }
func (p *fakeProbe) Close()                     { p.closed++ }

type fakeDriver struct {
	probe  *fakeProbe
	serial []byte
	opened int
}

func (d *fakeDriver) Open(serial []byte) (Probe, error) {
	d.opened++
	d.serial = serial
	if d.probe == nil {
		return nil, errors.New("could not find any ST-Link connected to computer")
	}
	return d.probe, nil
}

func (d *fakeDriver) MaxSerialLength() int { return 64 }

type testOutput struct {
	*bufio.Writer
	sink *bytes.Buffer
}

func newTestOutput() *testOutput {
	sink := &bytes.Buffer{}
	return &testOutput{Writer: bufio.NewWriter(sink), sink: sink}
}

func newTestSession(settings Settings, driver Driver, out itm.Output) (*Session, *test.Hook) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	return NewSession(settings, driver, out, WithLogger(log)), hook
}

func targetPackets(payload string) []byte {
	var stream []byte
	for i := 0; i < len(payload); i++ {
		stream = append(stream, 0x01, payload[i])
	}
	return stream
}

func TestSessionConnectProbeNotFound(t *testing.T) {
	driver := &fakeDriver{}
	s, _ := newTestSession(DefaultSettings(), driver, newTestOutput())

	err := s.Execute(context.Background())

	assert.True(t, errors.Is(err, ErrProbeNotFound))
	assert.Equal(t, ExitProbeNotFound, ExitCode(err))
	assert.Equal(t, StateStopped, s.State())
}

func TestSessionConnectPassesSerial(t *testing.T) {
	driver := &fakeDriver{probe: newFakeProbe()}
	settings := DefaultSettings()
	settings.SerialNumber = "066dff49"
	s, _ := newTestSession(settings, driver, newTestOutput())

	require.NoError(t, s.Connect())
	assert.Equal(t, []byte{0x06, 0x6d, 0xff, 0x49}, driver.serial)
	assert.Equal(t, StateConnected, s.State())

	s.Stop()
	assert.Equal(t, 1, driver.probe.closed)
}

func TestSessionConnectAnyProbe(t *testing.T) {
	driver := &fakeDriver{probe: newFakeProbe()}
	s, _ := newTestSession(DefaultSettings(), driver, newTestOutput())

	require.NoError(t, s.Connect())
	assert.Nil(t, driver.serial)
}

func TestSessionCapabilityChecks(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Capabilities)
		target error
		code   int
	}{
		{"no target", func(c *Capabilities) { c.ChipId = 0 }, ErrNoTarget, ExitMissingDevice},
		{"no trace", func(c *Capabilities) { c.HasTrace = false }, ErrTraceUnsupported, ExitUnsupportedProbe},
		{"no swo", func(c *Capabilities) { c.HasSwoTracing = false }, ErrChipUnsupported, ExitUnsupportedChip},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			probe := newFakeProbe()
			tt.modify(&probe.caps)
			s, _ := newTestSession(DefaultSettings(), &fakeDriver{probe: probe}, newTestOutput())

			err := s.Execute(context.Background())

			assert.True(t, errors.Is(err, tt.target), "%v", err)
			assert.Equal(t, tt.code, ExitCode(err))
			assert.Equal(t, 1, probe.closed)
			assert.Equal(t, 1, probe.traceDisabled)
		})

		t.Run(tt.name+" forced", func(t *testing.T) {
			probe := newFakeProbe()
			tt.modify(&probe.caps)
			settings := DefaultSettings()
			settings.Force = true
			s, hook := newTestSession(settings, &fakeDriver{probe: probe}, newTestOutput())

			require.NoError(t, s.Connect())
			assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
		})
	}
}

func TestSessionChipUnsupportedNamesDevice(t *testing.T) {
	probe := newFakeProbe()
	probe.caps.HasSwoTracing = false
	probe.caps.ChipDescription = "STM32F0xx"
	s, _ := newTestSession(DefaultSettings(), &fakeDriver{probe: probe}, newTestOutput())

	err := s.Connect()
	assert.Contains(t, err.Error(), "STM32F0xx")
}

func TestSessionConfigureFailure(t *testing.T) {
	probe := newFakeProbe()
	probe.failEnableTrace = true
	s, _ := newTestSession(DefaultSettings(), &fakeDriver{probe: probe}, newTestOutput())

	err := s.Execute(context.Background())

	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Equal(t, ExitStateError, ExitCode(err))
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, 1, probe.closed)
	assert.Zero(t, probe.reads)
}

func TestSessionRunFailure(t *testing.T) {
	probe := newFakeProbe()
	probe.failRun = true
	s, _ := newTestSession(DefaultSettings(), &fakeDriver{probe: probe}, newTestOutput())

	require.NoError(t, s.Connect())
	err := s.Configure()

	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "unable to run device")
}

func TestSessionForcedConfigureContinues(t *testing.T) {
	probe := newFakeProbe()
	probe.failEnableTrace = true
	probe.failRun = true
	settings := DefaultSettings()
	settings.Force = true
	s, _ := newTestSession(settings, &fakeDriver{probe: probe}, newTestOutput())

	require.NoError(t, s.Connect())
	require.NoError(t, s.Configure())
	assert.Equal(t, StateConfigured, s.State())
}

func TestSessionRunDecodesTrace(t *testing.T) {
	probe := newFakeProbe()
	stream := targetPackets("hello world\n")
	probe.chunks = [][]byte{stream[:5], stream[5:9], {}, stream[9:]}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	probe.onDrain = cancel

	out := newTestOutput()
	s, _ := newTestSession(DefaultSettings(), &fakeDriver{probe: probe}, out)

	require.NoError(t, s.Execute(ctx))

	assert.Equal(t, "hello world\n", out.sink.String())
	assert.Equal(t, uint32(len(stream)), s.Decoder().Counters().RawBytes)
	assert.Equal(t, uint32(12), s.Decoder().Counters().TargetData)
	assert.Equal(t, 1, probe.traceDisabled)
	assert.Equal(t, 1, probe.closed)
	assert.Equal(t, StateStopped, s.State())
}

func TestSessionRunFlushesOnExit(t *testing.T) {
	probe := newFakeProbe()
	probe.chunks = [][]byte{targetPackets("no newline")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	probe.onDrain = cancel

	out := newTestOutput()
	s, _ := newTestSession(DefaultSettings(), &fakeDriver{probe: probe}, out)

	require.NoError(t, s.Execute(ctx))
	assert.Equal(t, "no newline", out.sink.String())
}

func TestSessionRunStopsOnReadError(t *testing.T) {
	probe := newFakeProbe()
	probe.chunks = [][]byte{targetPackets("ok")}
	probe.readErr = errors.New("libusb: pipe error")

	out := newTestOutput()
	s, hook := newTestSession(DefaultSettings(), &fakeDriver{probe: probe}, out)

	require.NoError(t, s.Execute(context.Background()))

	assert.Equal(t, "ok", out.sink.String())
	assert.Equal(t, 2, probe.reads)
	assert.True(t, strings.HasPrefix(hook.LastEntry().Message, "error reading trace"),
		hook.LastEntry().Message)
	assert.Equal(t, 1, probe.closed)
}

func TestSessionRunHonorsCancelledContext(t *testing.T) {
	probe := newFakeProbe()
	probe.chunks = [][]byte{targetPackets("never")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newTestOutput()
	s, _ := newTestSession(DefaultSettings(), &fakeDriver{probe: probe}, out)

	require.NoError(t, s.Execute(ctx))
	assert.Zero(t, probe.reads)
	assert.Empty(t, out.sink.String())
	assert.Equal(t, 1, probe.closed)
}

type brokenOutput struct{}

func (brokenOutput) WriteByte(byte) error { return errors.New("broken pipe") }
func (brokenOutput) Flush() error         { return errors.New("broken pipe") }

func TestSessionRunStopsOnOutputError(t *testing.T) {
	probe := newFakeProbe()
	probe.chunks = [][]byte{targetPackets("a"), targetPackets("b")}

	s, _ := newTestSession(DefaultSettings(), &fakeDriver{probe: probe}, brokenOutput{})

	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, 1, probe.reads)
}

func TestSessionDiagnosticsRunOnce(t *testing.T) {
	probe := newFakeProbe()
	for i := 0; i < 50; i++ {
		probe.chunks = append(probe.chunks, []byte{0x00})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	probe.onDrain = cancel

	log, hook := test.NewNullLogger()
	thresholds := itm.DefaultThresholds
	thresholds.Warmup = 0
	s := NewSession(DefaultSettings(), &fakeDriver{probe: probe}, newTestOutput(),
		WithLogger(log), WithThresholds(thresholds))

	require.NoError(t, s.Execute(ctx))

	banners := 0
	for _, e := range hook.AllEntries() {
		if strings.HasPrefix(e.Message, "We do not appear to be retrieving data") {
			banners++
		}
	}
	assert.Equal(t, 1, banners)
}

func TestSessionStateOrder(t *testing.T) {
	s, _ := newTestSession(DefaultSettings(), &fakeDriver{probe: newFakeProbe()}, newTestOutput())

	assert.Error(t, s.Configure())
	assert.Error(t, s.Run(context.Background()))

	require.NoError(t, s.Connect())
	assert.Error(t, s.Connect())
	assert.Error(t, s.Run(context.Background()))

	s.Stop()
	s.Stop()
	assert.Equal(t, StateStopped, s.State())
}

// sleepCountingClock advances a mock clock on every Sleep and cancels the
// session after limit sleeps.
type sleepCountingClock struct {
	*clock.Mock
	sleeps []time.Duration
	limit  int
	cancel context.CancelFunc
}

func (c *sleepCountingClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.Mock.Add(d)

	if len(c.sleeps) == c.limit {
		c.cancel()
	}
}

func TestSessionIdleBackoff(t *testing.T) {
	probe := newFakeProbe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := &sleepCountingClock{Mock: clock.NewMock(), limit: 5, cancel: cancel}
	start := clk.Now()

	log, _ := test.NewNullLogger()
	s := NewSession(DefaultSettings(), &fakeDriver{probe: probe}, newTestOutput(), WithLogger(log), WithClock(clk))

	require.NoError(t, s.Execute(ctx))
	assert.Equal(t, 5, probe.reads)
	assert.Equal(t, []time.Duration{PollBackoff, PollBackoff, PollBackoff, PollBackoff, PollBackoff}, clk.sleeps)
	assert.Equal(t, 5*PollBackoff, clk.Now().Sub(start))
}
