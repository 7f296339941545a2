// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package itm

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
)

// Thresholds are the empirical limits used to decide whether a trace session
// looks misconfigured.
type Thresholds struct {
	Warmup         time.Duration // time to wait before judging the statistics
	MinRawBytes    uint32
	MaxErrors      uint32
	MinTimePackets uint32
}

var DefaultThresholds = Thresholds{
	Warmup:         10 * time.Second,
	MinRawBytes:    100,
	MaxErrors:      1,
	MinTimePackets: 10,
}

// Report tells what a single Check call did.
type Report struct {
	Ran     bool
	Flagged bool
}

// Diagnostics inspects the decoder statistics once, after the warm-up period,
// and logs hints when the trace does not look like a healthy SWO stream.
type Diagnostics struct {
	clock      clock.Clock
	start      time.Time
	checked    bool
	thresholds Thresholds
	log        logrus.FieldLogger
}

// NewDiagnostics starts the warm-up period at the current time of clk.
func NewDiagnostics(clk clock.Clock, thresholds Thresholds, log logrus.FieldLogger) *Diagnostics {
	return &Diagnostics{
		clock:      clk,
		start:      clk.Now(),
		thresholds: thresholds,
		log:        log,
	}
}

func (d *Diagnostics) Checked() bool {
	return d.checked
}

// Check runs the heuristic the first time it is called after the warm-up
// period elapsed. Any later call is a no-op.
func (d *Diagnostics) Check(dec *Decoder) Report {
	if d.checked || d.clock.Since(d.start) < d.thresholds.Warmup {
		return Report{}
	}
	d.checked = true

	c := dec.Counters()

	if c.RawBytes >= d.thresholds.MinRawBytes && c.Errors <= d.thresholds.MaxErrors &&
		c.TimePackets >= d.thresholds.MinTimePackets {
		d.log.Debugf("trace statistics look sane after %s", d.thresholds.Warmup)
		return Report{Ran: true}
	}

	d.log.Warn("****")
	d.log.Warn("We do not appear to be retrieving data from the stlink correctly.")
	d.log.Warnf("Raw Bytes: %d", c.RawBytes)
	d.log.Warnf("Target Data: %d", c.TargetData)
	d.log.Warnf("Time Packets: %d", c.TimePackets)
	d.log.Warnf("Overflow Count: %d", c.Overflow)
	d.log.Warnf("Errors: %d", c.Errors)

	for _, op := range dec.UnknownOpcodes() {
		d.log.Warnf("Unknown Opcode 0x%02x", op)
	}

	for _, src := range dec.UnknownSources() {
		d.log.Warnf("Unknown Source %d", src)
	}

	d.log.Warn("Check that the clock frequency is set correctly. Either with the --clock=XX")
	d.log.Warn("command line option, or by adding the following to your device's clock initialization:")
	d.log.Warn("  TPI->ACPR = HAL_RCC_GetHCLKFreq() / 2000000 - 1;")
	d.log.Warn("****")

	return Report{Ran: true, Flagged: true}
}
