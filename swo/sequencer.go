// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package swo programs the Cortex-M debug and trace units so the core emits
// its ITM stream asynchronously over the SWO pin.
package swo

import (
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Target is the part of a debug probe the sequencer needs.
type Target interface {
	Read32(addr uint32) (uint32, error)
	Write32(addr uint32, value uint32) error
	ForceDebug() error
	Reset() error
	EnableTrace() error
}

type Config struct {
	Reset          bool   // reset the core after halting it
	Force          bool   // keep going after failures
	CoreClockMHz   uint32 // 0 keeps the prescaler programmed by the firmware
	TraceFrequency uint32 // SWO sample frequency of the probe in Hz
}

// Prescaler returns the TPI_ACPR value that makes the SWO bit rate match the
// probe sample frequency for the given core clock.
func Prescaler(coreClockMHz uint32, traceFrequency uint32) uint32 {
	return coreClockMHz*1000000/traceFrequency - 1
}

// checkClock rejects system clocks for which Prescaler has no valid result.
func checkClock(coreClockMHz uint32, traceFrequency uint32) error {
	if coreClockMHz > math.MaxUint32/1000000 || coreClockMHz*1000000 < traceFrequency {
		return errors.Errorf("a %d MHz system clock cannot drive SWO at %d Hz", coreClockMHz, traceFrequency)
	}

	return nil
}

// ClockFromPrescaler returns the system clock in MHz implied by a TPI_ACPR
// value, rounded to the nearest MHz.
func ClockFromPrescaler(prescaler uint32, traceFrequency uint32) uint32 {
	systemClock := (prescaler + 1) * traceFrequency
	return (systemClock + 500000) / 1000000
}

type sequencer struct {
	target Target
	force  bool
	log    logrus.FieldLogger

	err    error // first failure when not forced
	failed *multierror.Error
}

// do runs a single step unless an earlier unforced step failed already.
func (s *sequencer) do(description string, step func() error) bool {
	if s.err != nil {
		return false
	}

	if err := step(); err != nil {
		err = errors.Wrap(err, description)
		s.log.Error(err)

		if !s.force {
			s.err = err
			return false
		}

		s.failed = multierror.Append(s.failed, err)
		return false
	}

	return true
}

func (s *sequencer) write(addr uint32, value uint32) {
	s.do(fmt.Sprintf("unable to set address 0x%08x to 0x%08x", addr, value), func() error {
		return s.target.Write32(addr, value)
	})
}

func (s *sequencer) read(addr uint32) (uint32, bool) {
	var value uint32

	ok := s.do(fmt.Sprintf("unable to read from address 0x%08x", addr), func() error {
		var err error
		value, err = s.target.Read32(addr)
		return err
	})

	return value, ok
}

func (s *sequencer) result() error {
	if s.err != nil {
		return s.err
	}

	return s.failed.ErrorOrNil()
}

// Configure halts the core and programs the debug, trace port and ITM units
// for asynchronous SWO output. Without cfg.Force the first failing step aborts
// the sequence and its error is returned. With cfg.Force every step is tried
// and all failures are returned together.
func Configure(target Target, cfg Config, log logrus.FieldLogger) error {
	s := &sequencer{target: target, force: cfg.Force, log: log}

	s.do("unable to debug device", target.ForceDebug)

	if cfg.Reset {
		s.do("unable to reset device", target.Reset)
	}

	s.write(DcbDhcsr, DhcsrDbgKey|DhcsrCDebugEn|DhcsrCHalt)
	s.write(DcbDemcr, DemcrTrcEna)
	s.write(FpCtrl, FpCtrlKey)
	s.write(DwtFunction0, 0)
	s.write(DwtFunction1, 0)
	s.write(DwtFunction2, 0)
	s.write(DwtFunction3, 0)
	s.write(DwtCtrl, 0)
	s.write(DbgMcuCr, DbgMcuCrDbgSleep|DbgMcuCrDbgStop|DbgMcuCrDbgStandby|
		DbgMcuCrTraceIoEn|DbgMcuCrTraceModeAsync)

	s.do("unable to turn on tracing in stlink", target.EnableTrace)

	s.write(TpiCspsr, TpiCspsrPortSize1)
	configurePrescaler(s, cfg)

	s.write(TpiFfcr, TpiFfcrTrigIn)
	s.write(TpiSppr, TpiSpprSwoNrz)
	s.write(ItmLar, ItmLarKey)
	s.write(ItmTcc, ItmTccSyncCount)
	s.write(ItmTcr, ItmTcrTraceBusId1|ItmTcrTsEna|ItmTcrItmEna)
	s.write(ItmTer, ItmTerPortsAll)
	s.write(ItmTpr, ItmTprPortsAll)
	s.write(DwtCtrl, 4*DwtCtrlNumComp|DwtCtrlCycTap|0xF*DwtCtrlPostInit|
		0xF*DwtCtrlPostPreset|DwtCtrlCycCntEna)
	s.write(DcbDemcr, DemcrTrcEna)

	return s.result()
}

func configurePrescaler(s *sequencer, cfg Config) {
	if s.err != nil {
		return
	}

	if cfg.TraceFrequency == 0 {
		s.do("unable to configure prescaler", func() error {
			return errors.New("probe reports no trace frequency")
		})
		return
	}

	if cfg.CoreClockMHz != 0 {
		if !s.do("unable to configure prescaler", func() error {
			return checkClock(cfg.CoreClockMHz, cfg.TraceFrequency)
		}) {
			return
		}

		prescaler := Prescaler(cfg.CoreClockMHz, cfg.TraceFrequency)
		s.write(TpiAcpr, prescaler)
		s.log.Infof("Trace Port Interface configured for a %d MHz system clock (prescaler %d)",
			cfg.CoreClockMHz, prescaler)
		return
	}

	prescaler, ok := s.read(TpiAcpr)
	if !ok {
		return
	}

	if prescaler != 0 {
		s.log.Infof("Trace Port Interface configured to expect a %d MHz system clock",
			ClockFromPrescaler(prescaler, cfg.TraceFrequency))
	} else {
		s.log.Warn("Trace Port Interface not configured. Specify the system clock with a --clock=XX command")
		s.log.Warn("line option or set it in your device's clock initialization routine, such as with:")
		s.log.Warn("  TPI->ACPR = HAL_RCC_GetHCLKFreq() / 2000000 - 1;")
	}
}
