// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Package itm decodes the ITM/DWT packet stream a Cortex-M core exports over
// SWO. The packet layout follows section D4.2 of the ARMv7-M architecture
// reference manual (https://developer.arm.com/documentation/ddi0403/ed/).
package itm

import (
	"fmt"
	"io"

	"github.com/boljen/go-bitmap"
	"github.com/sirupsen/logrus"
)

// header byte classification
const (
	opOverflow        = 0x70
	opTargetSource    = 0x01 // software source, stimulus port 0, one byte payload
	opContinuation    = 0x80
	opSourceSizeMask  = 0x03
	opHardwareSource  = 0x04
	opSourceAddrShift = 3

	maxSourceAddresses = 32
	maxOpcodes         = 256
)

func isOverflow(c byte) bool     { return c == opOverflow }
func isLocalTime(c byte) bool    { return c&0x0f == 0x00 && c&0x70 != 0x00 }
func isGlobalTime(c byte) bool   { return c&0xdf == 0x94 }
func isExtension(c byte) bool    { return c&0x0b == 0x08 }
func isSource(c byte) bool       { return c&opSourceSizeMask != 0 }
func isSwSource(c byte) bool     { return isSource(c) && c&opHardwareSource == 0 }
func isTargetSource(c byte) bool { return c == opTargetSource }
func hasContinuation(c byte) bool { return c&opContinuation != 0 }

// State is the current state of the packet parser.
type State int

const (
	StateIdle State = iota
	StateTargetSource
	StateSkipFrame
	StateSkip4
	StateSkip3
	StateSkip2
	StateSkip1
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTargetSource:
		return "target source"
	case StateSkipFrame:
		return "skip frame"
	case StateSkip4:
		return "skip 4"
	case StateSkip3:
		return "skip 3"
	case StateSkip2:
		return "skip 2"
	case StateSkip1:
		return "skip 1"
	default:
		return fmt.Sprintf("unknown state (%d)", int(s))
	}
}

// Counters holds the decode statistics of a trace session.
type Counters struct {
	RawBytes    uint32
	TargetData  uint32
	TimePackets uint32
	Overflow    uint32
	Errors      uint32
}

// Output receives the payload bytes of the target source. A *bufio.Writer
// satisfies it.
type Output interface {
	io.ByteWriter
	Flush() error
}

type transition func(d *Decoder, c byte) State

// transitions is indexed by State; every state consumes exactly one byte.
var transitions = [...]transition{
	StateIdle:         (*Decoder).updateIdle,
	StateTargetSource: (*Decoder).updateTargetSource,
	StateSkipFrame:    (*Decoder).updateSkipFrame,
	StateSkip4:        func(*Decoder, byte) State { return StateSkip3 },
	StateSkip3:        func(*Decoder, byte) State { return StateSkip2 },
	StateSkip2:        func(*Decoder, byte) State { return StateSkip1 },
	StateSkip1:        func(*Decoder, byte) State { return StateIdle },
}

// Decoder is a byte driven ITM packet parser. It forwards the payload of
// target source packets to its output and keeps statistics about everything
// else it sees.
type Decoder struct {
	state    State
	counters Counters

	unknownOpcodes bitmap.Bitmap
	unknownSources bitmap.Bitmap

	out    Output
	outErr error
	log    logrus.FieldLogger
}

func NewDecoder(out Output, log logrus.FieldLogger) *Decoder {
	return &Decoder{
		state:          StateIdle,
		unknownOpcodes: bitmap.New(maxOpcodes),
		unknownSources: bitmap.New(maxSourceAddresses),
		out:            out,
		log:            log,
	}
}

// Write feeds p into the state machine, one byte at a time. All bytes are
// always consumed; the first output error encountered is returned.
func (d *Decoder) Write(p []byte) (int, error) {
	d.outErr = nil

	for _, c := range p {
		d.Feed(c)
	}

	return len(p), d.outErr
}

// Feed performs exactly one state transition for c.
func (d *Decoder) Feed(c byte) {
	d.counters.RawBytes++

	if d.state < 0 || int(d.state) >= len(transitions) {
		d.log.Errorf("invalid state %d, this should never happen", d.state)
		d.state = StateIdle
		return
	}

	d.state = transitions[d.state](d, c)
}

func (d *Decoder) State() State {
	return d.state
}

func (d *Decoder) Counters() Counters {
	return d.counters
}

// UnknownOpcodes returns the distinct unknown header bytes seen so far in
// ascending order.
func (d *Decoder) UnknownOpcodes() []byte {
	var opcodes []byte

	for i := 0; i < maxOpcodes; i++ {
		if d.unknownOpcodes.Get(i) {
			opcodes = append(opcodes, byte(i))
		}
	}

	return opcodes
}

// UnknownSources returns the distinct software source addresses seen so far
// in ascending order. The target source is never part of it.
func (d *Decoder) UnknownSources() []uint8 {
	var sources []uint8

	for i := 0; i < maxSourceAddresses; i++ {
		if d.unknownSources.Get(i) {
			sources = append(sources, uint8(i))
		}
	}

	return sources
}

func (d *Decoder) updateIdle(c byte) State {
	if isTargetSource(c) {
		return StateTargetSource
	}

	if isSource(c) {
		size := c & opSourceSizeMask

		if isSwSource(c) {
			addr := int(c >> opSourceAddrShift)

			if !d.unknownSources.Get(addr) {
				d.log.Warnf("unsupported source 0x%x size %d", addr, size)
				d.unknownSources.Set(addr, true)
			}
		}

		switch size {
		case 1:
			return StateSkip1
		case 2:
			return StateSkip2
		default:
			return StateSkip4
		}
	}

	// the overflow byte also matches the local timestamp pattern, it is
	// counted as overflow and then reported as unknown opcode
	if isOverflow(c) {
		d.counters.Overflow++
		return d.unknownOpcode(c)
	}

	if isLocalTime(c) || isGlobalTime(c) {
		d.counters.TimePackets++
		return continuation(c)
	}

	if isExtension(c) {
		return continuation(c)
	}

	return d.unknownOpcode(c)
}

func (d *Decoder) unknownOpcode(c byte) State {
	if !d.unknownOpcodes.Get(int(c)) {
		d.log.Warnf("unknown opcode 0x%02x", c)
		d.unknownOpcodes.Set(int(c), true)
	}

	d.counters.Errors++
	return continuation(c)
}

func (d *Decoder) updateTargetSource(c byte) State {
	if err := d.out.WriteByte(c); err != nil && d.outErr == nil {
		d.outErr = err
	}

	if c == '\n' {
		if err := d.out.Flush(); err != nil && d.outErr == nil {
			d.outErr = err
		}
	}

	d.counters.TargetData++
	return StateIdle
}

func (d *Decoder) updateSkipFrame(c byte) State {
	return continuation(c)
}

func continuation(c byte) State {
	if hasContinuation(c) {
		return StateSkipFrame
	}

	return StateIdle
}
