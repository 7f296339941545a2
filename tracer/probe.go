// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package tracer

// Capabilities describes what an opened probe and its target can do.
type Capabilities struct {
	ChipId          uint32 // 0 when no target answered
	ChipDescription string
	HasTrace        bool // probe firmware supports trace capture
	HasSwoTracing   bool // target chip exports SWO
	TraceFrequency  uint32
	MaxSerialLength int
}

// Probe is an opened debug probe with a target attached.
type Probe interface {
	Read32(addr uint32) (uint32, error)
	Write32(addr uint32, value uint32) error
	ForceDebug() error
	Reset() error
	Run() error

	EnableTrace() error
	DisableTrace() error
	// ReadTrace copies pending trace bytes into buffer. It returns 0 without
	// error when nothing is pending.
	ReadTrace(buffer []byte) (int, error)

	Capabilities() Capabilities
	Close()
}

// Driver opens probes. A nil serial opens any probe.
type Driver interface {
	Open(serial []byte) (Probe, error)
	MaxSerialLength() int
}
