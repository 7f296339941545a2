// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"github.com/pkg/errors"
)

type stLinkTrace struct {
	enabled  bool
	sourceHz uint32
}

// EnableTrace starts SWO capture in the probe at TraceFrequency.
func (h *StLink) EnableTrace() error {
	if !h.version.flags.Get(flagHasTrace) {
		return errors.New("tracing not supported by this version")
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV2StartTraceRx)
	ctx.cmdBuffer.WriteUint16LE(TraceBufferSize)
	ctx.cmdBuffer.WriteUint32LE(TraceFrequency)

	if err := h.usbTransferErrCheck(ctx, 2); err != nil {
		return errors.Wrap(err, "could not enable trace")
	}

	h.trace.enabled = true
	h.trace.sourceHz = TraceFrequency

	logger.Debugf("enabled trace recording at %d Hz", h.trace.sourceHz)

	return nil
}

// DisableTrace stops SWO capture in the probe.
func (h *StLink) DisableTrace() error {
	if !h.version.flags.Get(flagHasTrace) {
		return errors.New("stlink does not support trace")
	}

	logger.Debug("disabling trace functionality")

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV2StopTraceRx)

	if err := h.usbTransferErrCheck(ctx, 2); err != nil {
		return errors.Wrap(err, "could not disable trace")
	}

	h.trace.enabled = false

	return nil
}

func (h *StLink) usbTraceBytesAvailable() (uint32, error) {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV2GetTraceNB)

	if err := h.usbTransferNoErrCheck(ctx, 2); err != nil {
		return 0, err
	}

	return uint32(ctx.dataBuffer.ReadUint16LE()), nil
}

// ReadTrace copies the pending trace bytes, at most len(buffer), into buffer
// and returns how many were copied.
func (h *StLink) ReadTrace(buffer []byte) (int, error) {
	if !h.trace.enabled {
		return 0, errors.New("trace is not enabled")
	}

	available, err := h.usbTraceBytesAvailable()

	if err != nil {
		return 0, err
	}

	size := int(available)

	if size > len(buffer) {
		size = len(buffer)
	}

	if size == 0 {
		return 0, nil
	}

	bytesRead, err := usbRead(h.traceEndpoint, buffer[:size])

	if err != nil {
		return 0, err
	}

	logger.Tracef("read [%d from %d] bytes from trace channel", bytesRead, available)

	return bytesRead, nil
}
