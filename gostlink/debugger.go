// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"github.com/pkg/errors"
)

// ForceDebug halts the core.
func (h *StLink) ForceDebug() error {
	logger.Debug("halting core")

	return h.WriteUint32(dcbDhcsr, dhcsrDbgKey|dhcsrCHalt|dhcsrCDebugEn)
}

// Run lets a halted core continue while keeping debug enabled.
func (h *StLink) Run() error {
	logger.Debug("resuming core")

	return h.WriteUint32(dcbDhcsr, dhcsrDbgKey|dhcsrCDebugEn)
}

// Reset issues a system reset through the probe.
func (h *StLink) Reset() error {
	if h.version.jtagApi == jTagApiV1 {
		return errors.New("system reset not supported by jtag api v1")
	}

	logger.Debug("resetting target")

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV2ResetSys)

	return h.usbCmdAllowRetry(ctx, 2)
}

func (h *StLink) usbAssertSrst(srst byte) error {
	if h.version.stlink == 1 {
		return errors.New("srst command not supported by st-link V1")
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV2DriveNrst)
	ctx.cmdBuffer.WriteByte(srst)

	return h.usbCmdAllowRetry(ctx, 2)
}
