// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"github.com/pkg/errors"
)

// minimumTargetVoltage is the lowest target supply still considered reliable
// for debugging.
const minimumTargetVoltage = 1.5

func usbModeToString(mode byte) string {
	switch mode {
	case deviceModeDFU:
		return "DFU"
	case deviceModeMass:
		return "MASS"
	case deviceModeDebug:
		return "DEBUG"
	case deviceModeSwim:
		return "SWIM"
	case deviceModeBootloader:
		return "BOOTLOADER"
	default:
		return "UNKNOWN"
	}
}

func (h *StLink) usbModeEnter(stMode StLinkMode) error {
	var rxSize uint32 = 0

	/* on api V2 we are able the read the latest command status */
	if h.version.jtagApi != jTagApiV1 {
		rxSize = 2
	}

	ctx := h.initTransfer(transferIncoming)

	switch stMode {
	case StLinkModeDebugJtag, StLinkModeDebugSwd:
		ctx.cmdBuffer.WriteByte(cmdDebug)

		if h.version.jtagApi == jTagApiV1 {
			ctx.cmdBuffer.WriteByte(debugApiV1Enter)
		} else {
			ctx.cmdBuffer.WriteByte(debugApiV2Enter)
		}

		if stMode == StLinkModeDebugJtag {
			ctx.cmdBuffer.WriteByte(debugEnterJTagNoReset)
		} else {
			ctx.cmdBuffer.WriteByte(debugEnterSwdNoReset)
		}

	case StLinkModeDebugSwim:
		ctx.cmdBuffer.WriteByte(cmdSwim)
		ctx.cmdBuffer.WriteByte(swimEnter)

		/* swim enter does not return any response or status */
		return h.usbTransferNoErrCheck(ctx, 0)

	default:
		return errors.New("cannot set usb mode from DFU or mass stlink configuration")
	}

	return h.usbCmdAllowRetry(ctx, rxSize)
}

func (h *StLink) usbCurrentMode() (byte, error) {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdGetCurrentMode)

	err := h.usbTransferNoErrCheck(ctx, 2)

	if err != nil {
		return 0, err
	} else {
		return ctx.DataBytes()[0], nil
	}
}

func (h *StLink) usbLeaveMode(mode StLinkMode) error {
	ctx := h.initTransfer(transferIncoming)

	switch mode {
	case StLinkModeDebugJtag, StLinkModeDebugSwd:
		ctx.cmdBuffer.WriteByte(cmdDebug)
		ctx.cmdBuffer.WriteByte(debugExit)

	case StLinkModeDebugSwim:
		ctx.cmdBuffer.WriteByte(cmdSwim)
		ctx.cmdBuffer.WriteByte(swimExit)

	case StLinkModeDfu:
		ctx.cmdBuffer.WriteByte(cmdDfu)
		ctx.cmdBuffer.WriteByte(dfuExit)

	case StLinkModeMass:
		return errors.New("cannot leave mass storage mode")

	default:
		return errors.New("unknown stlink mode")
	}

	return h.usbTransferNoErrCheck(ctx, 0)
}

// usbInitMode leaves whatever mode the probe is in and enters the configured
// debug mode, optionally holding the target in reset while doing so.
func (h *StLink) usbInitMode(connectUnderReset bool, initialInterfaceSpeed uint32) error {
	mode, err := h.usbCurrentMode()

	if err != nil {
		return errors.Wrap(err, "could not get usb mode")
	}

	logger.Tracef("device usb mode before switching: %s (0x%02x)", usbModeToString(mode), mode)

	var stLinkMode StLinkMode

	switch mode {
	case deviceModeDFU:
		stLinkMode = StLinkModeDfu

	case deviceModeDebug:
		stLinkMode = StLinkModeDebugSwd

	case deviceModeSwim:
		stLinkMode = StLinkModeDebugSwim

	case deviceModeMass:
		stLinkMode = StLinkModeMass

	default:
		stLinkMode = StLinkModeUnknown
	}

	if stLinkMode != StLinkModeUnknown && stLinkMode != StLinkModeMass {
		if err = h.usbLeaveMode(stLinkMode); err != nil {
			logger.Warn("error occurred while trying to leave mode: ", err)
		}
	}

	mode, err = h.usbCurrentMode()

	if err != nil {
		return errors.Wrap(err, "could not get usb mode")
	}

	logger.Tracef("device usb mode after mode exit: %s (0x%02x)", usbModeToString(mode), mode)

	/* the stlink requires the target Vdd to be connected for reliable debugging.
	 * the voltage command is supported in all modes except DFU
	 */
	if mode != deviceModeDFU {
		voltage, err := h.GetTargetVoltage()

		if err != nil {
			logger.Error(err)
		} else if voltage < minimumTargetVoltage {
			logger.Warn("target voltage may be too low for reliable debugging")
		}
	}

	stLinkMode = h.stMode

	if stLinkMode == StLinkModeUnknown {
		return errors.New("selected mode (transport) not supported")
	}

	if stLinkMode == StLinkModeDebugSwd && initialInterfaceSpeed > 0 {
		if _, err := h.SetSpeed(initialInterfaceSpeed, false); err != nil {
			logger.Warn("could not set interface speed: ", err)
		}
	}

	if connectUnderReset && stLinkMode != StLinkModeDebugSwim {
		logger.Trace("assert RST line before mode enter")

		// proceed anyway, srst is asserted again after entering the mode
		_ = h.usbAssertSrst(debugApiV2DriveNrstLow)
	}

	logger.Tracef("entering usb mode %d", stLinkMode)

	if err = h.usbModeEnter(stLinkMode); err != nil {
		return err
	}

	if connectUnderReset {
		logger.Trace("assert RST line after mode enter")

		if err = h.usbAssertSrst(debugApiV2DriveNrstLow); err != nil {
			return err
		}
	}

	mode, err = h.usbCurrentMode()

	if err != nil {
		return err
	}

	logger.Tracef("device usb mode after mode enter: %s (0x%02x)", usbModeToString(mode), mode)

	return nil
}
