// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gostlink

import (
	"fmt"
	"time"
)

type transferCtx struct {
	direction  usbTransferEndpoint
	cmdBuffer  *Buffer
	dataBuffer *Buffer
}

func (h *StLink) initTransfer(direction usbTransferEndpoint) *transferCtx {
	return &transferCtx{
		direction:  direction,
		cmdBuffer:  NewBuffer(cmdBufferSize),
		dataBuffer: NewBuffer(dataBufferSize),
	}
}

func (ctx *transferCtx) DataBytes() []byte {
	return ctx.dataBuffer.Bytes()
}

// usbTransferNoErrCheck sends the command of ctx and, for incoming transfers,
// reads size bytes of response into the data buffer. Outgoing transfers send
// the content of the data buffer after the command.
func (h *StLink) usbTransferNoErrCheck(ctx *transferCtx, size uint32) error {
	cmd := make([]byte, cmdSizeV2)
	copy(cmd, ctx.cmdBuffer.Bytes())

	if _, err := usbWrite(h.txEndpoint, cmd); err != nil {
		return err
	}

	switch ctx.direction {
	case transferOutgoing:
		if ctx.dataBuffer.Len() > 0 {
			if _, err := usbWrite(h.txEndpoint, ctx.dataBuffer.Bytes()); err != nil {
				return err
			}
		}

	case transferIncoming:
		if size > 0 {
			data := make([]byte, size)

			bytesRead, err := usbRead(h.rxEndpoint, data)
			if err != nil {
				return err
			}

			if bytesRead < int(size) {
				return newUsbError(fmt.Sprintf("short read from stlink (%d of %d bytes)", bytesRead, size), usbErrorFail)
			}

			ctx.dataBuffer.Reset()
			ctx.dataBuffer.Write(data)
		}
	}

	return nil
}

func (h *StLink) usbTransferErrCheck(ctx *transferCtx, size uint32) error {

	err := h.usbTransferNoErrCheck(ctx, size)

	if err != nil {
		return err
	}

	return h.usbErrorCheck(ctx)
}

/** Issue an STLINK command via USB transfer, with retries on any wait status responses.

  Works for commands where the STLINK_DEBUG status is returned in the first
  byte of the response packet.
*/
func (h *StLink) usbCmdAllowRetry(ctx *transferCtx, size uint32) error {
	var retries int = 0

	for {
		err := h.usbTransferErrCheck(ctx, size)

		if isWaitError(err) && retries < maximumWaitRetries {
			delay := time.Duration(1<<retries) * time.Millisecond

			retries++
			logger.Debugf("cmdAllowRetry ERROR_WAIT, retry %d, delaying %s", retries, delay)
			time.Sleep(delay)

			continue
		}

		return err
	}
}

func (h *StLink) usbGetReadWriteStatus() error {

	if h.version.jtagApi == jTagApiV1 {
		return nil
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)

	if h.version.flags.Get(flagHasGetLastRwStatus2) {
		ctx.cmdBuffer.WriteByte(debugApiV2GetLastRWStatus2)

		return h.usbTransferErrCheck(ctx, 12)
	} else {
		ctx.cmdBuffer.WriteByte(debugApiV2GetLastRWStatus)

		return h.usbTransferErrCheck(ctx, 2)
	}
}
