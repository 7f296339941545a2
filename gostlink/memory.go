// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gostlink

import (
	"time"

	"github.com/pkg/errors"
)

func checkAlignment32(addr uint32, length uint16) error {
	/* data must be a multiple of 4 and word aligned */
	if length%4 > 0 || addr%4 > 0 {
		return newUsbError("invalid data alignment", usbErrorTargetUnalignedAccess)
	}

	return nil
}

func (h *StLink) usbReadMem32(addr uint32, length uint16) ([]byte, error) {
	if err := checkAlignment32(addr, length); err != nil {
		return nil, err
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugReadMem32Bit)
	ctx.cmdBuffer.WriteUint32LE(addr)
	ctx.cmdBuffer.WriteUint16LE(length)

	if err := h.usbTransferNoErrCheck(ctx, uint32(length)); err != nil {
		return nil, err
	}

	data := make([]byte, length)
	copy(data, ctx.DataBytes())

	return data, h.usbGetReadWriteStatus()
}

func (h *StLink) usbWriteMem32(addr uint32, data []byte) error {
	if err := checkAlignment32(addr, uint16(len(data))); err != nil {
		return err
	}

	ctx := h.initTransfer(transferOutgoing)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugWriteMem32Bit)
	ctx.cmdBuffer.WriteUint32LE(addr)
	ctx.cmdBuffer.WriteUint16LE(uint16(len(data)))

	ctx.dataBuffer.Write(data)

	if err := h.usbTransferNoErrCheck(ctx, uint32(len(data))); err != nil {
		return err
	}

	return h.usbGetReadWriteStatus()
}

// withWaitRetry runs op again while the probe answers with a wait status.
func withWaitRetry(op func() error) error {
	var retries int = 0

	for {
		err := op()

		if isWaitError(err) && retries < maximumWaitRetries {
			time.Sleep(time.Duration(1<<retries) * time.Millisecond)
			retries++

			continue
		}

		return err
	}
}

// ReadMem32 reads count 32 bit words starting at the word aligned addr.
func (h *StLink) ReadMem32(addr uint32, count uint32) ([]byte, error) {
	var result = make([]byte, 0, count*4)

	for count > 0 {
		words := count

		if words*4 > h.maxMemPacket {
			words = h.maxMemPacket / 4
		}

		var chunk []byte

		err := withWaitRetry(func() (err error) {
			chunk, err = h.usbReadMem32(addr, uint16(words*4))
			return err
		})

		if err != nil {
			return nil, errors.Wrapf(err, "unable to read from address 0x%08x", addr)
		}

		result = append(result, chunk...)
		addr += words * 4
		count -= words
	}

	return result, nil
}

// WriteMem32 writes data, a multiple of 4 bytes, to the word aligned addr.
func (h *StLink) WriteMem32(addr uint32, data []byte) error {
	for len(data) > 0 {
		chunk := data

		if uint32(len(chunk)) > h.maxMemPacket {
			chunk = data[:h.maxMemPacket]
		}

		err := withWaitRetry(func() error {
			return h.usbWriteMem32(addr, chunk)
		})

		if err != nil {
			return errors.Wrapf(err, "unable to write to address 0x%08x", addr)
		}

		addr += uint32(len(chunk))
		data = data[len(chunk):]
	}

	return nil
}

func (h *StLink) ReadUint32(addr uint32) (uint32, error) {
	data, err := h.ReadMem32(addr, 1)

	if err != nil {
		return 0, err
	}

	return convertToUint32(data, littleEndian), nil
}

func (h *StLink) WriteUint32(addr uint32, value uint32) error {
	buffer := NewBuffer(4)
	buffer.WriteUint32LE(value)

	return h.WriteMem32(addr, buffer.Bytes())
}
