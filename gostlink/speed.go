// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"math"

	"github.com/pkg/errors"
)

type speedMap struct {
	speed        uint32
	speedDivisor int
}

/* SWD clock speed */
var swdKHzToSpeedMap = [...]speedMap{
	{4000, 0},
	{1800, 1}, /* default */
	{1200, 2},
	{950, 3},
	{480, 7},
	{240, 15},
	{125, 31},
	{100, 40},
	{50, 79},
	{25, 158},
	{15, 265},
	{5, 798},
}

// SetSpeed selects the closest interface clock not above khz and returns it.
// With query set the probe is left untouched.
func (h *StLink) SetSpeed(khz uint32, query bool) (uint32, error) {
	switch h.stMode {
	case StLinkModeDebugSwd:
		if h.version.jtagApi == jTagApiV3 {
			return h.setSpeedV3(false, khz, query)
		} else {
			return h.setSpeedSwd(khz, query)
		}

	default:
		return khz, errors.New("requested ST-Link mode not supported yet")
	}
}

func (h *StLink) setSpeedSwd(khz uint32, query bool) (uint32, error) {
	/* old firmware cannot change it */
	if !h.version.flags.Get(flagHasSwdSetFreq) {
		return khz, errors.New("cannot change speed on old firmware")
	}

	speedIndex, err := matchSpeedMap(swdKHzToSpeedMap[:], khz, query)

	if err != nil {
		return khz, err
	}

	if !query {
		if err := h.usbSetSwdClk(uint16(swdKHzToSpeedMap[speedIndex].speedDivisor)); err != nil {
			return khz, errors.Wrap(err, "unable to set adapter speed")
		}
	}

	return swdKHzToSpeedMap[speedIndex].speed, nil
}

func (h *StLink) setSpeedV3(isJtag bool, khz uint32, query bool) (uint32, error) {
	smap, err := h.usbGetComFreq(isJtag)

	if err != nil {
		return khz, err
	}

	speedIndex, err := matchSpeedMap(smap, khz, query)

	if err != nil {
		return khz, err
	}

	if !query {
		if err := h.usbSetComFreq(isJtag, smap[speedIndex].speed); err != nil {
			return khz, err
		}
	}

	return smap[speedIndex].speed, nil
}

func (h *StLink) usbSetSwdClk(clkDivisor uint16) error {
	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV2SwdSetFreq)
	ctx.cmdBuffer.WriteUint16LE(clkDivisor)

	return h.usbCmdAllowRetry(ctx, 2)
}

func (h *StLink) usbGetComFreq(isJtag bool) ([]speedMap, error) {
	if h.version.jtagApi != jTagApiV3 {
		return nil, errors.New("com frequency query needs api v3")
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV3GetComFreq)

	if isJtag {
		ctx.cmdBuffer.WriteByte(1)
	} else {
		ctx.cmdBuffer.WriteByte(0)
	}

	if err := h.usbTransferErrCheck(ctx, 52); err != nil {
		return nil, err
	}

	return parseComFreqs(ctx.DataBytes()), nil
}

// parseComFreqs reads the frequency table of a V3 probe, unused slots stay 0.
func parseComFreqs(data []byte) []speedMap {
	smap := make([]speedMap, v3MaxFreqNb)

	size := int(data[8])

	if size > v3MaxFreqNb {
		size = v3MaxFreqNb
	}

	for i := 0; i < size; i++ {
		smap[i].speed = convertToUint32(data[12+4*i:], littleEndian)
		smap[i].speedDivisor = i
	}

	return smap
}

func (h *StLink) usbSetComFreq(isJtag bool, frequency uint32) error {
	if h.version.jtagApi != jTagApiV3 {
		return errors.New("com frequency setting needs api v3")
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV3SetComFreq)

	if isJtag {
		ctx.cmdBuffer.WriteByte(1)
	} else {
		ctx.cmdBuffer.WriteByte(0)
	}

	ctx.cmdBuffer.WriteByte(0)
	ctx.cmdBuffer.WriteUint32LE(frequency)

	return h.usbTransferErrCheck(ctx, 8)
}

// matchSpeedMap returns the index of the fastest speed not above khz, or the
// slowest supported speed when khz is below all of them. Inexact matches are
// an error when query is set.
func matchSpeedMap(smap []speedMap, khz uint32, query bool) (int, error) {
	var lastValidSpeed = -1
	var speedIndex = -1
	var speedDiff uint32 = math.MaxUint32
	var match = true

	for i, s := range smap {
		if s.speed == 0 {
			continue
		}

		lastValidSpeed = i

		if khz == s.speed {
			speedIndex = i
			break
		} else if khz > s.speed && khz-s.speed < speedDiff {
			speedDiff = khz - s.speed
			speedIndex = i
		}
	}

	if lastValidSpeed == -1 {
		return -1, errors.New("no valid interface speed available")
	}

	if speedIndex == -1 {
		// only reached if we cannot match the slow speed, use the slowest speed we support
		speedIndex = lastValidSpeed
		match = false
	} else if smap[speedIndex].speed != khz {
		match = false
	}

	if !match && query {
		return -1, errors.Errorf("unable to match requested speed %d kHz, using %d kHz", khz, smap[speedIndex].speed)
	}

	return speedIndex, nil
}
