// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialMatches(t *testing.T) {
	serial := []byte{0x06, 0x70, 0xff, 0x48}

	assert.True(t, serialMatches("anything", nil))
	assert.True(t, serialMatches(string(serial), serial))
	assert.True(t, serialMatches("0670ff48", serial))
	assert.True(t, serialMatches("0670FF48", serial))
	assert.False(t, serialMatches("0670FF49", serial))
	assert.False(t, serialMatches("0670FF", serial))
}

func TestBufferConversions(t *testing.T) {
	buf := NewBuffer(8)

	buf.WriteUint32LE(0x12345678)
	buf.WriteUint16LE(0xabcd)

	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12, 0xcd, 0xab}, buf.Bytes())
	assert.Equal(t, uint32(0x12345678), buf.ReadUint32LE())
	assert.Equal(t, uint16(0x5678), buf.ReadUint16LE())
	assert.Equal(t, uint16(0x7856), buf.ReadUint16BE())
	assert.Equal(t, uint16(0xabcd), convertToUint16(buf.Bytes()[4:], littleEndian))
	assert.Equal(t, uint32(0x78563412), convertToUint32(buf.Bytes(), bigEndian))
}

func TestUsbErrorCheck(t *testing.T) {
	h := &StLink{}

	tests := []struct {
		status byte
		code   usbErrorCode
	}{
		{debugErrorOk, usbErrorOK},
		{jTagWriteVerifyError, usbErrorOK},
		{swdAccessPortWait, usbErrorWait},
		{swdDebugPortWait, usbErrorWait},
		{debugErrorFault, usbErrorFail},
		{swdAccessPortFault, usbErrorFail},
		{badAccessPortError, usbErrorFail},
		{0x55, usbErrorFail},
	}

	for _, tt := range tests {
		ctx := h.initTransfer(transferIncoming)
		ctx.dataBuffer.WriteByte(tt.status)

		err := h.usbErrorCheck(ctx)

		if tt.code == usbErrorOK {
			assert.NoError(t, err, "status 0x%02x", tt.status)
			continue
		}

		require.Error(t, err, "status 0x%02x", tt.status)
		assert.Equal(t, tt.code, err.(*usbError).UsbErrorCode, "status 0x%02x", tt.status)
		assert.Equal(t, tt.code == usbErrorWait, isWaitError(err))
	}

	assert.Error(t, h.usbErrorCheck(h.initTransfer(transferIncoming)))
}

func TestDeriveFeatureFlags(t *testing.T) {
	v2old := stLinkVersion{stlink: 2, jtag: 12}
	v2old.deriveFeatureFlags()

	assert.Equal(t, jTagApiV2, v2old.jtagApi)
	assert.False(t, v2old.flags.Get(flagHasTrace))

	v2 := stLinkVersion{stlink: 2, jtag: 28}
	v2.deriveFeatureFlags()

	assert.True(t, v2.flags.Get(flagHasTrace))
	assert.True(t, v2.flags.Get(flagHasSwdSetFreq))
	assert.True(t, v2.flags.Get(flagHasApInit))
	assert.True(t, v2.flags.Get(flagQuirkJtagDpRead))
	assert.False(t, v2.flags.Get(flagFixCloseAp))

	v3 := stLinkVersion{stlink: 3, jtag: 1}
	v3.deriveFeatureFlags()

	assert.Equal(t, jTagApiV3, v3.jtagApi)
	assert.True(t, v3.flags.Get(flagHasTrace))
	assert.False(t, v3.flags.Get(flagHasDpBankSel))

	v1 := stLinkVersion{stlink: 1, jtag: 11}
	v1.deriveFeatureFlags()

	assert.Equal(t, jTagApiV2, v1.jtagApi)
	assert.False(t, v1.flags.Get(flagHasTrace))
}

func TestMatchSpeedMap(t *testing.T) {
	tests := []struct {
		khz   uint32
		query bool
		index int
		fails bool
	}{
		{4000, true, 0, false},
		{1800, true, 1, false},
		{2000, false, 1, false},
		{2000, true, -1, true},
		{1, false, 11, false},
		{100000, false, 0, false},
	}

	for _, tt := range tests {
		index, err := matchSpeedMap(swdKHzToSpeedMap[:], tt.khz, tt.query)

		if tt.fails {
			assert.Error(t, err, "%d kHz", tt.khz)
		} else {
			assert.NoError(t, err, "%d kHz", tt.khz)
		}

		assert.Equal(t, tt.index, index, "%d kHz", tt.khz)
	}

	_, err := matchSpeedMap(make([]speedMap, v3MaxFreqNb), 1000, false)
	assert.Error(t, err)
}

func TestParseComFreqs(t *testing.T) {
	data := make([]byte, 52)
	data[8] = 2

	buf := NewBuffer(8)
	buf.WriteUint32LE(24000)
	buf.WriteUint32LE(8000)
	copy(data[12:], buf.Bytes())

	smap := parseComFreqs(data)

	require.Len(t, smap, v3MaxFreqNb)
	assert.Equal(t, speedMap{24000, 0}, smap[0])
	assert.Equal(t, speedMap{8000, 1}, smap[1])
	assert.Equal(t, uint32(0), smap[2].speed)

	index, err := matchSpeedMap(smap, 10000, false)
	require.NoError(t, err)
	assert.Equal(t, 1, index)
}

func TestLookupChip(t *testing.T) {
	f4 := LookupChip(0x413)
	assert.Equal(t, "F4xx", f4.Description)
	assert.True(t, f4.SwoTracing)

	f0 := LookupChip(0x440)
	assert.False(t, f0.SwoTracing)

	unknown := LookupChip(0x123)
	assert.Equal(t, uint32(0x123), unknown.Id)
	assert.False(t, unknown.SwoTracing)
}

func TestAdcToVoltage(t *testing.T) {
	assert.Equal(t, float32(0), adcToVoltage(0, 1000))
	assert.InDelta(t, 3.3, adcToVoltage(1489, 2047), 0.01)
}

func TestCheckAlignment32(t *testing.T) {
	assert.NoError(t, checkAlignment32(0xE0000000, 4))
	assert.Error(t, checkAlignment32(0xE0000002, 4))
	assert.Error(t, checkAlignment32(0xE0000000, 6))
}

func TestAttachRecordsDeviceIdentity(t *testing.T) {
	h := &StLink{}
	dev := &gousb.Device{Desc: &gousb.DeviceDesc{Vendor: 0x0483, Product: stLinkV21Pid}}

	h.attach(dev, "0670FF48")

	assert.Equal(t, gousb.ID(0x0483), h.vid)
	assert.Equal(t, gousb.ID(stLinkV21Pid), h.pid)
	assert.Equal(t, "0670FF48", h.Serial())
}

func TestChipAccessors(t *testing.T) {
	h := &StLink{chip: LookupChip(0x413)}

	assert.Equal(t, uint32(0x413), h.ChipId())
	assert.Equal(t, "F4xx", h.ChipInfo().Description)
}
