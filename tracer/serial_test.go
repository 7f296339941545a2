// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package tracer

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestDecodeSerial(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []byte
	}{
		{"empty", "", 64, nil},
		{"st-link v2.1", "066DFF494849887767084236", 64, []byte{0x06, 0x6d, 0xff, 0x49, 0x48, 0x49, 0x88, 0x77, 0x67, 0x08, 0x42, 0x36}},
		{"lower case", "0a0b", 64, []byte{0x0a, 0x0b}},
		{"odd length", "123", 64, []byte{0x12}},
		{"single character", "f", 64, []byte{}},
		{"non hex pair", "zz12", 64, []byte{0x00, 0x12}},
		{"hex prefix only", "1g", 64, []byte{0x01}},
		{"truncated at max", "0102030405", 3, []byte{0x01, 0x02, 0x03}},
		{"zero max", "0102", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeSerial(tt.text, tt.max))
		})
	}
}

func TestDecodeSerialNeverOverruns(t *testing.T) {
	for _, max := range []int{1, 12, 24, 64} {
		text := strings.Repeat("ab", 200) + "x"
		got := DecodeSerial(text, max)

		assert.Len(t, got, max)
		assert.True(t, cap(got) <= max)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, ExitSuccess},
		{errors.Wrap(ErrInvalidArgument, "unknown flag --foo"), ExitInvalidParams},
		{errors.Wrap(ErrProbeNotFound, "usb"), ExitProbeNotFound},
		{ErrNoTarget, ExitMissingDevice},
		{errors.Wrapf(ErrChipUnsupported, "device '%s'", "STM32F0"), ExitUnsupportedChip},
		{ErrTraceUnsupported, ExitUnsupportedProbe},
		{errors.Wrap(ErrConfiguration, "halt"), ExitStateError},
		{errors.New("something else"), ExitStateError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, ExitCode(tt.err), "%v", tt.err)
	}
}
