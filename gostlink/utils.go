// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

import (
	"encoding/hex"
	"strings"

	"github.com/google/gousb"
)

func idExists(slice []gousb.ID, item gousb.ID) bool {
	for _, element := range slice {
		if element == item {
			return true
		}
	}

	return false
}

// serialMatches compares the serial descriptor of a probe with the binary
// serial requested by the user. Older probes report the raw bytes, newer ones
// their hex text.
func serialMatches(descriptor string, serial []byte) bool {
	if len(serial) == 0 {
		return true
	}

	return descriptor == string(serial) || strings.EqualFold(descriptor, hex.EncodeToString(serial))
}
