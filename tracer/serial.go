// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package tracer

import (
	"strconv"
)

// DecodeSerial converts the hex text of a probe serial number ("066DFF49...")
// into its binary form. Each pair of characters yields one byte, parsed from
// its longest valid hex prefix (0 if there is none). A dangling last
// character is ignored and at most max bytes are produced.
func DecodeSerial(text string, max int) []byte {
	if text == "" || max <= 0 {
		return nil
	}

	binary := make([]byte, 0, max)

	for n := 0; n+1 < len(text) && len(binary) < max; n += 2 {
		binary = append(binary, parseHexPrefix(text[n:n+2]))
	}

	return binary
}

func parseHexPrefix(pair string) byte {
	for end := len(pair); end > 0; end-- {
		if v, err := strconv.ParseUint(pair[:end], 16, 8); err == nil {
			return byte(v)
		}
	}

	return 0
}
