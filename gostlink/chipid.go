// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package gostlink

// ChipIdUnknown is reported when no target answered the IDCODE read.
const ChipIdUnknown = 0

const (
	dbgMcuIdCode         = 0xE0042000
	dbgMcuIdCodeCortexM0 = 0x40015800 // Cortex-M0 parts map the DBGMCU elsewhere
	dbgMcuDevIdMask      = 0xFFF
)

type ChipInfo struct {
	Id          uint32
	Description string
	SwoTracing  bool // chip exports the ITM over SWO
}

var unknownChip = ChipInfo{ChipIdUnknown, "unknown device", false}

var supportedChips = map[uint32]ChipInfo{
	0x410: {0x410, "F1xx Medium-density", true},
	0x411: {0x411, "F2xx", true},
	0x412: {0x412, "F1xx Low-density", true},
	0x413: {0x413, "F4xx", true},
	0x414: {0x414, "F1xx High-density", true},
	0x415: {0x415, "L4xx", true},
	0x416: {0x416, "L1xx Category 1", true},
	0x417: {0x417, "L0xx Category 3", false},
	0x418: {0x418, "F1xx Connectivity line", true},
	0x419: {0x419, "F4xx High-density", true},
	0x420: {0x420, "F1xx Value Line", true},
	0x421: {0x421, "F446", true},
	0x422: {0x422, "F3xx", true},
	0x423: {0x423, "F4xx (low power)", true},
	0x425: {0x425, "L0xx Category 2", false},
	0x427: {0x427, "L1xx Category 4", true},
	0x428: {0x428, "F1xx High-density value line", true},
	0x429: {0x429, "L1xx Category 2", true},
	0x430: {0x430, "F1xx XL-density", true},
	0x431: {0x431, "F411xx", true},
	0x432: {0x432, "F37x", true},
	0x433: {0x433, "F4xx (Dynamic Efficiency)", true},
	0x434: {0x434, "F4xx (Dynamic Efficiency) DSI", true},
	0x435: {0x435, "L43x/L44x", true},
	0x436: {0x436, "L1xx Category 3", true},
	0x437: {0x437, "L1xx Category 5", true},
	0x438: {0x438, "F334 medium density", true},
	0x439: {0x439, "F302/F301 small", true},
	0x440: {0x440, "F0xx", false},
	0x441: {0x441, "F412", true},
	0x442: {0x442, "F09X", false},
	0x444: {0x444, "F03x", false},
	0x445: {0x445, "F04x", false},
	0x446: {0x446, "F303 high density", true},
	0x447: {0x447, "L0x Category 5", false},
	0x448: {0x448, "F07x", false},
	0x449: {0x449, "F7xx", true},
	0x450: {0x450, "H74x/H75x", true},
	0x451: {0x451, "F76xxx", true},
	0x452: {0x452, "F72x/F73x", true},
	0x457: {0x457, "L0xx Category 1", false},
	0x458: {0x458, "F410", true},
	0x460: {0x460, "G070/G071/G081", false},
	0x461: {0x461, "L496x/L4A6x", true},
	0x462: {0x462, "L45x/L46x", true},
	0x463: {0x463, "F413", true},
	0x464: {0x464, "L41x", true},
	0x466: {0x466, "G030/G031/G041", false},
	0x468: {0x468, "G4 Category-2", true},
	0x469: {0x469, "G4 Category-3", true},
	0x470: {0x470, "L4Rx", true},
	0x495: {0x495, "WB55", true},
}

// LookupChip returns the table entry for id, falling back to an unknown
// device without SWO.
func LookupChip(id uint32) ChipInfo {
	if info, ok := supportedChips[id]; ok {
		return info
	}

	info := unknownChip
	info.Id = id

	return info
}

// readChipId reads the device id from the DBGMCU IDCODE register. Cortex-M0
// parts read as zero at the default address and are queried at their own.
func (h *StLink) readChipId() (uint32, error) {
	idCode, err := h.ReadUint32(dbgMcuIdCode)

	if err != nil {
		return ChipIdUnknown, err
	}

	if idCode == 0 {
		logger.Debug("no IDCODE at default address, trying cortex-m0 location")

		if idCode, err = h.ReadUint32(dbgMcuIdCodeCortexM0); err != nil {
			return ChipIdUnknown, err
		}
	}

	return idCode & dbgMcuDevIdMask, nil
}
