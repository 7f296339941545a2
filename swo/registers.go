// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package swo

// Debug Control Block (DCB) registers
const (
	DcbDhcsr = 0xE000EDF0 // Debug Halting Control and Status Register
	DcbDemcr = 0xE000EDFC // Debug Exception and Monitor Control Register

	DhcsrDbgKey   = 0xA05F << 16
	DhcsrCHalt    = 1 << 1
	DhcsrCDebugEn = 1 << 0
	DemcrTrcEna   = 1 << 24
)

// Instrumentation Trace Macrocell (ITM) registers
const (
	ItmTer = 0xE0000E00 // Trace Enable Register
	ItmTpr = 0xE0000E40 // Trace Privilege Register
	ItmTcr = 0xE0000E80 // Trace Control Register
	ItmTcc = 0xE0000E90 // Trace Cycle Count
	ItmLar = 0xE0000FB0 // Lock Access Register

	ItmTerPortsAll    = 0xFFFFFFFF
	ItmTprPortsAll    = 0x0F
	ItmTcrTraceBusId1 = 0x01 << 16
	ItmTcrSwoEna      = 1 << 4
	ItmTcrDwtEna      = 1 << 3
	ItmTcrSyncEna     = 1 << 2
	ItmTcrTsEna       = 1 << 1
	ItmTcrItmEna      = 1 << 0
	ItmLarKey         = 0xC5ACCE55
	ItmTccSyncCount   = 0x00000400
)

// Data Watchpoint and Trace (DWT) registers
const (
	DwtCtrl      = 0xE0001000
	DwtFunction0 = 0xE0001028
	DwtFunction1 = 0xE0001038
	DwtFunction2 = 0xE0001048
	DwtFunction3 = 0xE0001058

	DwtCtrlNumComp    = 1 << 28
	DwtCtrlCycTap     = 1 << 9
	DwtCtrlPostInit   = 1 << 5
	DwtCtrlPostPreset = 1 << 1
	DwtCtrlCycCntEna  = 1 << 0
)

// Trace Port Interface (TPI) registers
const (
	TpiCspsr = 0xE0040004 // Current Parallel Port Size Register
	TpiAcpr  = 0xE0040010 // Asynchronous Clock Prescaler Register
	TpiSppr  = 0xE00400F0 // Selected Pin Protocol Register
	TpiFfcr  = 0xE0040304 // Formatter and Flush Control Register

	TpiCspsrPortSize1    = 0x01 << 0
	TpiSpprSwoManchester = 0x01 << 0
	TpiSpprSwoNrz        = 0x02 << 0
	TpiFfcrTrigIn        = 0x01 << 8
)

// other registers
const (
	FpCtrl   = 0xE0002000 // Flash Patch Control Register
	DbgMcuCr = 0xE0042004 // Debug MCU Configuration Register

	FpCtrlKey              = 1 << 1
	DbgMcuCrDbgSleep       = 1 << 0
	DbgMcuCrDbgStop        = 1 << 1
	DbgMcuCrDbgStandby     = 1 << 2
	DbgMcuCrTraceIoEn      = 1 << 5
	DbgMcuCrTraceModeAsync = 0x00 << 6
)
