// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gostlink

import (
	"github.com/boljen/go-bitmap"
	"github.com/google/gousb"
	"github.com/pkg/errors"
)

const AllSupportedVIds = 0xFFFF
const AllSupportedPIds = 0xFFFF

var supportedVIds = []gousb.ID{0x0483} // STLINK Vendor ID
var supportedPIds = []gousb.ID{stLinkV1Pid, stLinkV2Pid, stLinkV21Pid, stLinkV21NoMsdPid,
	stLinkV3UsbLoaderPid, stLinkV3EPid, stLinkV3SPid, stLinkV32VcpPid}

type StLink struct {
	usbDevice    *gousb.Device
	usbConfig    *gousb.Config
	usbInterface *gousb.Interface

	rxEndpoint    *gousb.InEndpoint
	txEndpoint    *gousb.OutEndpoint
	traceEndpoint *gousb.InEndpoint

	stMode  StLinkMode
	version stLinkVersion
	trace   stLinkTrace

	vid    gousb.ID
	pid    gousb.ID
	serial string

	chip              ChipInfo
	maxMemPacket      uint32
	openedAccessPorts bitmap.Bitmap
}

type StLinkInterfaceConfig struct {
	vid               gousb.ID
	pid               gousb.ID
	mode              StLinkMode
	serial            []byte
	initialSpeed      uint32
	connectUnderReset bool
}

// NewStLinkConfig describes which probe to open and how. An empty serial
// accepts any probe as long as only one is connected.
func NewStLinkConfig(vid gousb.ID, pid gousb.ID, mode StLinkMode,
	serial []byte, initialSpeed uint32, connectUnderReset bool) *StLinkInterfaceConfig {

	config := &StLinkInterfaceConfig{
		vid:               vid,
		pid:               pid,
		mode:              mode,
		serial:            serial,
		initialSpeed:      initialSpeed,
		connectUnderReset: connectUnderReset,
	}

	return config
}

func selectIds(requested gousb.ID, all gousb.ID, supported []gousb.ID) []gousb.ID {
	if requested == all {
		return supported
	}

	return []gousb.ID{requested}
}

// NewStLink opens the probe described by config, enters its debug mode and
// identifies the attached chip.
func NewStLink(config *StLinkInterfaceConfig) (*StLink, error) {
	devices, err := usbFindDevices(selectIds(config.vid, AllSupportedVIds, supportedVIds),
		selectIds(config.pid, AllSupportedPIds, supportedPIds))

	if err != nil {
		return nil, err
	}

	if len(devices) == 0 {
		return nil, errors.New("could not find any ST-Link connected to computer")
	}

	handle := &StLink{
		stMode:            config.mode,
		openedAccessPorts: bitmap.New(debugAccessPortSelectionMaximum + 1),
		maxMemPacket:      1 << 10,
	}

	for _, dev := range devices {
		devSerialNo, _ := dev.SerialNumber()

		logger.Debugf("compare serial no %s with requested %x", devSerialNo, config.serial)

		if handle.usbDevice == nil && serialMatches(devSerialNo, config.serial) {
			handle.attach(dev, devSerialNo)

			logger.Infof("found st-link with serial number %s", devSerialNo)
		} else {
			dev.Close()
		}
	}

	if handle.usbDevice == nil {
		return nil, errors.New("could not find ST-Link by given parameters")
	}

	if err := handle.open(config); err != nil {
		handle.Close()
		return nil, err
	}

	return handle, nil
}

func (h *StLink) attach(dev *gousb.Device, serial string) {
	h.usbDevice = dev
	h.serial = serial
	h.vid = dev.Desc.Vendor
	h.pid = dev.Desc.Product
}

func (h *StLink) open(config *StLinkInterfaceConfig) error {
	var err error

	// no request required configuration an matching usb interface :D
	h.usbConfig, err = h.usbDevice.Config(1)
	if err != nil {
		return errors.Wrap(err, "could not request configuration #1 for st-link debugger")
	}

	h.usbInterface, err = h.usbConfig.Interface(0, 0)
	if err != nil {
		return errors.Wrap(err, "could not claim interface 0,0 for st-link debugger")
	}

	txEndpointNo, traceEndpointNo := usbTxEndpointNo, usbTraceEndpointNo

	switch h.usbDevice.Desc.Product {
	case stLinkV1Pid:
		return errors.New("st-link V1 is not supported")

	case stLinkV21Pid, stLinkV21NoMsdPid, stLinkV3UsbLoaderPid, stLinkV3EPid, stLinkV3SPid, stLinkV32VcpPid:
		txEndpointNo, traceEndpointNo = usbTxEndpointApi2v1, usbTraceEndpointApi2v1

	case stLinkV2Pid:

	default:
		logger.Infof("could not determine pid of debugger %04x, assuming st-link V2", uint16(h.usbDevice.Desc.Product))
	}

	// endpoint for rx is on all st links the same
	if h.rxEndpoint, err = h.usbInterface.InEndpoint(usbRxEndpointNo); err != nil {
		return errors.Wrap(err, "could not open rx endpoint")
	}

	if h.txEndpoint, err = h.usbInterface.OutEndpoint(txEndpointNo); err != nil {
		return errors.Wrap(err, "could not open tx endpoint")
	}

	if h.traceEndpoint, err = h.usbInterface.InEndpoint(traceEndpointNo); err != nil {
		return errors.Wrap(err, "could not open trace endpoint")
	}

	if err = h.parseVersion(); err != nil {
		return err
	}

	if h.version.stlink == 1 {
		return errors.New("st-link V1 is not supported")
	}

	switch h.stMode {
	case StLinkModeDebugSwd:
		if h.version.jtagApi == jTagApiV1 {
			return errors.New("SWD not supported by jtag api v1")
		}

	case StLinkModeDebugJtag:
		if h.version.jtag == 0 {
			return errors.New("JTAG transport not supported by stlink")
		}

	default:
		return errors.Errorf("unsupported st-link mode %d", h.stMode)
	}

	if err = h.usbInitMode(config.connectUnderReset, config.initialSpeed); err != nil {
		return err
	}

	if err = h.usbOpenAccessPort(0); err != nil {
		return err
	}

	if idCode, err := h.GetIdCode(); err == nil {
		logger.Infof("got id code: %08x", idCode)
	} else {
		logger.Warn("could not read id code: ", err)
	}

	if cpuId, err := h.ReadUint32(cpuIdBaseRegister); err == nil {
		partNo := (cpuId >> 4) & 0xf

		if partNo == 4 || partNo == 3 {
			/* Cortex-M3/M4 has 4096 bytes autoincrement range */
			logger.Debug("set mem packet layout according to Cortex M3/M4")
			h.maxMemPacket = 1 << 12
		}
	}

	logger.Debugf("using TAR autoincrement: %d", h.maxMemPacket)

	chipId, err := h.readChipId()

	if err != nil {
		logger.Warn("could not read chip id: ", err)
	}

	h.chip = LookupChip(chipId)

	logger.Infof("connected to chip 0x%03x (%s)", chipId, h.chip.Description)

	return nil
}

func (h *StLink) Close() {
	if h.usbDevice != nil {
		logger.Debugf("close ST-Link device [%04x:%04x]", uint16(h.vid), uint16(h.pid))

		if h.usbInterface != nil {
			h.usbInterface.Close()
		}

		if h.usbConfig != nil {
			h.usbConfig.Close()
		}

		h.usbDevice.Close()
		h.usbDevice = nil
	}
}

func (h *StLink) Serial() string {
	return h.serial
}

func (h *StLink) ChipId() uint32 {
	return h.chip.Id
}

func (h *StLink) ChipInfo() ChipInfo {
	return h.chip
}

// HasTrace reports whether the probe firmware can capture SWO.
func (h *StLink) HasTrace() bool {
	return h.version.flags.Get(flagHasTrace)
}

func (h *StLink) GetTargetVoltage() (float32, error) {
	/* no error message, simply quit with error */
	if !h.version.flags.Get(flagHasTargetVolt) {
		return -1.0, errors.New("device does not support voltage measurement")
	}

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdGetTargetVoltage)

	if err := h.usbTransferNoErrCheck(ctx, 8); err != nil {
		return -1.0, err
	}

	targetVoltage := adcToVoltage(convertToUint32(ctx.DataBytes(), littleEndian),
		convertToUint32(ctx.DataBytes()[4:], littleEndian))

	logger.Infof("target voltage: %f", targetVoltage)

	return targetVoltage, nil
}

// adcToVoltage converts the probe's reference and target ADC readings.
func adcToVoltage(reference uint32, target uint32) float32 {
	if reference == 0 {
		return 0.0
	}

	return 2 * (float32(target) * (1.2 / float32(reference)))
}

func (h *StLink) GetIdCode() (uint32, error) {
	var offset int
	var err error

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)

	if h.version.jtagApi == jTagApiV1 {
		ctx.cmdBuffer.WriteByte(debugReadCoreId)

		err = h.usbTransferNoErrCheck(ctx, 4)
		offset = 0
	} else {
		ctx.cmdBuffer.WriteByte(debugApiV2ReadIdCodes)

		err = h.usbTransferErrCheck(ctx, 12)
		offset = 4
	}

	if err != nil {
		return 0, err
	}

	return convertToUint32(ctx.DataBytes()[offset:], littleEndian), nil
}
