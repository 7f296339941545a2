// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// this code is mainly inspired and based on the openocd project source code
// for detailed information see

// https://sourceforge.net/p/openocd/code

package gostlink

import (
	"github.com/pkg/errors"
)

func (h *StLink) usbOpenAccessPort(apsel uint16) error {
	/* nothing to do on old versions */
	if !h.version.flags.Get(flagHasApInit) {
		return nil
	}

	if apsel > debugAccessPortSelectionMaximum {
		return errors.Errorf("access port %d out of range", apsel)
	}

	if h.openedAccessPorts.Get(int(apsel)) {
		return nil
	}

	if err := h.usbInitAccessPort(byte(apsel)); err != nil {
		return err
	}

	logger.Debugf("AP %d enabled", apsel)
	h.openedAccessPorts.Set(int(apsel), true)

	return nil
}

func (h *StLink) usbInitAccessPort(apNum byte) error {
	if !h.version.flags.Get(flagHasApInit) {
		return errors.New("could not find access port command")
	}

	logger.Debugf("init ap_num = %d", apNum)

	ctx := h.initTransfer(transferIncoming)

	ctx.cmdBuffer.WriteByte(cmdDebug)
	ctx.cmdBuffer.WriteByte(debugApiV2InitAccessPort)
	ctx.cmdBuffer.WriteByte(apNum)

	err := h.usbTransferErrCheck(ctx, 2)

	if err != nil {
		return errors.Wrap(err, "could not init access port on device")
	}

	return nil
}
