// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package main

import (
	"github.com/bbnote/sttrace/gostlink"
	"github.com/bbnote/sttrace/tracer"
	"github.com/sirupsen/logrus"
)

// interface speed used for the swd connection
const interfaceSpeedKHz = 1800

type stLinkDriver struct {
	log logrus.FieldLogger
}

func (stLinkDriver) MaxSerialLength() int {
	return gostlink.SerialMaxSize
}

func (d stLinkDriver) Open(serial []byte) (tracer.Probe, error) {
	config := gostlink.NewStLinkConfig(gostlink.AllSupportedVIds, gostlink.AllSupportedPIds,
		gostlink.StLinkModeDebugSwd, serial, interfaceSpeedKHz, false)

	stLink, err := gostlink.NewStLink(config)
	if err != nil {
		return nil, err
	}

	d.log.Infof("opened st-link %s", stLink.Serial())

	return &stLinkProbe{stLink}, nil
}

type stLinkProbe struct {
	*gostlink.StLink
}

func (p *stLinkProbe) Read32(addr uint32) (uint32, error) {
	return p.ReadUint32(addr)
}

func (p *stLinkProbe) Write32(addr uint32, value uint32) error {
	return p.WriteUint32(addr, value)
}

func (p *stLinkProbe) Capabilities() tracer.Capabilities {
	chip := p.ChipInfo()

	return tracer.Capabilities{
		ChipId:          p.ChipId(),
		ChipDescription: chip.Description,
		HasTrace:        p.HasTrace(),
		HasSwoTracing:   chip.SwoTracing,
		TraceFrequency:  gostlink.TraceFrequency,
		MaxSerialLength: gostlink.SerialMaxSize,
	}
}
