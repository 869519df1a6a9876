// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"sync"
	"time"

	ble "github.com/tve/ble-ll"
)

// SimPHY is a software stand-in for a radio transceiver: frames arrive
// via InjectFrame (here fed from an MQTT topic) and run through the same
// RxStart/RxEnd interrupt protocol a hardware driver would use, so the
// whole controller path above the PHY is exercised for real.
type SimPHY struct {
	sync.Mutex
	ll    *ble.LL
	log   LogPrintf
	start time.Time

	inited    bool
	mode      ble.PhyMode
	channel   uint8
	txPower   int
	aa        uint32
	rxStarted bool

	txFrames uint32
}

// NewSimPHY returns a simulated PHY. Attach must be called before any
// frame is injected.
func NewSimPHY(log LogPrintf) *SimPHY {
	if log == nil {
		log = func(string, ...interface{}) {}
	}
	return &SimPHY{log: log, start: time.Now()}
}

// Attach wires the PHY to the controller it calls back into.
func (p *SimPHY) Attach(ll *ble.LL) { p.ll = ll }

func (p *SimPHY) Init() error {
	p.Lock()
	p.inited = true
	p.rxStarted = false
	p.Unlock()
	p.log("simphy: init")
	return nil
}

func (p *SimPHY) Disable() {
	p.Lock()
	p.rxStarted = false
	p.Unlock()
}

func (p *SimPHY) TxPowerSet(dbm int) error {
	p.Lock()
	p.txPower = dbm
	p.Unlock()
	return nil
}

func (p *SimPHY) SetMode(mode ble.PhyMode) error {
	p.Lock()
	p.mode = mode
	p.Unlock()
	return nil
}

func (p *SimPHY) SetChannel(channel uint8) error {
	p.Lock()
	p.channel = channel
	p.Unlock()
	return nil
}

func (p *SimPHY) Transmit(aa uint32, pdu *ble.PDU) error {
	p.Lock()
	p.aa = aa
	p.txFrames++
	p.Unlock()
	p.log("simphy: tx %d payload bytes", pdu.Len())
	return nil
}

func (p *SimPHY) SetRx(aa uint32) error {
	p.Lock()
	p.aa = aa
	p.Unlock()
	return nil
}

func (p *SimPHY) RxStarted() bool {
	p.Lock()
	defer p.Unlock()
	return p.rxStarted
}

func (p *SimPHY) AccessAddr() uint32 {
	p.Lock()
	defer p.Unlock()
	return p.aa
}

func (p *SimPHY) XcvrState() uint8 {
	p.Lock()
	defer p.Unlock()
	if p.rxStarted {
		return 1
	}
	return 0
}

// InjectFrame plays one received frame (PDU header byte, length byte,
// payload) through the controller's interrupt protocol the way a radio
// driver's interrupt handler would: RxStart once the header byte is in,
// RxEnd when the frame completes, honoring an abort from RxStart.
func (p *SimPHY) InjectFrame(frame []byte, crcOK bool, rssi int8) {
	if len(frame) < 2 || len(frame) < 2+int(frame[1]) {
		return
	}
	p.Lock()
	if !p.inited {
		p.Unlock()
		return
	}
	channel := p.channel
	p.rxStarted = true
	p.Unlock()

	hdr := &ble.MbufHdr{}
	if rc := p.ll.RxStart(frame, channel, hdr); rc < 0 {
		p.Lock()
		p.rxStarted = false
		p.Unlock()
		return
	}
	hdr.CRCOK = crcOK
	hdr.RSSI = rssi
	hdr.Timestamp = uint32(time.Since(p.start).Microseconds())
	rc := p.ll.RxEnd(frame, hdr)

	p.Lock()
	p.rxStarted = false
	p.Unlock()
	if rc < 0 {
		p.Disable()
	}
}
