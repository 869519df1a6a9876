// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package substate

import (
	"bytes"
	"testing"

	ble "github.com/tve/ble-ll"
)

type nullPHY struct{}

func (nullPHY) Init() error                        { return nil }
func (nullPHY) Disable()                           {}
func (nullPHY) TxPowerSet(dbm int) error           { return nil }
func (nullPHY) SetMode(mode ble.PhyMode) error     { return nil }
func (nullPHY) SetChannel(channel uint8) error     { return nil }
func (nullPHY) Transmit(aa uint32, pdu *ble.PDU) error { return nil }
func (nullPHY) SetRx(aa uint32) error              { return nil }
func (nullPHY) RxStarted() bool                    { return false }
func (nullPHY) AccessAddr() uint32                 { return 0 }
func (nullPHY) XcvrState() uint8                   { return 0 }

type captureHCI struct{ events [][]byte }

func (h *captureHCI) Init()                    {}
func (h *captureHCI) SendEvent(ev []byte) error { h.events = append(h.events, ev); return nil }

var testPublic = ble.Addr{0x11, 0x22, 0x33, 0x44, 0x55, 0x06}

func newLL(hci *captureHCI) *ble.LL {
	return ble.NewLL(ble.Config{
		PHY:        nullPHY{},
		HCI:        hci,
		PublicAddr: testPublic,
	})
}

// advPdu builds a PDU the way the core's receive path would: the full
// on-air bytes (header, length, payload) with the reception metadata in
// the header.
func advPdu(pduType byte, payload []byte, crcOK bool, state ble.State) *ble.PDU {
	b := make([]byte, 2+len(payload))
	b[0] = pduType
	b[1] = byte(len(payload))
	copy(b[2:], payload)
	pdu := ble.NewHostPDU(b)
	pdu.Hdr.CRCOK = crcOK
	pdu.Hdr.RxState = state
	pdu.Hdr.RSSI = -70
	pdu.Hdr.Channel = 38
	return pdu
}

func TestScannerReports(t *testing.T) {
	ll := newLL(&captureHCI{})
	s := NewScanner(ll, nil)
	ll.Scan = s
	s.Enable(false)
	if ll.State() != ble.StateScanning {
		t.Fatalf("enable did not move to scanning")
	}

	adva := []byte{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}
	data := []byte{0x02, 0x01, 0x06}
	pdu := advPdu(ble.PduAdvInd|0x40, append(adva, data...), true, ble.StateScanning)
	s.RxPktIn(ble.PduAdvInd, pdu, &pdu.Hdr)

	select {
	case rep := <-s.Reports:
		if rep.PduType != ble.PduAdvInd || rep.AddrType != 1 {
			t.Errorf("report type/addrType = %d/%d", rep.PduType, rep.AddrType)
		}
		if !bytes.Equal(rep.Addr[:], adva) || !bytes.Equal(rep.Data, data) {
			t.Errorf("report addr/data = %x/%x", rep.Addr, rep.Data)
		}
		if rep.RSSI != -70 || rep.Channel != 38 || !rep.CrcOK {
			t.Errorf("report metadata: %+v", rep)
		}
	default:
		t.Fatalf("no report produced")
	}

	s.Disable()
	if ll.State() != ble.StateStandby {
		t.Errorf("disable did not return to standby")
	}
}

func TestScannerDropsWhenFull(t *testing.T) {
	ll := newLL(&captureHCI{})
	s := NewScanner(ll, nil)
	ll.Scan = s
	s.Enable(false)

	adva := []byte{1, 2, 3, 4, 5, 6}
	for i := 0; i < reportChanCap+3; i++ {
		pdu := advPdu(ble.PduAdvInd, adva, true, ble.StateScanning)
		s.RxPktIn(ble.PduAdvInd, pdu, &pdu.Hdr)
	}
	if got := s.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
}

func TestAdvertiserScanReq(t *testing.T) {
	ll := newLL(&captureHCI{})
	a := NewAdvertiser(ll, nil)
	ll.Adv = a
	a.Enable([]byte{0x02, 0x01, 0x06}, nil, false)

	// ScanA, then our AdvA (public, so RxAdd clear).
	payload := append([]byte{9, 8, 7, 6, 5, 4}, testPublic[:]...)
	pdu := advPdu(ble.PduScanReq, payload, true, ble.StateAdv)
	a.RxPktIn(ble.PduScanReq, pdu, &pdu.Hdr)
	if got := a.ScanReqs(); got != 1 {
		t.Errorf("ScanReqs() = %d, want 1", got)
	}

	// A scan request for somebody else is ignored.
	other := append([]byte{9, 8, 7, 6, 5, 4}, 1, 1, 1, 1, 1, 1)
	pdu = advPdu(ble.PduScanReq, other, true, ble.StateAdv)
	a.RxPktIn(ble.PduScanReq, pdu, &pdu.Hdr)
	if got := a.ScanReqs(); got != 1 {
		t.Errorf("ScanReqs() after foreign request = %d, want 1", got)
	}
}

func TestAdvertiserConnectReq(t *testing.T) {
	ll := newLL(&captureHCI{})
	a := NewAdvertiser(ll, nil)
	ll.Adv = a
	a.Enable(nil, nil, true)

	payload := make([]byte, 34)
	pdu := advPdu(ble.PduConnectReq, payload, true, ble.StateAdv)
	a.RxPktIn(ble.PduConnectReq, pdu, &pdu.Hdr)
	if ll.State() != ble.StateConnection {
		t.Errorf("connect request did not move to connection state")
	}
	if a.Enabled() {
		t.Errorf("advertising still enabled after connect")
	}
}

func TestInitiatorFormsConnection(t *testing.T) {
	ll := newLL(&captureHCI{})
	i := NewInitiator(ll, nil)
	ll.Init = i

	peer := ble.Addr{1, 2, 3, 4, 5, 6}
	if err := i.CreateConn(peer, 0); err != nil {
		t.Fatalf("CreateConn: %v", err)
	}
	if !i.ConnCreateInProgress() || ll.State() != ble.StateInitiating {
		t.Fatalf("create not in progress")
	}
	if err := i.CreateConn(peer, 0); err == nil {
		t.Errorf("second CreateConn did not fail")
	}

	// A connectable advertisement from somebody else changes nothing.
	rxbuf := append([]byte{ble.PduAdvInd, 6}, 9, 9, 9, 9, 9, 9)
	hdr := &ble.MbufHdr{CRCOK: true, RxState: ble.StateInitiating}
	if rc := i.RxISREnd(ble.PduAdvInd, rxbuf, nil, hdr); rc != 0 {
		t.Errorf("foreign adv rc = %d, want 0", rc)
	}

	// One from our peer forms the link.
	rxbuf = append([]byte{ble.PduAdvInd, 6}, peer[:]...)
	if rc := i.RxISREnd(ble.PduAdvInd, rxbuf, nil, hdr); rc != 1 {
		t.Errorf("peer adv rc = %d, want 1", rc)
	}
	if i.ConnCreateInProgress() || ll.State() != ble.StateConnection {
		t.Errorf("connection not formed")
	}
	select {
	case got := <-i.Done:
		if got != peer {
			t.Errorf("Done reported %x, want %x", got, peer)
		}
	default:
		t.Errorf("Done not signalled")
	}
}

func TestConnCompletedPackets(t *testing.T) {
	hci := &captureHCI{}
	ll := newLL(hci)
	c := NewConn(ll, nil)
	ll.Conn = c
	c.Open(0x005)

	c.TxPktIn(ble.NewHostPDU([]byte{1, 2, 3}), 0x005, 3)
	c.TxPktIn(ble.NewHostPDU([]byte{4, 5}), 0x1005, 2) // PB flag set, same handle
	c.NumCompPktsEventSend()

	if len(hci.events) != 1 {
		t.Fatalf("events = %d, want 1", len(hci.events))
	}
	want := []byte{0x13, 0x05, 0x01, 0x05, 0x00, 0x02, 0x00}
	if !bytes.Equal(hci.events[0], want) {
		t.Errorf("completed packets event = %x, want %x", hci.events[0], want)
	}

	// Nothing pending, nothing sent.
	c.NumCompPktsEventSend()
	if len(hci.events) != 1 {
		t.Errorf("empty flush produced an event")
	}
}

func TestConnUnknownHandleDropped(t *testing.T) {
	hci := &captureHCI{}
	ll := newLL(hci)
	c := NewConn(ll, nil)
	ll.Conn = c

	c.TxPktIn(ble.NewHostPDU([]byte{1, 2, 3}), 0x009, 3)
	c.NumCompPktsEventSend()
	if len(hci.events) != 0 {
		t.Errorf("dropped packet still reported completed")
	}
}

func TestDTMCountsPackets(t *testing.T) {
	ll := newLL(&captureHCI{})
	d := NewDTM(ll, nil)
	ll.DTM = d
	d.RxTestStart()
	if ll.State() != ble.StateDTM {
		t.Fatalf("test start did not enter DTM state")
	}

	hdr := &ble.MbufHdr{CRCOK: true, RxState: ble.StateDTM}
	rxbuf := []byte{0x00, 0x25, 0xaa}
	d.RxISREnd(0, rxbuf, nil, hdr)
	d.RxISREnd(0, rxbuf, nil, hdr)
	bad := &ble.MbufHdr{CRCOK: false, RxState: ble.StateDTM}
	d.RxISREnd(0, rxbuf, nil, bad)

	if got := d.TestEnd(); got != 2 {
		t.Errorf("TestEnd() = %d, want 2", got)
	}
	if ll.State() != ble.StateStandby {
		t.Errorf("test end did not return to standby")
	}
}
