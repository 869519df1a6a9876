// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

import "testing"

// frame builds a raw PHY receive buffer: header byte, length byte,
// payload of the given length.
func frame(pduType byte, length int) []byte {
	b := make([]byte, pduHdrLen+length)
	b[0] = pduType
	b[1] = byte(length)
	for i := 0; i < length; i++ {
		b[pduHdrLen+i] = byte(i)
	}
	return b
}

func rxFrame(tb *testbench, b []byte, crcOK bool) int {
	hdr := &MbufHdr{}
	if rc := tb.ll.RxStart(b, 37, hdr); rc < 0 {
		return rc
	}
	hdr.CRCOK = crcOK
	return tb.ll.RxEnd(b, hdr)
}

func TestRxStartStampsHeader(t *testing.T) {
	tb := newTestbench()
	tb.ll.SetState(StateAdv)
	tb.adv.startRC = 1
	hdr := &MbufHdr{}
	if rc := tb.ll.RxStart(frame(PduScanReq, scanReqLen), 37, hdr); rc != 1 {
		t.Errorf("RxStart rc = %d, want 1", rc)
	}
	if hdr.RxState != StateAdv || hdr.Channel != 37 {
		t.Errorf("header not stamped: state=%v chan=%d", hdr.RxState, hdr.Channel)
	}
	if tb.adv.lastType != PduScanReq {
		t.Errorf("advertiser saw pdu type %#x, want SCAN_REQ", tb.adv.lastType)
	}
}

func TestRxStartBadState(t *testing.T) {
	tb := newTestbench()
	hdr := &MbufHdr{}
	if rc := tb.ll.RxStart(frame(PduAdvInd, 10), 37, hdr); rc != -1 {
		t.Errorf("RxStart in standby rc = %d, want -1", rc)
	}
	if tb.ll.Stats.BadLLState != 1 {
		t.Errorf("BadLLState = %d, want 1", tb.ll.Stats.BadLLState)
	}
}

// A good 12-byte SCAN_REQ while advertising: rx_end allocates, copies,
// enqueues, and the task side delivers it to the advertiser.
func TestRxEndScanReqWhileAdvertising(t *testing.T) {
	tb := newTestbench()
	tb.ll.SetState(StateAdv)
	b := frame(PduScanReq, scanReqLen)
	rxFrame(tb, b, true)

	if tb.adv.ends != 1 || tb.adv.endNil {
		t.Fatalf("advertiser RxISREnd: calls=%d nilPdu=%v", tb.adv.ends, tb.adv.endNil)
	}
	if tb.adv.pkts != 1 {
		t.Fatalf("advertiser RxPktIn calls = %d, want 1", tb.adv.pkts)
	}
	if tb.adv.lastType != PduScanReq {
		t.Errorf("task side saw pdu type %#x, want SCAN_REQ", tb.adv.lastType)
	}
	if tb.adv.lastHdr.RxState != StateAdv || !tb.adv.lastHdr.CRCOK {
		t.Errorf("task side header: %+v", tb.adv.lastHdr)
	}
	if tb.ll.Stats.RxScanReq != 1 || tb.ll.Stats.RxAdvPduCrcOk != 1 {
		t.Errorf("stats: scan_req=%d crc_ok=%d", tb.ll.Stats.RxScanReq, tb.ll.Stats.RxAdvPduCrcOk)
	}
	if tb.ll.rxQ.Len() != 0 {
		t.Errorf("receive queue not drained")
	}
}

// A malformed ADV_IND (length 3) while scanning: no allocation, the
// malformed stat bumps, and the scanner is still notified with a nil
// PDU.
func TestRxEndMalformedAdvInd(t *testing.T) {
	tb := newTestbench()
	tb.ll.SetState(StateScanning)
	b := frame(PduAdvInd, 3)
	rxFrame(tb, b, true)

	if tb.scan.ends != 1 || !tb.scan.endNil || !tb.scan.endCrcOK {
		t.Fatalf("scanner RxISREnd: calls=%d nilPdu=%v crcOK=%v",
			tb.scan.ends, tb.scan.endNil, tb.scan.endCrcOK)
	}
	if tb.ll.Stats.RxAdvMalformedPkts != 1 {
		t.Errorf("RxAdvMalformedPkts = %d, want 1", tb.ll.Stats.RxAdvMalformedPkts)
	}
	if tb.scan.pkts != 0 {
		t.Errorf("malformed packet reached the task side")
	}
}

// CRC-errored receptions skip length validation, still get buffered, and
// still reach the scanner so it can restart its window.
func TestRxEndCrcErrorStillDelivered(t *testing.T) {
	tb := newTestbench()
	tb.ll.SetState(StateScanning)
	b := frame(PduAdvInd, 20)
	rxFrame(tb, b, false)

	if tb.scan.ends != 1 || tb.scan.endNil {
		t.Fatalf("scanner RxISREnd: calls=%d nilPdu=%v", tb.scan.ends, tb.scan.endNil)
	}
	if tb.scan.pkts != 1 {
		t.Errorf("CRC-errored packet did not reach the task side")
	}
	if tb.ll.Stats.RxAdvPduCrcErr != 1 {
		t.Errorf("RxAdvPduCrcErr = %d, want 1", tb.ll.Stats.RxAdvPduCrcErr)
	}
	if tb.ll.Stats.RxAdvMalformedPkts != 0 {
		t.Errorf("CRC-errored packet counted as malformed")
	}
}

func TestRxEndLengthValidation(t *testing.T) {
	cases := map[string]struct {
		pduType byte
		length  int
		bad     bool
	}{
		"scan req exact":        {PduScanReq, scanReqLen, false},
		"scan req short":        {PduScanReq, scanReqLen - 1, true},
		"direct ind exact":      {PduAdvDirectInd, scanReqLen, false},
		"adv ind min":           {PduAdvInd, advScanIndMinLen, false},
		"adv ind below min":     {PduAdvInd, advScanIndMinLen - 1, true},
		"adv ind max":           {PduAdvInd, advScanIndMaxLen, false},
		"adv ind above max":     {PduAdvInd, advScanIndMaxLen + 1, true},
		"scan rsp in range":     {PduScanRsp, 20, false},
		"nonconn in range":      {PduAdvNonconnInd, 10, false},
		"connect req exact":     {PduConnectReq, connectReqLen, false},
		"connect req long":      {PduConnectReq, connectReqLen + 1, true},
		"ext ind any":           {PduAdvExtInd, 3, false},
		"aux connect rsp any":   {PduAuxConnectRsp, 50, false},
		"unknown type":          {0x9, 10, true},
	}
	for n, tc := range cases {
		tb := newTestbench()
		tb.ll.SetState(StateScanning)
		rxFrame(tb, frame(tc.pduType, tc.length), true)
		gotBad := tb.ll.Stats.RxAdvMalformedPkts == 1
		if gotBad != tc.bad {
			t.Errorf("%s: malformed=%v, want %v", n, gotBad, tc.bad)
		}
		if allocated := !tb.scan.endNil; allocated == tc.bad {
			t.Errorf("%s: allocated=%v, want %v", n, allocated, !tc.bad)
		}
	}
}

// The initiator works off the PHY buffer; nothing is allocated or
// queued for it.
func TestRxEndInitiatingNoAlloc(t *testing.T) {
	tb := newTestbench()
	tb.ll.SetState(StateInitiating)
	rxFrame(tb, frame(PduAdvInd, 10), true)

	if tb.init.ends != 1 || !tb.init.endNil {
		t.Fatalf("initiator RxISREnd: calls=%d nilPdu=%v", tb.init.ends, tb.init.endNil)
	}
	if tb.ll.rxQ.Len() != 0 || tb.init.pkts != 0 {
		t.Errorf("initiating state produced a queued PDU")
	}
}

// Connection and DTM receptions are delegated wholesale.
func TestRxEndDelegation(t *testing.T) {
	tb := newTestbench()
	tb.ll.SetState(StateConnection)
	tb.conn.endRC = 1
	if rc := rxFrame(tb, frame(0x2, 10), true); rc != 1 {
		t.Errorf("connection rc = %d, want 1", rc)
	}
	if tb.conn.ends != 1 {
		t.Errorf("connection RxISREnd calls = %d, want 1", tb.conn.ends)
	}

	tb.ll.SetState(StateDTM)
	rxFrame(tb, frame(0x0, 10), true)
	if tb.dtm.ends != 1 {
		t.Errorf("dtm RxISREnd calls = %d, want 1", tb.dtm.ends)
	}
}

func TestRxEndAllocFailure(t *testing.T) {
	tb := newTestbench()
	tb.ll.pool = &FixedPool{} // zero block size: every Get fails
	tb.ll.SetState(StateScanning)
	rxFrame(tb, frame(PduAdvInd, 10), true)

	if tb.ll.Stats.NoBufs != 1 {
		t.Errorf("NoBufs = %d, want 1", tb.ll.Stats.NoBufs)
	}
	if tb.scan.ends != 1 || !tb.scan.endNil {
		t.Errorf("scanner not told about the reception")
	}
}

func TestWFRTimerExp(t *testing.T) {
	tb := newTestbench()
	tb.ll.SetState(StateScanning)

	// An in-flight reception defers the expiry to RxEnd.
	tb.phy.rxStarted = true
	tb.ll.WFRTimerExp()
	if tb.scan.wfrs != 0 {
		t.Errorf("WFR fired despite reception in progress")
	}

	tb.phy.rxStarted = false
	tb.ll.WFRTimerExp()
	if tb.scan.wfrs != 1 {
		t.Errorf("scanner WFR calls = %d, want 1", tb.scan.wfrs)
	}
	if tb.ll.Stats.WfrTimeouts != 1 {
		t.Errorf("WfrTimeouts = %d, want 1", tb.ll.Stats.WfrTimeouts)
	}

	// Idle states are silently ignored.
	tb.ll.SetState(StateStandby)
	tb.ll.WFRTimerExp()
	if tb.ll.Stats.BadLLState != 0 {
		t.Errorf("idle WFR counted as bad state")
	}
}
