// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

import "time"

// RxStart is called by the PHY driver from radio-ISR context as soon as
// the preamble, access address, and first PDU header byte are in. rxbuf
// holds what has been received so far (at least the header byte), channel
// is the current channel index, and rxhdr is the reception's mbuf header,
// which RxStart stamps with the current LL state and channel before
// dispatching.
//
// The return value steers the PHY: < 0 abort this reception, == 0 keep
// receiving but do not schedule a turn-around TX, > 0 keep receiving and
// prepare a TX for when the PDU ends.
func (ll *LL) RxStart(rxbuf []byte, channel uint8, rxhdr *MbufHdr) int {
	pduType := rxbuf[0] & pduHdrTypeMask
	state := ll.State()
	rxhdr.RxState = state
	rxhdr.Channel = channel
	if state == StateConnection || state == StateDTM {
		rxhdr.AccessAddr = ll.phy.AccessAddr()
	}

	h := ll.handlerForState(state)
	if h == nil {
		// Should not be receiving in this state.
		ll.Stats.incr(&ll.Stats.BadLLState)
		return -1
	}
	return h.RxISRStart(pduType, rxhdr)
}

// RxEnd is called by the PHY driver from radio-ISR context when a
// reception completes. rxbuf is the PHY's receive buffer: header byte,
// length byte, payload. rxhdr is the same header RxStart stamped, now
// with CRCOK, RSSI, and Timestamp filled in by the driver.
//
// For advertising-channel states it validates the payload length against
// the PDU type, allocates and copies a receive PDU when the packet is
// worth keeping, lets the active handler inspect the reception, and
// finally queues any allocated PDU for the LL task.
//
// The return value steers the PHY: < 0 the caller must disable the PHY,
// == 0 leave the PHY alone, > 0 the handler already took care of it.
func (ll *LL) RxEnd(rxbuf []byte, rxhdr *MbufHdr) int {
	crcOK := rxhdr.CRCOK
	pduType := rxbuf[0] & pduHdrTypeMask
	length := int(rxbuf[1])

	if rxhdr.RxState == StateDTM {
		if ll.DTM == nil {
			ll.Stats.incr(&ll.Stats.BadLLState)
			return -1
		}
		return ll.DTM.RxISREnd(pduType, rxbuf, nil, rxhdr)
	}
	if rxhdr.RxState == StateConnection {
		if ll.Conn == nil {
			ll.Stats.incr(&ll.Stats.BadLLState)
			return -1
		}
		return ll.Conn.RxISREnd(pduType, rxbuf, nil, rxhdr)
	}

	// If the CRC checks, make sure the length checks too.
	badpkt := false
	if crcOK {
		switch pduType {
		case PduScanReq, PduAdvDirectInd:
			badpkt = length != scanReqLen
		case PduScanRsp, PduAdvInd, PduAdvScanInd, PduAdvNonconnInd:
			badpkt = length < advScanIndMinLen || length > advScanIndMaxLen
		case PduAuxConnectRsp, PduAdvExtInd:
			// Parsed further by the extended advertising machinery.
		case PduConnectReq:
			badpkt = length != connectReqLen
		default:
			badpkt = true
		}
		if badpkt {
			ll.Stats.incr(&ll.Stats.RxAdvMalformedPkts)
		}
	}

	h := ll.handlerForState(rxhdr.RxState)
	if h == nil {
		ll.Stats.incr(&ll.Stats.BadLLState)
		return -1
	}
	var pdu *PDU
	switch rxhdr.RxState {
	case StateAdv, StateScanning:
		if !badpkt {
			pdu = RxPDUAlloc(ll.pool, length+pduHdrLen)
			if pdu == nil {
				ll.Stats.incr(&ll.Stats.NoBufs)
			} else {
				pdu.CopyIn(rxbuf[:length+pduHdrLen])
				pdu.Hdr = *rxhdr
			}
		}
	}
	rc := h.RxISREnd(pduType, rxbuf, pdu, rxhdr)

	// Hand the packet up to the LL task regardless of CRC failure; the
	// scanner and advertiser observe CRC-errored receptions too.
	if pdu != nil {
		// The handler may have updated flags in the shared header
		// before the PDU leaves ISR context.
		pdu.Hdr.Flags = rxhdr.Flags
		ll.rxPduIn(pdu)
	}
	return rc
}

// rxPduIn places a received PDU on the LL receive queue and wakes the LL
// task. Called from radio-ISR context.
func (ll *LL) rxPduIn(pdu *PDU) {
	ll.rxQ.Push(pdu)
	ll.evq.Put(ll.rxEvent)
}

// AclDataIn accepts an ACL data packet from the host, HCI ACL header
// still attached, queues it, and wakes the LL task, which validates the
// header and hands the payload to the connection module. The host side
// may run on any goroutine; the queue insert is the critical section.
func (ll *LL) AclDataIn(pdu *PDU) {
	ll.txQ.Push(pdu)
	ll.evq.Put(ll.txEvent)
}

// ArmWFR schedules the wait-for-response window to close d from now,
// re-arming if already scheduled. Sub-state handlers arm it when a reply
// is due within a fixed window (a scanner's wait for SCAN_RSP, an
// initiator's wait for its CONNECT_REQ to be answered).
func (ll *LL) ArmWFR(d time.Duration) {
	ll.wfr.Reset(d)
}

// DisarmWFR cancels a pending wait-for-response window.
func (ll *LL) DisarmWFR() {
	ll.wfr.Stop()
}

// WFRTimerExp is the wait-for-response expiry entry point, called from
// scheduler-timer context. If the PHY has already started receiving a
// frame there is nothing to do: the in-flight reception will resolve via
// RxEnd. Otherwise the active state's handler is told its window closed.
// Unknown or idle states are silently ignored.
func (ll *LL) WFRTimerExp() {
	state := ll.State()
	if ll.phy.RxStarted() {
		ll.log("ble: wfr expired during rx, state=%v xcvr=%#x", state, ll.phy.XcvrState())
		return
	}
	ll.Stats.incr(&ll.Stats.WfrTimeouts)
	if h := ll.handlerForState(state); h != nil {
		h.WFRTimerExp()
	}
}

// wfrExpired adapts the internal callout to the public expiry entry
// point.
func (ll *LL) wfrExpired() {
	ll.WFRTimerExp()
}
