// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

// StateHandler is the method set common to every per-state sub-machine
// (ADV, SCANNING, INITIATING, CONNECTION, DTM). The handlers share one
// shape so the dispatch sites need no per-state switch; each handler
// reads whichever arguments apply to it.
//
// RxISRStart is called from radio-ISR context as soon as the PDU header
// byte is in, before the rest of the PDU has been received. Its return
// value steers the PHY: < 0 abort this reception, == 0 keep receiving,
// > 0 keep receiving and prepare a turn-around TX when it ends.
//
// RxISREnd is called from radio-ISR context once the full PDU is in.
// rxbuf is the PHY's own receive buffer (header byte, length byte,
// payload), valid only for the duration of the call. pdu is the allocated
// copy destined for the LL task, or nil when the core did not allocate
// one (malformed packet, allocation failure, or a state that works off
// rxbuf directly). Its return value steers the PHY: < 0 disable the PHY,
// == 0 leave the PHY alone, > 0 the handler already took care of it.
// Handlers must not hold on to pdu across the call; the core owns its
// trip through the receive queue.
//
// RxPktIn is called from LL-task context with ownership of pdu
// transferred to the handler: every implementation must arrange for
// pdu.Free() once done, or keep the buffer. The core never touches the
// PDU again after handing it off.
//
// WFRTimerExp is called when the wait-for-response window closed with no
// reception in progress. Reset returns the handler to its initial,
// disabled state.
type StateHandler interface {
	RxISRStart(pduType byte, rxhdr *MbufHdr) int
	RxISREnd(pduType byte, rxbuf []byte, pdu *PDU, rxhdr *MbufHdr) int
	RxPktIn(pduType byte, pdu *PDU, rxhdr *MbufHdr)
	WFRTimerExp()
	Reset()
}

// AdvHandler is the advertiser sub-machine's method set.
type AdvHandler interface {
	StateHandler
	Enabled() bool
	// SetRandomAddr forwards a legacy-mode random address change to
	// advertising instance 0.
	SetRandomAddr(addr Addr)
}

// ScanHandler is the scanner sub-machine's method set.
type ScanHandler interface {
	StateHandler
	Enabled() bool
}

// InitHandler is the initiator sub-machine's method set.
type InitHandler interface {
	StateHandler
	ConnCreateInProgress() bool
}

// ConnHandler is the connection sub-machine's method set: it also accepts
// host ACL PDUs (already stripped of their HCI ACL header) and is asked
// to flush pending number-of-completed-packets reporting when the core's
// completed-packets event fires.
type ConnHandler interface {
	StateHandler
	TxPktIn(pdu *PDU, handle uint16, length uint16)
	NumCompPktsEventSend()
}

// DTMHandler is direct-test-mode's method set; it needs nothing beyond
// the common one.
type DTMHandler interface {
	StateHandler
}
