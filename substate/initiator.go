// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package substate

import (
	"errors"
	"sync"

	ble "github.com/tve/ble-ll"
)

// Initiator is the INITIATING-state handler: it hunts for connectable
// advertisements from one peer and reports when a connection could be
// formed. The connection itself is the Conn handler's business; the
// initiator only flips the controller into the connection state and
// signals on Done.
type Initiator struct {
	sync.Mutex
	ll  *ble.LL
	log LogPrintf

	inProgress bool
	peerType   uint8
	peer       ble.Addr

	Done <-chan ble.Addr
	done chan ble.Addr
}

// NewInitiator returns an idle initiator bound to ll.
func NewInitiator(ll *ble.LL, log LogPrintf) *Initiator {
	if log == nil {
		log = noopLog
	}
	i := &Initiator{ll: ll, log: log, done: make(chan ble.Addr, 1)}
	i.Done = i.done
	return i
}

// CreateConn starts hunting for connectable advertisements from peer.
func (i *Initiator) CreateConn(peer ble.Addr, peerType uint8) error {
	i.Lock()
	defer i.Unlock()
	if i.inProgress {
		return errors.New("substate: connection create already in progress")
	}
	i.inProgress = true
	i.peer = peer
	i.peerType = peerType
	i.ll.SetState(ble.StateInitiating)
	i.log("init: create connection to %x", peer)
	return nil
}

// CancelConn abandons a pending connection create.
func (i *Initiator) CancelConn() {
	i.Lock()
	i.inProgress = false
	i.Unlock()
	if i.ll.State() == ble.StateInitiating {
		i.ll.SetState(ble.StateStandby)
	}
}

// ConnCreateInProgress reports whether a connection create is pending.
func (i *Initiator) ConnCreateInProgress() bool {
	i.Lock()
	defer i.Unlock()
	return i.inProgress
}

// RxISRStart requests a turn-around TX (the CONNECT_REQ) for connectable
// advertisements so RxISREnd can look at the address, keeps receiving
// extended advertising indications without a TX, and aborts every other
// PDU type.
func (i *Initiator) RxISRStart(pduType byte, rxhdr *ble.MbufHdr) int {
	switch pduType {
	case ble.PduAdvInd, ble.PduAdvDirectInd:
		return 1
	case ble.PduAdvExtInd:
		return 0
	default:
		return -1
	}
}

// RxISREnd inspects the raw reception: a CRC-good connectable
// advertisement from our peer means the CONNECT_REQ went out on the
// turn-around, so the link is formed. The initiator works off the PHY
// buffer directly, the core allocates nothing for it.
func (i *Initiator) RxISREnd(pduType byte, rxbuf []byte, pdu *ble.PDU, rxhdr *ble.MbufHdr) int {
	if !rxhdr.CRCOK || len(rxbuf) < 2+ble.AddrLen {
		return 0
	}
	if pduType != ble.PduAdvInd && pduType != ble.PduAdvDirectInd {
		return 0
	}
	var adva ble.Addr
	copy(adva[:], rxbuf[2:2+ble.AddrLen])
	i.Lock()
	match := i.inProgress && adva == i.peer &&
		boolToType(rxbuf[0]&0x40 != 0) == i.peerType
	if match {
		i.inProgress = false
	}
	i.Unlock()
	if !match {
		return 0
	}
	i.ll.SetState(ble.StateConnection)
	select {
	case i.done <- adva:
	default:
	}
	i.log("init: connection formed to %x", adva)
	return 1
}

// RxPktIn consumes queued receptions; the initiator keeps no per-packet
// state at task level.
func (i *Initiator) RxPktIn(pduType byte, pdu *ble.PDU, rxhdr *ble.MbufHdr) {
	pdu.Free()
}

// WFRTimerExp closes the initiator's receive window; hunting continues
// on the next scheduled event.
func (i *Initiator) WFRTimerExp() {
	i.log("init: response window closed")
}

// Reset abandons any pending connection create.
func (i *Initiator) Reset() {
	i.Lock()
	i.inProgress = false
	i.peer = ble.Addr{}
	i.peerType = 0
	i.Unlock()
}
