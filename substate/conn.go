// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package substate

import (
	"sync"

	ble "github.com/tve/ble-ll"
	"github.com/tve/ble-ll/hciutil"
)

const rxDataChanCap = 4 // queue up to 4 received data PDUs before dropping

// ConnData is one received connection data PDU, delivered on the
// connection handler's RxData channel.
type ConnData struct {
	Handle uint16
	LLID   byte
	Data   []byte
}

// Conn is the CONNECTION-state handler: it accepts host ACL payloads per
// connection handle, tracks packet completion for
// number-of-completed-packets reporting, and pushes received data PDUs
// on a channel.
type Conn struct {
	sync.Mutex
	ll  *ble.LL
	log LogPrintf

	handles map[uint16]*connState

	RxData <-chan *ConnData
	rxData chan *ConnData

	curHandle uint16 // handle receptions are attributed to
	dropped   uint32
}

type connState struct {
	completed uint16 // packets sent but not yet reported to the host
}

// NewConn returns a connection handler with no connections, bound to ll.
func NewConn(ll *ble.LL, log LogPrintf) *Conn {
	if log == nil {
		log = noopLog
	}
	c := &Conn{ll: ll, log: log, handles: map[uint16]*connState{},
		rxData: make(chan *ConnData, rxDataChanCap)}
	c.RxData = c.rxData
	return c
}

// Open registers a connection handle, typically right after the
// initiator or advertiser formed the link, and attributes subsequent
// receptions to it.
func (c *Conn) Open(handle uint16) {
	c.Lock()
	c.handles[handle] = &connState{}
	c.curHandle = handle
	c.Unlock()
}

// Close forgets a connection handle along with its not yet reported
// completed-packet count. Data PDUs already on RxData are left there.
func (c *Conn) Close(handle uint16) {
	c.Lock()
	delete(c.handles, handle)
	c.Unlock()
}

// TxPktIn accepts a host ACL payload for the given handle. The sample
// engine treats queueing as transmission: the packet is counted
// completed immediately and a number-of-completed-packets flush is
// scheduled. Packets for unknown handles are dropped.
func (c *Conn) TxPktIn(pdu *ble.PDU, handle uint16, length uint16) {
	hdl := handle & 0x0fff
	c.Lock()
	cs := c.handles[hdl]
	if cs == nil {
		c.Unlock()
		pdu.Free()
		c.log("conn: tx for unknown handle %#x dropped", hdl)
		return
	}
	cs.completed++
	c.Unlock()
	pdu.Free()
	c.ll.PostNumCompPkts()
}

// NumCompPktsEventSend flushes pending completion counts to the host in
// one number-of-completed-packets event.
func (c *Conn) NumCompPktsEventSend() {
	c.Lock()
	var hs, counts []uint16
	for h, cs := range c.handles {
		if cs.completed > 0 {
			hs = append(hs, h)
			counts = append(counts, cs.completed)
			cs.completed = 0
		}
	}
	c.Unlock()
	if len(hs) == 0 {
		return
	}
	if err := c.ll.SendHCIEvent(hciutil.NumCompletedPackets(hs, counts)); err != nil {
		c.log("conn: completed packets event dropped: %v", err)
	}
}

// RxISRStart keeps receiving every incoming data PDU without a
// turn-around TX; the access address is not checked.
func (c *Conn) RxISRStart(pduType byte, rxhdr *ble.MbufHdr) int {
	return 0
}

// RxISREnd copies a CRC-good data PDU off the PHY buffer and delivers it
// on the RxData channel itself (dropping it when the channel is full):
// connection receptions bypass the core's advertising-channel allocation
// path and the LL task.
func (c *Conn) RxISREnd(pduType byte, rxbuf []byte, pdu *ble.PDU, rxhdr *ble.MbufHdr) int {
	if !rxhdr.CRCOK || len(rxbuf) < 2 {
		return 0
	}
	c.Lock()
	handle := c.curHandle
	known := c.handles[handle] != nil
	c.Unlock()
	if !known {
		return 0
	}
	cd := &ConnData{
		Handle: handle,
		LLID:   rxbuf[0] & 0x03,
		Data:   append([]byte(nil), rxbuf[2:]...),
	}
	select {
	case c.rxData <- cd:
	default:
		c.Lock()
		c.dropped++
		c.Unlock()
	}
	return 0
}

// RxPktIn consumes a queued reception. Connection data normally arrives
// through RxISREnd's channel; anything routed here is freed.
func (c *Conn) RxPktIn(pduType byte, pdu *ble.PDU, rxhdr *ble.MbufHdr) {
	pdu.Free()
}

// WFRTimerExp fires when the peer missed its reply slot within a
// connection event; the event is over.
func (c *Conn) WFRTimerExp() {
	c.log("conn: connection event closed without reply")
}

// Reset drops every connection.
func (c *Conn) Reset() {
	c.Lock()
	c.handles = map[uint16]*connState{}
	c.curHandle = 0
	c.dropped = 0
	c.Unlock()
	for {
		select {
		case <-c.rxData:
		default:
			return
		}
	}
}
