// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

import (
	"encoding/binary"
	"time"

	"github.com/tve/ble-ll/hciutil"
	"github.com/tve/ble-ll/thread"
)

// idlePollInterval bounds how long the task loop's Get blocks so stop
// can be observed without a dedicated wakeup event; it has no effect on
// latency for packet or timer events, which wake the queue immediately.
const idlePollInterval = 250 * time.Millisecond

// Run is the LL task: it brings the PHY up, tells the host the
// controller is ready, then drains the event queue until stop is closed.
// If rtPriority is positive the calling goroutine is first pinned to its
// own kernel thread at a real-time FIFO priority; callers on platforms
// without CAP_SYS_NICE pass 0 and accept default scheduling.
func (ll *LL) Run(stop <-chan struct{}, rtPriority int) error {
	if rtPriority > 0 {
		if err := thread.Realtime(thread.FIFO, rtPriority); err != nil {
			ll.log("ble: realtime priority request failed: %v", err)
		}
	}

	if err := ll.phy.Init(); err != nil {
		return err
	}
	if err := ll.phy.TxPowerSet(ll.txPowerDBm); err != nil {
		ll.log("ble: tx power set failed: %v", err)
	}

	// Tell the host we are ready to receive packets.
	ll.sendNoOpEvent()

	for {
		select {
		case <-stop:
			return nil
		default:
		}
		if ev := ll.evq.Get(idlePollInterval); ev != nil {
			ev.Run()
		}
	}
}

// rxPktIn drains the receive queue, dispatching each PDU to the handler
// for the state it was received in (not necessarily the state active
// now). Ownership of the PDU transfers to the handler, which frees it or
// keeps it; the core only frees when no handler is registered for the
// recorded state.
func (ll *LL) rxPktIn() {
	for {
		v := ll.rxQ.Pop()
		if v == nil {
			return
		}
		pdu := v.(*PDU)
		b := pdu.Bytes()
		var pduType byte
		if len(b) > 0 {
			// Only meaningful for advertising-channel PDUs.
			pduType = b[0] & pduHdrTypeMask
		}
		onData := pdu.Hdr.RxState == StateConnection || pdu.Hdr.RxState == StateDTM
		ll.Stats.CountRx(pdu.Hdr.CRCOK, onData, pdu.Len())
		if pdu.Hdr.CRCOK && !onData {
			ll.Stats.CountRxAdvPDU(pduType)
		}

		h := ll.handlerForState(pdu.Hdr.RxState)
		if h == nil {
			ll.Stats.incr(&ll.Stats.BadLLState)
			pdu.Free()
			continue
		}
		h.RxPktIn(pduType, pdu, &pdu.Hdr)
	}
}

// txPktIn drains the host ACL queue: strip and validate the HCI ACL
// header, then hand the payload with its connection handle to the
// connection module. Bad headers are counted and the packet dropped.
func (ll *LL) txPktIn() {
	for {
		v := ll.txQ.Pop()
		if v == nil {
			return
		}
		pdu := v.(*PDU)
		b := pdu.Bytes()
		if len(b) < hciutil.ACLHdrLen {
			ll.Stats.incr(&ll.Stats.BadAclHdr)
			pdu.Free()
			continue
		}
		handle := binary.LittleEndian.Uint16(b[0:2])
		length := binary.LittleEndian.Uint16(b[2:4])
		pdu.Adj(hciutil.ACLHdrLen)

		pb := handle & 0x3000
		if pdu.Len() != int(length) || pb > 0x1000 || length == 0 {
			ll.Stats.incr(&ll.Stats.BadAclHdr)
			pdu.Free()
			continue
		}

		if ll.Conn == nil {
			pdu.Free()
			continue
		}
		ll.Conn.TxPktIn(pdu, handle, length)
	}
}
