// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

import "github.com/tve/ble-ll/hciutil"

// HCITransport is the upward-facing collaborator the core sends HCI
// events through. SendEvent may fail when the transport has no event
// buffer available; callers that must not lose their event (hardware
// error reporting) retry later. Init re-initializes the transport's
// event masks, called once at bring-up and again on every software
// reset.
type HCITransport interface {
	Init()
	SendEvent(ev []byte) error
}

// SendHCIEvent hands an encoded event to the transport on behalf of the
// core or a sub-state machine, dropping it if no transport is wired (a
// controller run headless in tests). The error return is only meaningful
// to callers that retry.
func (ll *LL) SendHCIEvent(ev []byte) error {
	if ll.hci == nil {
		return nil
	}
	return ll.hci.SendEvent(ev)
}

// sendNoOpEvent tells the host the controller is ready to accept
// commands, the first event on the wire after the LL task starts.
func (ll *LL) sendNoOpEvent() {
	if err := ll.SendHCIEvent(hciutil.NoOpCommandComplete(ll.numACLPkts)); err != nil {
		ll.log("ble: no-op command complete dropped: %v", err)
	}
}

// eventDbufOverflow runs on the LL task when a data-buffer-overflow was
// signalled from interrupt context.
func (ll *LL) eventDbufOverflow() {
	if err := ll.SendHCIEvent(hciutil.DataBufferOverflow(hciutil.LinkTypeACL)); err != nil {
		ll.log("ble: data buffer overflow event dropped: %v", err)
	}
}

// eventCompPkts runs on the LL task when the connection module asked for
// pending number-of-completed-packets reporting to be flushed.
func (ll *LL) eventCompPkts() {
	if ll.Conn != nil {
		ll.Conn.NumCompPktsEventSend()
	}
}

// DataBufferOverflow posts the data-buffer-overflow event to the LL
// task. Safe to call from interrupt context.
func (ll *LL) DataBufferOverflow() {
	ll.evq.Put(ll.dbufOverflowEvent)
}

// PostNumCompPkts asks the LL task to flush number-of-completed-packets
// reporting through the connection module. Safe to call from interrupt
// context.
func (ll *LL) PostNumCompPkts() {
	ll.evq.Put(ll.compPktEvent)
}

// EventSend posts an arbitrary event to the LL task's queue on behalf of
// a sub-state machine. Safe to call from interrupt context.
func (ll *LL) EventSend(ev *Event) {
	ll.evq.Put(ev)
}
