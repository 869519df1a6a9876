// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

// Reset performs a software reset of the link layer: the PHY is
// re-initialized, the HCI transport is not. It stops the radio and every
// timer, resets each sub-state machine, flushes both packet queues,
// clears statistics and host-set preferences, and returns the controller
// to standby with no random address assigned. Called from the LL task on
// the HCI reset command; the returned error is the PHY's, destined for
// the command-complete status.
func (ll *LL) Reset() error {
	ll.phy.Disable()

	ll.DisarmWFR()
	ll.hwerr.Stop()
	if ll.sched != nil {
		ll.sched.Stop()
	}

	if ll.Scan != nil {
		ll.Scan.Reset()
	}
	if ll.Adv != nil {
		ll.Adv.Reset()
	}
	if ll.DTM != nil {
		ll.DTM.Reset()
	}

	for _, v := range ll.txQ.DrainAll() {
		v.(*PDU).Free()
	}
	for _, v := range ll.rxQ.DrainAll() {
		v.(*PDU).Free()
	}

	ll.Stats.Reset()
	ll.prefTxPhys = 0
	ll.prefRxPhys = 0

	// The initiator is part of the connection module's reset domain.
	if ll.Init != nil {
		ll.Init.Reset()
	}
	if ll.Conn != nil {
		ll.Conn.Reset()
	}
	if ll.hci != nil {
		// All this does is re-initialize the event masks.
		ll.hci.Init()
	}
	if ll.sched != nil {
		ll.sched.Init()
	}

	ll.SetState(StateStandby)

	if ll.rfclkStop != nil {
		ll.rfclkStop()
	}

	ll.randomAddr = Addr{}

	if ll.wl != nil {
		ll.wl.Clear()
	}
	if ll.rl != nil {
		ll.rl.Reset()
	}

	err := ll.phy.Init()
	ll.log("ble: reset complete, state=standby err=%v", err)
	return err
}
