// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

import (
	"time"

	"github.com/tve/ble-ll/hciutil"
)

// HwErrSyncLoss is the hardware-error event code reported when the
// radio loses synchronization with the link layer.
const HwErrSyncLoss = 0x01

// hwErrRetryDelay is how long to wait before retrying the hardware-error
// event when the transport has no event buffer free.
const hwErrRetryDelay = 50 * time.Millisecond

// HwError is called from interrupt context when the PHY detects a
// condition it cannot recover from inline. An ISR must not allocate an
// HCI event, so all it does is fire the deferred timer; the event is
// assembled and sent from task context.
func (ll *LL) HwError() {
	ll.Stats.incr(&ll.Stats.HwErr)
	ll.hwerr.Reset(0)
}

// hwErrTimerCb runs on the LL task when the hardware-error callout
// fires. If the transport cannot take the event now, the callout is
// re-armed so the event is eventually delivered.
func (ll *LL) hwErrTimerCb() {
	if err := ll.SendHCIEvent(hciutil.HardwareError(HwErrSyncLoss)); err != nil {
		ll.hwerr.Reset(hwErrRetryDelay)
	}
}
