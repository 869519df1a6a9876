// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

import "testing"

func TestHwErrEventDelivery(t *testing.T) {
	tb := newTestbench()
	tb.ll.hwErrTimerCb()
	if len(tb.hci.events) != 1 {
		t.Fatalf("events sent = %d, want 1", len(tb.hci.events))
	}
	ev := tb.hci.events[0]
	want := []byte{0x10, 0x01, HwErrSyncLoss}
	if len(ev) != 3 || ev[0] != want[0] || ev[1] != want[1] || ev[2] != want[2] {
		t.Errorf("hardware error event = %x, want %x", ev, want)
	}
}

func TestHwErrRetriesOnAllocFailure(t *testing.T) {
	tb := newTestbench()
	tb.hci.fail = 2

	// Transport refuses twice; the callback re-arms itself each time.
	tb.ll.hwErrTimerCb()
	tb.ll.hwErrTimerCb()
	if len(tb.hci.events) != 0 {
		t.Fatalf("event sent despite transport refusing")
	}
	tb.ll.hwErrTimerCb()
	tb.ll.hwerr.Stop()
	if len(tb.hci.events) != 1 {
		t.Errorf("events sent = %d, want 1 after transport recovers", len(tb.hci.events))
	}
}

func TestHwErrorCountsStat(t *testing.T) {
	tb := newTestbench()
	tb.ll.HwError()
	if tb.ll.Stats.HwErr != 1 {
		t.Errorf("HwErr = %d, want 1", tb.ll.Stats.HwErr)
	}
	tb.ll.hwerr.Stop()
}
