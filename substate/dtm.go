// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package substate

import (
	"sync"

	ble "github.com/tve/ble-ll"
)

// DTM is the direct-test-mode handler used during RF certification: the
// tester puts the controller into a receive or transmit test on a fixed
// channel and later reads back how many test packets were seen.
type DTM struct {
	sync.Mutex
	ll  *ble.LL
	log LogPrintf

	running bool
	rxPkts  uint16
}

// NewDTM returns an idle direct-test-mode handler bound to ll.
func NewDTM(ll *ble.LL, log LogPrintf) *DTM {
	if log == nil {
		log = noopLog
	}
	return &DTM{ll: ll, log: log}
}

// RxTestStart enters a receiver test.
func (d *DTM) RxTestStart() {
	d.Lock()
	d.running = true
	d.rxPkts = 0
	d.Unlock()
	d.ll.SetState(ble.StateDTM)
	d.log("dtm: receiver test started")
}

// TestEnd leaves the test and returns how many test packets were
// received, the value the test-end HCI command reports.
func (d *DTM) TestEnd() uint16 {
	d.Lock()
	n := d.rxPkts
	d.running = false
	d.Unlock()
	if d.ll.State() == ble.StateDTM {
		d.ll.SetState(ble.StateStandby)
	}
	d.log("dtm: test ended, %d packets", n)
	return n
}

// RxISRStart keeps receiving; test packets carry no routing decision.
func (d *DTM) RxISRStart(pduType byte, rxhdr *ble.MbufHdr) int {
	return 0
}

// RxISREnd counts a CRC-good test packet; DTM works off the PHY buffer,
// nothing travels up to the task.
func (d *DTM) RxISREnd(pduType byte, rxbuf []byte, pdu *ble.PDU, rxhdr *ble.MbufHdr) int {
	d.Lock()
	if d.running && rxhdr.CRCOK {
		d.rxPkts++
	}
	d.Unlock()
	return 0
}

// RxPktIn consumes anything routed here; test mode keeps no task-level
// packet state.
func (d *DTM) RxPktIn(pduType byte, pdu *ble.PDU, rxhdr *ble.MbufHdr) {
	pdu.Free()
}

// WFRTimerExp is meaningless in test mode.
func (d *DTM) WFRTimerExp() {}

// Reset aborts a running test.
func (d *DTM) Reset() {
	d.Lock()
	d.running = false
	d.rxPkts = 0
	d.Unlock()
}
