// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package substate

import (
	"sync"

	ble "github.com/tve/ble-ll"
)

// Advertiser is the ADV-state handler: it owns the advertising data and
// address for instance 0 and reacts to the scan requests and connect
// requests the core passes up while advertising.
type Advertiser struct {
	sync.Mutex
	ll  *ble.LL
	log LogPrintf

	enabled     bool
	connectable bool
	advData     []byte
	scanRspData []byte
	randomAddr  ble.Addr

	scanReqs    uint32
	connectReqs uint32
}

// NewAdvertiser returns a disabled advertiser bound to ll.
func NewAdvertiser(ll *ble.LL, log LogPrintf) *Advertiser {
	if log == nil {
		log = noopLog
	}
	return &Advertiser{ll: ll, log: log}
}

// Enable starts advertising with the given advertising and scan-response
// payloads and moves the controller into the advertising state.
func (a *Advertiser) Enable(advData, scanRspData []byte, connectable bool) {
	a.Lock()
	a.enabled = true
	a.connectable = connectable
	a.advData = advData
	a.scanRspData = scanRspData
	a.Unlock()
	a.ll.SetState(ble.StateAdv)
	a.log("adv: enabled, %d adv bytes", len(advData))
}

// Disable stops advertising and returns the controller to standby if it
// was advertising.
func (a *Advertiser) Disable() {
	a.Lock()
	a.enabled = false
	a.Unlock()
	if a.ll.State() == ble.StateAdv {
		a.ll.SetState(ble.StateStandby)
	}
	a.log("adv: disabled")
}

// Enabled reports whether advertising is on.
func (a *Advertiser) Enabled() bool {
	a.Lock()
	defer a.Unlock()
	return a.enabled
}

// SetRandomAddr installs the random address for advertising instance 0.
func (a *Advertiser) SetRandomAddr(addr ble.Addr) {
	a.Lock()
	a.randomAddr = addr
	a.Unlock()
}

// RxISRStart vetoes every PDU type an advertiser has no business
// receiving and requests a turn-around TX for scan requests, which are
// answered with a scan response from the same radio event.
func (a *Advertiser) RxISRStart(pduType byte, rxhdr *ble.MbufHdr) int {
	switch pduType {
	case ble.PduScanReq:
		return 1
	case ble.PduConnectReq:
		return 0
	default:
		return -1
	}
}

// RxISREnd accepts the reception; the decision whether the scan request
// was addressed to us is made at task level in RxPktIn.
func (a *Advertiser) RxISREnd(pduType byte, rxbuf []byte, pdu *ble.PDU, rxhdr *ble.MbufHdr) int {
	if pdu == nil {
		// Malformed or no buffer; nothing further to do with it.
		return -1
	}
	return 0
}

// RxPktIn consumes a queued reception: count scan requests addressed to
// us and move to the connection state on a connect request.
func (a *Advertiser) RxPktIn(pduType byte, pdu *ble.PDU, rxhdr *ble.MbufHdr) {
	defer pdu.Free()
	if !rxhdr.CRCOK || !a.Enabled() {
		return
	}
	b := pdu.Bytes()
	switch pduType {
	case ble.PduScanReq:
		// SCAN_REQ payload is ScanA then AdvA; only answer requests
		// for our address.
		if len(b) < 2+12 {
			return
		}
		var adva ble.Addr
		copy(adva[:], b[2+6:2+12])
		// The RxAdd header bit gives AdvA's address type.
		if !a.ll.IsOurDevAddr(adva, boolToType(b[0]&0x80 != 0)) {
			return
		}
		a.Lock()
		a.scanReqs++
		a.Unlock()
		a.log("adv: scan request answered")
	case ble.PduConnectReq:
		a.Lock()
		connectable := a.connectable
		a.connectReqs++
		a.Unlock()
		if connectable {
			a.Disable()
			a.ll.SetState(ble.StateConnection)
			a.log("adv: connect request, moving to connection state")
		}
	}
}

// WFRTimerExp closes the advertising event: no scan request or connect
// request arrived in the response window.
func (a *Advertiser) WFRTimerExp() {
	a.log("adv: response window closed")
}

// Reset returns the advertiser to its initial, disabled state.
func (a *Advertiser) Reset() {
	a.Lock()
	a.enabled = false
	a.advData = nil
	a.scanRspData = nil
	a.randomAddr = ble.Addr{}
	a.scanReqs = 0
	a.connectReqs = 0
	a.Unlock()
}

// ScanReqs returns how many scan requests have been answered since the
// last reset; Enable does not clear the count.
func (a *Advertiser) ScanReqs() uint32 {
	a.Lock()
	defer a.Unlock()
	return a.scanReqs
}

func boolToType(rxAdd bool) uint8 {
	if rxAdd {
		return 1
	}
	return 0
}
