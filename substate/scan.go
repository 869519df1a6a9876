// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package substate

import (
	"sync"

	ble "github.com/tve/ble-ll"
)

const reportChanCap = 8 // queue up to 8 advertising reports before dropping

// AdvReport is one observed advertisement, delivered on the scanner's
// report channel.
type AdvReport struct {
	PduType  byte
	AddrType uint8
	Addr     ble.Addr
	Data     []byte
	RSSI     int8
	Channel  uint8
	CrcOK    bool
}

// Scanner is the SCANNING-state handler: it turns the receptions the
// core passes up into advertising reports on a buffered channel, in the
// same push style the radio drivers use for their RX channels. Reports
// are dropped when the channel is full.
type Scanner struct {
	sync.Mutex
	ll  *ble.LL
	log LogPrintf

	Reports <-chan *AdvReport
	reports chan *AdvReport

	enabled bool
	active  bool // active scanning answers with SCAN_REQ
	dropped uint32
}

// NewScanner returns a disabled scanner bound to ll.
func NewScanner(ll *ble.LL, log LogPrintf) *Scanner {
	if log == nil {
		log = noopLog
	}
	s := &Scanner{ll: ll, log: log, reports: make(chan *AdvReport, reportChanCap)}
	s.Reports = s.reports
	return s
}

// Enable starts scanning; active selects active scanning (the scanner
// follows scannable advertisements with a scan request).
func (s *Scanner) Enable(active bool) {
	s.Lock()
	s.enabled = true
	s.active = active
	s.Unlock()
	s.ll.SetState(ble.StateScanning)
	s.log("scan: enabled active=%v", active)
}

// Disable stops scanning and returns the controller to standby if it was
// scanning.
func (s *Scanner) Disable() {
	s.Lock()
	s.enabled = false
	s.Unlock()
	if s.ll.State() == ble.StateScanning {
		s.ll.SetState(ble.StateStandby)
	}
	s.log("scan: disabled")
}

// Enabled reports whether scanning is on.
func (s *Scanner) Enabled() bool {
	s.Lock()
	defer s.Unlock()
	return s.enabled
}

// RxISRStart keeps receiving anything that looks like an advertisement
// and asks for a turn-around TX when an active scan wants to follow up
// with a scan request.
func (s *Scanner) RxISRStart(pduType byte, rxhdr *ble.MbufHdr) int {
	switch pduType {
	case ble.PduAdvInd, ble.PduAdvScanInd:
		s.Lock()
		active := s.active
		s.Unlock()
		if active {
			return 1
		}
		return 0
	case ble.PduAdvNonconnInd, ble.PduAdvDirectInd, ble.PduScanRsp, ble.PduAdvExtInd:
		return 0
	default:
		return -1
	}
}

// RxISREnd accepts the reception. A nil pdu means the packet was
// malformed or no buffer was available; the scanner is still told so it
// can restart its receive window.
func (s *Scanner) RxISREnd(pduType byte, rxbuf []byte, pdu *ble.PDU, rxhdr *ble.MbufHdr) int {
	if pdu == nil {
		return 0
	}
	return 0
}

// RxPktIn consumes a queued reception and publishes an advertising
// report.
func (s *Scanner) RxPktIn(pduType byte, pdu *ble.PDU, rxhdr *ble.MbufHdr) {
	defer pdu.Free()
	if !s.Enabled() {
		return
	}
	b := pdu.Bytes()
	if len(b) < 2+ble.AddrLen {
		return
	}
	rep := &AdvReport{
		PduType:  pduType,
		AddrType: boolToType(b[0]&0x40 != 0), // TxAdd bit
		RSSI:     rxhdr.RSSI,
		Channel:  rxhdr.Channel,
		CrcOK:    rxhdr.CRCOK,
	}
	copy(rep.Addr[:], b[2:2+ble.AddrLen])
	if len(b) > 2+ble.AddrLen {
		rep.Data = append([]byte(nil), b[2+ble.AddrLen:]...)
	}
	select {
	case s.reports <- rep:
	default:
		s.Lock()
		s.dropped++
		s.Unlock()
	}
}

// WFRTimerExp fires when a followed-up scan request got no scan response
// in its window; scanning simply continues.
func (s *Scanner) WFRTimerExp() {
	s.log("scan: scan response window closed")
}

// Reset returns the scanner to its initial, disabled state. The report
// channel is drained so a stale report is not mistaken for a fresh one
// after the reset.
func (s *Scanner) Reset() {
	s.Lock()
	s.enabled = false
	s.dropped = 0
	s.Unlock()
	for {
		select {
		case <-s.reports:
		default:
			return
		}
	}
}

// Dropped returns how many reports were discarded because the report
// channel was full.
func (s *Scanner) Dropped() uint32 {
	s.Lock()
	defer s.Unlock()
	return s.dropped
}
