// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

import "sync/atomic"

// Stats is the controller's counter block: a flat struct of counters
// bumped from ISR and task context alike with atomic adds, exposed as a
// plain map by Snapshot for whatever is watching the controller
// (cmd/llctl's MQTT publisher, tests).
type Stats struct {
	HwErr  uint32
	NoBufs uint32

	// CRC disposition split between connection/DTM data and
	// advertising-channel traffic.
	RxDataPduCrcOk    uint32
	RxDataPduCrcErr   uint32
	RxDataBytesCrcOk  uint32
	RxDataBytesCrcErr uint32
	RxAdvPduCrcOk     uint32
	RxAdvPduCrcErr    uint32
	RxAdvBytesCrcOk   uint32
	RxAdvBytesCrcErr  uint32

	// Per-advertising-PDU-type counts.
	RxAdvInd        uint32
	RxAdvDirectInd  uint32
	RxAdvNonconnInd uint32
	RxAdvScanInd    uint32
	RxScanReq       uint32
	RxScanRsp       uint32
	RxConnectReq    uint32
	RxAuxConnectRsp uint32
	RxAdvExtInd     uint32
	RxUnkPdu        uint32

	WfrTimeouts uint32

	// BadLLState counts a radio or task callback arriving while the
	// state word held a value the dispatcher has no handler for.
	BadLLState uint32
	// RxAdvMalformedPkts counts CRC-good advertising-channel PDUs whose
	// declared length did not match their type.
	RxAdvMalformedPkts uint32
	// BadAclHdr counts host ACL buffers whose HCI ACL header failed
	// validation.
	BadAclHdr uint32
}

func (s *Stats) incr(field *uint32) { atomic.AddUint32(field, 1) }

func (s *Stats) addBytes(field *uint32, n int) { atomic.AddUint32(field, uint32(n)) }

// CountRxAdvPDU increments the per-advertising-PDU-type counter for
// pduType.
func (s *Stats) CountRxAdvPDU(pduType byte) {
	switch pduType {
	case PduAdvInd:
		s.incr(&s.RxAdvInd)
	case PduAdvDirectInd:
		s.incr(&s.RxAdvDirectInd)
	case PduAdvNonconnInd:
		s.incr(&s.RxAdvNonconnInd)
	case PduAdvScanInd:
		s.incr(&s.RxAdvScanInd)
	case PduScanReq:
		s.incr(&s.RxScanReq)
	case PduScanRsp:
		s.incr(&s.RxScanRsp)
	case PduConnectReq:
		s.incr(&s.RxConnectReq)
	case PduAuxConnectRsp:
		s.incr(&s.RxAuxConnectRsp)
	case PduAdvExtInd:
		s.incr(&s.RxAdvExtInd)
	default:
		s.incr(&s.RxUnkPdu)
	}
}

// CountRx records a received PDU's CRC disposition and byte count, split
// by whether it arrived as connection/DTM data or on an advertising
// channel.
func (s *Stats) CountRx(crcOK bool, onData bool, numBytes int) {
	if crcOK {
		if onData {
			s.incr(&s.RxDataPduCrcOk)
			s.addBytes(&s.RxDataBytesCrcOk, numBytes)
		} else {
			s.incr(&s.RxAdvPduCrcOk)
			s.addBytes(&s.RxAdvBytesCrcOk, numBytes)
		}
		return
	}
	if onData {
		s.incr(&s.RxDataPduCrcErr)
		s.addBytes(&s.RxDataBytesCrcErr, numBytes)
	} else {
		s.incr(&s.RxAdvPduCrcErr)
		s.addBytes(&s.RxAdvBytesCrcErr, numBytes)
	}
}

// Reset zeroes every counter, part of the link layer's software reset.
func (s *Stats) Reset() {
	for _, f := range s.fields() {
		atomic.StoreUint32(f.p, 0)
	}
}

type statField struct {
	name string
	p    *uint32
}

func (s *Stats) fields() []statField {
	return []statField{
		{"hw_err", &s.HwErr},
		{"no_bufs", &s.NoBufs},
		{"rx_data_pdu_crc_ok", &s.RxDataPduCrcOk},
		{"rx_data_pdu_crc_err", &s.RxDataPduCrcErr},
		{"rx_data_bytes_crc_ok", &s.RxDataBytesCrcOk},
		{"rx_data_bytes_crc_err", &s.RxDataBytesCrcErr},
		{"rx_adv_pdu_crc_ok", &s.RxAdvPduCrcOk},
		{"rx_adv_pdu_crc_err", &s.RxAdvPduCrcErr},
		{"rx_adv_bytes_crc_ok", &s.RxAdvBytesCrcOk},
		{"rx_adv_bytes_crc_err", &s.RxAdvBytesCrcErr},
		{"rx_adv_ind", &s.RxAdvInd},
		{"rx_adv_direct_ind", &s.RxAdvDirectInd},
		{"rx_adv_nonconn_ind", &s.RxAdvNonconnInd},
		{"rx_adv_scan_ind", &s.RxAdvScanInd},
		{"rx_scan_req", &s.RxScanReq},
		{"rx_scan_rsp", &s.RxScanRsp},
		{"rx_connect_req", &s.RxConnectReq},
		{"rx_aux_connect_rsp", &s.RxAuxConnectRsp},
		{"rx_adv_ext_ind", &s.RxAdvExtInd},
		{"rx_unk_pdu", &s.RxUnkPdu},
		{"wfr_timeouts", &s.WfrTimeouts},
		{"bad_ll_state", &s.BadLLState},
		{"rx_adv_malformed_pkts", &s.RxAdvMalformedPkts},
		{"bad_acl_hdr", &s.BadAclHdr},
	}
}

// Snapshot returns a point-in-time copy of every counter, keyed by name.
func (s *Stats) Snapshot() map[string]uint32 {
	out := make(map[string]uint32, 24)
	for _, f := range s.fields() {
		out[f.name] = atomic.LoadUint32(f.p)
	}
	return out
}
