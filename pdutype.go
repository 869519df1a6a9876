// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

// Advertising-channel PDU type values, the low 4 bits of the first PDU
// header byte on legacy and extended advertising PDUs alike.
const (
	PduAdvInd        = 0x0
	PduAdvDirectInd  = 0x1
	PduAdvNonconnInd = 0x2
	PduScanReq       = 0x3
	PduScanRsp       = 0x4
	PduConnectReq    = 0x5
	PduAdvScanInd    = 0x6
	PduAdvExtInd     = 0x7
	PduAuxConnectRsp = 0x8
)

// pduHdrTypeMask isolates the PDU type bits in the first header byte; the
// upper four bits carry the ChSel/TxAdd/RxAdd flags.
const pduHdrTypeMask = 0x0f

// On-air PDU framing lengths.
const (
	pduHdrLen        = 2  // advertising/data channel PDU header
	scanReqLen       = 12 // SCAN_REQ and ADV_DIRECT_IND payload
	connectReqLen    = 34 // CONNECT_REQ payload
	advScanIndMinLen = AddrLen
	advScanIndMaxLen = 37 // legacy advertising payload ceiling
)
