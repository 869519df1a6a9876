// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

// pduTiming holds the two constants the timing model needs per PHY: the
// fixed header/preamble/CRC overhead in microseconds, and the number of
// microseconds each additional payload byte costs at that PHY's air rate.
type pduTiming struct {
	headerUsec  uint32
	usecPerByte uint32
}

var timingTable = map[PhyMode]pduTiming{
	Phy1M:        {headerUsec: 80, usecPerByte: 8},
	Phy2M:        {headerUsec: 44, usecPerByte: 4},
	PhyCoded125k: {headerUsec: 720, usecPerByte: 64},
	PhyCoded500k: {headerUsec: 430, usecPerByte: 16},
}

// minTxOctets and maxTxOctets bound the data channel PDU payload length
// the timing model will ever report, independent of the requested time
// window: 27 is the floor every connEffectiveMaxTxTime must admit (Core
// v5.0, Vol 6, Part B, 4.5.10), 255 the payload ceiling with MIC
// headroom on encrypted links.
const (
	minTxOctets = 27
	maxTxOctets = 255
)

// PduTxTimeGet returns the on-air time, in microseconds, to send a PDU
// with the given payload length at the given PHY.
func PduTxTimeGet(payloadLen uint16, mode PhyMode) uint32 {
	t := timingTable[mode]
	return t.headerUsec + uint32(payloadLen)*t.usecPerByte
}

// PduMaxTxOctetsGet returns the largest payload length, in bytes, that
// fits within usecs of on-air time at the given PHY, clamped to
// [minTxOctets, maxTxOctets]. It caps a connection's effective max TX
// octets to what its current event length and PHY can actually carry.
func PduMaxTxOctetsGet(usecs uint32, mode PhyMode) uint16 {
	t := timingTable[mode]
	if usecs <= t.headerUsec {
		return minTxOctets
	}
	octets := (usecs - t.headerUsec) / t.usecPerByte
	if octets < minTxOctets {
		return minTxOctets
	}
	if octets > maxTxOctets {
		return maxTxOctets
	}
	return uint16(octets)
}
