// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

// PhyMode identifies one of the four over-the-air PHYs the timing model
// and the PHY driver interface need to distinguish.
type PhyMode uint8

const (
	Phy1M PhyMode = iota
	Phy2M
	PhyCoded125k // S=8 coding, the long-range floor rate
	PhyCoded500k // S=2 coding
)

func (m PhyMode) String() string {
	switch m {
	case Phy1M:
		return "1M"
	case Phy2M:
		return "2M"
	case PhyCoded125k:
		return "Coded S=8"
	case PhyCoded500k:
		return "Coded S=2"
	default:
		return "unknown"
	}
}

// PHY is the transceiver driver collaborator. The core calls down through
// this interface and expects the driver to call back up into RxStart,
// RxEnd, and HwError from whatever interrupt context the hardware
// delivers. A concrete
// implementation lives outside this package (cmd/llctl carries a
// simulated one); the core depends only on this interface.
type PHY interface {
	// Init (re)initializes the transceiver. Called once from the LL
	// task before the event loop starts and again at the end of every
	// software reset.
	Init() error
	// Disable aborts whatever TX or RX is in progress.
	Disable()
	// TxPowerSet sets the transmit power in dBm.
	TxPowerSet(dbm int) error
	// SetMode configures the PHY for the given air rate.
	SetMode(mode PhyMode) error
	// SetChannel tunes to the given data/advertising channel index.
	SetChannel(channel uint8) error
	// Transmit starts sending pdu's bytes, header byte first, at the
	// access address aa.
	Transmit(aa uint32, pdu *PDU) error
	// SetRx arms the receiver for the access address aa.
	SetRx(aa uint32) error
	// RxStarted reports whether the PHY is currently in the middle of
	// receiving a frame (preamble/access-address already matched). The
	// wait-for-response expiry consults this to decide whether an
	// in-flight reception should be left to resolve itself via RxEnd
	// instead of being treated as a timeout.
	RxStarted() bool
	// AccessAddr returns the access address of the frame currently
	// being received or transmitted.
	AccessAddr() uint32
	// XcvrState returns an opaque driver-specific transceiver state
	// byte, reported in wait-for-response logging only.
	XcvrState() uint8
}

// Scheduler is the slice of the schedule module the core drives during
// reset: stop all scheduled radio events, then re-initialize the
// scheduler's own state.
type Scheduler interface {
	Stop()
	Init()
}

// Whitelist is the slice of the whitelist module the core drives during
// reset.
type Whitelist interface {
	Clear()
}

// ResolvList is the slice of the resolving-list module the core drives
// during reset; only wired when the controller is built with privacy
// support.
type ResolvList interface {
	Reset()
}
