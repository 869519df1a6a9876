// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

import (
	"crypto/rand"
	"sync/atomic"
	"time"
)

// State is the controller's single global operating mode. Exactly one of
// these is active at a time; it selects which sub-state machine receives
// each radio and timer event.
type State uint32

const (
	StateStandby State = iota
	StateAdv
	StateScanning
	StateInitiating
	StateConnection
	StateDTM
)

func (s State) String() string {
	switch s {
	case StateStandby:
		return "standby"
	case StateAdv:
		return "advertising"
	case StateScanning:
		return "scanning"
	case StateInitiating:
		return "initiating"
	case StateConnection:
		return "connection"
	case StateDTM:
		return "dtm"
	default:
		return "unknown"
	}
}

// LE feature mask bits (Core spec Vol 6, Part B, 4.6). The controller
// always asserts extended reject; the rest depend on how it was built.
const (
	FeatLEEncryption uint32 = 1 << 0
	FeatConnParamReq uint32 = 1 << 1
	FeatExtendedRej  uint32 = 1 << 2
	FeatSlaveInit    uint32 = 1 << 3
	FeatLEPing       uint32 = 1 << 4
	FeatDataLenExt   uint32 = 1 << 5
	FeatLLPrivacy    uint32 = 1 << 6
	FeatExtScanFilt  uint32 = 1 << 7
	FeatLE2MPhy      uint32 = 1 << 8
	FeatLECodedPhy   uint32 = 1 << 11
	FeatExtAdv       uint32 = 1 << 12
	FeatCSA2         uint32 = 1 << 14
)

// supportedStates is the 42-bit LE supported-states mask reported to the
// host, every state/role combination bit set. The value is a wire-visible
// constant, deliberately not derived from which sub-state handlers are
// wired in: the mask includes combinations kept for host compatibility
// regardless of build configuration.
const supportedStates uint64 = 0x3ffffffffff

// Config carries everything NewLL needs: the collaborators the core
// dispatches to, the host flow-control values advertised over HCI, and
// the feature knobs that select which LE feature bits the controller
// asserts.
type Config struct {
	PHY     PHY
	Pool    MbufPool
	EvQueue EventQueue
	HCI     HCITransport
	Sched   Scheduler
	WL      Whitelist
	RL      ResolvList

	Adv  AdvHandler
	Scan ScanHandler
	Init InitHandler
	Conn ConnHandler
	DTM  DTMHandler

	LogPrintf func(format string, v ...interface{})

	// PublicAddr is the controller's public device address. Left zero,
	// HWPublicAddr (hardware OTP) is consulted instead.
	PublicAddr   Addr
	HWPublicAddr func() (Addr, error)

	// Host flow control values reported by HCI read-buffer-size.
	NumACLPkts uint8
	ACLPktSize uint16

	// TxPowerDBm is applied to the PHY when the LL task starts.
	TxPowerDBm int

	// RFClkStop, when non-nil, is called at the end of a software reset
	// to stop a managed RF clock; XtalSettle is how long that clock
	// needs to settle after a restart, for schedulers that plan radio
	// events around a stopped clock.
	RFClkStop  func()
	XtalSettle time.Duration

	// Feature selection.
	DataLenExt   bool
	ConnParamReq bool
	SlaveInit    bool
	LEEncryption bool
	LLPrivacy    bool
	LEPing       bool
	ExtAdv       bool
	CSA2         bool
	LE2MPhy      bool
	LECodedPhy   bool
}

// LL is the link layer dispatch engine: the global state word, the
// interrupt-to-task packet path, and the reset/init/hardware-error
// machinery. It holds no advertising, scanning, connection, or HCI
// command parsing logic itself; those are the registered sub-state
// handlers and the transport wired in through Config.
type LL struct {
	state uint32 // State, accessed only via atomic ops

	devAddr    Addr
	randomAddr Addr

	prefTxPhys uint8
	prefRxPhys uint8

	numACLPkts uint8
	aclPktSize uint16

	phy   PHY
	pool  MbufPool
	evq   EventQueue
	hci   HCITransport
	sched Scheduler
	wl    Whitelist
	rl    ResolvList

	rxQ pktQueue
	txQ pktQueue

	rxEvent           *Event
	txEvent           *Event
	dbufOverflowEvent *Event
	compPktEvent      *Event

	wfr   *Callout
	hwerr *Callout

	Stats Stats
	log   func(format string, v ...interface{})

	Adv  AdvHandler
	Scan ScanHandler
	Init InitHandler
	Conn ConnHandler
	DTM  DTMHandler

	txPowerDBm int
	rfclkStop  func()
	xtalSettle time.Duration

	featureMask uint32
}

// XtalSettleTime returns the configured RF clock settling time, zero
// when no managed clock was configured.
func (ll *LL) XtalSettleTime() time.Duration { return ll.xtalSettle }

func noopLog(string, ...interface{}) {}

// NewLL constructs an LL in StateStandby with its feature mask assembled
// from cfg. It does not start the LL task; call Run for that once the
// caller has finished wiring up collaborators.
func NewLL(cfg Config) *LL {
	ll := &LL{
		phy:        cfg.PHY,
		pool:       cfg.Pool,
		evq:        cfg.EvQueue,
		hci:        cfg.HCI,
		sched:      cfg.Sched,
		wl:         cfg.WL,
		rl:         cfg.RL,
		log:        cfg.LogPrintf,
		Adv:        cfg.Adv,
		Scan:       cfg.Scan,
		Init:       cfg.Init,
		Conn:       cfg.Conn,
		DTM:        cfg.DTM,
		numACLPkts: cfg.NumACLPkts,
		aclPktSize: cfg.ACLPktSize,
		txPowerDBm: cfg.TxPowerDBm,
		rfclkStop:  cfg.RFClkStop,
		xtalSettle: cfg.XtalSettle,
	}
	if ll.log == nil {
		ll.log = noopLog
	}
	if ll.evq == nil {
		ll.evq = NewEventQueue(32)
	}
	if ll.pool == nil {
		ll.pool = &FixedPool{BlockSize: 292}
	}

	addr := cfg.PublicAddr
	if addr.IsZero() && cfg.HWPublicAddr != nil {
		if hwAddr, err := cfg.HWPublicAddr(); err == nil {
			addr = hwAddr
		}
	}
	ll.setDevAddr(addr)

	ll.rxEvent = &Event{Run: ll.rxPktIn}
	ll.txEvent = &Event{Run: ll.txPktIn}
	ll.dbufOverflowEvent = &Event{Run: ll.eventDbufOverflow}
	ll.compPktEvent = &Event{Run: ll.eventCompPkts}
	ll.wfr = NewCallout(ll.evq, ll.wfrExpired)
	ll.hwerr = NewCallout(ll.evq, ll.hwErrTimerCb)

	ll.SetState(StateStandby)
	ll.featureMask = assembleFeatures(cfg)

	if ll.hci != nil {
		ll.hci.Init()
	}
	if ll.sched != nil {
		ll.sched.Init()
	}
	return ll
}

// assembleFeatures builds the LE feature mask from the build knobs.
// Privacy support implies the extended scan filter policies.
func assembleFeatures(cfg Config) uint32 {
	features := FeatExtendedRej
	if cfg.DataLenExt {
		features |= FeatDataLenExt
	}
	if cfg.ConnParamReq {
		features |= FeatConnParamReq
	}
	if cfg.SlaveInit {
		features |= FeatSlaveInit
	}
	if cfg.LEEncryption {
		features |= FeatLEEncryption
	}
	if cfg.LLPrivacy {
		features |= FeatLLPrivacy | FeatExtScanFilt
	}
	if cfg.LEPing {
		features |= FeatLEPing
	}
	if cfg.ExtAdv {
		features |= FeatExtAdv
	}
	if cfg.CSA2 {
		features |= FeatCSA2
	}
	if cfg.LE2MPhy {
		features |= FeatLE2MPhy
	}
	if cfg.LECodedPhy {
		features |= FeatLECodedPhy
	}
	return features
}

// State returns the controller's current operating state. Safe to call
// from any context.
func (ll *LL) State() State { return State(atomic.LoadUint32(&ll.state)) }

// SetState writes the controller's operating state. Callable from
// interrupt and task context alike; the transition is a single atomic
// store.
func (ll *LL) SetState(s State) { atomic.StoreUint32(&ll.state, uint32(s)) }

func (ll *LL) setDevAddr(addr Addr) {
	ll.devAddr = addr
	publicAddr = addr
}

// DevAddr returns the controller's public device address.
func (ll *LL) DevAddr() Addr { return ll.devAddr }

// RandomAddr returns the currently assigned random device address, the
// zero address if none has been assigned since the last reset.
func (ll *LL) RandomAddr() Addr { return ll.randomAddr }

// SetPreferredPhys records the host's preferred TX and RX PHY masks
// (the LE set-default-PHY command). Both are zeroed by Reset.
func (ll *LL) SetPreferredPhys(tx, rx uint8) {
	ll.prefTxPhys = tx
	ll.prefRxPhys = rx
}

// PreferredPhys returns the host's preferred TX and RX PHY masks.
func (ll *LL) PreferredPhys() (tx, rx uint8) {
	return ll.prefTxPhys, ll.prefRxPhys
}

// ACLBufInfo returns the flow-control values the HCI read-buffer-size
// command reports: ACL packet size and the number the host may have in
// flight.
func (ll *LL) ACLBufInfo() (pktSize uint16, numPkts uint8) {
	return ll.aclPktSize, ll.numACLPkts
}

// FeatureMask returns the assembled LE feature mask.
func (ll *LL) FeatureMask() uint32 { return ll.featureMask }

// SupportedStates returns the 42-bit LE supported-states mask in the low
// bits of the returned value.
func (ll *LL) SupportedStates() uint64 { return supportedStates }

// connCreateInProgress, ScanEnabled, and AdvEnabled ask the registered
// sub-state handlers whether they are in the corresponding activity,
// treating an unregistered handler as idle so the core can run (e.g. in
// tests) without every sub-state wired in.
func (ll *LL) connCreateInProgress() bool {
	return ll.Init != nil && ll.Init.ConnCreateInProgress()
}

func (ll *LL) ScanEnabled() bool {
	return ll.Scan != nil && ll.Scan.Enabled()
}

func (ll *LL) AdvEnabled() bool {
	return ll.Adv != nil && ll.Adv.Enabled()
}

// Rand fills b with cryptographically random bytes. There is no seeded
// PRNG anywhere in the controller; every randomness consumer draws from
// the system RNG through here.
func (ll *LL) Rand(b []byte) {
	if _, err := rand.Read(b); err != nil {
		panic("ble: system RNG unavailable: " + err.Error())
	}
}

// handlerForState returns the StateHandler registered for s, or nil.
func (ll *LL) handlerForState(s State) StateHandler {
	switch s {
	case StateAdv:
		if ll.Adv != nil {
			return ll.Adv
		}
	case StateScanning:
		if ll.Scan != nil {
			return ll.Scan
		}
	case StateInitiating:
		if ll.Init != nil {
			return ll.Init
		}
	case StateConnection:
		if ll.Conn != nil {
			return ll.Conn
		}
	case StateDTM:
		if ll.DTM != nil {
			return ll.DTM
		}
	}
	return nil
}
