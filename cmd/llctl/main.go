// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

// Command llctl runs the BLE link layer controller against a simulated
// PHY and bridges its edges to MQTT: received frames and host ACL data
// come in over topics, HCI events, advertising reports, and statistics
// snapshots go out. This makes the controller observable and scriptable
// without radio hardware, in the same gateway mold as a packet-radio
// MQTT bridge.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"

	ble "github.com/tve/ble-ll"
	"github.com/tve/ble-ll/substate"
)

type LogPrintf func(format string, v ...interface{})

type Config struct {
	Debug    bool
	Mqtt     MqttConfig
	LL       LLConfig
	HwErrPin HwErrPinConfig `toml:"hwerr_pin"`
}

type MqttConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Prefix   string
}

type LLConfig struct {
	PublicAddr string `toml:"public_addr"`
	TxPower    int    `toml:"tx_power"`
	NumAclPkts uint8  `toml:"num_acl_pkts"`
	AclPktSize uint16 `toml:"acl_pkt_size"`
	RtPriority int    `toml:"rt_priority"`
	StatsSecs  int    `toml:"stats_secs"`

	DataLenExt   bool `toml:"data_len_ext"`
	ConnParamReq bool `toml:"conn_param_req"`
	SlaveInit    bool `toml:"slave_init"`
	Encryption   bool
	Privacy      bool
	Ping         bool
	ExtAdv       bool `toml:"ext_adv"`
	Csa2         bool
	Phy2M        bool `toml:"phy_2m"`
	PhyCoded     bool `toml:"phy_coded"`
}

type HwErrPinConfig struct {
	Pin     string
	UseEmbd bool `toml:"use_embd"`
}

// mqttHCI carries controller-to-host HCI events over MQTT.
type mqttHCI struct {
	mq     *mq
	topic  string
	events uint32
}

func (h *mqttHCI) Init() {}

func (h *mqttHCI) SendEvent(ev []byte) error {
	h.events++
	h.mq.Publish(h.topic, map[string]string{"event": hex.EncodeToString(ev)})
	return nil
}

func parseAddr(s string) (ble.Addr, error) {
	var addr ble.Addr
	if s == "" {
		return addr, nil
	}
	hw, err := net.ParseMAC(s)
	if err != nil || len(hw) != ble.AddrLen {
		return addr, fmt.Errorf("bad device address %q", s)
	}
	// The air format stores the address LSB first.
	for i := 0; i < ble.AddrLen; i++ {
		addr[i] = hw[ble.AddrLen-1-i]
	}
	return addr, nil
}

func main() {
	configFile := flag.String("config", "llctl.toml", "path to config file")
	flag.Parse()

	config := &Config{}
	rawConfig, err := ioutil.ReadFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot access config file: %s\n", err)
		os.Exit(1)
	}
	if err = toml.Unmarshal(rawConfig, config); err != nil {
		fmt.Fprintf(os.Stderr, "Cannot parse config file: %s\n", err)
		os.Exit(1)
	}

	log := logrus.New()
	if config.Debug {
		log.SetLevel(logrus.DebugLevel)
	}
	logger := LogPrintf(log.Debugf)

	mq, err := newMQ(config.Mqtt, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to MQTT broker: %s\n", err)
		os.Exit(2)
	}
	prefix := config.Mqtt.Prefix
	if prefix == "" {
		prefix = "ble"
	}

	pubAddr, err := parseAddr(config.LL.PublicAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}

	phy := NewSimPHY(logger)
	hci := &mqttHCI{mq: mq, topic: prefix + "/hci/event"}
	ll := ble.NewLL(ble.Config{
		PHY:          phy,
		HCI:          hci,
		LogPrintf:    logger,
		PublicAddr:   pubAddr,
		NumACLPkts:   config.LL.NumAclPkts,
		ACLPktSize:   config.LL.AclPktSize,
		TxPowerDBm:   config.LL.TxPower,
		DataLenExt:   config.LL.DataLenExt,
		ConnParamReq: config.LL.ConnParamReq,
		SlaveInit:    config.LL.SlaveInit,
		LEEncryption: config.LL.Encryption,
		LLPrivacy:    config.LL.Privacy,
		LEPing:       config.LL.Ping,
		ExtAdv:       config.LL.ExtAdv,
		CSA2:         config.LL.Csa2,
		LE2MPhy:      config.LL.Phy2M,
		LECodedPhy:   config.LL.PhyCoded,
	})
	phy.Attach(ll)

	adv := substate.NewAdvertiser(ll, substate.LogPrintf(logger))
	scan := substate.NewScanner(ll, substate.LogPrintf(logger))
	initiator := substate.NewInitiator(ll, substate.LogPrintf(logger))
	conn := substate.NewConn(ll, substate.LogPrintf(logger))
	dtm := substate.NewDTM(ll, substate.LogPrintf(logger))
	ll.Adv, ll.Scan, ll.Init, ll.Conn, ll.DTM = adv, scan, initiator, conn, dtm

	if err := watchHwErrPin(config.HwErrPin, ll, logger); err != nil {
		log.Warnf("hardware error pin not watched: %s", err)
	}

	stop := make(chan struct{})
	go func() {
		if err := ll.Run(stop, config.LL.RtPriority); err != nil {
			log.Fatalf("LL task died: %s", err)
		}
	}()

	// Frames from the simulated air interface.
	err = mq.SubscribeBytes(prefix+"/phy/rx", func(b []byte) {
		var msg struct {
			Frame string
			CrcOk *bool `json:"crc_ok"`
			Rssi  int8
		}
		if err := json.Unmarshal(b, &msg); err != nil {
			log.Warnf("bad phy/rx message: %s", err)
			return
		}
		frame, err := hex.DecodeString(msg.Frame)
		if err != nil {
			log.Warnf("bad phy/rx frame hex: %s", err)
			return
		}
		crcOK := msg.CrcOk == nil || *msg.CrcOk
		phy.InjectFrame(frame, crcOK, msg.Rssi)
	})
	if err != nil {
		log.Fatalf("subscribe phy/rx: %s", err)
	}

	// ACL data from the simulated host.
	err = mq.SubscribeBytes(prefix+"/hci/acl", func(b []byte) {
		var msg struct{ Data string }
		if err := json.Unmarshal(b, &msg); err != nil {
			log.Warnf("bad hci/acl message: %s", err)
			return
		}
		data, err := hex.DecodeString(msg.Data)
		if err != nil {
			log.Warnf("bad hci/acl data hex: %s", err)
			return
		}
		ll.AclDataIn(ble.NewHostPDU(data))
	})
	if err != nil {
		log.Fatalf("subscribe hci/acl: %s", err)
	}

	// Control commands.
	err = mq.SubscribeBytes(prefix+"/cmd", func(b []byte) {
		var msg struct{ Cmd string }
		if err := json.Unmarshal(b, &msg); err != nil {
			return
		}
		switch msg.Cmd {
		case "reset":
			if err := ll.Reset(); err != nil {
				log.Warnf("reset: %s", err)
			}
		case "scan_on":
			scan.Enable(false)
		case "scan_active":
			scan.Enable(true)
		case "scan_off":
			scan.Disable()
		case "adv_on":
			adv.Enable(nil, nil, true)
		case "adv_off":
			adv.Disable()
		case "dtm_rx":
			dtm.RxTestStart()
		case "dtm_end":
			mq.Publish(prefix+"/dtm", map[string]uint16{"rx_pkts": dtm.TestEnd()})
		default:
			log.Warnf("unknown command %q", msg.Cmd)
		}
	})
	if err != nil {
		log.Fatalf("subscribe cmd: %s", err)
	}

	// Publish advertising reports as the scanner produces them.
	go func() {
		for rep := range scan.Reports {
			mq.Publish(prefix+"/scan/report", map[string]interface{}{
				"pdu_type":  rep.PduType,
				"addr_type": rep.AddrType,
				"addr":      hex.EncodeToString(rep.Addr[:]),
				"data":      hex.EncodeToString(rep.Data),
				"rssi":      rep.RSSI,
				"channel":   rep.Channel,
				"crc_ok":    rep.CrcOK,
			})
		}
	}()

	// Periodic statistics and state snapshot.
	statsSecs := config.LL.StatsSecs
	if statsSecs <= 0 {
		statsSecs = 10
	}
	lastState := ll.State()
	log.Infof("Controller is ready")
	for {
		time.Sleep(time.Duration(statsSecs) * time.Second)
		if s := ll.State(); s != lastState {
			log.WithFields(logrus.Fields{"from": lastState, "to": s}).Info("state change")
			lastState = s
		}
		snap := ll.Stats.Snapshot()
		snap["hci_events"] = hci.events
		mq.Publish(prefix+"/stats", snap)
		mq.Publish(prefix+"/state", map[string]string{"state": ll.State().String()})
	}
}
