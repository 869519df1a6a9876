// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mq is a handle onto an MQTT broker connection. It isolates the rest of
// the program from the paho client and de-duplicates messages we
// published ourselves so a subscription on the same topic does not see
// its own traffic echoed back.
type mq struct {
	conn    mqtt.Client
	dedupMu sync.Mutex
	dedup   map[uint64]time.Time
}

// newMQ connects to a broker and returns a new mq object. The client's
// default auto-reconnect re-establishes the connection after a
// disconnect; subscriptions are not renewed on reconnect.
func newMQ(conf MqttConfig, debug LogPrintf) (*mq, error) {
	if debug != nil {
		debug("Configuring MQTT: %s:%d", conf.Host, conf.Port)
	}
	mqtt.ERROR = log.New(os.Stderr, "", 0)
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", conf.Host, conf.Port))
	opts.ClientID = "llctl"
	opts.Username = conf.User
	opts.Password = conf.Password

	mqConn := mqtt.NewClient(opts)
	if token := mqConn.Connect(); !token.WaitTimeout(10 * time.Second) {
		return nil, token.Error()
	}
	mq := &mq{conn: mqConn, dedup: make(map[uint64]time.Time)}
	go mq.gc()

	log.Printf("MQTT connected")
	return mq, nil
}

// gc is an endless loop that removes de-duplication IDs older than a few
// minutes, evidently ones nothing subscribed to.
func (mq *mq) gc() {
	for {
		time.Sleep(time.Minute)
		mq.dedupMu.Lock()
		if mq.dedup == nil {
			mq.dedupMu.Unlock()
			return
		}
		tooOld := time.Now().Add(-10 * time.Minute)
		for h, t := range mq.dedup {
			if t.Before(tooOld) {
				delete(mq.dedup, h)
			}
		}
		mq.dedupMu.Unlock()
	}
}

// Publish JSON-encodes payload and publishes it, remembering the message
// hash so SubscribeBytes can skip our own echo.
func (mq *mq) Publish(topic string, payload interface{}) {
	jsonPayload, _ := json.Marshal(payload)
	mq.conn.Publish(topic, 1, false, jsonPayload)
	mq.dedupMu.Lock()
	mq.dedup[hashMessage(topic, string(jsonPayload))] = time.Now()
	mq.dedupMu.Unlock()
}

// SubscribeBytes subscribes to a topic and delivers each payload that we
// did not publish ourselves to handler.
func (mq *mq) SubscribeBytes(topic string, handler func([]byte)) error {
	cb := func(c mqtt.Client, m mqtt.Message) {
		payload := m.Payload()
		hash := hashMessage(topic, string(payload))
		mq.dedupMu.Lock()
		_, dup := mq.dedup[hash]
		delete(mq.dedup, hash)
		mq.dedupMu.Unlock()
		if dup {
			return
		}
		handler(payload)
	}
	if token := mq.conn.Subscribe(topic, 1, cb); !token.WaitTimeout(2 * time.Second) {
		return token.Error()
	}
	return nil
}

func hashMessage(topic, payload string) uint64 {
	h := fnv.New64()
	h.Write([]byte(topic))
	h.Write([]byte{0})
	h.Write([]byte(payload))
	return h.Sum64()
}
