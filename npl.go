// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package ble

import (
	"sync"
	"time"
)

// Event is a unit of work posted to an EventQueue: a callback, reusable
// across posts.
type Event struct {
	Run func()
}

// EventQueue is the queue the LL task blocks on: ISR-safe Put,
// single-consumer blocking Get. The core creates exactly one instance
// unless the caller supplies its own.
type EventQueue interface {
	Put(ev *Event)
	Get(timeout time.Duration) *Event // timeout <= 0 means block forever
}

// chanEventQueue is a channel-backed EventQueue. A buffered channel gives
// ISR producers a non-blocking Put without needing their own queueing
// discipline; the LL task is the sole consumer.
type chanEventQueue struct {
	ch chan *Event
}

// NewEventQueue returns an in-process EventQueue with room for backlog
// pending events; once that many are pending, Put runs further events
// inline on the caller instead of queueing them (so size this generously
// relative to expected burst rates).
func NewEventQueue(backlog int) EventQueue {
	return &chanEventQueue{ch: make(chan *Event, backlog)}
}

func (q *chanEventQueue) Put(ev *Event) {
	select {
	case q.ch <- ev:
	default:
		// Queue full: run synchronously from the caller rather than drop the
		// event outright, since every posted event here corresponds to real
		// controller work (an RX/TX packet, a buffer-overflow or
		// completed-packets report, a timer expiry).
		ev.Run()
	}
}

func (q *chanEventQueue) Get(timeout time.Duration) *Event {
	if timeout <= 0 {
		return <-q.ch
	}
	select {
	case ev := <-q.ch:
		return ev
	case <-time.After(timeout):
		return nil
	}
}

// Callout is a deferred, reschedulable single-shot timer that posts its
// callback to the owning EventQueue rather than running it on the timer's
// own goroutine, so it runs wherever that queue runs events: on the
// consumer (the LL task), or inline on the timer goroutine when a
// chanEventQueue is full. ISRs may Reset it.
type Callout struct {
	mu     sync.Mutex
	timer  *time.Timer
	evq    EventQueue
	ev     *Event
	active bool
}

// NewCallout creates a callout bound to evq that runs fn when it fires.
func NewCallout(evq EventQueue, fn func()) *Callout {
	c := &Callout{evq: evq}
	c.ev = &Event{Run: fn}
	return c
}

// Reset (re)schedules the callout to fire after d. Safe to call from an ISR.
func (c *Callout) Reset(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.active = true
	c.timer = time.AfterFunc(d, func() { c.evq.Put(c.ev) })
}

// Stop cancels a pending firing, if any.
func (c *Callout) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.active = false
}

// CritSection models "interrupt disable": a region during which the radio
// and scheduler ISRs must not concurrently mutate the guarded resource.
// On this platform there is no real interrupt controller to mask, so it is
// backed by a mutex; the name is kept because the discipline it encodes
// (insert-under-critical-section in the ISR, remove-under-critical-section
// in the task) is the invariant that matters, not the mechanism.
type CritSection struct {
	mu sync.Mutex
}

func (c *CritSection) Enter() { c.mu.Lock() }
func (c *CritSection) Exit()  { c.mu.Unlock() }
