// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

package main

import (
	"fmt"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/chip"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/host"

	ble "github.com/tve/ble-ll"
)

// watchHwErrPin watches a radio fault line and reports a hardware error
// to the controller on every falling edge. The periph library is used
// unless the configuration selects the embd shim (use_embd) for boards
// periph does not support.
func watchHwErrPin(cfg HwErrPinConfig, ll *ble.LL, logger LogPrintf) error {
	if cfg.Pin == "" {
		return nil
	}
	if cfg.UseEmbd {
		return watchEmbd(cfg.Pin, ll, logger)
	}
	return watchPeriph(cfg.Pin, ll, logger)
}

func watchPeriph(name string, ll *ble.LL, logger LogPrintf) error {
	if _, err := host.Init(); err != nil {
		return err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return fmt.Errorf("cannot open pin %s", name)
	}
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return err
	}
	go func() {
		for {
			if pin.WaitForEdge(-1) {
				logger("hwerr: fault edge on %s", name)
				ll.HwError()
			}
		}
	}()
	return nil
}

func watchEmbd(name string, ll *ble.LL, logger LogPrintf) error {
	if err := embd.InitGPIO(); err != nil {
		return err
	}
	pin, err := embd.NewDigitalPin(name)
	if err != nil {
		return err
	}
	if err := pin.SetDirection(embd.In); err != nil {
		return err
	}
	edge := make(chan struct{}, 1)
	err = pin.Watch(embd.EdgeFalling, func(embd.DigitalPin) {
		select {
		case edge <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	go func() {
		for range edge {
			logger("hwerr: fault edge on %s", name)
			ll.HwError()
			// Debounce a glitchy fault line.
			time.Sleep(10 * time.Millisecond)
		}
	}()
	return nil
}
