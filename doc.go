// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

// Package ble implements the core dispatch engine of a Bluetooth Low Energy
// Link Layer controller: the global ll_state machine, the interrupt-to-task
// packet path, receive-time PDU classification and length validation,
// wait-for-response routing, hardware-error recovery, the reset sequence,
// and the PHY-mode timing arithmetic shared by the advertiser, scanner,
// initiator, connection, and direct-test-mode sub-state machines.
//
// The advertiser, scanner, initiator, connection, and DTM sub-state
// machines themselves, the whitelist and resolving-list, the scheduler,
// the HCI command/event parser, and the PHY driver are all external
// collaborators: this package only calls the operations they expose and
// invokes the callbacks it expects them to register.
package ble
