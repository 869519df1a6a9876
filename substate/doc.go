// Copyright (c) 2018 by Thorsten von Eicken, see LICENSE file for details

// Package substate provides the five per-state handlers the ble core
// dispatches to: advertiser, scanner, initiator, connection, and direct
// test mode. They implement the ble.StateHandler contract end-to-end
// (ISR callbacks, task-side packet input, wait-for-response expiry,
// reset) with deliberately small protocol engines behind them; a
// full-featured controller substitutes its own implementations for the
// states it cares about.
package substate

// LogPrintf is the logging hook every handler accepts; leave nil for no
// logging.
type LogPrintf func(format string, v ...interface{})

func noopLog(string, ...interface{}) {}
