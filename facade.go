// Package tangle controls Tangle lighting controllers from a host.
//
// A Device compiles TNGL programs and delivers them, together with timeline,
// event and firmware traffic, over one transport connection while keeping the
// controller's clock in sync.
package tangle

import (
	"github.com/ystepanoff/tangle/ota"
	"github.com/ystepanoff/tangle/tngl"
	"github.com/ystepanoff/tangle/transport"
)

// The constructors are split into build-tag specific files:
// - constructors_host.go - stub and serial links
// - constructors_ble.go - Bluetooth LE (//go:build ble)

type (
	State     = transport.State
	Event     = transport.Event
	EventType = transport.EventType
	Handler   = transport.Handler
	Peer      = transport.Peer
)

const (
	EventConnected    = transport.EventConnected
	EventDisconnected = transport.EventDisconnected

	StateDisconnected = transport.StateDisconnected
	StateConnected    = transport.StateConnected
)

var (
	ErrNotConnected     = transport.ErrNotConnected
	ErrTransferAborted  = transport.ErrTransferAborted
	ErrUpdateInProgress = ota.ErrUpdateInProgress
	ErrNakedNumber      = tngl.ErrNakedNumber
)
