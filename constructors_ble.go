//go:build ble

package tangle

import (
	"github.com/ystepanoff/tangle/driver/ble"
	"github.com/ystepanoff/tangle/transport"
)

// NewBLEDevice returns a Device talking to the first controller found over Bluetooth LE.
func NewBLEDevice(namePrefix string, writeLimit int, opts Options) (*Device, error) {
	adapter, err := ble.NewAdapter(ble.Options{NamePrefix: namePrefix, WriteLimit: writeLimit, Logger: opts.Logger})
	if err != nil {
		return nil, err
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = transport.BLESyncInterval
	}
	return NewDevice(adapter, opts), nil
}
