package tangle

import (
	"github.com/ystepanoff/tangle/driver/serial"
	"github.com/ystepanoff/tangle/driver/stub"
	"github.com/ystepanoff/tangle/transport"
)

// NewStubDevice returns a Device wired to an emulated controller.
func NewStubDevice(writeLimit int, opts Options) (*Device, *stub.Device) {
	dev := stub.NewDevice("stub-0", writeLimit, opts.Logger)
	return NewDevice(stub.NewAdapter(dev), opts), dev
}

// NewSerialDevice returns a Device talking to a controller on a tty.
// An empty port picks the first USB serial device.
func NewSerialDevice(port string, writeLimit int, opts Options) *Device {
	adapter := serial.NewAdapter(serial.Options{Port: port, WriteLimit: writeLimit, Logger: opts.Logger})
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = transport.SerialSyncInterval
	}
	return NewDevice(adapter, opts)
}
