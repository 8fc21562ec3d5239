package transport

import "context"

// Driver is the write primitive of an open link.
type Driver interface {
	// WriteLimit is the largest single write the link accepts, header included.
	WriteLimit() int
	// Write sends one frame on the data channel. It returns once the peer
	// acknowledged the write when the link supports response-mode writes.
	Write(ctx context.Context, data []byte) error
	// WriteSync writes to the clock channel. An empty write terminates a sync message.
	WriteSync(ctx context.Context, data []byte) error
}

// Link is an open connection to one device.
type Link interface {
	Driver
	// Dropped is closed once the link is gone, whether it dropped or Close was called.
	Dropped() <-chan struct{}
	Close() error
}

// Peer identifies a device found by a scan.
type Peer struct {
	Address string
	Name    string
}

// Adapter discovers and opens links for one transport.
type Adapter interface {
	// Scan blocks until a device is selected.
	Scan(ctx context.Context) (Peer, error)
	Dial(ctx context.Context, peer Peer) (Link, error)
}

// Clock supplies the logical time pushed to devices.
type Clock interface {
	Millis() int64
}
