package transport

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// =================================
// Connection defaults
// =================================
const (
	DefaultReconnectDelay    = 1 * time.Second // fixed backoff after an unexpected drop
	DefaultConnectAttempts   = 3
	DefaultConnectRetryDelay = 500 * time.Millisecond
	DefaultConnectTimeout    = 10 * time.Second // bounds each automatic reconnect
)

// =================================
// Clock sync intervals
// =================================
const (
	BLESyncInterval    = 10 * time.Second
	SerialSyncInterval = 60 * time.Second
)

// Options configures a Connection. Zero fields take the defaults above.
type Options struct {
	Name   string
	Logger hclog.Logger
	Events *Events
	// Clock is pushed to the device right after every (re)connect. Nil skips the push.
	Clock Clock

	ReconnectDelay    time.Duration
	ConnectAttempts   int
	ConnectRetryDelay time.Duration
	ConnectTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "link"
	}
	if o.Logger == nil {
		o.Logger = hclog.NewNullLogger()
	}
	if o.Events == nil {
		o.Events = NewEvents()
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.ConnectAttempts <= 0 {
		o.ConnectAttempts = DefaultConnectAttempts
	}
	if o.ConnectRetryDelay <= 0 {
		o.ConnectRetryDelay = DefaultConnectRetryDelay
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	return o
}
