package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// State is the lifecycle state of a Connection.
type State int

const (
	StateDisconnected State = iota
	StateScanning
	StateConnecting
	StateConnected
	StateReconnecting
)

var stateNames = [...]string{"disconnected", "scanning", "connecting", "connected", "reconnecting"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Connection drives one Adapter through scan, dial, connected and
// automatic reconnection. It owns a Transmitter that stays the same instance
// across reconnects and is attached only while connected.
type Connection struct {
	adapter Adapter
	opts    Options
	logger  hclog.Logger
	tx      *Transmitter

	mu    sync.Mutex
	state State
	peer  *Peer // last selected device, reused by reconnects
	link  Link
	gen   uint64 // bumped by every connect, disconnect and drop
	timer *time.Timer
}

func NewConnection(adapter Adapter, opts Options) *Connection {
	opts = opts.withDefaults()
	logger := opts.Logger.Named(opts.Name)
	return &Connection{
		adapter: adapter,
		opts:    opts,
		logger:  logger,
		tx:      NewTransmitter(logger),
	}
}

// Connect scans for a device and dials it. It is a no-op when already connected.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateDisconnected:
	default:
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	c.cancelReconnectLocked()
	c.gen++
	gen := c.gen
	c.state = StateScanning
	c.mu.Unlock()

	c.logger.Debug("scanning")
	peer, err := c.adapter.Scan(ctx)
	if err != nil {
		c.failed(gen, ReasonConnectFailed)
		return fmt.Errorf("scan: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrConnectCancelled
	}
	c.peer = &peer
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.dial(ctx, peer, gen); err != nil {
		c.failed(gen, ReasonConnectFailed)
		return err
	}
	return nil
}

// Reconnect dials the previously selected device again. It resolves
// immediately when already connected and falls back to Connect when no
// device was ever selected.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateDisconnected:
	default:
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	if c.peer == nil {
		c.mu.Unlock()
		return c.Connect(ctx)
	}
	c.cancelReconnectLocked()
	c.gen++
	gen := c.gen
	peer := *c.peer
	c.state = StateConnecting
	c.mu.Unlock()

	if err := c.dial(ctx, peer, gen); err != nil {
		c.failed(gen, ReasonReconnectFailed)
		return err
	}
	return nil
}

// Disconnect tears down the transmitter, then closes the link and cancels
// any pending automatic reconnect.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	c.cancelReconnectLocked()
	prev := c.state
	c.gen++
	link := c.link
	c.link = nil
	c.tx.detach()
	c.state = StateDisconnected
	c.mu.Unlock()

	var err error
	if link != nil {
		err = link.Close()
	}
	if prev != StateDisconnected {
		c.logger.Info("disconnected", "reason", ReasonUserRequest)
		c.opts.Events.Emit(Event{Type: EventDisconnected, Conn: c, Reason: ReasonUserRequest})
	}
	return err
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Peer returns the last selected device.
func (c *Connection) Peer() (Peer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peer == nil {
		return Peer{}, false
	}
	return *c.peer, true
}

func (c *Connection) Transmitter() *Transmitter { return c.tx }

func (c *Connection) Events() *Events { return c.opts.Events }

// dial tries the peer up to ConnectAttempts times.
func (c *Connection) dial(ctx context.Context, peer Peer, gen uint64) error {
	var err error
	for attempt := 1; attempt <= c.opts.ConnectAttempts; attempt++ {
		var link Link
		link, err = c.adapter.Dial(ctx, peer)
		if err == nil {
			return c.establish(ctx, link, gen)
		}
		c.logger.Warn("dial failed", "peer", peer.Address, "attempt", attempt, "error", err)

		if attempt == c.opts.ConnectAttempts {
			break
		}
		select {
		case <-time.After(c.opts.ConnectRetryDelay):
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrConnectFailed, peer.Address, ctx.Err())
		}
		if c.generation() != gen {
			return ErrConnectCancelled
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrConnectFailed, peer.Address, err)
}

func (c *Connection) establish(ctx context.Context, link Link, gen uint64) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = link.Close()
		return ErrConnectCancelled
	}
	c.link = link
	c.state = StateConnected
	c.tx.attach(link)
	c.mu.Unlock()

	if c.opts.Clock != nil {
		now := c.opts.Clock.Millis()
		if !c.tx.Sync(ctx, now) {
			c.logger.Warn("post-connect clock sync skipped", "clock", now)
		}
	}
	c.tx.resume()

	if c.generation() != gen {
		return ErrConnectCancelled
	}
	c.logger.Info("connected", "peer", c.peerAddress())
	c.opts.Events.Emit(Event{Type: EventConnected, Conn: c})

	// Watching starts after the connected event so a drop is always
	// reported after it.
	go c.watch(link, gen)
	return nil
}

// failed returns a connect attempt of generation gen to disconnected.
func (c *Connection) failed(gen uint64, reason string) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()
	c.logger.Warn("disconnected", "reason", reason)
	c.opts.Events.Emit(Event{Type: EventDisconnected, Conn: c, Reason: reason})
}

// watch waits for link to go away and schedules a reconnect when it
// dropped on its own.
func (c *Connection) watch(link Link, gen uint64) {
	<-link.Dropped()

	c.mu.Lock()
	if c.gen != gen || c.link != link {
		c.mu.Unlock()
		return
	}
	c.gen++
	next := c.gen
	c.tx.detach()
	c.link = nil
	c.state = StateDisconnected
	c.timer = time.AfterFunc(c.opts.ReconnectDelay, func() { c.autoReconnect(next) })
	c.mu.Unlock()

	_ = link.Close()
	c.logger.Warn("disconnected", "reason", ReasonLinkLost, "retry_in", c.opts.ReconnectDelay)
	c.opts.Events.Emit(Event{Type: EventDisconnected, Conn: c, Reason: ReasonLinkLost})
}

func (c *Connection) autoReconnect(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateDisconnected || c.peer == nil {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = StateReconnecting
	peer := *c.peer
	c.mu.Unlock()

	c.logger.Info("reconnecting", "peer", peer.Address)
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()
	if err := c.dial(ctx, peer, gen); err != nil {
		c.logger.Error("reconnect failed", "peer", peer.Address, "error", err)
		c.failed(gen, ReasonReconnectFailed)
	}
}

func (c *Connection) cancelReconnectLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Connection) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Connection) peerAddress() string {
	if p, ok := c.Peer(); ok {
		return p.Address
	}
	return ""
}
