//go:build ble

// Package ble connects to Tangle controllers over Bluetooth LE GATT.
//
// Frames go to the terminal characteristic with write-with-response, so
// Write returns once the controller acknowledged the chunk. Clock syncs go
// to the clock characteristic.
package ble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/ystepanoff/tangle/transport"
	"tinygo.org/x/bluetooth"
)

const DefaultWriteLimit = 512

const (
	ServiceUUID       = "cc540e31-80be-44af-b64a-5d2def886bf5"
	TerminalCharUUID  = "33a0937e-0c61-41ea-b770-007ade2c79fa"
	ClockCharUUID     = "7a1e0e3a-6b9b-49ef-b9b7-65c81b714a19"
	DefaultNamePrefix = "Tangle"
)

var (
	ErrServiceNotFound = errors.New("tangle service not found")
	ErrClosed          = errors.New("ble link closed")
)

type Options struct {
	// NamePrefix filters advertisements that do not carry the service UUID.
	NamePrefix string
	WriteLimit int
	Logger     hclog.Logger
}

type uuids struct {
	service, terminal, clock bluetooth.UUID
}

func parseUUIDs() (uuids, error) {
	var u uuids
	var err error
	if u.service, err = bluetooth.ParseUUID(ServiceUUID); err != nil {
		return u, err
	}
	if u.terminal, err = bluetooth.ParseUUID(TerminalCharUUID); err != nil {
		return u, err
	}
	u.clock, err = bluetooth.ParseUUID(ClockCharUUID)
	return u, err
}

// Adapter scans for and connects to controllers with the system BLE adapter.
type Adapter struct {
	adapter *bluetooth.Adapter
	opts    Options
	ids     uuids
	logger  hclog.Logger

	mu      sync.Mutex
	enabled bool
	links   map[string]*Link // by address, for disconnect notifications
}

func NewAdapter(opts Options) (*Adapter, error) {
	if opts.WriteLimit <= 0 {
		opts.WriteLimit = DefaultWriteLimit
	}
	if opts.NamePrefix == "" {
		opts.NamePrefix = DefaultNamePrefix
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	ids, err := parseUUIDs()
	if err != nil {
		return nil, err
	}
	return &Adapter{
		adapter: bluetooth.DefaultAdapter,
		opts:    opts,
		ids:     ids,
		logger:  opts.Logger.Named("ble"),
		links:   make(map[string]*Link),
	}, nil
}

func (a *Adapter) enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enabled {
		return nil
	}
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("enabling adapter: %w", err)
	}
	a.adapter.SetConnectHandler(a.onConnectChange)
	a.enabled = true
	return nil
}

func (a *Adapter) onConnectChange(device bluetooth.Device, connected bool) {
	if connected {
		return
	}
	addr := device.Address.String()
	a.mu.Lock()
	link := a.links[addr]
	delete(a.links, addr)
	a.mu.Unlock()
	if link != nil {
		a.logger.Debug("peripheral disconnected", "address", addr)
		link.markDropped()
	}
}

// Scan returns the first controller advertising the service or the name prefix.
func (a *Adapter) Scan(ctx context.Context) (transport.Peer, error) {
	if err := a.enable(); err != nil {
		return transport.Peer{}, err
	}

	found := make(chan transport.Peer, 1)
	stop := context.AfterFunc(ctx, func() { a.adapter.StopScan() })
	defer stop()

	a.logger.Debug("scanning", "prefix", a.opts.NamePrefix)
	err := a.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		name := result.LocalName()
		if !result.HasServiceUUID(a.ids.service) && !strings.HasPrefix(name, a.opts.NamePrefix) {
			return
		}
		select {
		case found <- transport.Peer{Address: result.Address.String(), Name: name}:
			adapter.StopScan()
		default:
		}
	})
	if err != nil {
		return transport.Peer{}, fmt.Errorf("scan: %w", err)
	}
	select {
	case peer := <-found:
		a.logger.Info("controller found", "address", peer.Address, "name", peer.Name)
		return peer, nil
	default:
		if ctx.Err() != nil {
			return transport.Peer{}, ctx.Err()
		}
		return transport.Peer{}, ErrServiceNotFound
	}
}

func (a *Adapter) Dial(ctx context.Context, peer transport.Peer) (transport.Link, error) {
	if err := a.enable(); err != nil {
		return nil, err
	}
	var addr bluetooth.Address
	addr.Set(peer.Address)

	device, err := a.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", peer.Address, err)
	}
	link, err := a.discover(device)
	if err != nil {
		_ = device.Disconnect()
		return nil, err
	}
	a.mu.Lock()
	a.links[peer.Address] = link
	a.mu.Unlock()
	return link, nil
}

func (a *Adapter) discover(device bluetooth.Device) (*Link, error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{a.ids.service})
	if err != nil {
		return nil, fmt.Errorf("discovering services: %w", err)
	}
	if len(services) == 0 {
		return nil, ErrServiceNotFound
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{a.ids.terminal, a.ids.clock})
	if err != nil {
		return nil, fmt.Errorf("discovering characteristics: %w", err)
	}

	link := &Link{device: device, limit: a.opts.WriteLimit, dropped: make(chan struct{})}
	for i := range chars {
		switch chars[i].UUID() {
		case a.ids.terminal:
			link.terminal = chars[i]
		case a.ids.clock:
			link.clock = chars[i]
		}
	}
	if link.terminal.UUID() != a.ids.terminal || link.clock.UUID() != a.ids.clock {
		return nil, fmt.Errorf("%w: missing characteristics", ErrServiceNotFound)
	}
	return link, nil
}

// Link is one GATT connection.
type Link struct {
	device   bluetooth.Device
	terminal bluetooth.DeviceCharacteristic
	clock    bluetooth.DeviceCharacteristic
	limit    int

	dropped chan struct{}
	once    sync.Once
}

func (l *Link) WriteLimit() int { return l.limit }

func (l *Link) Write(ctx context.Context, data []byte) error {
	return l.write(ctx, l.terminal, data)
}

func (l *Link) WriteSync(ctx context.Context, data []byte) error {
	return l.write(ctx, l.clock, data)
}

func (l *Link) write(ctx context.Context, char bluetooth.DeviceCharacteristic, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.dropped:
		return ErrClosed
	default:
	}
	if _, err := char.Write(data); err != nil {
		return fmt.Errorf("gatt write: %w", err)
	}
	return nil
}

func (l *Link) Dropped() <-chan struct{} { return l.dropped }

func (l *Link) Close() error {
	err := l.device.Disconnect()
	l.markDropped()
	return err
}

func (l *Link) markDropped() { l.once.Do(func() { close(l.dropped) }) }
