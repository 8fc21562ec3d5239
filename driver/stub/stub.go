// Package stub provides an in-memory transport whose far end emulates a
// device: frames are reassembled into payloads and clock syncs are decoded.
package stub

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	proto "github.com/ystepanoff/tangle/protocol"
	"github.com/ystepanoff/tangle/transport"
)

const DefaultWriteLimit = 512

var (
	ErrClosed   = errors.New("stub link closed")
	ErrInjected = errors.New("injected failure")
)

// Device is the emulated peer. It outlives the links dialled to it.
type Device struct {
	name    string
	address string
	limit   int
	logger  hclog.Logger

	mu         sync.Mutex
	asm        proto.Assembler
	payloads   ringBuffer
	frames     int
	syncBuf    []byte
	clock      int64
	syncs      int
	failWrites int
	failDials  int
	latency    time.Duration
	link       *Link
}

// NewDevice returns a device accepting writes of up to writeLimit bytes.
func NewDevice(address string, writeLimit int, logger hclog.Logger) *Device {
	if writeLimit <= 0 {
		writeLimit = DefaultWriteLimit
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Device{
		name:    "stub",
		address: address,
		limit:   writeLimit,
		logger:  logger.Named("stub"),
	}
}

// Payloads returns the most recent completed payloads, oldest first.
func (d *Device) Payloads() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.payloads.snapshot()
}

// Frames returns the number of frames accepted so far.
func (d *Device) Frames() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames
}

// Clock returns the last synced clock and the number of completed syncs.
func (d *Device) Clock() (int64, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock, d.syncs
}

// FailWrites makes the next n frame writes fail.
func (d *Device) FailWrites(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrites = n
}

// FailDials makes the next n dials fail.
func (d *Device) FailDials(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failDials = n
}

// SetLatency delays every frame write.
func (d *Device) SetLatency(latency time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latency = latency
}

// Drop severs the current link as if the radio went out of range.
func (d *Device) Drop() {
	d.mu.Lock()
	link := d.link
	d.link = nil
	d.mu.Unlock()
	if link != nil {
		d.logger.Debug("link dropped")
		link.close()
	}
}

func (d *Device) receive(data []byte) error {
	f, err := proto.DecodeFrame(data)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWrites > 0 {
		d.failWrites--
		return ErrInjected
	}
	d.frames++
	payload, done, err := d.asm.Push(f)
	if err != nil {
		d.logger.Warn("frame rejected", "transfer", f.TransferID, "offset", f.Offset, "error", err)
		return err
	}
	if done {
		d.payloads.push(payload)
		d.logger.Debug("payload received", "bytes", len(payload), "flag", fmt.Sprintf("%#02x", payload[0]))
	}
	return nil
}

func (d *Device) receiveSync(data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(data) > 0 {
		d.syncBuf = append(d.syncBuf[:0], data...)
		return
	}
	if len(d.syncBuf) == proto.TimestampSize {
		d.clock = int64(int32(binary.LittleEndian.Uint32(d.syncBuf)))
		d.syncs++
		d.logger.Trace("clock synced", "clock", d.clock)
	}
	d.syncBuf = d.syncBuf[:0]
}

// Adapter dials links to a single Device.
type Adapter struct {
	dev *Device
}

func NewAdapter(dev *Device) *Adapter { return &Adapter{dev: dev} }

func (a *Adapter) Scan(ctx context.Context) (transport.Peer, error) {
	if err := ctx.Err(); err != nil {
		return transport.Peer{}, err
	}
	return transport.Peer{Address: a.dev.address, Name: a.dev.name}, nil
}

func (a *Adapter) Dial(ctx context.Context, peer transport.Peer) (transport.Link, error) {
	d := a.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failDials > 0 {
		d.failDials--
		return nil, fmt.Errorf("dial %s: %w", peer.Address, ErrInjected)
	}
	d.asm.Reset()
	d.link = &Link{dev: d, dropped: make(chan struct{})}
	return d.link, nil
}

// Link is one connection to a Device.
type Link struct {
	dev     *Device
	dropped chan struct{}
	once    sync.Once
}

func (l *Link) WriteLimit() int { return l.dev.limit }

func (l *Link) Write(ctx context.Context, data []byte) error {
	if len(data) > l.dev.limit {
		return fmt.Errorf("write of %d bytes exceeds limit %d", len(data), l.dev.limit)
	}
	l.dev.mu.Lock()
	latency := l.dev.latency
	l.dev.mu.Unlock()
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		case <-l.dropped:
			return ErrClosed
		}
	}
	if l.isClosed() {
		return ErrClosed
	}
	return l.dev.receive(data)
}

func (l *Link) WriteSync(ctx context.Context, data []byte) error {
	if l.isClosed() {
		return ErrClosed
	}
	l.dev.receiveSync(data)
	return nil
}

func (l *Link) Dropped() <-chan struct{} { return l.dropped }

func (l *Link) Close() error {
	l.dev.mu.Lock()
	if l.dev.link == l {
		l.dev.link = nil
	}
	l.dev.mu.Unlock()
	l.close()
	return nil
}

func (l *Link) close() { l.once.Do(func() { close(l.dropped) }) }

func (l *Link) isClosed() bool {
	select {
	case <-l.dropped:
		return true
	default:
		return false
	}
}
