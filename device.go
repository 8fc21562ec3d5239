package tangle

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/ystepanoff/tangle/ota"
	proto "github.com/ystepanoff/tangle/protocol"
	"github.com/ystepanoff/tangle/timeline"
	"github.com/ystepanoff/tangle/tngl"
	"github.com/ystepanoff/tangle/transport"
)

// BroadcastID addresses every controller in the network.
const BroadcastID uint8 = 0xFF

var ErrInvalidColor = errors.New("invalid color")

type Options struct {
	Logger       hclog.Logger
	Transport    transport.Options
	OTA          ota.Options
	SyncInterval time.Duration
	// TimelineIndex selects which controller timeline SetTimeline drives.
	TimelineIndex uint8
}

// Device is one connection to a Tangle network.
type Device struct {
	logger   hclog.Logger
	conn     *transport.Connection
	updater  *ota.Updater
	compiler *tngl.Compiler
	sync     *transport.ClockSync
	clock    *timeline.Timeline // running session clock pushed by clock syncs
	timeline *timeline.Timeline // mirrors the controller's animation timeline
	index    uint8

	mu         sync.Mutex
	stopSyncer context.CancelFunc
}

// NewDevice builds a disconnected Device on top of adapter.
func NewDevice(adapter transport.Adapter, opts Options) *Device {
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	clock := timeline.New(0, false)

	topts := opts.Transport
	topts.Logger = logger
	topts.Clock = clock
	if topts.Name == "" {
		topts.Name = "connection"
	}
	conn := transport.NewConnection(adapter, topts)

	oopts := opts.OTA
	oopts.Logger = logger

	interval := opts.SyncInterval
	if interval <= 0 {
		interval = transport.BLESyncInterval
	}

	return &Device{
		logger:   logger,
		conn:     conn,
		updater:  ota.NewUpdater(conn.Transmitter(), oopts),
		compiler: tngl.NewCompiler(logger),
		sync:     transport.NewClockSync(conn, clock, interval, logger),
		clock:    clock,
		timeline: timeline.New(0, true),
		index:    opts.TimelineIndex & proto.TimelineIndexMask,
	}
}

// Connect connects and starts periodic clock syncs.
func (d *Device) Connect(ctx context.Context) error {
	if err := d.conn.Connect(ctx); err != nil {
		return err
	}
	d.startSyncer()
	return nil
}

// Reconnect redials the last device. It is a no-op while connected.
func (d *Device) Reconnect(ctx context.Context) error {
	if err := d.conn.Reconnect(ctx); err != nil {
		return err
	}
	d.startSyncer()
	return nil
}

func (d *Device) Disconnect() error {
	d.mu.Lock()
	if d.stopSyncer != nil {
		d.stopSyncer()
		d.stopSyncer = nil
	}
	d.mu.Unlock()
	return d.conn.Disconnect()
}

func (d *Device) startSyncer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopSyncer != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.stopSyncer = cancel
	d.sync.Start(ctx)
}

func (d *Device) State() State { return d.conn.State() }

// Clock is the session clock pushed to the controller.
func (d *Device) Clock() *timeline.Timeline { return d.clock }

// Timeline mirrors the controller's animation timeline.
func (d *Device) Timeline() *timeline.Timeline { return d.timeline }

func (d *Device) Transmitter() *transport.Transmitter { return d.conn.Transmitter() }

// On subscribes to connection events.
func (d *Device) On(t EventType, h Handler) func() { return d.conn.Events().On(t, h) }

// UploadTngl compiles src and uploads it positioned at timestamp.
func (d *Device) UploadTngl(ctx context.Context, src string, timestamp int64, paused bool) error {
	program, err := d.compiler.Compile(src)
	if err != nil {
		return err
	}
	return d.UploadBytes(ctx, program, timestamp, paused)
}

// UploadBytes uploads an already compiled program. The timeline message and
// the program travel as one reliable payload so the controller applies both.
func (d *Device) UploadBytes(ctx context.Context, program []byte, timestamp int64, paused bool) error {
	if len(program) == 0 || program[0] != proto.FlagTnglBytes {
		return fmt.Errorf("%w: program must start with the TNGL flag", tngl.ErrInvalidLiteral)
	}
	d.timeline.SetStatus(timestamp, paused)
	payload := proto.SetTimelineMessage(d.clock.Millis(), timestamp, d.index, paused)
	payload = append(payload, program...)
	d.logger.Debug("uploading program", "bytes", len(program), "timestamp", timestamp, "paused", paused)
	return d.conn.Transmitter().Deliver(ctx, payload)
}

// SetTimeline moves the controller timeline.
func (d *Device) SetTimeline(ctx context.Context, timestamp int64, paused bool) error {
	d.timeline.SetStatus(timestamp, paused)
	return d.conn.Transmitter().Deliver(ctx, proto.SetTimelineMessage(d.clock.Millis(), timestamp, d.index, paused))
}

// EmitColorEvent sends a "#rrggbb" color to the event label.
func (d *Device) EmitColorEvent(ctx context.Context, label, color string, timestamp int64, deviceID uint8) error {
	r, g, b, err := ParseColor(color)
	if err != nil {
		return err
	}
	return d.emit(ctx, proto.ColorEventMessage(deviceID, label, r, g, b, timestamp))
}

func (d *Device) EmitPercentageEvent(ctx context.Context, label string, percent float64, timestamp int64, deviceID uint8) error {
	return d.emit(ctx, proto.PercentageEventMessage(deviceID, label, percent, timestamp))
}

func (d *Device) EmitTimeEvent(ctx context.Context, label string, millis, timestamp int64, deviceID uint8) error {
	return d.emit(ctx, proto.TimestampEventMessage(deviceID, label, millis, timestamp))
}

func (d *Device) EmitLabelEvent(ctx context.Context, label, value string, timestamp int64, deviceID uint8) error {
	return d.emit(ctx, proto.LabelEventMessage(deviceID, label, value, timestamp))
}

// Events are best-effort: a failed event is dropped, not retried.
func (d *Device) emit(ctx context.Context, msg []byte) error {
	return d.conn.Transmitter().Post(ctx, msg)
}

func (d *Device) UpdateFirmware(ctx context.Context, image []byte) error {
	return d.updater.UpdateFirmware(ctx, image)
}

func (d *Device) UpdateConfig(ctx context.Context, config []byte) error {
	return d.updater.UpdateConfig(ctx, config)
}

// SyncClock pushes the session clock now. It reports false when the link is
// busy or down.
func (d *Device) SyncClock(ctx context.Context) bool {
	return d.conn.Transmitter().Sync(ctx, d.clock.Millis())
}

// ParseColor parses "#rrggbb" or "rrggbb".
func ParseColor(s string) (r, g, b uint8, err error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}
