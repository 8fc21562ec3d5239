// Package serial carries frames over a tty. Every write is wrapped in an
// envelope [channel u8][length u16 LE][data] so data and clock traffic share
// one byte stream.
package serial

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/ystepanoff/tangle/transport"
)

const (
	DefaultWriteLimit = 1024
	DefaultBaudRate   = 115200

	envelopeHeaderSize = 3
)

// Envelope channels.
const (
	ChannelData  byte = 0x01
	ChannelClock byte = 0x02
)

var (
	ErrNoPort      = errors.New("no serial port found")
	ErrUnsupported = errors.New("serial ports are not supported on this platform")
	ErrClosed      = errors.New("serial link closed")
)

// portGlobs are searched in order when no port is configured.
var portGlobs = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}

// port is the subset of *os.File the link needs.
type port interface {
	io.ReadWriteCloser
	SetWriteDeadline(t time.Time) error
}

type Options struct {
	// Port is the tty path. Empty scans portGlobs.
	Port       string
	BaudRate   int
	WriteLimit int
	Logger     hclog.Logger
}

// Adapter opens serial links.
type Adapter struct {
	opts   Options
	logger hclog.Logger
}

func NewAdapter(opts Options) *Adapter {
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}
	if opts.WriteLimit <= 0 {
		opts.WriteLimit = DefaultWriteLimit
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	return &Adapter{opts: opts, logger: opts.Logger.Named("serial")}
}

// Scan returns the configured port, or the first tty matching portGlobs.
func (a *Adapter) Scan(ctx context.Context) (transport.Peer, error) {
	if a.opts.Port != "" {
		return transport.Peer{Address: a.opts.Port, Name: filepath.Base(a.opts.Port)}, nil
	}
	for _, pattern := range portGlobs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return transport.Peer{}, err
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			a.logger.Debug("port found", "port", matches[0], "candidates", len(matches))
			return transport.Peer{Address: matches[0], Name: filepath.Base(matches[0])}, nil
		}
	}
	return transport.Peer{}, ErrNoPort
}

func (a *Adapter) Dial(ctx context.Context, peer transport.Peer) (transport.Link, error) {
	p, err := openPort(peer.Address, a.opts.BaudRate)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", peer.Address, err)
	}
	a.logger.Info("port opened", "port", peer.Address, "baud", a.opts.BaudRate)
	return newLink(p, a.opts.WriteLimit, a.logger.With("port", peer.Address)), nil
}

// Link is an open tty.
type Link struct {
	port   port
	limit  int
	logger hclog.Logger

	writeMu sync.Mutex
	dropped chan struct{}
	once    sync.Once
}

func newLink(p port, limit int, logger hclog.Logger) *Link {
	l := &Link{port: p, limit: limit, logger: logger, dropped: make(chan struct{})}
	go l.readLoop()
	return l
}

func (l *Link) WriteLimit() int { return l.limit }

func (l *Link) Write(ctx context.Context, data []byte) error {
	return l.send(ctx, ChannelData, data)
}

func (l *Link) WriteSync(ctx context.Context, data []byte) error {
	return l.send(ctx, ChannelClock, data)
}

func (l *Link) send(ctx context.Context, channel byte, data []byte) error {
	if len(data) > l.limit {
		return fmt.Errorf("write of %d bytes exceeds limit %d", len(data), l.limit)
	}
	select {
	case <-l.dropped:
		return ErrClosed
	default:
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := l.port.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if _, err := l.port.Write(Envelope(channel, data)); err != nil {
		return fmt.Errorf("serial write: %w", err)
	}
	return nil
}

func (l *Link) Dropped() <-chan struct{} { return l.dropped }

func (l *Link) Close() error {
	err := l.port.Close()
	l.markDropped()
	return err
}

func (l *Link) markDropped() { l.once.Do(func() { close(l.dropped) }) }

// readLoop drains device output and notices when the port goes away.
func (l *Link) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			l.logger.Trace("device output", "bytes", n, "text", string(buf[:n]))
		}
		if err != nil {
			l.logger.Debug("read loop ended", "error", err)
			l.markDropped()
			return
		}
	}
}

// Envelope wraps data for the given channel.
func Envelope(channel byte, data []byte) []byte {
	out := make([]byte, envelopeHeaderSize, envelopeHeaderSize+len(data))
	out[0] = channel
	binary.LittleEndian.PutUint16(out[1:], uint16(len(data)))
	return append(out, data...)
}
