package transport

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
)

// ClockSync periodically pushes a clock to the device behind a Connection.
// Ticks that find the connection down or its transmitter busy are skipped.
type ClockSync struct {
	conn     *Connection
	clock    Clock
	interval time.Duration
	logger   hclog.Logger
}

func NewClockSync(conn *Connection, clock Clock, interval time.Duration, logger hclog.Logger) *ClockSync {
	if interval <= 0 {
		interval = BLESyncInterval
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ClockSync{conn: conn, clock: clock, interval: interval, logger: logger.Named("clocksync")}
}

// Tick performs one sync attempt and reports whether the clock was delivered.
func (s *ClockSync) Tick(ctx context.Context) bool {
	if s.conn.State() != StateConnected {
		return false
	}
	now := s.clock.Millis()
	if !s.conn.Transmitter().Sync(ctx, now) {
		s.logger.Trace("sync skipped", "clock", now)
		return false
	}
	return true
}

// Run ticks until ctx is done.
func (s *ClockSync) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Start runs the ticker on its own goroutine.
func (s *ClockSync) Start(ctx context.Context) {
	go s.Run(ctx)
}
