package ota

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Update protocol defaults.
const (
	DefaultResetDelay = 100 * time.Millisecond
	// DefaultBeginDelay gives the device time to erase its update partition.
	DefaultBeginDelay = 8 * time.Second

	DefaultChunkSize     = 3984
	ConstrainedChunkSize = 480
)

// ProgressFunc reports image bytes acknowledged so far.
type ProgressFunc func(written, total int)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Options struct {
	Logger     hclog.Logger
	ResetDelay time.Duration
	BeginDelay time.Duration
	// ChunkSize is the image bytes per WRITE message. Zero picks the
	// default, or ConstrainedChunkSize when Constrained is set.
	ChunkSize   int
	Constrained bool
	Progress    ProgressFunc
	Sleep       SleepFunc
}

func DefaultOptions() Options {
	return Options{
		ResetDelay: DefaultResetDelay,
		BeginDelay: DefaultBeginDelay,
		ChunkSize:  DefaultChunkSize,
	}
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = hclog.NewNullLogger()
	}
	if o.ResetDelay <= 0 {
		o.ResetDelay = DefaultResetDelay
	}
	if o.BeginDelay <= 0 {
		o.BeginDelay = DefaultBeginDelay
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
		if o.Constrained {
			o.ChunkSize = ConstrainedChunkSize
		}
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	return o
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
