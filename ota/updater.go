// Package ota pushes firmware images and configuration blobs to a device.
//
// A firmware update is four strictly sequential phases, each its own write:
// RESET clears any partial update, BEGIN announces the image length, WRITE
// messages carry the image at increasing offsets, and END announces the
// bytes written. Any failed phase aborts the update; nothing is resumed.
package ota

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	proto "github.com/ystepanoff/tangle/protocol"
)

// Sender writes one message and reports its outcome without retrying.
type Sender interface {
	Post(ctx context.Context, payload []byte) error
}

// Updater runs at most one update at a time.
type Updater struct {
	tx     Sender
	opts   Options
	logger hclog.Logger
	active atomic.Bool
}

func NewUpdater(tx Sender, opts Options) *Updater {
	opts = opts.withDefaults()
	return &Updater{tx: tx, opts: opts, logger: opts.Logger.Named("ota")}
}

// InProgress reports whether an update is running.
func (u *Updater) InProgress() bool { return u.active.Load() }

// UpdateFirmware pushes image through the RESET, BEGIN, WRITE and END phases.
func (u *Updater) UpdateFirmware(ctx context.Context, image []byte) error {
	if !u.active.CompareAndSwap(false, true) {
		return ErrUpdateInProgress
	}
	defer u.active.Store(false)

	if len(image) == 0 {
		return ErrEmptyImage
	}
	if uint64(len(image)) > math.MaxUint32 {
		return ErrImageTooLarge
	}
	total := len(image)
	start := time.Now()
	u.logger.Info("firmware update started", "bytes", total, "chunk", u.opts.ChunkSize)

	if err := u.phase(ctx, "reset", proto.OTAResetMessage()); err != nil {
		return err
	}
	if err := u.wait(ctx, "reset", u.opts.ResetDelay); err != nil {
		return err
	}
	if err := u.phase(ctx, "begin", proto.OTABeginMessage(uint32(total))); err != nil {
		return err
	}
	if err := u.wait(ctx, "begin", u.opts.BeginDelay); err != nil {
		return err
	}

	written := 0
	u.progress(written, total)
	for written < total {
		end := min(written+u.opts.ChunkSize, total)
		if err := u.phase(ctx, "write", proto.OTAWriteMessage(uint32(written), image[written:end])); err != nil {
			return fmt.Errorf("%w (offset %d)", err, written)
		}
		written = end
		u.progress(written, total)
	}

	if err := u.phase(ctx, "end", proto.OTAEndMessage(uint32(written))); err != nil {
		return err
	}
	u.logger.Info("firmware update finished", "bytes", written, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// UpdateConfig pushes a configuration blob as one message, guarded like a
// firmware update.
func (u *Updater) UpdateConfig(ctx context.Context, config []byte) error {
	if !u.active.CompareAndSwap(false, true) {
		return ErrUpdateInProgress
	}
	defer u.active.Store(false)

	if len(config) == 0 {
		return ErrEmptyImage
	}
	if uint64(len(config)) > math.MaxUint32 {
		return ErrImageTooLarge
	}
	if err := u.phase(ctx, "config", proto.ConfigUpdateMessage(config)); err != nil {
		return err
	}
	u.progress(len(config), len(config))
	u.logger.Info("config updated", "bytes", len(config))
	return nil
}

func (u *Updater) phase(ctx context.Context, name string, msg []byte) error {
	if err := u.tx.Post(ctx, msg); err != nil {
		u.logger.Error("update aborted", "phase", name, "error", err)
		return fmt.Errorf("%w: %s phase: %w", ErrUpdateFailed, name, err)
	}
	u.logger.Trace("phase written", "phase", name, "bytes", len(msg))
	return nil
}

func (u *Updater) wait(ctx context.Context, after string, d time.Duration) error {
	if err := u.opts.Sleep(ctx, d); err != nil {
		return fmt.Errorf("%w: waiting after %s: %w", ErrUpdateFailed, after, err)
	}
	return nil
}

func (u *Updater) progress(written, total int) {
	if u.opts.Progress != nil {
		u.opts.Progress(written, total)
	}
}
