package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	proto "github.com/ystepanoff/tangle/protocol"
)

// Transmitter owns the single-writer invariant of one link: at most one write
// sequence (a framed payload, or a clock sync) is in flight at a time.
//
// Queued items drain FIFO on a background goroutine. A reliable item whose
// write fails goes back to the head of the queue and draining halts until the
// next Deliver, Transmit, Sync or attach. A best-effort item is dropped on failure.
type Transmitter struct {
	logger hclog.Logger
	newID  func() uint32

	mu     sync.Mutex
	driver Driver // nil while detached
	queue  []*queueItem
	busy   bool
	held   bool               // attached but not yet resumed; queued items wait
	epoch  uint64             // bumped by Reset; in-flight writes of an older epoch are discarded
	cancel context.CancelFunc // cancels the in-flight write sequence
}

type queueItem struct {
	payload  []byte
	reliable bool
	done     chan error // nil once nobody waits for the outcome
}

// NewTransmitter returns a detached transmitter.
func NewTransmitter(logger hclog.Logger) *Transmitter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Transmitter{
		logger: logger.Named("transmitter"),
		newID:  proto.NewTransferIDs().Next,
	}
}

// Deliver queues a reliable send and waits for its outcome. On failure the
// payload stays queued and is retried before anything queued after it.
// While detached the payload is queued and ErrNotConnected returned at once.
func (t *Transmitter) Deliver(ctx context.Context, payload []byte) error {
	return t.enqueue(ctx, payload, true)
}

// Post queues a best-effort send and waits for its outcome. A failed payload
// is dropped, and so is one still queued when ctx ends. While detached
// nothing is queued.
func (t *Transmitter) Post(ctx context.Context, payload []byte) error {
	return t.enqueue(ctx, payload, false)
}

func (t *Transmitter) enqueue(ctx context.Context, payload []byte, reliable bool) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	item := &queueItem{
		payload:  append([]byte(nil), payload...),
		reliable: reliable,
		done:     make(chan error, 1),
	}

	t.mu.Lock()
	if t.driver == nil {
		if reliable {
			item.done = nil
			t.queue = append(t.queue, item)
			t.logger.Debug("queued while detached", "bytes", len(payload), "pending", len(t.queue))
		}
		t.mu.Unlock()
		return ErrNotConnected
	}
	done := item.done
	t.queue = append(t.queue, item)
	t.startLocked()
	t.mu.Unlock()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		t.mu.Lock()
		defer t.mu.Unlock()
		if item.done == nil {
			// The outcome was delivered while ctx ended.
			return <-done
		}
		item.done = nil
		if !reliable {
			t.removeLocked(item)
		}
		return ctx.Err()
	}
}

// removeLocked drops item if it is still waiting in the queue.
func (t *Transmitter) removeLocked(item *queueItem) {
	for i, queued := range t.queue {
		if queued == item {
			t.queue = append(t.queue[:i:i], t.queue[i+1:]...)
			t.logger.Debug("cancelled best-effort payload dequeued", "bytes", len(item.payload))
			return
		}
	}
}

// Transmit sends payload immediately, bypassing the queue. It returns false
// without side effects when another write sequence is in flight or the link is
// detached, and false when the write fails.
func (t *Transmitter) Transmit(ctx context.Context, payload []byte) bool {
	t.mu.Lock()
	if t.busy || t.driver == nil || len(payload) == 0 {
		t.mu.Unlock()
		return false
	}
	wctx, d := t.acquireLocked(ctx)
	t.mu.Unlock()

	err := t.write(wctx, d, payload)

	t.mu.Lock()
	t.releaseLocked()
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("transmit dropped", "bytes", len(payload), "error", err)
		return false
	}
	return true
}

// Sync pushes clock to the device's clock channel as the 4-byte value
// followed by an empty terminating write. It never queues: it returns false
// when the link is busy or detached, or the write fails.
func (t *Transmitter) Sync(ctx context.Context, clock int64) bool {
	t.mu.Lock()
	if t.busy || t.driver == nil {
		t.mu.Unlock()
		return false
	}
	wctx, d := t.acquireLocked(ctx)
	t.mu.Unlock()

	err := d.WriteSync(wctx, proto.SyncMessage(clock))
	if err == nil {
		err = d.WriteSync(wctx, nil)
	}

	t.mu.Lock()
	t.releaseLocked()
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("sync failed", "clock", clock, "error", err)
		return false
	}
	t.logger.Trace("clock synced", "clock", clock)
	return true
}

// Reset aborts the in-flight write sequence at its next suspension point and
// discards that payload. Queued payloads survive unless clearQueue is set.
func (t *Transmitter) Reset(clearQueue bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked(clearQueue)
}

func (t *Transmitter) resetLocked(clearQueue bool) {
	t.epoch++
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	if clearQueue {
		for _, item := range t.queue {
			t.notifyLocked(item, ErrTransferAborted)
		}
		t.queue = nil
	}
}

// Pending returns the number of queued payloads.
func (t *Transmitter) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Busy reports whether a write sequence is in flight.
func (t *Transmitter) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}

// Attached reports whether the transmitter has a link to write to.
func (t *Transmitter) Attached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.driver != nil
}

// attach binds a freshly connected link. Direct writes are accepted at
// once; queued items wait for resume so a post-connect sync goes first.
func (t *Transmitter) attach(d Driver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.driver = d
	t.held = true
}

func (t *Transmitter) resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.held = false
	t.startLocked()
}

// detach aborts the in-flight write and unbinds the link. The queue survives.
func (t *Transmitter) detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked(false)
	t.driver = nil
	t.held = false
}

func (t *Transmitter) acquireLocked(parent context.Context) (context.Context, Driver) {
	ctx, cancel := context.WithCancel(parent)
	t.busy = true
	t.cancel = cancel
	return ctx, t.driver
}

// stopLocked ends the current write sequence without restarting the drain.
func (t *Transmitter) stopLocked() {
	t.busy = false
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

// releaseLocked ends the current write sequence and drains anything queued meanwhile.
func (t *Transmitter) releaseLocked() {
	t.stopLocked()
	t.startLocked()
}

func (t *Transmitter) startLocked() {
	if t.busy || t.held || t.driver == nil || len(t.queue) == 0 {
		return
	}
	ctx, d := t.acquireLocked(context.Background())
	go t.drain(ctx, t.epoch, d)
}

func (t *Transmitter) drain(ctx context.Context, epoch uint64, d Driver) {
	for {
		t.mu.Lock()
		if t.epoch != epoch {
			t.releaseLocked()
			t.mu.Unlock()
			return
		}
		if len(t.queue) == 0 {
			t.stopLocked()
			t.mu.Unlock()
			return
		}
		item := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()

		err := t.write(ctx, d, item.payload)

		t.mu.Lock()
		switch {
		case t.epoch != epoch:
			t.logger.Debug("in-flight payload discarded", "bytes", len(item.payload))
			t.notifyLocked(item, ErrTransferAborted)
			t.releaseLocked()
			t.mu.Unlock()
			return
		case err != nil:
			if item.reliable {
				t.queue = append([]*queueItem{item}, t.queue...)
				t.logger.Warn("delivery failed, payload requeued", "bytes", len(item.payload), "pending", len(t.queue), "error", err)
			} else {
				t.logger.Debug("best-effort payload dropped", "bytes", len(item.payload), "error", err)
			}
			t.notifyLocked(item, err)
			t.stopLocked()
			t.mu.Unlock()
			return
		}
		t.notifyLocked(item, nil)
		t.mu.Unlock()
	}
}

func (t *Transmitter) notifyLocked(item *queueItem, err error) {
	if item.done != nil {
		item.done <- err
		item.done = nil
	}
}

// write frames payload and writes the frames in offset order. Any failed
// frame aborts the payload.
func (t *Transmitter) write(ctx context.Context, d Driver, payload []byte) error {
	chunk, err := proto.ChunkSize(d.WriteLimit())
	if err != nil {
		return err
	}
	frames, err := proto.Split(t.newID(), payload, chunk)
	if err != nil {
		return err
	}
	t.logger.Debug("writing payload", "bytes", len(payload), "frames", len(frames))

	for i := range frames {
		if ctx.Err() != nil {
			return ErrTransferAborted
		}
		if err := d.Write(ctx, frames[i].Encode()); err != nil {
			return fmt.Errorf("frame %d/%d: %w", i+1, len(frames), err)
		}
		t.logger.Trace("frame written", "transfer", frames[i].TransferID, "offset", frames[i].Offset, "bytes", len(frames[i].Chunk))
	}
	return nil
}
