package transport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	proto "github.com/ystepanoff/tangle/protocol"
)

var errWriteFailed = errors.New("write failed")

// MockLink implements Link, recording every frame and sync write.
type MockLink struct {
	mutex      sync.Mutex
	limit      int
	txLog      [][]byte
	syncLog    [][]byte
	failWrites int           // fail the next n frame writes
	gate       chan struct{} // when set, each frame write waits for it to close

	dropped   chan struct{}
	closeOnce sync.Once
	closed    bool
}

func NewMockLink(limit int) *MockLink {
	return &MockLink{limit: limit, dropped: make(chan struct{})}
}

func (l *MockLink) WriteLimit() int { return l.limit }

func (l *MockLink) Write(ctx context.Context, data []byte) error {
	l.mutex.Lock()
	gate := l.gate
	l.mutex.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	if l.failWrites > 0 {
		l.failWrites--
		return errWriteFailed
	}
	l.txLog = append(l.txLog, append([]byte(nil), data...))
	return nil
}

func (l *MockLink) WriteSync(ctx context.Context, data []byte) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.syncLog = append(l.syncLog, append([]byte{}, data...))
	return nil
}

func (l *MockLink) Dropped() <-chan struct{} { return l.dropped }

func (l *MockLink) Close() error {
	l.mutex.Lock()
	l.closed = true
	l.mutex.Unlock()
	l.drop()
	return nil
}

func (l *MockLink) drop() { l.closeOnce.Do(func() { close(l.dropped) }) }

// Hold makes frame writes block until Release.
func (l *MockLink) Hold() {
	l.mutex.Lock()
	l.gate = make(chan struct{})
	l.mutex.Unlock()
}

func (l *MockLink) Release() {
	l.mutex.Lock()
	if l.gate != nil {
		close(l.gate)
		l.gate = nil
	}
	l.mutex.Unlock()
}

func (l *MockLink) FailNext(n int) {
	l.mutex.Lock()
	l.failWrites = n
	l.mutex.Unlock()
}

func (l *MockLink) GetTxLog() [][]byte {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	result := make([][]byte, len(l.txLog))
	copy(result, l.txLog)
	return result
}

func (l *MockLink) GetSyncLog() [][]byte {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	result := make([][]byte, len(l.syncLog))
	copy(result, l.syncLog)
	return result
}

// Payloads reassembles the frame log into delivered payloads.
func (l *MockLink) Payloads(t *testing.T) [][]byte {
	t.Helper()
	var asm proto.Assembler
	var out [][]byte
	for _, raw := range l.GetTxLog() {
		f, err := proto.DecodeFrame(raw)
		if err != nil {
			t.Fatalf("DecodeFrame: %v", err)
		}
		payload, done, err := asm.Push(f)
		if err != nil {
			t.Fatalf("Push: %v", err)
		}
		if done {
			out = append(out, payload)
		}
	}
	return out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func attachedTransmitter(link *MockLink) *Transmitter {
	tx := NewTransmitter(nil)
	tx.attach(link)
	tx.resume()
	return tx
}

func deliverAsync(tx *Transmitter, payload []byte) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- tx.Deliver(context.Background(), payload) }()
	return errCh
}

func TestDeliverFramesPayload(t *testing.T) {
	link := NewMockLink(20)
	tx := attachedTransmitter(link)

	payload := bytes.Repeat([]byte{0xAB}, 20)
	if err := tx.Deliver(context.Background(), payload); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	txLog := link.GetTxLog()
	if len(txLog) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(txLog))
	}
	var id uint32
	for i, raw := range txLog {
		f, err := proto.DecodeFrame(raw)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if i == 0 {
			id = f.TransferID
		} else if f.TransferID != id {
			t.Errorf("frame %d: transfer id %d, want %d", i, f.TransferID, id)
		}
		if f.Offset != uint32(i*8) || f.TotalLength != 20 {
			t.Errorf("frame %d: offset %d total %d", i, f.Offset, f.TotalLength)
		}
		if len(raw) > 20 {
			t.Errorf("frame %d exceeds write limit: %d bytes", i, len(raw))
		}
	}
	if got := link.Payloads(t); len(got) != 1 || !bytes.Equal(got[0], payload) {
		t.Errorf("reassembled payload mismatch: %v", got)
	}
}

func TestDeliverFIFO(t *testing.T) {
	link := NewMockLink(64)
	tx := attachedTransmitter(link)
	link.Hold()

	errA := deliverAsync(tx, []byte("A"))
	waitFor(t, "A in flight", tx.Busy)
	errB := deliverAsync(tx, []byte("B"))
	waitFor(t, "B queued", func() bool { return tx.Pending() == 1 })
	link.Release()

	if err := <-errA; err != nil {
		t.Fatalf("A: %v", err)
	}
	if err := <-errB; err != nil {
		t.Fatalf("B: %v", err)
	}
	got := link.Payloads(t)
	if len(got) != 2 || string(got[0]) != "A" || string(got[1]) != "B" {
		t.Errorf("unexpected order: %q", got)
	}
}

func TestFailedDeliveryRequeuedAhead(t *testing.T) {
	link := NewMockLink(64)
	tx := attachedTransmitter(link)
	link.FailNext(1)

	if err := tx.Deliver(context.Background(), []byte("A")); !errors.Is(err, errWriteFailed) {
		t.Fatalf("expected write failure, got %v", err)
	}
	if tx.Pending() != 1 {
		t.Fatalf("failed payload should stay queued, pending=%d", tx.Pending())
	}
	if tx.Busy() {
		t.Fatal("draining should halt after a failure")
	}

	if err := tx.Deliver(context.Background(), []byte("B")); err != nil {
		t.Fatalf("B: %v", err)
	}
	got := link.Payloads(t)
	if len(got) != 2 || string(got[0]) != "A" || string(got[1]) != "B" {
		t.Errorf("failed payload should be retried first: %q", got)
	}
	if tx.Pending() != 0 {
		t.Errorf("queue not drained, pending=%d", tx.Pending())
	}
}

func TestPostDroppedOnFailure(t *testing.T) {
	link := NewMockLink(64)
	tx := attachedTransmitter(link)
	link.FailNext(1)

	if err := tx.Post(context.Background(), []byte("event")); err == nil {
		t.Fatal("expected failure")
	}
	if tx.Pending() != 0 {
		t.Errorf("best-effort payload must not be requeued, pending=%d", tx.Pending())
	}
}

func TestDetachedTransmitter(t *testing.T) {
	link := NewMockLink(64)
	tx := NewTransmitter(nil)

	if err := tx.Deliver(context.Background(), []byte("kept")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Deliver: expected ErrNotConnected, got %v", err)
	}
	if err := tx.Post(context.Background(), []byte("lost")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Post: expected ErrNotConnected, got %v", err)
	}
	if tx.Pending() != 1 {
		t.Fatalf("expected only the reliable payload queued, pending=%d", tx.Pending())
	}
	if tx.Transmit(context.Background(), []byte("x")) || tx.Sync(context.Background(), 1) {
		t.Fatal("detached transmitter must refuse direct writes")
	}

	tx.attach(link)
	tx.resume()
	waitFor(t, "queue drained", func() bool { return tx.Pending() == 0 && !tx.Busy() })

	got := link.Payloads(t)
	if len(got) != 1 || string(got[0]) != "kept" {
		t.Errorf("unexpected payloads after attach: %q", got)
	}
}

func TestTransmitRefusedWhileDraining(t *testing.T) {
	link := NewMockLink(64)
	tx := attachedTransmitter(link)
	link.Hold()

	errA := deliverAsync(tx, []byte("A"))
	waitFor(t, "A in flight", tx.Busy)
	errB := deliverAsync(tx, []byte("B"))
	waitFor(t, "B queued", func() bool { return tx.Pending() == 1 })

	if tx.Transmit(context.Background(), []byte("now")) {
		t.Error("Transmit should refuse while draining")
	}
	if tx.Sync(context.Background(), 1000) {
		t.Error("Sync should refuse while draining")
	}
	if tx.Pending() != 1 {
		t.Errorf("refused writes must not touch the queue, pending=%d", tx.Pending())
	}

	link.Release()
	<-errA
	<-errB
	if n := len(link.GetSyncLog()); n != 0 {
		t.Errorf("refused sync wrote %d times", n)
	}
}

func TestTransmitIdle(t *testing.T) {
	link := NewMockLink(64)
	tx := attachedTransmitter(link)

	if !tx.Transmit(context.Background(), []byte("now")) {
		t.Fatal("Transmit should succeed when idle")
	}
	if got := link.Payloads(t); len(got) != 1 || string(got[0]) != "now" {
		t.Errorf("unexpected payloads: %q", got)
	}

	link.FailNext(1)
	if tx.Transmit(context.Background(), []byte("lost")) {
		t.Error("failed Transmit should report false")
	}
	if tx.Pending() != 0 {
		t.Error("Transmit must never queue")
	}
}

func TestSyncWrites(t *testing.T) {
	link := NewMockLink(64)
	tx := attachedTransmitter(link)

	if !tx.Sync(context.Background(), 1000) {
		t.Fatal("Sync failed")
	}
	syncLog := link.GetSyncLog()
	if len(syncLog) != 2 {
		t.Fatalf("expected value and terminator writes, got %d", len(syncLog))
	}
	if !bytes.Equal(syncLog[0], []byte{0xE8, 0x03, 0x00, 0x00}) {
		t.Errorf("sync value: % x", syncLog[0])
	}
	if len(syncLog[1]) != 0 {
		t.Errorf("terminator should be empty: % x", syncLog[1])
	}
	if len(link.GetTxLog()) != 0 {
		t.Error("sync must not use the data channel")
	}
}

func TestResetKeepsQueue(t *testing.T) {
	link := NewMockLink(64)
	tx := attachedTransmitter(link)
	link.Hold()

	errA := deliverAsync(tx, []byte("A"))
	waitFor(t, "A in flight", tx.Busy)
	errB := deliverAsync(tx, []byte("B"))
	waitFor(t, "B queued", func() bool { return tx.Pending() == 1 })

	tx.Reset(false)
	if err := <-errA; !errors.Is(err, ErrTransferAborted) {
		t.Fatalf("in-flight payload: expected ErrTransferAborted, got %v", err)
	}

	link.Release()
	if err := <-errB; err != nil {
		t.Fatalf("queued payload should survive reset: %v", err)
	}
	got := link.Payloads(t)
	if len(got) != 1 || string(got[0]) != "B" {
		t.Errorf("only B should reach the link: %q", got)
	}
}

func TestResetClearsQueue(t *testing.T) {
	link := NewMockLink(64)
	tx := attachedTransmitter(link)
	link.Hold()

	errA := deliverAsync(tx, []byte("A"))
	waitFor(t, "A in flight", tx.Busy)
	errB := deliverAsync(tx, []byte("B"))
	waitFor(t, "B queued", func() bool { return tx.Pending() == 1 })

	tx.Reset(true)
	for name, ch := range map[string]<-chan error{"A": errA, "B": errB} {
		if err := <-ch; !errors.Is(err, ErrTransferAborted) {
			t.Errorf("%s: expected ErrTransferAborted, got %v", name, err)
		}
	}
	if tx.Pending() != 0 {
		t.Errorf("queue should be empty, pending=%d", tx.Pending())
	}
	link.Release()
	waitFor(t, "idle", func() bool { return !tx.Busy() })
	if n := len(link.GetTxLog()); n != 0 {
		t.Errorf("nothing should be written, got %d frames", n)
	}
}

func TestEmptyPayload(t *testing.T) {
	tx := attachedTransmitter(NewMockLink(64))
	if err := tx.Deliver(context.Background(), nil); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestInvalidWriteLimit(t *testing.T) {
	tx := attachedTransmitter(NewMockLink(proto.FrameHeaderSize))
	if err := tx.Deliver(context.Background(), []byte("x")); !errors.Is(err, proto.ErrInvalidWriteLimit) {
		t.Errorf("expected ErrInvalidWriteLimit, got %v", err)
	}
}

func TestCancelledPostNotWritten(t *testing.T) {
	link := NewMockLink(64)
	tx := attachedTransmitter(link)
	link.Hold()

	errA := deliverAsync(tx, []byte("AAAA"))
	waitFor(t, "A in flight", tx.Busy)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tx.Post(ctx, []byte("late-event")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if tx.Pending() != 0 {
		t.Fatalf("cancelled best-effort payload should leave the queue, pending=%d", tx.Pending())
	}

	link.Release()
	if err := <-errA; err != nil {
		t.Fatalf("A: %v", err)
	}
	got := link.Payloads(t)
	if len(got) != 1 || string(got[0]) != "AAAA" {
		t.Errorf("only A should reach the link: %q", got)
	}
}

func TestCancelledDeliverStaysQueued(t *testing.T) {
	link := NewMockLink(64)
	tx := attachedTransmitter(link)
	link.Hold()

	errA := deliverAsync(tx, []byte("A"))
	waitFor(t, "A in flight", tx.Busy)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tx.Deliver(ctx, []byte("B")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	link.Release()
	<-errA
	waitFor(t, "B written", func() bool { return len(link.GetTxLog()) == 2 })
	got := link.Payloads(t)
	if len(got) != 2 || string(got[1]) != "B" {
		t.Errorf("reliable payload should still be delivered: %q", got)
	}
}

func TestAttachHoldsQueueUntilResume(t *testing.T) {
	link := NewMockLink(64)
	tx := NewTransmitter(nil)
	tx.attach(link)

	errA := deliverAsync(tx, []byte("A"))
	waitFor(t, "A queued", func() bool { return tx.Pending() == 1 })
	if tx.Busy() {
		t.Fatal("queued items must wait for resume")
	}
	if !tx.Sync(context.Background(), 7) {
		t.Fatal("sync should go first after attach")
	}
	if tx.Pending() != 1 {
		t.Fatalf("sync must not start the drain, pending=%d", tx.Pending())
	}

	tx.resume()
	if err := <-errA; err != nil {
		t.Fatalf("A: %v", err)
	}
	if got := link.Payloads(t); len(got) != 1 || string(got[0]) != "A" {
		t.Errorf("unexpected payloads: %q", got)
	}
}
