package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errDialFailed = errors.New("dial failed")

type mockAdapter struct {
	mutex     sync.Mutex
	peer      Peer
	failDials int
	dropDials int // links returned by the next n dials are already dropped
	links     []*MockLink
}

func (a *mockAdapter) Scan(ctx context.Context) (Peer, error) { return a.peer, nil }

func (a *mockAdapter) Dial(ctx context.Context, peer Peer) (Link, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if a.failDials > 0 {
		a.failDials--
		return nil, errDialFailed
	}
	link := NewMockLink(64)
	if a.dropDials > 0 {
		a.dropDials--
		link.drop()
	}
	a.links = append(a.links, link)
	return link, nil
}

func (a *mockAdapter) dials() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return len(a.links)
}

func (a *mockAdapter) link(i int) *MockLink {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.links[i]
}

type fixedClock int64

func (c fixedClock) Millis() int64 { return int64(c) }

type eventLog struct {
	mutex  sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mutex.Lock()
	l.events = append(l.events, ev)
	l.mutex.Unlock()
}

func (l *eventLog) types() []EventType {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	out := make([]EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

func (l *eventLog) reasons(typ EventType) []string {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	var out []string
	for _, ev := range l.events {
		if ev.Type == typ {
			out = append(out, ev.Reason)
		}
	}
	return out
}

func newTestConnection(adapter *mockAdapter) (*Connection, *eventLog) {
	log := &eventLog{}
	events := NewEvents()
	events.On(EventConnected, log.record)
	events.On(EventDisconnected, log.record)
	conn := NewConnection(adapter, Options{
		Events:            events,
		Clock:             fixedClock(1000),
		ReconnectDelay:    10 * time.Millisecond,
		ConnectRetryDelay: time.Millisecond,
	})
	return conn, log
}

func TestConnectAttachesTransmitter(t *testing.T) {
	adapter := &mockAdapter{peer: Peer{Address: "AA:BB"}}
	conn, log := newTestConnection(adapter)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.State() != StateConnected {
		t.Fatalf("state = %s", conn.State())
	}
	if !conn.Transmitter().Attached() {
		t.Fatal("transmitter should be attached while connected")
	}
	if peer, ok := conn.Peer(); !ok || peer.Address != "AA:BB" {
		t.Errorf("peer = %+v", peer)
	}
	if n := len(log.reasons(EventConnected)); n != 1 {
		t.Errorf("expected one connected event, got %d", n)
	}
	syncLog := adapter.link(0).GetSyncLog()
	if len(syncLog) != 2 || syncLog[0][0] != 0xE8 {
		t.Errorf("clock should be pushed on connect: %v", syncLog)
	}
}

func TestConnectRetriesDial(t *testing.T) {
	adapter := &mockAdapter{failDials: 2}
	conn, _ := newTestConnection(adapter)

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if conn.State() != StateConnected {
		t.Errorf("state = %s", conn.State())
	}
}

func TestConnectGivesUp(t *testing.T) {
	adapter := &mockAdapter{failDials: DefaultConnectAttempts}
	conn, log := newTestConnection(adapter)

	err := conn.Connect(context.Background())
	if !errors.Is(err, ErrConnectFailed) || !errors.Is(err, errDialFailed) {
		t.Fatalf("expected wrapped dial failure, got %v", err)
	}
	if conn.State() != StateDisconnected {
		t.Errorf("state = %s", conn.State())
	}
	if got := log.reasons(EventDisconnected); len(got) != 1 || got[0] != ReasonConnectFailed {
		t.Errorf("disconnect reasons = %v", got)
	}
}

func TestDropTriggersReconnect(t *testing.T) {
	adapter := &mockAdapter{}
	conn, log := newTestConnection(adapter)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tx := conn.Transmitter()

	adapter.link(0).drop()
	waitFor(t, "reconnect", func() bool { return adapter.dials() == 2 && conn.State() == StateConnected })

	if got := log.reasons(EventDisconnected); len(got) != 1 || got[0] != ReasonLinkLost {
		t.Errorf("disconnect reasons = %v", got)
	}
	if n := len(log.reasons(EventConnected)); n != 2 {
		t.Errorf("expected two connected events, got %d", n)
	}
	if conn.Transmitter() != tx {
		t.Error("transmitter must survive reconnects")
	}
	if len(adapter.link(1).GetSyncLog()) == 0 {
		t.Error("clock should be re-synced after reconnect")
	}
	if err := tx.Deliver(context.Background(), []byte("after")); err != nil {
		t.Fatalf("Deliver after reconnect: %v", err)
	}
	if got := adapter.link(1).Payloads(t); len(got) != 1 {
		t.Errorf("payload should reach the new link: %q", got)
	}
}

func TestQueuedDeliveryResumesAfterReconnect(t *testing.T) {
	adapter := &mockAdapter{}
	conn, _ := newTestConnection(adapter)
	conn.opts.ReconnectDelay = 50 * time.Millisecond
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	adapter.link(0).drop()
	waitFor(t, "detach", func() bool { return !conn.Transmitter().Attached() })
	if err := conn.Transmitter().Deliver(context.Background(), []byte("queued")); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	waitFor(t, "reconnect", func() bool { return adapter.dials() == 2 })
	waitFor(t, "drain", func() bool { return conn.Transmitter().Pending() == 0 })
	waitFor(t, "payload", func() bool { return len(adapter.link(1).GetTxLog()) == 1 })
	if got := adapter.link(1).Payloads(t); string(got[0]) != "queued" {
		t.Errorf("unexpected payload %q", got[0])
	}
}

func TestReconnectWhenConnected(t *testing.T) {
	adapter := &mockAdapter{}
	conn, _ := newTestConnection(adapter)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := conn.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if adapter.dials() != 1 {
		t.Errorf("Reconnect while connected should not dial, dials=%d", adapter.dials())
	}
}

func TestReconnectAfterDisconnect(t *testing.T) {
	adapter := &mockAdapter{}
	conn, _ := newTestConnection(adapter)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := conn.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := conn.Reconnect(context.Background()); err != nil {
		t.Fatalf("Reconnect: %v", err)
	}
	if adapter.dials() != 2 || conn.State() != StateConnected {
		t.Errorf("dials=%d state=%s", adapter.dials(), conn.State())
	}
}

func TestDisconnectCancelsReconnect(t *testing.T) {
	adapter := &mockAdapter{}
	conn, log := newTestConnection(adapter)
	conn.opts.ReconnectDelay = 50 * time.Millisecond
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	adapter.link(0).drop()
	waitFor(t, "drop", func() bool { return conn.State() == StateDisconnected })
	if err := conn.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if adapter.dials() != 1 {
		t.Errorf("pending reconnect should be cancelled, dials=%d", adapter.dials())
	}
	if got := log.reasons(EventDisconnected); len(got) != 1 {
		t.Errorf("disconnect of a disconnected link should not emit, reasons=%v", got)
	}
}

func TestDisconnectDetachesFirst(t *testing.T) {
	adapter := &mockAdapter{}
	conn, log := newTestConnection(adapter)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	link := adapter.link(0)
	link.Hold()
	errCh := deliverAsync(conn.Transmitter(), []byte("inflight"))
	waitFor(t, "in flight", conn.Transmitter().Busy)

	if err := conn.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if err := <-errCh; !errors.Is(err, ErrTransferAborted) {
		t.Errorf("in-flight delivery: expected ErrTransferAborted, got %v", err)
	}
	if !link.closed {
		t.Error("link should be closed")
	}
	if got := log.reasons(EventDisconnected); len(got) != 1 || got[0] != ReasonUserRequest {
		t.Errorf("disconnect reasons = %v", got)
	}
	time.Sleep(30 * time.Millisecond)
	if adapter.dials() != 1 {
		t.Error("orderly disconnect must not reconnect")
	}
}

func TestClockSyncTick(t *testing.T) {
	adapter := &mockAdapter{}
	conn, _ := newTestConnection(adapter)
	cs := NewClockSync(conn, fixedClock(5000), time.Hour, nil)

	if cs.Tick(context.Background()) {
		t.Fatal("tick should be skipped while disconnected")
	}
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	link := adapter.link(0)
	before := len(link.GetSyncLog())

	if !cs.Tick(context.Background()) {
		t.Fatal("tick should sync when idle")
	}
	syncLog := link.GetSyncLog()
	if len(syncLog) != before+2 || syncLog[before][0] != 0x88 || syncLog[before][1] != 0x13 {
		t.Errorf("unexpected sync writes: %v", syncLog[before:])
	}

	link.Hold()
	errCh := deliverAsync(conn.Transmitter(), []byte("busy"))
	waitFor(t, "in flight", conn.Transmitter().Busy)
	if cs.Tick(context.Background()) {
		t.Error("tick should be skipped while busy")
	}
	link.Release()
	<-errCh
}

func TestClockSyncRun(t *testing.T) {
	adapter := &mockAdapter{}
	conn, _ := newTestConnection(adapter)
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	NewClockSync(conn, fixedClock(1), 5*time.Millisecond, nil).Start(ctx)

	waitFor(t, "periodic sync", func() bool { return len(adapter.link(0).GetSyncLog()) >= 6 })
}

func TestEventsUnsubscribe(t *testing.T) {
	events := NewEvents()
	var calls []string
	events.On(EventConnected, func(Event) { calls = append(calls, "first") })
	off := events.On(EventConnected, func(Event) { calls = append(calls, "second") })
	events.On(EventDisconnected, func(Event) { calls = append(calls, "other") })

	events.Emit(Event{Type: EventConnected})
	off()
	events.Emit(Event{Type: EventConnected})

	want := []string{"first", "second", "first"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %s, want %s", i, calls[i], want[i])
		}
	}
}

func TestStateString(t *testing.T) {
	if StateReconnecting.String() != "reconnecting" || State(42).String() != "state(42)" {
		t.Error("unexpected state names")
	}
}

func TestDropDuringConnectReportedAfterConnected(t *testing.T) {
	adapter := &mockAdapter{dropDials: 1}
	conn, log := newTestConnection(adapter)
	conn.opts.ReconnectDelay = time.Hour

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitFor(t, "drop", func() bool { return len(log.types()) == 2 })

	got := log.types()
	if got[0] != EventConnected || got[1] != EventDisconnected {
		t.Errorf("events out of order: %v", got)
	}
	if reasons := log.reasons(EventDisconnected); reasons[0] != ReasonLinkLost {
		t.Errorf("disconnect reason = %s", reasons[0])
	}
	_ = conn.Disconnect()
}
