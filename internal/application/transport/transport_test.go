package transport_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/transport"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/transport/transporttest"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/clock/clocktest"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type harness struct {
	t      *testing.T
	loop   *eventloop.Loop
	clk    *clocktest.Fake
	dialer *transporttest.Dialer
	tr     *transport.Transport

	mu      sync.Mutex
	events  []transport.Event
	inbound []domain.Envelope
}

func newHarness(t *testing.T, mutate func(*transport.Config)) *harness {
	t.Helper()
	cfg := transport.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		t:      t,
		loop:   eventloop.New(256, nil),
		clk:    clocktest.New(time.Unix(1700000000, 0)),
		dialer: transporttest.NewDialer(),
	}
	h.tr = transport.New(cfg, h.dialer, h.loop, transport.WithClock(h.clk))
	h.tr.Subscribe(func(ev transport.Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, ev)
	})
	h.tr.SetInbound(func(env domain.Envelope) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.inbound = append(h.inbound, env)
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = h.loop.Run(ctx) }()
	return h
}

func (h *harness) sync() {
	h.t.Helper()
	require.NoError(h.t, h.loop.Sync(context.Background()))
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.sync()
	h.clk.Advance(d)
	h.sync()
}

func (h *harness) connect() *transporttest.Conn {
	h.t.Helper()
	require.NoError(h.t, h.tr.Connect(context.Background()))
	h.waitStatus(domain.StatusConnected)
	return h.dialer.Last()
}

func (h *harness) waitStatus(want domain.ConnectionStatus) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.tr.Status() == want }, waitFor, time.Millisecond,
		"status never reached %s (now %s)", want, h.tr.Status())
	h.sync()
}

func (h *harness) statuses() []domain.ConnectionStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.ConnectionStatus
	for _, ev := range h.events {
		if ev.Kind == transport.EventStatus {
			out = append(out, ev.Status)
		}
	}
	return out
}

func (h *harness) count(kind transport.EventKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ev := range h.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (h *harness) received() []domain.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Envelope(nil), h.inbound...)
}

func TestTransport_ConnectIsNoOpWhileConnectingOrConnected(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.tr.Connect(context.Background()))
	require.NoError(t, h.tr.Connect(context.Background())) // todavía CONNECTING
	h.waitStatus(domain.StatusConnected)
	require.NoError(t, h.tr.Connect(context.Background()))
	h.sync()

	assert.Equal(t, 1, h.dialer.Dials())
	assert.Equal(t, 1, h.count(transport.EventOpened))
	assert.Equal(t, []domain.ConnectionStatus{domain.StatusConnecting, domain.StatusConnected}, h.statuses())
}

func TestTransport_SendWhileDisconnectedIsQueuedAndFlushedInOrder(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var ids []string
	for _, kind := range []domain.ControlKind{domain.KindBacktestStart, domain.KindBacktestPause, domain.KindBacktestResume} {
		id, err := h.tr.Send(ctx, kind, map[string]string{"k": string(kind)})
		require.NoError(t, err)
		require.NotEmpty(t, id)
		ids = append(ids, id)
	}
	n, err := h.tr.QueueLen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	conn := h.connect()

	written := conn.Written()
	require.Len(t, written, 4)
	assert.Equal(t, domain.KindConnect, written[0].Type)
	for i, id := range ids {
		assert.Equal(t, id, written[i+1].ID)
	}
	n, err = h.tr.QueueLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// una reconexión posterior no reenvía lo ya entregado
	conn.Drop()
	h.waitStatus(domain.StatusReconnecting)
	h.advance(time.Second)
	h.waitStatus(domain.StatusConnected)
	second := h.dialer.Last()
	assert.Equal(t, []domain.ControlKind{domain.KindConnect}, second.WrittenKinds())
}

func TestTransport_DiscardQueuedMessageIsNeverWritten(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	keep, err := h.tr.Send(ctx, domain.KindBacktestPause, nil)
	require.NoError(t, err)
	drop, err := h.tr.Send(ctx, domain.KindManualOrder, map[string]string{"symbol": "AAPL"})
	require.NoError(t, err)

	var removed, again bool
	require.NoError(t, h.loop.Call(ctx, func() {
		removed = h.tr.DiscardQueuedInLoop(drop)
		again = h.tr.DiscardQueuedInLoop(drop)
	}))
	assert.True(t, removed)
	assert.False(t, again)

	conn := h.connect()
	written := conn.Written()
	require.Len(t, written, 2)
	assert.Equal(t, domain.KindConnect, written[0].Type)
	assert.Equal(t, keep, written[1].ID)

	// lo ya escrito no se puede retirar
	require.NoError(t, h.loop.Call(ctx, func() { removed = h.tr.DiscardQueuedInLoop(keep) }))
	assert.False(t, removed)
}

func TestTransport_SendWhenConnectedWritesImmediately(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect()

	id, err := h.tr.Send(context.Background(), domain.KindManualCloseAll, nil)
	require.NoError(t, err)

	env, ok := conn.LastWritten(domain.KindManualCloseAll)
	require.True(t, ok)
	assert.Equal(t, id, env.ID)
	assert.JSONEq(t, `{}`, string(env.Payload))
}

func TestTransport_HeartbeatTimeoutForcesReconnect(t *testing.T) {
	h := newHarness(t, func(c *transport.Config) {
		c.HeartbeatInterval = 30 * time.Second
		c.HeartbeatTimeout = 10 * time.Second
	})
	conn := h.connect()

	h.advance(30 * time.Second)
	_, ok := conn.LastWritten(domain.KindHeartbeat)
	require.True(t, ok, "heartbeat not sent")
	assert.False(t, conn.Closed())

	// el engine nunca contesta
	h.advance(10 * time.Second)

	assert.True(t, conn.Closed())
	assert.Equal(t, transport.CloseHeartbeatTimeout, conn.CloseCode())
	assert.Equal(t, domain.StatusReconnecting, h.tr.Status())
	assert.Equal(t, []time.Duration{time.Second}, h.clk.Pending())

	statuses := h.statuses()
	require.GreaterOrEqual(t, len(statuses), 2)
	assert.Equal(t, []domain.ConnectionStatus{domain.StatusConnected, domain.StatusReconnecting}, statuses[len(statuses)-2:])

	h.advance(time.Second)
	h.waitStatus(domain.StatusConnected)
	assert.Equal(t, 2, h.dialer.Dials())
}

func TestTransport_HeartbeatReplyCancelsTimeout(t *testing.T) {
	h := newHarness(t, func(c *transport.Config) {
		c.HeartbeatInterval = 30 * time.Second
		c.HeartbeatTimeout = 10 * time.Second
	})
	conn := h.connect()

	h.advance(30 * time.Second)
	hb, ok := conn.LastWritten(domain.KindHeartbeat)
	require.True(t, ok)
	require.Len(t, h.clk.Pending(), 2) // próximo heartbeat + timeout

	conn.PushEnvelope(hb.ID, domain.KindHeartbeat, nil)
	require.Eventually(t, func() bool { return len(h.clk.Pending()) == 1 }, waitFor, time.Millisecond)

	h.advance(10 * time.Second)
	assert.False(t, conn.Closed())
	assert.Equal(t, domain.StatusConnected, h.tr.Status())
	assert.Empty(t, h.received(), "heartbeat replies are consumed by the transport")
}

func TestTransport_MaxReconnectAttemptsIsFatalOnce(t *testing.T) {
	h := newHarness(t, func(c *transport.Config) {
		c.MaxReconnectAttempts = 3
	})
	h.dialer.FailAlways(true)

	require.NoError(t, h.tr.Connect(context.Background()))
	h.waitStatus(domain.StatusReconnecting)

	backoff := transport.Backoff{Base: time.Second, Max: 30 * time.Second, Decay: 1.5}
	for i := 0; i < 3; i++ {
		assert.Equal(t, []time.Duration{backoff.Delay(i)}, h.clk.Pending(), "attempt %d", i)
		h.advance(backoff.Delay(i))
		want := i + 2
		require.Eventually(t, func() bool { return h.dialer.Dials() == want }, waitFor, time.Millisecond)
		if i < 2 {
			require.Eventually(t, func() bool { return len(h.clk.Pending()) == 1 }, waitFor, time.Millisecond)
		}
	}
	h.waitStatus(domain.StatusError)

	h.advance(10 * time.Minute)
	assert.Empty(t, h.clk.Pending())
	assert.Equal(t, 4, h.dialer.Dials())
	assert.Equal(t, 1, h.count(transport.EventFatal))

	// sólo un Connect explícito vuelve a intentar
	h.dialer.FailAlways(false)
	h.connect()
	assert.Equal(t, 5, h.dialer.Dials())
	assert.Equal(t, 1, h.count(transport.EventFatal))
}

func TestTransport_DisconnectStopsAllTimers(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect()
	h.advance(30 * time.Second) // heartbeat + timeout armados

	require.NoError(t, h.tr.Disconnect(context.Background()))

	assert.Empty(t, h.clk.Pending())
	assert.Equal(t, domain.StatusDisconnected, h.tr.Status())
	assert.True(t, conn.Closed())
	assert.Equal(t, transport.CloseNormal, conn.CloseCode())
	_, ok := conn.LastWritten(domain.KindDisconnect)
	assert.True(t, ok)

	h.advance(time.Hour)
	assert.Equal(t, 1, h.dialer.Dials())
}

func TestTransport_DisconnectWhileReconnectingCancelsReconnect(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect()
	conn.Drop()
	h.waitStatus(domain.StatusReconnecting)
	require.Len(t, h.clk.Pending(), 1)

	require.NoError(t, h.tr.Disconnect(context.Background()))
	assert.Empty(t, h.clk.Pending())

	h.advance(time.Minute)
	assert.Equal(t, 1, h.dialer.Dials())
	assert.Equal(t, domain.StatusDisconnected, h.tr.Status())
}

func TestTransport_ClosedEventMarksIntent(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect()

	conn.Drop()
	h.waitStatus(domain.StatusReconnecting)
	require.NoError(t, h.tr.Disconnect(context.Background()))

	h.mu.Lock()
	defer h.mu.Unlock()
	var closed []transport.Event
	for _, ev := range h.events {
		if ev.Kind == transport.EventClosed {
			closed = append(closed, ev)
		}
	}
	require.Len(t, closed, 2)
	assert.False(t, closed[0].Intentional)
	assert.Error(t, closed[0].Err)
	assert.True(t, closed[1].Intentional)
}

func TestTransport_MalformedFramesAreDropped(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect()

	conn.Push([]byte("not json at all"))
	conn.Push([]byte(`{"id":"x"}`))
	conn.PushEnvelope("srv-1", domain.KindTickUpdate, map[string]any{"symbol": "BTCUSDT", "price": 1})

	require.Eventually(t, func() bool { return len(h.received()) == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, domain.KindTickUpdate, h.received()[0].Type)
	assert.Equal(t, domain.StatusConnected, h.tr.Status())
	assert.False(t, conn.Closed())
}

func TestTransport_WriteFailureRequeuesAndReconnects(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect()
	conn.FailWrites(errors.New("broken pipe"))

	id, err := h.tr.Send(context.Background(), domain.KindManualCancel, map[string]string{"order_id": "o-1"})
	require.NoError(t, err)
	h.waitStatus(domain.StatusReconnecting)

	h.advance(time.Second)
	h.waitStatus(domain.StatusConnected)
	env, ok := h.dialer.Last().LastWritten(domain.KindManualCancel)
	require.True(t, ok)
	assert.Equal(t, id, env.ID)
}
