// Package transport es dueño del único socket contra el engine: ciclo de vida,
// framing, heartbeat, reconexión con backoff y cola de salida.
//
// Todo el estado se muta desde el eventloop compartido con el correlator y la
// sesión. Los métodos con sufijo InLoop asumen que ya se está dentro del loop.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/clock"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/eventloop"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/ports"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/pubsub"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Códigos de cierre enviados en el frame de close.
const (
	CloseNormal           = 1000
	CloseGoingAway        = 1001
	CloseHeartbeatTimeout = 4000
	CloseWriteFailed      = 4001
)

// Config son los parámetros ajustables del transporte.
type Config struct {
	URL                  string
	ReconnectInterval    time.Duration // base del backoff
	MaxReconnectInterval time.Duration
	ReconnectDecay       float64
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
	ClientName           string
	ClientVersion        string
}

// DefaultConfig devuelve los valores por defecto del cliente de escritorio.
func DefaultConfig() Config {
	return Config{
		URL:                  "ws://127.0.0.1:8765/ws",
		ReconnectInterval:    time.Second,
		MaxReconnectInterval: 30 * time.Second,
		ReconnectDecay:       1.5,
		MaxReconnectAttempts: 10,
		HeartbeatInterval:    30 * time.Second,
		HeartbeatTimeout:     10 * time.Second,
		ClientName:           "aegisquant-desktop",
		ClientVersion:        "dev",
	}
}

// EventKind identifica un evento del ciclo de vida del socket.
type EventKind int

const (
	EventOpened EventKind = iota + 1
	EventClosed
	EventStatus
	EventFatal
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventStatus:
		return "status"
	case EventFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Event se publica en el hub del transporte, siempre desde el loop.
type Event struct {
	Kind        EventKind
	Status      domain.ConnectionStatus // EventStatus
	Attempt     int                     // intentos de reconexión consumidos
	Delay       time.Duration           // EventStatus con RECONNECTING
	Code        int                     // EventClosed
	Intentional bool                    // EventClosed
	Err         error
}

type outbound struct {
	id   string
	kind domain.ControlKind
	data []byte
}

// Transport mantiene a lo sumo un socket, un timer de heartbeat, un timer de
// timeout de heartbeat y un timer de reconexión.
type Transport struct {
	cfg     Config
	backoff Backoff
	loop    *eventloop.Loop
	dialer  ports.Dialer
	clock   clock.Clock
	logger  *slog.Logger
	newID   func() string

	events  *pubsub.Hub[Event]
	inbound func(domain.Envelope)

	// estado del loop
	status      domain.ConnectionStatus
	gen         uint64 // generación del socket; frames de generaciones viejas se descartan
	conn        ports.Conn
	cancelDial  context.CancelFunc
	intentional bool
	attempts    int
	fatal       bool
	queue       []outbound
	heartbeat   *eventloop.Timer
	deadline    *eventloop.Timer
	reconnect   *eventloop.Timer
	protoLog    rate.Sometimes

	viewMu sync.RWMutex
	view   domain.ConnectionStatus
}

// Option configura dependencias opcionales del transporte.
type Option func(*Transport)

// WithClock reemplaza el reloj (tests).
func WithClock(c clock.Clock) Option { return func(t *Transport) { t.clock = c } }

// WithLogger reemplaza el logger.
func WithLogger(l *slog.Logger) Option { return func(t *Transport) { t.logger = l } }

// WithIDGenerator reemplaza el generador de ids de envelope.
func WithIDGenerator(fn func() string) Option { return func(t *Transport) { t.newID = fn } }

// New crea un transporte desconectado. No abre el socket hasta Connect.
func New(cfg Config, dialer ports.Dialer, loop *eventloop.Loop, opts ...Option) *Transport {
	t := &Transport{
		cfg: cfg,
		backoff: Backoff{
			Base:  cfg.ReconnectInterval,
			Max:   cfg.MaxReconnectInterval,
			Decay: cfg.ReconnectDecay,
		},
		loop:     loop,
		dialer:   dialer,
		clock:    clock.Real{},
		logger:   slog.Default(),
		newID:    uuid.NewString,
		status:   domain.StatusDisconnected,
		view:     domain.StatusDisconnected,
		protoLog: rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "transport")
	t.events = pubsub.NewHub[Event](t.logger)
	t.inbound = func(domain.Envelope) {}
	return t
}

// Subscribe registra un handler de eventos del ciclo de vida. Corre en el loop.
func (t *Transport) Subscribe(fn func(Event)) (unsubscribe func()) {
	return t.events.Subscribe(fn)
}

// SetInbound fija el único destino de los envelopes entrantes (el correlator).
// Debe llamarse antes de Connect.
func (t *Transport) SetInbound(fn func(domain.Envelope)) {
	t.inbound = fn
}

// Status devuelve el estado actual; seguro desde cualquier goroutine.
func (t *Transport) Status() domain.ConnectionStatus {
	t.viewMu.RLock()
	defer t.viewMu.RUnlock()
	return t.view
}

// Connect abre el socket si no está conectado ni conectando.
func (t *Transport) Connect(ctx context.Context) error {
	return t.loop.Call(ctx, t.ConnectInLoop)
}

// Disconnect cierra el socket de forma intencional. Cuando retorna, los timers
// de heartbeat y reconexión ya están detenidos.
func (t *Transport) Disconnect(ctx context.Context) error {
	return t.loop.Call(ctx, t.DisconnectInLoop)
}

// Send serializa y envía un mensaje, o lo encola si el socket no está abierto.
// Devuelve el id del envelope en ambos casos.
func (t *Transport) Send(ctx context.Context, kind domain.ControlKind, payload any) (string, error) {
	var (
		id  string
		err error
	)
	if cerr := t.loop.Call(ctx, func() { id, err = t.SendInLoop(kind, payload) }); cerr != nil {
		return "", cerr
	}
	return id, err
}

// QueueLen devuelve cuántos mensajes esperan en la cola de salida.
func (t *Transport) QueueLen(ctx context.Context) (int, error) {
	var n int
	err := t.loop.Call(ctx, func() { n = len(t.queue) })
	return n, err
}

// ConnectInLoop es Connect dentro del loop.
func (t *Transport) ConnectInLoop() {
	switch t.status {
	case domain.StatusConnected, domain.StatusConnecting:
		t.logger.Debug("connect ignored", "status", t.status)
		return
	}
	t.reconnect.Stop()
	t.reconnect = nil
	t.attempts = 0
	t.fatal = false
	t.intentional = false
	t.open()
}

// DisconnectInLoop es Disconnect dentro del loop.
func (t *Transport) DisconnectInLoop() {
	t.intentional = true
	t.reconnect.Stop()
	t.reconnect = nil
	if t.conn != nil {
		// aviso best effort; si falla el cierre sigue igual
		if msg, err := t.encode(domain.KindDisconnect, domain.DisconnectRequest{Reason: "client disconnect"}); err == nil {
			_ = t.conn.WriteMessage(msg.data)
		}
	}
	t.teardown(CloseNormal, "client disconnect", nil)
	t.setStatus(domain.StatusDisconnected, nil, 0)
	t.logger.Info("disconnected")
}

// SendInLoop es Send dentro del loop.
func (t *Transport) SendInLoop(kind domain.ControlKind, payload any) (string, error) {
	msg, err := t.encode(kind, payload)
	if err != nil {
		return "", fmt.Errorf("transport.Send: %w", err)
	}
	if t.conn == nil || t.status != domain.StatusConnected {
		t.queue = append(t.queue, msg)
		t.logger.Debug("message queued", "kind", kind, "id", msg.id, "queued", len(t.queue))
		return msg.id, nil
	}
	if err := t.conn.WriteMessage(msg.data); err != nil {
		t.queue = append(t.queue, msg)
		t.lost(CloseWriteFailed, "write failed", fmt.Errorf("transport: write %s: %w", kind, err))
		return msg.id, nil
	}
	t.logger.Debug("message sent", "kind", kind, "id", msg.id)
	return msg.id, nil
}

// DiscardQueuedInLoop quita de la cola el mensaje id si todavía no se escribió.
// Devuelve false si ya salió por el socket o nunca estuvo encolado.
func (t *Transport) DiscardQueuedInLoop(id string) bool {
	i := slices.IndexFunc(t.queue, func(m outbound) bool { return m.id == id })
	if i < 0 {
		return false
	}
	t.logger.Debug("queued message discarded", "kind", t.queue[i].kind, "id", id)
	t.queue = slices.Delete(t.queue, i, i+1)
	if len(t.queue) == 0 {
		t.queue = nil
	}
	return true
}

func (t *Transport) encode(kind domain.ControlKind, payload any) (outbound, error) {
	id := t.newID()
	env, err := domain.NewEnvelope(id, kind, t.clock.Now().UnixMilli(), payload)
	if err != nil {
		return outbound{}, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return outbound{}, fmt.Errorf("marshal envelope: %w", err)
	}
	return outbound{id: id, kind: kind, data: data}, nil
}

// open inicia un dial en background con una generación nueva.
func (t *Transport) open() {
	t.gen++
	gen := t.gen
	ctx, cancel := context.WithCancel(context.Background())
	t.cancelDial = cancel
	t.setStatus(domain.StatusConnecting, nil, 0)
	t.logger.Info("connecting", "url", t.cfg.URL, "attempt", t.attempts)

	go func() {
		conn, err := t.dialer.Dial(ctx, t.cfg.URL)
		posted := t.loop.Post(func() { t.dialed(gen, conn, err) })
		if !posted && conn != nil {
			_ = conn.Close(CloseGoingAway, "shutting down")
		}
	}()
}

func (t *Transport) dialed(gen uint64, conn ports.Conn, err error) {
	if gen != t.gen || t.status != domain.StatusConnecting {
		if conn != nil {
			_ = conn.Close(CloseNormal, "superseded")
		}
		return
	}
	if t.cancelDial != nil {
		t.cancelDial()
		t.cancelDial = nil
	}
	if err != nil {
		t.logger.Warn("dial failed", "url", t.cfg.URL, "err", err)
		t.lost(CloseGoingAway, "dial failed", fmt.Errorf("transport: dial %s: %w", t.cfg.URL, err))
		return
	}

	t.conn = conn
	t.attempts = 0
	t.setStatus(domain.StatusConnected, nil, 0)
	t.logger.Info("connected", "url", t.cfg.URL)

	go t.readLoop(gen, conn)
	t.scheduleHeartbeat()

	if _, err := t.SendInLoop(domain.KindConnect, domain.ClientHello{Client: t.cfg.ClientName, Version: t.cfg.ClientVersion}); err != nil {
		t.logger.Warn("hello failed", "err", err)
	}
	t.flush()
	if t.conn != nil {
		t.events.Publish(Event{Kind: EventOpened})
	}
}

// readLoop lee frames hasta que el socket falla; cada frame se entrega al loop
// etiquetado con su generación.
func (t *Transport) readLoop(gen uint64, conn ports.Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			t.loop.Post(func() { t.readFailed(gen, err) })
			return
		}
		if !t.loop.Post(func() { t.receive(gen, data) }) {
			return
		}
	}
}

func (t *Transport) receive(gen uint64, data []byte) {
	if gen != t.gen || t.conn == nil {
		return
	}
	env, err := domain.ParseEnvelope(data)
	if err != nil {
		t.protoLog.Do(func() {
			t.logger.Warn("dropping malformed frame", "err", err, "bytes", len(data))
		})
		return
	}
	if env.Type == domain.KindHeartbeat {
		t.deadline.Stop()
		t.deadline = nil
		return
	}
	t.inbound(env)
}

func (t *Transport) readFailed(gen uint64, err error) {
	if gen != t.gen || t.conn == nil {
		return
	}
	t.logger.Warn("connection lost", "err", err)
	t.lost(CloseGoingAway, "read failed", fmt.Errorf("transport: read: %w", err))
}

// flush vacía la cola en orden. Si una escritura falla el mensaje queda al frente.
func (t *Transport) flush() {
	if len(t.queue) > 0 {
		t.logger.Info("flushing outbound queue", "messages", len(t.queue))
	}
	for len(t.queue) > 0 && t.conn != nil {
		msg := t.queue[0]
		if err := t.conn.WriteMessage(msg.data); err != nil {
			t.lost(CloseWriteFailed, "write failed", fmt.Errorf("transport: flush %s: %w", msg.kind, err))
			return
		}
		t.queue = t.queue[1:]
	}
	if len(t.queue) == 0 {
		t.queue = nil
	}
}

func (t *Transport) scheduleHeartbeat() {
	t.heartbeat.Stop()
	t.heartbeat = t.loop.AfterFunc(t.clock, t.cfg.HeartbeatInterval, t.beat)
}

func (t *Transport) beat() {
	t.heartbeat = nil
	if t.conn == nil {
		return
	}
	if _, err := t.SendInLoop(domain.KindHeartbeat, nil); err != nil {
		t.logger.Warn("heartbeat encode failed", "err", err)
	}
	if t.conn == nil {
		return // la escritura falló y ya se cerró
	}
	if t.deadline == nil {
		t.deadline = t.loop.AfterFunc(t.clock, t.cfg.HeartbeatTimeout, t.heartbeatExpired)
	}
	t.scheduleHeartbeat()
}

func (t *Transport) heartbeatExpired() {
	t.deadline = nil
	if t.conn == nil {
		return
	}
	t.logger.Warn("heartbeat timeout, closing socket", "timeout", t.cfg.HeartbeatTimeout)
	t.lost(CloseHeartbeatTimeout, "heartbeat timeout", domain.ErrHeartbeatTimeout)
}

// lost maneja cualquier cierre no intencional: libera el socket y decide la reconexión.
func (t *Transport) lost(code int, reason string, cause error) {
	t.teardown(code, reason, cause)
	if t.intentional {
		return
	}
	t.scheduleReconnect(cause)
}

// teardown detiene los timers del socket, lo cierra y publica EventClosed.
func (t *Transport) teardown(code int, reason string, cause error) {
	t.heartbeat.Stop()
	t.heartbeat = nil
	t.deadline.Stop()
	t.deadline = nil
	if t.cancelDial != nil {
		t.cancelDial()
		t.cancelDial = nil
	}
	if t.conn != nil {
		conn := t.conn
		t.conn = nil
		if err := conn.Close(code, reason); err != nil {
			t.logger.Debug("close failed", "err", err)
		}
	}
	t.gen++
	t.events.Publish(Event{Kind: EventClosed, Code: code, Intentional: t.intentional, Err: cause})
}

func (t *Transport) scheduleReconnect(cause error) {
	if t.attempts >= t.cfg.MaxReconnectAttempts {
		err := fmt.Errorf("%w after %d attempts", domain.ErrMaxReconnectAttempts, t.attempts)
		if cause != nil {
			err = errors.Join(err, cause)
		}
		t.setStatus(domain.StatusError, err, 0)
		if !t.fatal {
			t.fatal = true
			t.logger.Error("giving up reconnecting", "attempts", t.attempts, "err", cause)
			t.events.Publish(Event{Kind: EventFatal, Attempt: t.attempts, Err: err})
		}
		return
	}
	delay := t.backoff.Delay(t.attempts)
	t.reconnect.Stop()
	t.reconnect = t.loop.AfterFunc(t.clock, delay, t.attemptReconnect)
	t.setStatus(domain.StatusReconnecting, cause, delay)
	t.logger.Info("reconnect scheduled", "attempt", t.attempts+1, "delay", delay)
}

func (t *Transport) attemptReconnect() {
	t.reconnect = nil
	t.attempts++
	t.open()
}

func (t *Transport) setStatus(s domain.ConnectionStatus, err error, delay time.Duration) {
	if s == t.status && err == nil {
		return
	}
	prev := t.status
	t.status = s
	t.viewMu.Lock()
	t.view = s
	t.viewMu.Unlock()
	if prev != s {
		t.logger.Debug("status changed", "from", prev, "to", s)
	}
	t.events.Publish(Event{Kind: EventStatus, Status: s, Attempt: t.attempts, Delay: delay, Err: err})
}
