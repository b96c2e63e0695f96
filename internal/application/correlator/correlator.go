// Package correlator empareja requests con sus respuestas por id de envelope y
// reparte los pushes no solicitados a los suscriptores de cada tipo.
package correlator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/transport"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/clock"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/eventloop"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/pubsub"
	"golang.org/x/time/rate"
)

// DefaultTimeout es el timeout por request si no se configura otro.
const DefaultTimeout = 30 * time.Second

// Sender es la parte del transporte que usa el correlator. Se llama desde el loop.
//
// Un request rechazado localmente (timeout o cierre) no debe llegar al engine:
// DiscardQueuedInLoop retira su frame si sigue en la cola de salida.
type Sender interface {
	SendInLoop(kind domain.ControlKind, payload any) (string, error)
	DiscardQueuedInLoop(id string) bool
}

// Reply es la respuesta correlacionada a un request.
type Reply struct {
	Envelope domain.Envelope
	Response domain.Response
}

// Callback recibe el resultado de RequestAsync, siempre en el loop y una sola vez.
type Callback func(Reply, error)

type pending struct {
	id    string
	kind  domain.ControlKind
	done  Callback
	timer *eventloop.Timer
}

// Correlator mantiene el registro de requests pendientes. Todo su estado vive en el loop.
type Correlator struct {
	loop    *eventloop.Loop
	sender  Sender
	clock   clock.Clock
	timeout time.Duration
	logger  *slog.Logger

	pending map[string]*pending
	topics  *pubsub.Topics[domain.ControlKind, domain.Message]
	badPush rate.Sometimes
}

// New crea el correlator y lo engancha al transporte: recibe sus envelopes y
// barre los pendientes en cada cierre.
func New(tr *transport.Transport, loop *eventloop.Loop, clk clock.Clock, timeout time.Duration, logger *slog.Logger) *Correlator {
	c := NewWithSender(tr, loop, clk, timeout, logger)
	tr.SetInbound(c.HandleInLoop)
	tr.Subscribe(func(ev transport.Event) {
		if ev.Kind == transport.EventClosed {
			c.SweepInLoop()
		}
	})
	return c
}

// NewWithSender crea un correlator sin engancharlo a un transporte concreto.
func NewWithSender(sender Sender, loop *eventloop.Loop, clk clock.Clock, timeout time.Duration, logger *slog.Logger) *Correlator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	logger = logger.With("component", "correlator")
	return &Correlator{
		loop:    loop,
		sender:  sender,
		clock:   clk,
		timeout: timeout,
		logger:  logger,
		pending: make(map[string]*pending),
		topics:  pubsub.NewTopics[domain.ControlKind, domain.Message](logger),
		badPush: rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
}

// Subscribe registra un handler para los pushes de un tipo. Los handlers corren
// en el loop: no deben bloquear ni llamar métodos bloqueantes de la sesión.
func (c *Correlator) Subscribe(kind domain.ControlKind, fn func(domain.Message)) (unsubscribe func()) {
	return c.topics.Subscribe(kind, fn)
}

// Request envía kind y espera la respuesta correlacionada.
//
// Cancelar ctx sólo abandona la espera: el pendiente sigue registrado hasta
// que llega la respuesta, vence el timeout o se cierra el socket.
func (c *Correlator) Request(ctx context.Context, kind domain.ControlKind, payload any) (Reply, error) {
	type result struct {
		reply Reply
		err   error
	}
	ch := make(chan result, 1)
	if !c.loop.Post(func() {
		c.RequestAsync(kind, payload, func(r Reply, err error) { ch <- result{r, err} })
	}) {
		return Reply{}, fmt.Errorf("correlator.Request %s: %w", kind, domain.ErrSessionClosed)
	}
	select {
	case res := <-ch:
		return res.reply, res.err
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	case <-c.loop.Done():
		return Reply{}, fmt.Errorf("correlator.Request %s: %w", kind, domain.ErrSessionClosed)
	}
}

// RequestAsync es Request dentro del loop; done se invoca una única vez.
func (c *Correlator) RequestAsync(kind domain.ControlKind, payload any, done Callback) {
	id, err := c.sender.SendInLoop(kind, payload)
	if err != nil {
		done(Reply{}, fmt.Errorf("correlator.Request %s: %w", kind, err))
		return
	}
	p := &pending{id: id, kind: kind, done: done}
	p.timer = c.loop.AfterFunc(c.clock, c.timeout, func() { c.expire(id) })
	c.pending[id] = p
	c.logger.Debug("request registered", "kind", kind, "id", id, "pending", len(c.pending))
}

// Pending devuelve cuántos requests esperan respuesta.
func (c *Correlator) Pending(ctx context.Context) (int, error) {
	var n int
	err := c.loop.Call(ctx, func() { n = len(c.pending) })
	return n, err
}

func (c *Correlator) expire(id string) {
	p, ok := c.pending[id]
	if !ok {
		return
	}
	delete(c.pending, id)
	queued := c.sender.DiscardQueuedInLoop(id)
	c.logger.Warn("request timed out", "kind", p.kind, "id", id, "timeout", c.timeout, "never_sent", queued)
	p.done(Reply{}, fmt.Errorf("correlator: %s %s after %s: %w", p.kind, id, c.timeout, domain.ErrRequestTimeout))
}

// HandleInLoop enruta un envelope entrante: primero a su request pendiente; si
// no hay, se decodifica como push y se reparte a los suscriptores del tipo.
func (c *Correlator) HandleInLoop(env domain.Envelope) {
	if p, ok := c.pending[env.ID]; ok {
		delete(c.pending, env.ID)
		p.timer.Stop()
		resp, err := domain.DecodeResponse(env)
		if err != nil {
			p.done(Reply{Envelope: env}, fmt.Errorf("correlator: %s %s: %w", p.kind, p.id, err))
			return
		}
		p.done(Reply{Envelope: env, Response: resp}, nil)
		return
	}

	msg, err := domain.Decode(env)
	if err != nil {
		c.badPush.Do(func() {
			c.logger.Warn("dropping undecodable push", "kind", env.Type, "id", env.ID, "err", err)
		})
		return
	}
	if !c.topics.Publish(env.Type, msg) {
		c.logger.Debug("push without subscribers", "kind", env.Type)
	}
}

// SweepInLoop rechaza todos los pendientes con ErrConnectionClosed y vacía el
// registro. Los que aún esperaban en la cola de salida se retiran de ella.
// Llamarlo de nuevo con el registro vacío no hace nada.
func (c *Correlator) SweepInLoop() {
	if len(c.pending) == 0 {
		return
	}
	swept := c.pending
	c.pending = make(map[string]*pending)
	c.logger.Info("rejecting pending requests on close", "count", len(swept))
	for _, p := range swept {
		p.timer.Stop()
		if c.sender.DiscardQueuedInLoop(p.id) {
			c.logger.Debug("request dropped from outbound queue", "kind", p.kind, "id", p.id)
		}
		p.done(Reply{}, fmt.Errorf("correlator: %s %s: %w", p.kind, p.id, domain.ErrConnectionClosed))
	}
}
