// Package transporttest provee un socket en memoria para tests del transporte,
// el correlator y la sesión.
package transporttest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/ports"
)

var (
	// ErrDialRefused es el error de los dials configurados para fallar.
	ErrDialRefused = errors.New("transporttest: connection refused")
	// ErrClosed lo devuelve un Conn cerrado.
	ErrClosed = errors.New("transporttest: use of closed connection")
)

// Conn es un ports.Conn en memoria.
type Conn struct {
	mu        sync.Mutex
	written   [][]byte
	writeErr  error
	closeCode int
	closed    bool

	inbox    chan []byte
	done     chan struct{}
	doneOnce sync.Once
	readErr  error
}

// NewConn crea un Conn abierto.
func NewConn() *Conn {
	return &Conn{inbox: make(chan []byte, 256), done: make(chan struct{})}
}

// ReadMessage devuelve el siguiente frame empujado por el test.
func (c *Conn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbox:
		return data, nil
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, c.readErr
	}
}

// WriteMessage registra el frame enviado por el cliente.
func (c *Conn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

// Close cierra el socket desde el lado del cliente.
func (c *Conn) Close(code int, _ string) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.closeCode = code
		c.readErr = ErrClosed
	}
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })
	return nil
}

// Drop simula una caída de red: la lectura pendiente falla con io.ErrUnexpectedEOF.
func (c *Conn) Drop() {
	c.mu.Lock()
	if c.readErr == nil {
		c.readErr = io.ErrUnexpectedEOF
	}
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })
}

// FailWrites hace que toda escritura posterior devuelva err.
func (c *Conn) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// Push entrega un frame crudo al cliente.
func (c *Conn) Push(data []byte) {
	c.inbox <- data
}

// PushEnvelope serializa y entrega un envelope.
func (c *Conn) PushEnvelope(id string, kind domain.ControlKind, payload any) {
	env, err := domain.NewEnvelope(id, kind, time.Now().UnixMilli(), payload)
	if err != nil {
		panic(err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		panic(err)
	}
	c.Push(data)
}

// Reply contesta al request id con un payload de respuesta.
func (c *Conn) Reply(id string, kind domain.ControlKind, resp domain.Response) {
	c.PushEnvelope(id, kind, resp)
}

// Written devuelve los envelopes enviados por el cliente, en orden.
func (c *Conn) Written() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Envelope, 0, len(c.written))
	for _, data := range c.written {
		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err == nil {
			out = append(out, env)
		}
	}
	return out
}

// WrittenKinds devuelve los tipos enviados, en orden.
func (c *Conn) WrittenKinds() []domain.ControlKind {
	envs := c.Written()
	out := make([]domain.ControlKind, len(envs))
	for i, env := range envs {
		out[i] = env.Type
	}
	return out
}

// LastWritten devuelve el último envelope del tipo kind.
func (c *Conn) LastWritten(kind domain.ControlKind) (domain.Envelope, bool) {
	envs := c.Written()
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type == kind {
			return envs[i], true
		}
	}
	return domain.Envelope{}, false
}

// Closed indica si el cliente cerró el socket.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// CloseCode devuelve el código con el que el cliente cerró.
func (c *Conn) CloseCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCode
}

// Dialer entrega un Conn nuevo por dial, o falla según lo configurado.
type Dialer struct {
	mu         sync.Mutex
	conns      []*Conn
	dials      int
	failNext   int
	failAlways bool
	urls       []string
}

// NewDialer crea un dialer que siempre conecta.
func NewDialer() *Dialer {
	return &Dialer{}
}

var _ ports.Dialer = (*Dialer)(nil)

// Dial implementa ports.Dialer.
func (d *Dialer) Dial(ctx context.Context, url string) (ports.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.urls = append(d.urls, url)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.failAlways {
		return nil, ErrDialRefused
	}
	if d.failNext > 0 {
		d.failNext--
		return nil, ErrDialRefused
	}
	c := NewConn()
	d.conns = append(d.conns, c)
	return c, nil
}

// FailNext hace fallar los próximos n dials.
func (d *Dialer) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = n
}

// FailAlways hace fallar todos los dials mientras fail sea true.
func (d *Dialer) FailAlways(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAlways = fail
}

// Dials devuelve cuántas veces se llamó a Dial.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Conns devuelve los sockets abiertos con éxito, en orden.
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

// Last devuelve el último socket abierto, o nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}
