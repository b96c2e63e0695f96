// Package engine conecta con el engine de backtesting por WebSocket.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/ports"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeWait               = 5 * time.Second
	closeWait               = time.Second
	maxMessageSize          = 4 << 20 // los snapshots completos pueden ser grandes
)

// Dialer abre sockets gorilla/websocket contra el engine.
type Dialer struct {
	ws     *websocket.Dialer
	header http.Header
}

// NewDialer crea un Dialer con el timeout de handshake dado (0 = 10s).
func NewDialer(handshakeTimeout time.Duration) *Dialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	return &Dialer{
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		header: http.Header{},
	}
}

// SetHeader agrega un header al handshake (p. ej. un token de acceso).
func (d *Dialer) SetHeader(key, value string) {
	d.header.Set(key, value)
}

// Dial abre el socket. El ctx sólo acota el handshake.
func (d *Dialer) Dial(ctx context.Context, url string) (ports.Conn, error) {
	c, resp, err := d.ws.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("engine.Dial %s: handshake status %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("engine.Dial %s: %w", url, err)
	}
	c.SetReadLimit(maxMessageSize)
	return &Conn{c: c}, nil
}

// Conn adapta *websocket.Conn a ports.Conn.
type Conn struct {
	c *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// ReadMessage devuelve el siguiente frame de datos. Un cierre del engine llega
// como *websocket.CloseError.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.c.ReadMessage()
	return data, err
}

// WriteMessage escribe un frame de texto con deadline.
func (c *Conn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.c.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.c.WriteMessage(websocket.TextMessage, data)
}

// Close manda el frame de cierre (best effort) y cierra el socket.
func (c *Conn) Close(code int, reason string) error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		// el peer pudo haberse ido ya; el error del frame de cierre no importa
		_ = c.c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
		c.closeErr = c.c.Close()
	})
	return c.closeErr
}
