package ports

import "context"

// Conn es un socket de mensajes ya abierto contra el engine.
type Conn interface {
	// ReadMessage bloquea hasta recibir un frame completo o un error de lectura.
	ReadMessage() ([]byte, error)

	// WriteMessage escribe un frame de texto. Lo llama una sola goroutine a la vez.
	WriteMessage(data []byte) error

	// Close envía un frame de cierre con code/reason (best effort) y libera el socket.
	// Es seguro llamarlo más de una vez.
	Close(code int, reason string) error
}

// Dialer abre conexiones contra la URL configurada.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
