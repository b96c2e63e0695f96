package domain

import "time"

// ConnectionStatus es el estado del socket. Siempre vale exactamente uno.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
	StatusConnecting   ConnectionStatus = "CONNECTING"
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusReconnecting ConnectionStatus = "RECONNECTING"
	StatusError        ConnectionStatus = "ERROR"
)

// ConnectionState es la proyección de conexión/sesión que observa la UI.
type ConnectionState struct {
	Status           ConnectionStatus
	LastError        error        // último error de transporte
	ServerError      *ServerError // último error empujado por el engine
	ReconnectAttempt int
	Fatal            bool // se agotaron los reintentos
	ConnectedAt      time.Time
	LastMessageAt    time.Time
	Stale            bool // proyecciones cargadas del cache, sin snapshot en vivo
}
