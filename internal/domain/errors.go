package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrRequestTimeout: el request no recibió respuesta dentro del timeout.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrConnectionClosed: el socket se cerró con el request pendiente.
	ErrConnectionClosed = errors.New("connection closed while request pending")
	// ErrMaxReconnectAttempts es fatal para la sesión hasta un Connect explícito.
	ErrMaxReconnectAttempts = errors.New("maximum reconnect attempts exceeded")
	// ErrHeartbeatTimeout: el engine no contestó el heartbeat a tiempo.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")
	// ErrProtocol: frame malformado o con un payload que no corresponde a su tipo.
	ErrProtocol = errors.New("protocol error")
	// ErrUnknownKind: type fuera del conjunto del protocolo.
	ErrUnknownKind = errors.New("unknown message kind")
	// ErrUnexpectedKind: type válido pero que el engine no debería empujar.
	ErrUnexpectedKind = errors.New("unexpected message kind")
	// ErrSessionClosed: la sesión ya fue cerrada.
	ErrSessionClosed = errors.New("session closed")
	// ErrAlertNotFound: no hay alerta con ese id en la cola ni en el historial.
	ErrAlertNotFound = errors.New("alert not found")
)

// OperationError es el rechazo de una operación por parte del engine (success=false).
type OperationError struct {
	Op      ControlKind
	Message string
	Code    string // opcional, provisto por el engine
}

func (e *OperationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code %s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// ServerError es un error reportado por el engine, como push o como respuesta.
type ServerError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// UnmarshalJSON acepta code como string o como número.
func (e *ServerError) UnmarshalJSON(data []byte) error {
	var aux struct {
		Message string          `json:"message"`
		Code    json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	code, err := decodeCode(aux.Code)
	if err != nil {
		return err
	}
	e.Message, e.Code = aux.Message, code
	return nil
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("engine error: %s (code %s)", e.Message, e.Code)
	}
	return "engine error: " + e.Message
}

// ErrAlertRequiresAck: una alerta sync no se descarta localmente, se reconoce.
var ErrAlertRequiresAck = errors.New("sync alert must be acknowledged")
