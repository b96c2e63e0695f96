package domain

import (
	"encoding/json"
	"fmt"
)

// ControlKind es el discriminador del envelope. El conjunto es cerrado y lo
// comparten cliente y engine.
type ControlKind string

const (
	// control
	KindConnect    ControlKind = "connect"
	KindDisconnect ControlKind = "disconnect"
	KindHeartbeat  ControlKind = "heartbeat"

	// control de backtest
	KindBacktestStart  ControlKind = "backtest_start"
	KindBacktestPause  ControlKind = "backtest_pause"
	KindBacktestResume ControlKind = "backtest_resume"
	KindBacktestStep   ControlKind = "backtest_step"
	KindBacktestStop   ControlKind = "backtest_stop"

	// pushes de datos
	KindTickUpdate     ControlKind = "tick_update"
	KindBarUpdate      ControlKind = "bar_update"
	KindPositionUpdate ControlKind = "position_update"
	KindAccountUpdate  ControlKind = "account_update"
	KindTradeUpdate    ControlKind = "trade_update"

	// estrategias
	KindStrategyLoad         ControlKind = "strategy_load"
	KindStrategyReload       ControlKind = "strategy_reload"
	KindStrategyUpdateParams ControlKind = "strategy_update_params"

	// trading manual
	KindManualOrder    ControlKind = "manual_order"
	KindManualCancel   ControlKind = "manual_cancel"
	KindManualCloseAll ControlKind = "manual_close_all"

	// snapshots del engine
	KindSnapshotSave ControlKind = "snapshot_save"
	KindSnapshotLoad ControlKind = "snapshot_load"

	// alertas
	KindAlert    ControlKind = "alert"
	KindAlertAck ControlKind = "alert_ack"

	// sistema
	KindError  ControlKind = "error"
	KindStatus ControlKind = "status"

	// sincronización
	KindStateSync    ControlKind = "state_sync"
	KindRequestState ControlKind = "request_state"
)

// Kinds devuelve el conjunto completo de tipos del protocolo.
func Kinds() []ControlKind {
	return []ControlKind{
		KindConnect, KindDisconnect, KindHeartbeat,
		KindBacktestStart, KindBacktestPause, KindBacktestResume, KindBacktestStep, KindBacktestStop,
		KindTickUpdate, KindBarUpdate, KindPositionUpdate, KindAccountUpdate, KindTradeUpdate,
		KindStrategyLoad, KindStrategyReload, KindStrategyUpdateParams,
		KindManualOrder, KindManualCancel, KindManualCloseAll,
		KindSnapshotSave, KindSnapshotLoad,
		KindAlert, KindAlertAck,
		KindError, KindStatus,
		KindStateSync, KindRequestState,
	}
}

// Valid indica si k pertenece al protocolo.
func (k ControlKind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// Envelope es el wrapper de todo mensaje en el cable.
type Envelope struct {
	ID        string          `json:"id"`
	Type      ControlKind     `json:"type"`
	Timestamp int64           `json:"timestamp"` // epoch ms
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope serializa payload y arma el envelope. Un payload nil se envía como {}.
func NewEnvelope(id string, kind ControlKind, timestampMs int64, payload any) (Envelope, error) {
	raw := json.RawMessage(`{}`)
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("domain.NewEnvelope: marshal %s payload: %w", kind, err)
		}
		raw = b
	}
	return Envelope{ID: id, Type: kind, Timestamp: timestampMs, Payload: raw}, nil
}

// ParseEnvelope decodifica un frame crudo. Frames que no son JSON o no traen
// type son errores de protocolo.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: envelope without type", ErrProtocol)
	}
	return env, nil
}

// Response es el payload de respuesta a un request correlacionado.
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// UnmarshalJSON acepta code como string o como número.
func (r *Response) UnmarshalJSON(data []byte) error {
	type plain Response
	aux := struct {
		*plain
		Code json.RawMessage `json:"code,omitempty"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	code, err := decodeCode(aux.Code)
	if err != nil {
		return err
	}
	r.Code = code
	return nil
}

// decodeCode normaliza el code del engine a string: "E_MARGIN" y 409 valen igual.
func decodeCode(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("code: %w", err)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("code: %w", err)
	}
	return n.String(), nil
}

// DecodeResponse interpreta el envelope que contesta a un request.
//   - type error → *ServerError
//   - type state_sync → respuesta exitosa con el snapshot en Data
//   - cualquier otro → payload {success, message, code, data}
func DecodeResponse(env Envelope) (Response, error) {
	switch env.Type {
	case KindError:
		var se ServerError
		if err := json.Unmarshal(env.Payload, &se); err != nil {
			return Response{}, fmt.Errorf("%w: error reply: %v", ErrProtocol, err)
		}
		return Response{}, &se
	case KindStateSync:
		return Response{Success: true, Data: env.Payload}, nil
	}
	var resp Response
	if len(env.Payload) == 0 {
		return resp, fmt.Errorf("%w: empty %s reply", ErrProtocol, env.Type)
	}
	if err := json.Unmarshal(env.Payload, &resp); err != nil {
		return Response{}, fmt.Errorf("%w: %s reply: %v", ErrProtocol, env.Type, err)
	}
	return resp, nil
}

// Err convierte una respuesta no exitosa en *OperationError.
func (r Response) Err(op ControlKind) error {
	if r.Success {
		return nil
	}
	msg := r.Message
	if msg == "" {
		msg = "operation rejected by engine"
	}
	return &OperationError{Op: op, Message: msg, Code: r.Code}
}

// DecodeData deserializa Data en v. No hace nada si Data está vacío.
func (r Response) DecodeData(v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("domain.Response.DecodeData: %w", err)
	}
	return nil
}

// ClientHello es el payload de connect que el cliente envía al abrir el socket.
type ClientHello struct {
	Client  string `json:"client"`
	Version string `json:"version"`
}

// DisconnectRequest es el aviso de cierre intencional del cliente.
type DisconnectRequest struct {
	Reason string `json:"reason"`
}
