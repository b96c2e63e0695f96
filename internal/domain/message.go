package domain

import (
	"encoding/json"
	"fmt"
)

// Message es la unión etiquetada de los pushes que el engine puede enviar.
// Decode es el único punto donde un envelope se convierte en un tipo concreto.
type Message interface {
	Kind() ControlKind
}

// HeartbeatReply contesta a un heartbeat del cliente.
type HeartbeatReply struct{}

// ConnectAck es la respuesta del engine al saludo connect.
type ConnectAck struct {
	ServerVersion string `json:"server_version,omitempty"`
	Message       string `json:"message,omitempty"`
}

// DisconnectNotice avisa que el engine va a cerrar la sesión.
type DisconnectNotice struct {
	Reason string `json:"reason,omitempty"`
}

// TickUpdate ... cada push envuelve el tipo de dominio que actualiza.
type TickUpdate struct{ Tick }

type BarUpdate struct{ Bar }

type PositionUpdate struct{ Position }

type AccountUpdate struct{ AccountDelta }

type TradeUpdate struct{ Trade }

type AlertRaised struct{ Alert }

// ErrorPush es un error del engine no correlacionado con un request.
type ErrorPush struct{ ServerError }

// StatusUpdate reporta el estado del backtest.
type StatusUpdate struct{ BacktestStatus }

// StateSync es el snapshot completo.
type StateSync struct{ StateSnapshot }

func (HeartbeatReply) Kind() ControlKind   { return KindHeartbeat }
func (ConnectAck) Kind() ControlKind       { return KindConnect }
func (DisconnectNotice) Kind() ControlKind { return KindDisconnect }
func (TickUpdate) Kind() ControlKind       { return KindTickUpdate }
func (BarUpdate) Kind() ControlKind        { return KindBarUpdate }
func (PositionUpdate) Kind() ControlKind   { return KindPositionUpdate }
func (AccountUpdate) Kind() ControlKind    { return KindAccountUpdate }
func (TradeUpdate) Kind() ControlKind      { return KindTradeUpdate }
func (AlertRaised) Kind() ControlKind      { return KindAlert }
func (ErrorPush) Kind() ControlKind        { return KindError }
func (StatusUpdate) Kind() ControlKind     { return KindStatus }
func (StateSync) Kind() ControlKind        { return KindStateSync }

// Decode convierte un envelope no correlacionado en su Message concreto.
// El switch cubre todo ControlKind: los tipos que sólo viajan del cliente al
// engine devuelven ErrUnexpectedKind.
func Decode(env Envelope) (Message, error) {
	switch env.Type {
	case KindHeartbeat:
		return HeartbeatReply{}, nil
	case KindConnect:
		return decodeAs[ConnectAck](env)
	case KindDisconnect:
		return decodeAs[DisconnectNotice](env)
	case KindTickUpdate:
		return decodeAs[TickUpdate](env)
	case KindBarUpdate:
		return decodeAs[BarUpdate](env)
	case KindPositionUpdate:
		return decodeAs[PositionUpdate](env)
	case KindAccountUpdate:
		return decodeAs[AccountUpdate](env)
	case KindTradeUpdate:
		return decodeAs[TradeUpdate](env)
	case KindAlert:
		msg, err := decodeAs[AlertRaised](env)
		if err != nil {
			return nil, err
		}
		if msg.AlertID == "" {
			return nil, fmt.Errorf("%w: alert without alert_id", ErrProtocol)
		}
		if msg.AlertType != AlertSync && msg.AlertType != AlertAsync {
			return nil, fmt.Errorf("%w: alert %s has invalid alert_type %q", ErrProtocol, msg.AlertID, msg.AlertType)
		}
		return msg, nil
	case KindError:
		return decodeAs[ErrorPush](env)
	case KindStatus:
		return decodeAs[StatusUpdate](env)
	case KindStateSync:
		return decodeAs[StateSync](env)
	case KindBacktestStart, KindBacktestPause, KindBacktestResume, KindBacktestStep, KindBacktestStop,
		KindStrategyLoad, KindStrategyReload, KindStrategyUpdateParams,
		KindManualOrder, KindManualCancel, KindManualCloseAll,
		KindSnapshotSave, KindSnapshotLoad,
		KindAlertAck, KindRequestState:
		return nil, fmt.Errorf("%w: %s is client-to-engine only", ErrUnexpectedKind, env.Type)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, env.Type)
	}
}

func decodeAs[T Message](env Envelope) (T, error) {
	var msg T
	if len(env.Payload) == 0 {
		return msg, nil
	}
	if err := json.Unmarshal(env.Payload, &msg); err != nil {
		return msg, fmt.Errorf("%w: %s payload: %v", ErrProtocol, env.Type, err)
	}
	return msg, nil
}

// DecodeSnapshot deserializa un snapshot desde un payload o el data de una respuesta.
func DecodeSnapshot(raw json.RawMessage) (StateSnapshot, error) {
	var snap StateSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return StateSnapshot{}, fmt.Errorf("%w: state snapshot: %v", ErrProtocol, err)
	}
	return snap, nil
}
