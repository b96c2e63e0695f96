package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(kind domain.ControlKind, payload string) domain.Envelope {
	return domain.Envelope{ID: "srv-1", Type: kind, Timestamp: 1700000000000, Payload: json.RawMessage(payload)}
}

func TestDecode_PushKinds(t *testing.T) {
	msg, err := domain.Decode(envelope(domain.KindTickUpdate, `{"symbol":"BTCUSDT","price":"43000.5","bid":43000,"ask":43001}`))
	require.NoError(t, err)
	tick, ok := msg.(domain.TickUpdate)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", tick.Symbol)
	assert.True(t, tick.Price.Equal(decimal.RequireFromString("43000.5")))

	msg, err = domain.Decode(envelope(domain.KindPositionUpdate, `{"symbol":"ETHUSDT","side":"long","quantity":2,"avg_price":"2200"}`))
	require.NoError(t, err)
	pos := msg.(domain.PositionUpdate)
	assert.Equal(t, domain.SideLong, pos.Side)
	assert.Equal(t, domain.KindPositionUpdate, pos.Kind())

	msg, err = domain.Decode(envelope(domain.KindStateSync, `{"positions":[{"symbol":"A","quantity":1}],"strategies":[],"alerts":[]}`))
	require.NoError(t, err)
	snap := msg.(domain.StateSync)
	require.Len(t, snap.Positions, 1)
	assert.Nil(t, snap.Account)

	msg, err = domain.Decode(envelope(domain.KindHeartbeat, ``))
	require.NoError(t, err)
	assert.Equal(t, domain.KindHeartbeat, msg.Kind())
}

func TestDecode_EveryKindIsHandled(t *testing.T) {
	for _, kind := range domain.Kinds() {
		_, err := domain.Decode(envelope(kind, `{"alert_id":"a1","alert_type":"async"}`))
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrUnexpectedKind, "kind %s", kind)
		}
	}
}

func TestDecode_Errors(t *testing.T) {
	_, err := domain.Decode(envelope("mystery", `{}`))
	assert.ErrorIs(t, err, domain.ErrUnknownKind)

	_, err = domain.Decode(envelope(domain.KindManualOrder, `{}`))
	assert.ErrorIs(t, err, domain.ErrUnexpectedKind)

	_, err = domain.Decode(envelope(domain.KindBarUpdate, `{"open":"not-a-number"}`))
	assert.ErrorIs(t, err, domain.ErrProtocol)

	_, err = domain.Decode(envelope(domain.KindAlert, `{"alert_id":"x","alert_type":"maybe"}`))
	assert.ErrorIs(t, err, domain.ErrProtocol)
}

func TestParseEnvelope(t *testing.T) {
	env, err := domain.ParseEnvelope([]byte(`{"id":"1","type":"heartbeat","timestamp":5,"payload":{}}`))
	require.NoError(t, err)
	assert.Equal(t, domain.KindHeartbeat, env.Type)

	_, err = domain.ParseEnvelope([]byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrProtocol)

	_, err = domain.ParseEnvelope([]byte(`{"id":"1"}`))
	assert.ErrorIs(t, err, domain.ErrProtocol)
}

func TestNewEnvelope_NilPayload(t *testing.T) {
	env, err := domain.NewEnvelope("id-1", domain.KindRequestState, 10, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(env.Payload))

	_, err = domain.NewEnvelope("id-2", domain.KindManualOrder, 10, map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestDecodeResponse_NumericCodes(t *testing.T) {
	_, err := domain.DecodeResponse(envelope(domain.KindError, `{"message":"engine busy","code":503}`))
	var se *domain.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "503", se.Code)
	assert.Equal(t, "engine busy", se.Message)

	resp, err := domain.DecodeResponse(envelope(domain.KindManualOrder, `{"success":false,"message":"rejected","code":1042,"data":{"x":1}}`))
	require.NoError(t, err)
	assert.Equal(t, "1042", resp.Code)
	assert.JSONEq(t, `{"x":1}`, string(resp.Data))
	var opErr *domain.OperationError
	require.ErrorAs(t, resp.Err(domain.KindManualOrder), &opErr)
	assert.Equal(t, "1042", opErr.Code)

	resp, err = domain.DecodeResponse(envelope(domain.KindBacktestStart, `{"success":true,"code":null}`))
	require.NoError(t, err)
	assert.Empty(t, resp.Code)

	_, err = domain.DecodeResponse(envelope(domain.KindManualOrder, `{"success":false,"code":true}`))
	assert.ErrorIs(t, err, domain.ErrProtocol)
}

func TestDecodeResponse(t *testing.T) {
	resp, err := domain.DecodeResponse(envelope(domain.KindManualOrder, `{"success":false,"message":"insufficient margin","code":"E_MARGIN"}`))
	require.NoError(t, err)
	opErr := resp.Err(domain.KindManualOrder)
	var target *domain.OperationError
	require.ErrorAs(t, opErr, &target)
	assert.Equal(t, "E_MARGIN", target.Code)
	assert.Contains(t, opErr.Error(), "insufficient margin")

	_, err = domain.DecodeResponse(envelope(domain.KindError, `{"message":"boom","code":"E1"}`))
	var se *domain.ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "boom", se.Message)

	resp, err = domain.DecodeResponse(envelope(domain.KindStateSync, `{"positions":[]}`))
	require.NoError(t, err)
	assert.True(t, resp.Success)
	_, err = domain.DecodeSnapshot(resp.Data)
	assert.NoError(t, err)
}
