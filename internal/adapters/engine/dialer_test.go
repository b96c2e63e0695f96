package engine_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/adapters/engine"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/session"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// newServer levanta un engine de prueba; handle recibe cada frame de texto y
// devuelve los frames a contestar.
func newServer(t *testing.T, closes chan<- int, handle func([]byte) [][]byte) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			_, data, err := c.ReadMessage()
			if err != nil {
				if ce, ok := err.(*websocket.CloseError); ok && closes != nil {
					closes <- ce.Code
				}
				return
			}
			for _, out := range handle(data) {
				if err := c.WriteMessage(websocket.TextMessage, out); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func echo(data []byte) [][]byte { return [][]byte{data} }

func TestDialer_WriteAndRead(t *testing.T) {
	url := newServer(t, nil, echo)

	conn, err := engine.NewDialer(0).Dial(context.Background(), url)
	require.NoError(t, err)
	defer conn.Close(websocket.CloseNormalClosure, "")

	require.NoError(t, conn.WriteMessage([]byte(`{"type":"heartbeat"}`)))
	got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"heartbeat"}`, string(got))
}

func TestConn_CloseSendsCodeOnce(t *testing.T) {
	closes := make(chan int, 2)
	url := newServer(t, closes, echo)

	conn, err := engine.NewDialer(time.Second).Dial(context.Background(), url)
	require.NoError(t, err)

	require.NoError(t, conn.Close(4000, "heartbeat timeout"))
	_ = conn.Close(1000, "again")

	select {
	case code := <-closes:
		assert.Equal(t, 4000, code)
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the close frame")
	}
	assert.Empty(t, closes)

	_, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestDialer_HandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := engine.NewDialer(time.Second).Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handshake status 404")
}

// El engine de prueba contesta request_state con un snapshot y cualquier otro
// request con success.
func TestSession_OverWebSocket(t *testing.T) {
	snap := domain.StateSnapshot{Positions: []domain.Position{{
		Symbol: "AAPL", Side: domain.SideLong, Quantity: decimal.NewFromInt(10), AvgPrice: decimal.NewFromInt(150),
	}}}
	url := newServer(t, nil, func(data []byte) [][]byte {
		env, err := domain.ParseEnvelope(data)
		if err != nil {
			return nil
		}
		var reply domain.Envelope
		switch env.Type {
		case domain.KindConnect, domain.KindHeartbeat:
			return nil
		case domain.KindRequestState:
			reply, err = domain.NewEnvelope(env.ID, domain.KindStateSync, time.Now().UnixMilli(), snap)
		default:
			reply, err = domain.NewEnvelope(env.ID, env.Type, time.Now().UnixMilli(), domain.Response{Success: true})
		}
		if err != nil {
			return nil
		}
		out, _ := json.Marshal(reply)
		return [][]byte{out}
	})

	cfg := session.DefaultConfig()
	cfg.Transport.URL = url
	s, err := session.New(cfg, session.Deps{Dialer: engine.NewDialer(time.Second)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	defer func() {
		require.NoError(t, s.Close())
		<-done
	}()

	require.NoError(t, s.Connect(ctx))
	require.Eventually(t, func() bool { return len(s.Positions()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "AAPL", s.Positions()[0].Symbol)

	reqCtx, reqCancel := context.WithTimeout(ctx, 2*time.Second)
	defer reqCancel()
	require.NoError(t, s.PauseBacktest(reqCtx))
}
