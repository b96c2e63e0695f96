package session

import (
	"context"
	"errors"
	"time"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/correlator"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/transport"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/ports"
)

// onTransportEvent refleja el ciclo de vida del socket en la proyección de
// conexión y dispara el pedido de estado completo en cada apertura.
func (s *Session) onTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventStatus:
		now := s.clock.Now()
		s.proj.updateConn(func(c *domain.ConnectionState) {
			c.Status = ev.Status
			c.ReconnectAttempt = ev.Attempt
			if ev.Err != nil {
				c.LastError = ev.Err
			}
			switch ev.Status {
			case domain.StatusConnecting:
				c.Fatal = false
			case domain.StatusConnected:
				c.ConnectedAt = now
				c.LastError = nil
				c.ReconnectAttempt = 0
			case domain.StatusDisconnected:
				c.LastError = nil
			case domain.StatusError:
				c.Fatal = errors.Is(ev.Err, domain.ErrMaxReconnectAttempts)
			}
		})
		s.changed(ProjectionConnection, "")

	case transport.EventOpened:
		s.requestStateInLoop()

	case transport.EventFatal:
		s.logger.Error("session lost", "err", ev.Err, "attempts", ev.Attempt)
		s.host.ShowNotification("Connection lost", "Engine unreachable after repeated attempts. Reconnect manually.")

	case transport.EventClosed:
		if !ev.Intentional {
			s.logger.Warn("socket closed", "code", ev.Code, "err", ev.Err)
		}
	}
}

// requestStateInLoop pide el snapshot completo. La respuesta puede traer el
// snapshot o llegar después como push state_sync; ambos caminos lo aplican.
func (s *Session) requestStateInLoop() {
	s.corr.RequestAsync(domain.KindRequestState, nil, func(r correlator.Reply, err error) {
		if err != nil {
			s.logger.Warn("full state request failed", "err", err)
			return
		}
		if err := r.Response.Err(domain.KindRequestState); err != nil {
			s.logger.Warn("full state request rejected", "err", err)
			return
		}
		if err := s.applySnapshotResponse(r.Response); err != nil {
			s.logger.Warn("invalid state snapshot", "err", err)
		}
	})
}

func (s *Session) applySnapshotResponse(resp domain.Response) error {
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil
	}
	snap, err := domain.DecodeSnapshot(resp.Data)
	if err != nil {
		return err
	}
	s.applySnapshot(snap)
	return nil
}

// applyPush es el único lugar donde un push modifica proyecciones.
func (s *Session) applyPush(msg domain.Message) {
	now := s.clock.Now()
	s.proj.updateConn(func(c *domain.ConnectionState) { c.LastMessageAt = now })

	switch m := msg.(type) {
	case domain.TickUpdate:
		s.proj.setTick(m.Tick)
		s.changed(ProjectionMarketData, m.Symbol)
	case domain.BarUpdate:
		s.proj.setBar(m.Bar)
		s.changed(ProjectionMarketData, m.Symbol)
	case domain.PositionUpdate:
		s.proj.upsertPosition(m.Position)
		s.changed(ProjectionPositions, m.Symbol)
	case domain.AccountUpdate:
		s.proj.setAccount(s.proj.accountView().Apply(m.AccountDelta, now))
		s.changed(ProjectionAccount, "")
	case domain.TradeUpdate:
		s.proj.appendTrade(m.Trade)
		s.changed(ProjectionTrades, m.TradeID)
	case domain.AlertRaised:
		s.onAlert(m.Alert)
	case domain.ErrorPush:
		se := m.ServerError
		s.logger.Warn("engine reported error", "message", se.Message, "code", se.Code)
		s.proj.updateConn(func(c *domain.ConnectionState) { c.ServerError = &se })
		s.changed(ProjectionConnection, "")
	case domain.StatusUpdate:
		s.proj.setBacktest(m.BacktestStatus)
		s.changed(ProjectionBacktest, "")
	case domain.StateSync:
		s.applySnapshot(m.StateSnapshot)
	case domain.ConnectAck:
		s.logger.Info("engine acknowledged session", "server_version", m.ServerVersion)
	case domain.DisconnectNotice:
		s.logger.Warn("engine is closing the session", "reason", m.Reason)
	case domain.HeartbeatReply:
		// los consume el transporte
	}
}

// applySnapshot reemplaza posiciones, estrategias y cola de alertas por
// completo; cuenta y backtest se toman de los campos presentes.
func (s *Session) applySnapshot(snap domain.StateSnapshot) {
	s.proj.replacePositions(snap.Positions)
	s.proj.replaceStrategies(snap.Strategies)
	if snap.Account != nil {
		s.proj.setAccount(*snap.Account)
	}
	if snap.Backtest != nil {
		s.proj.setBacktest(*snap.Backtest)
	}
	s.replaceAlerts(snap.Alerts)
	s.proj.updateConn(func(c *domain.ConnectionState) { c.Stale = false })

	s.logger.Info("state snapshot applied",
		"positions", len(snap.Positions),
		"strategies", len(snap.Strategies),
		"alerts", len(snap.Alerts),
	)
	for _, kind := range []ProjectionKind{ProjectionPositions, ProjectionStrategies, ProjectionAccount, ProjectionBacktest, ProjectionAlerts, ProjectionConnection} {
		s.changed(kind, "")
	}
	if s.store != nil {
		s.store.saveSnapshot(snap)
	}
}

// seedFromCache carga el último estado persistido antes de tener conexión.
func (s *Session) seedFromCache(cache ports.StateCache) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, ok, err := cache.LoadSnapshot(ctx)
	if err != nil {
		s.logger.Warn("could not load cached snapshot", "err", err)
	}
	if ok {
		s.proj.replacePositions(snap.Positions)
		s.proj.replaceStrategies(snap.Strategies)
		if snap.Account != nil {
			s.proj.setAccount(*snap.Account)
		}
		if snap.Backtest != nil {
			s.proj.setBacktest(*snap.Backtest)
		}
		s.proj.updateConn(func(c *domain.ConnectionState) { c.Stale = true })
	}

	alerts, err := cache.RecentAlerts(ctx, s.cfg.AlertHistoryLimit)
	if err != nil {
		s.logger.Warn("could not load alert history", "err", err)
		return
	}
	// RecentAlerts viene la más reciente primero; se insertan al revés
	for i := len(alerts) - 1; i >= 0; i-- {
		s.proj.recordHistory(alerts[i])
	}
	s.logger.Info("seeded projections from cache", "snapshot", ok, "alerts", len(alerts))
}
