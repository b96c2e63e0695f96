package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/correlator"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
)

// Operaciones de dominio. Cada una manda un request, espera la respuesta
// correlacionada y convierte success=false en *domain.OperationError.

type stepPayload struct {
	Steps int `json:"steps"`
}

type strategyRef struct {
	StrategyID string `json:"strategy_id"`
}

type paramsUpdate struct {
	StrategyID string         `json:"strategy_id"`
	Params     map[string]any `json:"params"`
}

type cancelPayload struct {
	OrderID string `json:"order_id"`
}

type snapshotSave struct {
	Name string `json:"name"`
}

type snapshotLoad struct {
	SnapshotID string `json:"snapshot_id"`
}

// request envía kind y espera la respuesta. apply, si no es nil, corre en el
// loop con la respuesta exitosa antes de que se procese el siguiente mensaje.
func (s *Session) request(ctx context.Context, kind domain.ControlKind, payload any, apply func(domain.Response) error) (domain.Response, error) {
	if apply == nil {
		reply, err := s.corr.Request(ctx, kind, payload)
		if err != nil {
			return domain.Response{}, err
		}
		return reply.Response, reply.Response.Err(kind)
	}

	type result struct {
		resp domain.Response
		err  error
	}
	ch := make(chan result, 1)
	if !s.loop.Post(func() {
		s.corr.RequestAsync(kind, payload, func(r correlator.Reply, err error) {
			if err == nil {
				err = r.Response.Err(kind)
			}
			if err == nil {
				err = apply(r.Response)
			}
			ch <- result{r.Response, err}
		})
	}) {
		return domain.Response{}, domain.ErrSessionClosed
	}
	select {
	case res := <-ch:
		return res.resp, res.err
	case <-ctx.Done():
		return domain.Response{}, ctx.Err()
	case <-s.loop.Done():
		return domain.Response{}, domain.ErrSessionClosed
	}
}

// StartBacktest arranca un backtest con la configuración dada.
func (s *Session) StartBacktest(ctx context.Context, cfg domain.BacktestConfig) error {
	if len(cfg.Symbols) == 0 {
		return errors.New("session.StartBacktest: at least one symbol is required")
	}
	if _, err := s.request(ctx, domain.KindBacktestStart, cfg, nil); err != nil {
		return fmt.Errorf("session.StartBacktest: %w", err)
	}
	return nil
}

// PauseBacktest pausa el replay.
func (s *Session) PauseBacktest(ctx context.Context) error {
	if _, err := s.request(ctx, domain.KindBacktestPause, nil, nil); err != nil {
		return fmt.Errorf("session.PauseBacktest: %w", err)
	}
	return nil
}

// ResumeBacktest reanuda un backtest pausado.
func (s *Session) ResumeBacktest(ctx context.Context) error {
	if _, err := s.request(ctx, domain.KindBacktestResume, nil, nil); err != nil {
		return fmt.Errorf("session.ResumeBacktest: %w", err)
	}
	return nil
}

// StepBacktest avanza steps barras con el backtest pausado.
func (s *Session) StepBacktest(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	if _, err := s.request(ctx, domain.KindBacktestStep, stepPayload{Steps: steps}, nil); err != nil {
		return fmt.Errorf("session.StepBacktest: %w", err)
	}
	return nil
}

// StopBacktest detiene el backtest.
func (s *Session) StopBacktest(ctx context.Context) error {
	if _, err := s.request(ctx, domain.KindBacktestStop, nil, nil); err != nil {
		return fmt.Errorf("session.StopBacktest: %w", err)
	}
	return nil
}

// LoadStrategy carga una estrategia en el engine y devuelve la instancia creada.
func (s *Session) LoadStrategy(ctx context.Context, spec domain.StrategySpec) (domain.StrategyInstance, error) {
	if spec.FilePath == "" {
		return domain.StrategyInstance{}, errors.New("session.LoadStrategy: file path is required")
	}
	var inst domain.StrategyInstance
	_, err := s.request(ctx, domain.KindStrategyLoad, spec, func(resp domain.Response) error {
		if err := resp.DecodeData(&inst); err != nil {
			return err
		}
		s.upsertStrategyFromReply(inst)
		return nil
	})
	if err != nil {
		return domain.StrategyInstance{}, fmt.Errorf("session.LoadStrategy: %w", err)
	}
	return inst, nil
}

// ReloadStrategy recarga el código de una estrategia ya cargada.
func (s *Session) ReloadStrategy(ctx context.Context, strategyID string) error {
	_, err := s.request(ctx, domain.KindStrategyReload, strategyRef{StrategyID: strategyID}, s.strategyReply)
	if err != nil {
		return fmt.Errorf("session.ReloadStrategy %s: %w", strategyID, err)
	}
	return nil
}

// UpdateParams cambia parámetros de una estrategia en caliente.
func (s *Session) UpdateParams(ctx context.Context, strategyID string, params map[string]any) error {
	if len(params) == 0 {
		return errors.New("session.UpdateParams: no params given")
	}
	payload := paramsUpdate{StrategyID: strategyID, Params: params}
	if _, err := s.request(ctx, domain.KindStrategyUpdateParams, payload, s.strategyReply); err != nil {
		return fmt.Errorf("session.UpdateParams %s: %w", strategyID, err)
	}
	return nil
}

// strategyReply aplica la instancia devuelta por el engine, si vino alguna.
func (s *Session) strategyReply(resp domain.Response) error {
	var inst domain.StrategyInstance
	if err := resp.DecodeData(&inst); err != nil {
		return err
	}
	s.upsertStrategyFromReply(inst)
	return nil
}

func (s *Session) upsertStrategyFromReply(inst domain.StrategyInstance) {
	if inst.StrategyID == "" {
		return
	}
	s.proj.upsertStrategy(inst)
	s.changed(ProjectionStrategies, inst.StrategyID)
}

// SubmitOrder envía una orden manual y devuelve su id en el engine.
func (s *Session) SubmitOrder(ctx context.Context, order domain.OrderRequest) (string, error) {
	if order.OrderType == "" {
		order.OrderType = domain.OrderMarket
	}
	if err := order.Validate(); err != nil {
		return "", fmt.Errorf("session.SubmitOrder: %w", err)
	}
	resp, err := s.request(ctx, domain.KindManualOrder, order, nil)
	if err != nil {
		return "", fmt.Errorf("session.SubmitOrder: %w", err)
	}
	var accepted domain.OrderAccepted
	if err := resp.DecodeData(&accepted); err != nil {
		return "", fmt.Errorf("session.SubmitOrder: %w", err)
	}
	return accepted.OrderID, nil
}

// CancelOrder cancela una orden manual pendiente.
func (s *Session) CancelOrder(ctx context.Context, orderID string) error {
	if orderID == "" {
		return errors.New("session.CancelOrder: order id is required")
	}
	if _, err := s.request(ctx, domain.KindManualCancel, cancelPayload{OrderID: orderID}, nil); err != nil {
		return fmt.Errorf("session.CancelOrder %s: %w", orderID, err)
	}
	return nil
}

// CloseAllPositions cierra todas las posiciones abiertas a mercado.
func (s *Session) CloseAllPositions(ctx context.Context) error {
	if _, err := s.request(ctx, domain.KindManualCloseAll, nil, nil); err != nil {
		return fmt.Errorf("session.CloseAllPositions: %w", err)
	}
	return nil
}

// SaveSnapshot pide al engine que guarde su estado bajo name.
func (s *Session) SaveSnapshot(ctx context.Context, name string) (domain.SnapshotInfo, error) {
	resp, err := s.request(ctx, domain.KindSnapshotSave, snapshotSave{Name: name}, nil)
	if err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("session.SaveSnapshot: %w", err)
	}
	var info domain.SnapshotInfo
	if err := resp.DecodeData(&info); err != nil {
		return domain.SnapshotInfo{}, fmt.Errorf("session.SaveSnapshot: %w", err)
	}
	if info.Name == "" {
		info.Name = name
	}
	return info, nil
}

// LoadSnapshot restaura un snapshot del engine y vuelve a sincronizar el estado completo.
func (s *Session) LoadSnapshot(ctx context.Context, snapshotID string) error {
	_, err := s.request(ctx, domain.KindSnapshotLoad, snapshotLoad{SnapshotID: snapshotID}, func(domain.Response) error {
		s.requestStateInLoop()
		return nil
	})
	if err != nil {
		return fmt.Errorf("session.LoadSnapshot %s: %w", snapshotID, err)
	}
	return nil
}

// RequestFullState pide el snapshot completo y lo aplica si viene en la respuesta.
func (s *Session) RequestFullState(ctx context.Context) error {
	if _, err := s.request(ctx, domain.KindRequestState, nil, s.applySnapshotResponse); err != nil {
		return fmt.Errorf("session.RequestFullState: %w", err)
	}
	return nil
}
