package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/config"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/adapters/notify"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/session"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
)

const helpText = `commands:
  start <strategy_id> <SYM[,SYM]> <from YYYY-MM-DD> <to YYYY-MM-DD> [capital] [commission]
  pause | resume | step [n] | stop
  strategy <name> <file>        load a strategy
  reload <strategy_id>
  params <strategy_id> k=v ...  update params
  order <symbol> <buy|sell> <qty> [price]
  cancel <order_id> | closeall
  state | positions | strategies | trades [n] | alerts | sync
  ack <alert_id> | dismiss <alert_id>
  save <name> | load <snapshot_id>
  connect | disconnect | help | quit`

var errQuit = errors.New("quit")

// runConsole corre la sesión con el shell de consola y el prompt interactivo.
func runConsole(ctx context.Context, cfg *config.Config, deps session.Deps) error {
	console := notify.NewConsole(cfg.Alerts.Sound)
	deps.Host = console

	var holder session.Holder
	s, done, err := startSession(ctx, &holder, sessionConfig(cfg), deps)
	if err != nil {
		return fmt.Errorf("runConsole: %w", err)
	}
	defer func() {
		if err := holder.Replace(nil); err != nil {
			slog.Warn("session close failed", "err", err)
		}
		<-done
	}()

	watchConnection(s, console)

	r := &repl{s: s, console: console, timeout: cfg.Session.RequestTimeout() + time.Second}
	console.Printf("%s\n", helpText)
	return r.run(ctx, os.Stdin)
}

// watchConnection imprime los cambios de estado de conexión.
func watchConnection(s *session.Session, console *notify.Console) {
	var last domain.ConnectionStatus
	s.Watch(func(c session.Change) {
		if c.Projection != session.ProjectionConnection {
			return
		}
		st := s.Connection()
		if st.Status == last {
			return
		}
		last = st.Status
		console.PrintConnection(st)
	})
}

type repl struct {
	s       *session.Session
	console *notify.Console
	timeout time.Duration
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := r.exec(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				r.console.Printf("  error: %v\n", err)
			}
		}
	}
}

// exec ejecuta una línea del prompt.
func (r *repl) exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	s := r.s

	switch cmd {
	case "quit", "exit":
		return errQuit
	case "help":
		r.console.Printf("%s\n", helpText)
	case "connect":
		return s.Connect(ctx)
	case "disconnect":
		return s.Disconnect(ctx)

	case "start":
		bc, err := parseBacktest(args)
		if err != nil {
			return err
		}
		return r.done(s.StartBacktest(ctx, bc), "backtest started")
	case "pause":
		return r.done(s.PauseBacktest(ctx), "backtest paused")
	case "resume":
		return r.done(s.ResumeBacktest(ctx), "backtest resumed")
	case "step":
		n := 1
		if len(args) > 0 {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("step: %w", err)
			}
			n = v
		}
		return r.done(s.StepBacktest(ctx, n), "stepped")
	case "stop":
		return r.done(s.StopBacktest(ctx), "backtest stopped")

	case "strategy":
		if len(args) < 2 {
			return errors.New("usage: strategy <name> <file>")
		}
		inst, err := s.LoadStrategy(ctx, domain.StrategySpec{Name: args[0], FilePath: args[1]})
		if err != nil {
			return err
		}
		r.console.Printf("  loaded %s (%s)\n", inst.StrategyID, inst.Status)
	case "reload":
		if len(args) < 1 {
			return errors.New("usage: reload <strategy_id>")
		}
		return r.done(s.ReloadStrategy(ctx, args[0]), "strategy reloaded")
	case "params":
		if len(args) < 2 {
			return errors.New("usage: params <strategy_id> k=v ...")
		}
		params, err := parseParams(args[1:])
		if err != nil {
			return err
		}
		return r.done(s.UpdateParams(ctx, args[0], params), "params updated")

	case "order":
		order, err := parseOrder(args)
		if err != nil {
			return err
		}
		id, err := s.SubmitOrder(ctx, order)
		if err != nil {
			return err
		}
		r.console.Printf("  order accepted: %s\n", id)
	case "cancel":
		if len(args) < 1 {
			return errors.New("usage: cancel <order_id>")
		}
		return r.done(s.CancelOrder(ctx, args[0]), "order cancelled")
	case "closeall":
		return r.done(s.CloseAllPositions(ctx), "closing all positions")

	case "save":
		name := strings.Join(args, " ")
		if name == "" {
			name = time.Now().Format("20060102-150405")
		}
		info, err := s.SaveSnapshot(ctx, name)
		if err != nil {
			return err
		}
		r.console.Printf("  snapshot saved: %s (%s)\n", info.SnapshotID, info.Name)
	case "load":
		if len(args) < 1 {
			return errors.New("usage: load <snapshot_id>")
		}
		return r.done(s.LoadSnapshot(ctx, args[0]), "snapshot loaded")
	case "sync":
		return r.done(s.RequestFullState(ctx), "state synchronized")

	case "ack":
		if len(args) < 1 {
			return errors.New("usage: ack <alert_id>")
		}
		if r.console.Ack(args[0]) {
			return nil // el modal dispara el ack de la sesión
		}
		return r.done(s.AcknowledgeAlert(ctx, args[0]), "alert acknowledged")
	case "dismiss":
		if len(args) < 1 {
			return errors.New("usage: dismiss <alert_id>")
		}
		return s.DismissAlert(ctx, args[0])

	case "state":
		r.console.PrintConnection(s.Connection())
		r.console.PrintSummary(s.Account(), s.Backtest())
	case "positions":
		r.console.PrintPositions(s.Positions())
	case "strategies":
		r.console.PrintStrategies(s.Strategies())
	case "trades":
		n := 20
		if len(args) > 0 {
			if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
				n = v
			}
		}
		r.console.PrintTrades(s.Trades(), n)
	case "alerts":
		var blockingID string
		if a, ok := s.BlockingAlert(); ok {
			blockingID = a.AlertID
		}
		r.console.PrintAlerts(s.PendingAlerts(), s.AlertHistory(), blockingID)

	default:
		return fmt.Errorf("unknown command %q (try: help)", cmd)
	}
	return nil
}

func (r *repl) done(err error, msg string) error {
	if err != nil {
		return err
	}
	r.console.Printf("  %s\n", msg)
	return nil
}

// parseBacktest: <strategy_id> <SYM[,SYM]> <from> <to> [capital] [commission]
func parseBacktest(args []string) (domain.BacktestConfig, error) {
	if len(args) < 4 {
		return domain.BacktestConfig{}, errors.New("usage: start <strategy_id> <SYM[,SYM]> <from> <to> [capital] [commission]")
	}
	for _, d := range args[2:4] {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return domain.BacktestConfig{}, fmt.Errorf("start: bad date %q", d)
		}
	}
	bc := domain.BacktestConfig{
		StrategyID:     args[0],
		Symbols:        strings.Split(args[1], ","),
		StartDate:      args[2],
		EndDate:        args[3],
		InitialCapital: decimal.NewFromInt(100000),
		CommissionRate: decimal.RequireFromString("0.0003"),
	}
	if len(args) > 4 {
		v, err := decimal.NewFromString(args[4])
		if err != nil || !v.IsPositive() {
			return domain.BacktestConfig{}, fmt.Errorf("start: bad capital %q", args[4])
		}
		bc.InitialCapital = v
	}
	if len(args) > 5 {
		v, err := decimal.NewFromString(args[5])
		if err != nil || v.IsNegative() {
			return domain.BacktestConfig{}, fmt.Errorf("start: bad commission %q", args[5])
		}
		bc.CommissionRate = v
	}
	return bc, nil
}

// parseOrder: <symbol> <buy|sell> <qty> [price]; con precio es limit.
func parseOrder(args []string) (domain.OrderRequest, error) {
	if len(args) < 3 {
		return domain.OrderRequest{}, errors.New("usage: order <symbol> <buy|sell> <qty> [price]")
	}
	qty, err := decimal.NewFromString(args[2])
	if err != nil {
		return domain.OrderRequest{}, fmt.Errorf("order: bad quantity %q", args[2])
	}
	o := domain.OrderRequest{
		Symbol:    strings.ToUpper(args[0]),
		Side:      domain.OrderSide(strings.ToLower(args[1])),
		OrderType: domain.OrderMarket,
		Quantity:  qty,
	}
	if len(args) > 3 {
		price, err := decimal.NewFromString(args[3])
		if err != nil {
			return domain.OrderRequest{}, fmt.Errorf("order: bad price %q", args[3])
		}
		o.OrderType = domain.OrderLimit
		o.Price = price
	}
	return o, o.Validate()
}

// parseParams convierte k=v en un mapa; los valores numéricos y booleanos se tipan.
func parseParams(args []string) (map[string]any, error) {
	params := make(map[string]any, len(args))
	for _, kv := range args {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("params: expected k=v, got %q", kv)
		}
		switch {
		case v == "true" || v == "false":
			params[k] = v == "true"
		default:
			if i, err := strconv.ParseInt(v, 10, 64); err == nil {
				params[k] = i
			} else if f, err := strconv.ParseFloat(v, 64); err == nil {
				params[k] = f
			} else {
				params[k] = v
			}
		}
	}
	return params, nil
}
