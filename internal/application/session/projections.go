package session

import (
	"sort"
	"sync"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
)

// ProjectionKind identifica qué proyección cambió.
type ProjectionKind string

const (
	ProjectionConnection ProjectionKind = "connection"
	ProjectionAccount    ProjectionKind = "account"
	ProjectionPositions  ProjectionKind = "positions"
	ProjectionTrades     ProjectionKind = "trades"
	ProjectionStrategies ProjectionKind = "strategies"
	ProjectionBacktest   ProjectionKind = "backtest"
	ProjectionMarketData ProjectionKind = "market_data"
	ProjectionAlerts     ProjectionKind = "alerts"
)

// Change se publica después de cada mutación. Key es el símbolo, strategy id o
// alert id afectado; vacío si cambió la colección entera.
type Change struct {
	Projection ProjectionKind
	Key        string
}

// projections son los espejos locales del estado del engine. Sólo el loop de la
// sesión escribe; los lectores de otras goroutines pasan por mu.
type projections struct {
	mu sync.RWMutex

	conn       domain.ConnectionState
	account    domain.Account
	backtest   domain.BacktestStatus
	positions  map[string]domain.Position
	strategies map[string]domain.StrategyInstance
	trades     []domain.Trade
	ticks      map[string]domain.Tick
	bars       map[string]domain.Bar

	alertQueue   []domain.Alert // no reconocidas, en orden de llegada
	blockingID   string         // slot de alerta bloqueante; "" = vacío
	alertHistory []domain.Alert // la más reciente primero

	tradeLimit   int
	historyLimit int
}

func newProjections(tradeLimit, historyLimit int) *projections {
	return &projections{
		conn:         domain.ConnectionState{Status: domain.StatusDisconnected},
		backtest:     domain.BacktestStatus{State: domain.BacktestIdle},
		positions:    make(map[string]domain.Position),
		strategies:   make(map[string]domain.StrategyInstance),
		ticks:        make(map[string]domain.Tick),
		bars:         make(map[string]domain.Bar),
		tradeLimit:   tradeLimit,
		historyLimit: historyLimit,
	}
}

// --- mutadores (sólo desde el loop) ---

func (p *projections) updateConn(fn func(*domain.ConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.conn)
}

func (p *projections) setAccount(a domain.Account) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.account = a
}

func (p *projections) setBacktest(b domain.BacktestStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backtest = b
}

// upsertPosition aplica last-write-wins por símbolo; cantidad cero borra la clave.
func (p *projections) upsertPosition(pos domain.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos.Closed() {
		delete(p.positions, pos.Symbol)
		return
	}
	p.positions[pos.Symbol] = pos
}

func (p *projections) replacePositions(list []domain.Position) {
	next := make(map[string]domain.Position, len(list))
	for _, pos := range list {
		if pos.Symbol == "" || pos.Closed() {
			continue
		}
		next[pos.Symbol] = pos
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions = next
}

func (p *projections) upsertStrategy(s domain.StrategyInstance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strategies[s.StrategyID] = s
}

func (p *projections) replaceStrategies(list []domain.StrategyInstance) {
	next := make(map[string]domain.StrategyInstance, len(list))
	for _, s := range list {
		if s.StrategyID == "" {
			continue
		}
		next[s.StrategyID] = s
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strategies = next
}

// appendTrade agrega al log y descarta los más viejos al superar el límite.
func (p *projections) appendTrade(t domain.Trade) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, t)
	if p.tradeLimit > 0 && len(p.trades) > p.tradeLimit {
		p.trades = append([]domain.Trade(nil), p.trades[len(p.trades)-p.tradeLimit:]...)
	}
}

func (p *projections) setTick(t domain.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ticks[t.Symbol] = t
}

func (p *projections) setBar(b domain.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars[b.Symbol] = b
}

// --- lectores ---

func (p *projections) connection() domain.ConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn
}

func (p *projections) accountView() domain.Account {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.account
}

func (p *projections) backtestView() domain.BacktestStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.backtest
}

func (p *projections) positionList() []domain.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (p *projections) position(symbol string) (domain.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[symbol]
	return pos, ok
}

func (p *projections) strategyList() []domain.StrategyInstance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.StrategyInstance, 0, len(p.strategies))
	for _, s := range p.strategies {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StrategyID < out[j].StrategyID })
	return out
}

func (p *projections) tradeList() []domain.Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.Trade(nil), p.trades...)
}

func (p *projections) tick(symbol string) (domain.Tick, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.ticks[symbol]
	return t, ok
}

func (p *projections) bar(symbol string) (domain.Bar, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, ok := p.bars[symbol]
	return b, ok
}
