package domain

import "github.com/shopspring/decimal"

// BacktestState es la fase del backtest en el engine.
type BacktestState string

const (
	BacktestIdle      BacktestState = "idle"
	BacktestRunning   BacktestState = "running"
	BacktestPaused    BacktestState = "paused"
	BacktestStopped   BacktestState = "stopped"
	BacktestCompleted BacktestState = "completed"
	BacktestFailed    BacktestState = "error"
)

// BacktestStatus es el estado reportado por status y state_sync.
type BacktestStatus struct {
	State       BacktestState `json:"state"`
	Progress    float64       `json:"progress"`     // 0..1
	CurrentTime int64         `json:"current_time"` // ms de la simulación
	Message     string        `json:"message,omitempty"`
}

// BacktestConfig es el payload de backtest_start.
type BacktestConfig struct {
	StrategyID     string          `json:"strategy_id"`
	Symbols        []string        `json:"symbols"`
	StartDate      string          `json:"start_date"` // YYYY-MM-DD
	EndDate        string          `json:"end_date"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	Speed          float64         `json:"speed,omitempty"` // multiplicador de replay, 0 = máximo
}
