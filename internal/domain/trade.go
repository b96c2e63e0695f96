package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade es un fill reportado por el engine. Se agrega al log, nunca se reemplaza.
type Trade struct {
	TradeID    string          `json:"trade_id"`
	OrderID    string          `json:"order_id"`
	Symbol     string          `json:"symbol"`
	Side       OrderSide       `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Commission decimal.Decimal `json:"commission"`
	StrategyID string          `json:"strategy_id,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

// Time convierte el timestamp en ms a time.Time.
func (t Trade) Time() time.Time { return time.UnixMilli(t.Timestamp) }

// Notional devuelve price * quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}
