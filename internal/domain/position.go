package domain

import "github.com/shopspring/decimal"

// PositionSide indica la dirección de una posición.
type PositionSide string

const (
	SideLong  PositionSide = "long"
	SideShort PositionSide = "short"
)

// Position es una posición abierta, con clave Symbol.
type Position struct {
	Symbol        string          `json:"symbol"`
	Side          PositionSide    `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avg_price"`
	MarketPrice   decimal.Decimal `json:"market_price"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UpdatedAt     int64           `json:"updated_at,omitempty"`
}

// Closed indica que la posición quedó en cero y debe salir de la proyección.
func (p Position) Closed() bool {
	return p.Quantity.IsZero()
}

// MarketValue devuelve quantity * market_price.
func (p Position) MarketValue() decimal.Decimal {
	return p.Quantity.Mul(p.MarketPrice)
}
