package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account son los totales de la cuenta (simulada o real) del engine.
type Account struct {
	Balance       decimal.Decimal `json:"balance"`
	Equity        decimal.Decimal `json:"equity"`
	Available     decimal.Decimal `json:"available"`
	Margin        decimal.Decimal `json:"margin"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UpdatedAt     int64           `json:"updated_at,omitempty"`
}

// AccountDelta es un account_update: sólo los campos presentes pisan el valor local.
type AccountDelta struct {
	Balance       decimal.NullDecimal `json:"balance"`
	Equity        decimal.NullDecimal `json:"equity"`
	Available     decimal.NullDecimal `json:"available"`
	Margin        decimal.NullDecimal `json:"margin"`
	UnrealizedPnL decimal.NullDecimal `json:"unrealized_pnl"`
	RealizedPnL   decimal.NullDecimal `json:"realized_pnl"`
	Timestamp     int64               `json:"timestamp"`
}

// Apply devuelve a con los campos presentes en d aplicados (last-write-wins por campo).
func (a Account) Apply(d AccountDelta, now time.Time) Account {
	set := func(dst *decimal.Decimal, v decimal.NullDecimal) {
		if v.Valid {
			*dst = v.Decimal
		}
	}
	set(&a.Balance, d.Balance)
	set(&a.Equity, d.Equity)
	set(&a.Available, d.Available)
	set(&a.Margin, d.Margin)
	set(&a.UnrealizedPnL, d.UnrealizedPnL)
	set(&a.RealizedPnL, d.RealizedPnL)
	if d.Timestamp > 0 {
		a.UpdatedAt = d.Timestamp
	} else {
		a.UpdatedAt = now.UnixMilli()
	}
	return a
}
