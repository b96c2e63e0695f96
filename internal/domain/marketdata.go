package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick es la última cotización de un símbolo.
type Tick struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp int64           `json:"timestamp"`
}

// Bar es una vela OHLCV.
type Bar struct {
	Symbol    string          `json:"symbol"`
	Interval  string          `json:"interval"` // 1m, 5m, 1d...
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp int64           `json:"timestamp"`
}

// Time convierte el timestamp en ms a time.Time.
func (b Bar) Time() time.Time { return time.UnixMilli(b.Timestamp) }
