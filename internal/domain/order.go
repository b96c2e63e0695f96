package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderSide es el lado de una orden o trade.
type OrderSide string

const (
	OrderBuy  OrderSide = "buy"
	OrderSell OrderSide = "sell"
)

// OrderType es el tipo de orden manual.
type OrderType string

const (
	OrderMarket OrderType = "market"
	OrderLimit  OrderType = "limit"
)

// OrderRequest es el payload de manual_order.
type OrderRequest struct {
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	OrderType OrderType       `json:"order_type"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"` // sólo limit
}

// Validate chequea la orden antes de mandarla al engine.
func (o OrderRequest) Validate() error {
	if o.Symbol == "" {
		return fmt.Errorf("order: symbol is required")
	}
	if o.Side != OrderBuy && o.Side != OrderSell {
		return fmt.Errorf("order: invalid side %q", o.Side)
	}
	if !o.Quantity.IsPositive() {
		return fmt.Errorf("order: quantity must be positive, got %s", o.Quantity)
	}
	switch o.OrderType {
	case OrderMarket:
	case OrderLimit:
		if !o.Price.IsPositive() {
			return fmt.Errorf("order: limit order needs a positive price")
		}
	default:
		return fmt.Errorf("order: invalid type %q", o.OrderType)
	}
	return nil
}

// OrderAccepted es el data de la respuesta a manual_order.
type OrderAccepted struct {
	OrderID string `json:"order_id"`
}
