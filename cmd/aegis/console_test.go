package main

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
)

func TestParseOrder(t *testing.T) {
	o, err := parseOrder([]string{"aapl", "BUY", "10"})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", o.Symbol)
	assert.Equal(t, domain.OrderBuy, o.Side)
	assert.Equal(t, domain.OrderMarket, o.OrderType)
	assert.True(t, o.Quantity.Equal(decimal.NewFromInt(10)))

	o, err = parseOrder([]string{"msft", "sell", "2.5", "410.25"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderLimit, o.OrderType)
	assert.True(t, o.Price.Equal(decimal.RequireFromString("410.25")))

	_, err = parseOrder([]string{"msft", "hold", "1"})
	assert.Error(t, err)
	_, err = parseOrder([]string{"msft", "buy", "-1"})
	assert.Error(t, err)
	_, err = parseOrder([]string{"msft"})
	assert.Error(t, err)
}

func TestParseBacktest(t *testing.T) {
	bc, err := parseBacktest([]string{"s1", "AAPL,MSFT", "2024-01-01", "2024-06-30", "50000"})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, bc.Symbols)
	assert.True(t, bc.InitialCapital.Equal(decimal.NewFromInt(50000)))
	assert.True(t, bc.CommissionRate.Equal(decimal.RequireFromString("0.0003")))

	_, err = parseBacktest([]string{"s1", "AAPL", "2024-13-01", "2024-06-30"})
	assert.Error(t, err)
	_, err = parseBacktest([]string{"s1", "AAPL", "2024-01-01", "2024-06-30", "0"})
	assert.Error(t, err)
}

func TestParseParams(t *testing.T) {
	p, err := parseParams([]string{"fast=5", "ratio=0.5", "live=true", "mode=ema"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), p["fast"])
	assert.Equal(t, 0.5, p["ratio"])
	assert.Equal(t, true, p["live"])
	assert.Equal(t, "ema", p["mode"])

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)
}
