package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/adapters/storage"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
)

func makeAlert(id string, ts int64) domain.Alert {
	return domain.Alert{
		AlertID:   id,
		AlertType: domain.AlertSync,
		Severity:  domain.SeverityWarning,
		Title:     "Margin " + id,
		Message:   "margin usage above 80%",
		Timestamp: ts,
	}
}

func openCache(t *testing.T) *storage.SQLiteCache {
	t.Helper()
	c, err := storage.NewSQLiteCache(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestSQLiteCache_SnapshotRoundTrip(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()

	_, ok, err := c.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	acct := domain.Account{Balance: decimal.NewFromInt(100000), Equity: decimal.RequireFromString("100250.75")}
	snap := domain.StateSnapshot{
		Account:   &acct,
		Positions: []domain.Position{{Symbol: "AAPL", Side: domain.SideLong, Quantity: decimal.NewFromInt(10)}},
		Timestamp: 1700000000000,
	}
	require.NoError(t, c.SaveSnapshot(ctx, snap))

	snap.Positions = append(snap.Positions, domain.Position{Symbol: "MSFT", Side: domain.SideShort, Quantity: decimal.NewFromInt(3)})
	require.NoError(t, c.SaveSnapshot(ctx, snap))

	got, ok, err := c.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Positions, 2, "only the latest snapshot is kept")
	assert.Equal(t, "MSFT", got.Positions[1].Symbol)
	require.NotNil(t, got.Account)
	assert.True(t, got.Account.Equity.Equal(acct.Equity))
}

func TestSQLiteCache_AlertUpsertKeepsAck(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()

	a := makeAlert("a1", 1000)
	require.NoError(t, c.SaveAlert(ctx, a))

	a.Acknowledged = true
	a.AcknowledgedAt = 2000
	require.NoError(t, c.SaveAlert(ctx, a))

	// un snapshot viejo que la trae sin ack no la "des-reconoce"
	stale := makeAlert("a1", 1000)
	require.NoError(t, c.SaveAlert(ctx, stale))

	got, err := c.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Acknowledged)
	assert.Equal(t, int64(2000), got[0].AcknowledgedAt)
	assert.Equal(t, domain.AlertSync, got[0].AlertType)
}

func TestSQLiteCache_RecentAlertsNewestFirstWithLimit(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	for i, id := range []string{"a1", "a2", "a3", "a4"} {
		require.NoError(t, c.SaveAlert(ctx, makeAlert(id, now+int64(i))))
	}

	got, err := c.RecentAlerts(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a4", got[0].AlertID)
	assert.Equal(t, "a2", got[2].AlertID)

	all, err := c.RecentAlerts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSQLiteCache_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()
	now := time.Now().UnixMilli()

	c, err := storage.NewSQLiteCache(path)
	require.NoError(t, err)
	require.NoError(t, c.SaveAlert(ctx, makeAlert("recent", now)))
	require.NoError(t, c.SaveAlert(ctx, makeAlert("ancient", now-int64(40*24*time.Hour/time.Millisecond))))
	require.NoError(t, c.SaveSnapshot(ctx, domain.StateSnapshot{Timestamp: now}))
	require.NoError(t, c.Close())

	c, err = storage.NewSQLiteCache(path)
	require.NoError(t, err)
	defer c.Close()

	got, err := c.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1, "alerts past retention are pruned on open")
	assert.Equal(t, "recent", got[0].AlertID)

	snap, ok, err := c.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, now, snap.Timestamp)
}
