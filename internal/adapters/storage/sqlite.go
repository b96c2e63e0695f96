package storage

// sqlite.go: cache local del último estado conocido.
//
// Estrategia:
//   - `snapshot`: siempre 1 fila con el último StateSnapshot completo en JSON.
//     Se reescribe sólo si el contenido cambió.
//   - `alerts`: UNA fila por alerta (UPSERT por alert_id). La misma alerta
//     llega varias veces (push, snapshot, ack local) y sólo cambia el ack.
//   - Cache en memoria del estado de ack guardado: evita reescribir alertas
//     que no cambiaron.
//   - Prune automático al arrancar: alertas con más de 30d.

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
)

const schema = `
-- Último snapshot recibido del engine
CREATE TABLE IF NOT EXISTS snapshot (
    id       INTEGER PRIMARY KEY CHECK (id = 1),
    payload  TEXT     NOT NULL,
    saved_at DATETIME NOT NULL
);

-- Historial de alertas, una fila por alert_id
CREATE TABLE IF NOT EXISTS alerts (
    alert_id        TEXT PRIMARY KEY,
    alert_type      TEXT    NOT NULL,
    severity        TEXT    NOT NULL,
    title           TEXT    NOT NULL DEFAULT '',
    message         TEXT    NOT NULL DEFAULT '',
    ts              INTEGER NOT NULL,
    acknowledged    INTEGER NOT NULL DEFAULT 0,
    acknowledged_at INTEGER NOT NULL DEFAULT 0,
    first_seen      DATETIME NOT NULL,
    last_seen       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(ts DESC);
`

const (
	retentionAlerts    = 30 * 24 * time.Hour
	defaultRecentLimit = 100
)

// SQLiteCache implementa ports.StateCache usando SQLite (pure Go, sin CGo).
type SQLiteCache struct {
	db *sql.DB

	mu       sync.Mutex
	acked    map[string]bool // alert_id → acknowledged guardado
	lastSnap []byte
}

// NewSQLiteCache abre (o crea) la base de datos en la ruta dada.
// Aplica el schema, limpia datos antiguos y precarga la cache.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteCache: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteCache: apply schema: %w", err)
	}

	c := &SQLiteCache{
		db:    db,
		acked: make(map[string]bool),
	}
	c.pruneOld(context.Background())
	c.warmCache(context.Background())
	return c, nil
}

// SaveSnapshot reemplaza el snapshot guardado si cambió.
func (c *SQLiteCache) SaveSnapshot(ctx context.Context, snap domain.StateSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: marshal: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if bytes.Equal(payload, c.lastSnap) {
		return nil
	}
	if _, err := c.db.ExecContext(ctx, `
		INSERT INTO snapshot (id, payload, saved_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		string(payload), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveSnapshot: %w", err)
	}
	c.lastSnap = payload
	return nil
}

// LoadSnapshot devuelve el último snapshot guardado.
func (c *SQLiteCache) LoadSnapshot(ctx context.Context) (domain.StateSnapshot, bool, error) {
	var payload string
	err := c.db.QueryRowContext(ctx, `SELECT payload FROM snapshot WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.StateSnapshot{}, false, nil
	}
	if err != nil {
		return domain.StateSnapshot{}, false, fmt.Errorf("storage.LoadSnapshot: %w", err)
	}
	snap, err := domain.DecodeSnapshot(json.RawMessage(payload))
	if err != nil {
		return domain.StateSnapshot{}, false, fmt.Errorf("storage.LoadSnapshot: %w", err)
	}
	c.mu.Lock()
	c.lastSnap = []byte(payload)
	c.mu.Unlock()
	return snap, true, nil
}

// SaveAlert hace upsert de la alerta. No escribe si ya está guardada con el mismo estado de ack.
func (c *SQLiteCache) SaveAlert(ctx context.Context, a domain.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if acked, ok := c.acked[a.AlertID]; ok && acked == a.Acknowledged {
		return nil
	}

	now := time.Now().UTC()
	if _, err := c.db.ExecContext(ctx, `
		INSERT INTO alerts (alert_id, alert_type, severity, title, message, ts,
		                    acknowledged, acknowledged_at, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(alert_id) DO UPDATE SET
		    acknowledged    = MAX(alerts.acknowledged, excluded.acknowledged),
		    acknowledged_at = MAX(alerts.acknowledged_at, excluded.acknowledged_at),
		    last_seen       = excluded.last_seen`,
		a.AlertID, string(a.AlertType), string(a.Severity), a.Title, a.Message, a.Timestamp,
		boolToInt(a.Acknowledged), a.AcknowledgedAt, now, now,
	); err != nil {
		return fmt.Errorf("storage.SaveAlert %s: %w", a.AlertID, err)
	}
	c.acked[a.AlertID] = c.acked[a.AlertID] || a.Acknowledged
	return nil
}

// RecentAlerts devuelve hasta limit alertas, la más reciente primero (limit <= 0 → 100).
func (c *SQLiteCache) RecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT alert_id, alert_type, severity, title, message, ts, acknowledged, acknowledged_at
		FROM alerts
		ORDER BY ts DESC, first_seen DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentAlerts: %w", err)
	}
	defer rows.Close()

	var out []domain.Alert
	for rows.Next() {
		var (
			a            domain.Alert
			typ, sev     string
			acknowledged int
		)
		if err := rows.Scan(&a.AlertID, &typ, &sev, &a.Title, &a.Message, &a.Timestamp, &acknowledged, &a.AcknowledgedAt); err != nil {
			return nil, fmt.Errorf("storage.RecentAlerts: scan: %w", err)
		}
		a.AlertType = domain.AlertType(typ)
		a.Severity = domain.Severity(sev)
		a.Acknowledged = acknowledged != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// Close cierra la base de datos.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// pruneOld elimina alertas antiguas para mantener la DB ligera.
func (c *SQLiteCache) pruneOld(ctx context.Context) {
	cutoff := time.Now().Add(-retentionAlerts).UnixMilli()
	c.db.ExecContext(ctx, `DELETE FROM alerts WHERE ts < ?`, cutoff)
}

// warmCache precarga el estado de ack de las alertas guardadas.
func (c *SQLiteCache) warmCache(ctx context.Context) {
	rows, err := c.db.QueryContext(ctx, `SELECT alert_id, acknowledged FROM alerts`)
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    string
			acked int
		)
		if rows.Scan(&id, &acked) == nil {
			c.acked[id] = acked != 0
		}
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
