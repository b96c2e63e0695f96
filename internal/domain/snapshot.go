package domain

// StateSnapshot es el payload de state_sync. Reemplaza por completo las
// colecciones locales; nunca se mergea campo a campo.
//
// No trae número de secuencia/época: un snapshot de un intento de reconexión
// superado no se distingue de uno fresco.
type StateSnapshot struct {
	Backtest   *BacktestStatus    `json:"backtest,omitempty"`
	Account    *Account           `json:"account,omitempty"`
	Positions  []Position         `json:"positions"`
	Strategies []StrategyInstance `json:"strategies"`
	Alerts     []Alert            `json:"alerts"`
	Timestamp  int64              `json:"timestamp"`
}

// SnapshotInfo es el data de la respuesta a snapshot_save.
type SnapshotInfo struct {
	SnapshotID string `json:"snapshot_id"`
	Name       string `json:"name"`
	Path       string `json:"path,omitempty"`
	CreatedAt  int64  `json:"created_at,omitempty"`
}
