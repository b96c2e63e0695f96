package ports

import (
	"context"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
)

// StateCache persiste localmente el último estado conocido para poder mostrarlo
// antes de tener conexión.
type StateCache interface {
	// SaveSnapshot reemplaza el snapshot guardado.
	SaveSnapshot(ctx context.Context, snap domain.StateSnapshot) error

	// LoadSnapshot devuelve el último snapshot. ok=false si nunca se guardó uno.
	LoadSnapshot(ctx context.Context) (snap domain.StateSnapshot, ok bool, err error)

	// SaveAlert inserta o actualiza una alerta del historial (UPSERT por alert_id).
	SaveAlert(ctx context.Context, alert domain.Alert) error

	// RecentAlerts devuelve hasta limit alertas, la más reciente primero.
	RecentAlerts(ctx context.Context, limit int) ([]domain.Alert, error)
}
