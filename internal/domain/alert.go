package domain

import "time"

// AlertType clasifica la alerta; viene en el payload, no se infiere.
type AlertType string

const (
	// AlertSync bloquea hasta que el usuario la reconoce y se confirma al engine.
	AlertSync AlertType = "sync"
	// AlertAsync es informativa y expira sola.
	AlertAsync AlertType = "async"
)

// Severity de una alerta.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank ordena severidades; las desconocidas valen como info.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// High indica si la severidad pide foco, flash y notificación de sistema.
func (s Severity) High() bool {
	return s.Rank() >= SeverityError.Rank()
}

// Alert es una alerta originada en el engine.
type Alert struct {
	AlertID        string    `json:"alert_id"`
	AlertType      AlertType `json:"alert_type"`
	Severity       Severity  `json:"severity"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Timestamp      int64     `json:"timestamp"`
	Acknowledged   bool      `json:"acknowledged"`
	AcknowledgedAt int64     `json:"acknowledged_at,omitempty"`
}

// Blocking indica si la alerta es sync.
func (a Alert) Blocking() bool { return a.AlertType == AlertSync }

// Time convierte el timestamp en ms a time.Time.
func (a Alert) Time() time.Time { return time.UnixMilli(a.Timestamp) }

// Acknowledge marca la alerta como reconocida. Es idempotente: devuelve false si
// ya lo estaba y en ese caso no toca AcknowledgedAt.
func (a *Alert) Acknowledge(now time.Time) bool {
	if a.Acknowledged {
		return false
	}
	a.Acknowledged = true
	a.AcknowledgedAt = now.UnixMilli()
	return true
}
