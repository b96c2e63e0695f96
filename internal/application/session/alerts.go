package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
)

// Subsistema de alertas.
//
// sync: ocupa el slot bloqueante (una alerta a la vez) y se reconoce en dos
// pasos: marca local idempotente y luego alert_ack al engine, esperando respuesta.
// Un slot ocupado sólo lo desplaza una alerta de severidad estrictamente mayor;
// el resto espera en la cola y se promueve cuando el slot se libera.
//
// Una alerta ya reconocida localmente no vuelve a bloquear aunque el engine la
// reenvíe antes de procesar el ack. Si el alert_ack falló, AcknowledgeAlert lo
// reenvía.
//
// async: notificación + display que expira solo. Descartarla es local, nunca
// viaja al engine.

type alertAckPayload struct {
	AlertID string `json:"alert_id"`
}

func (s *Session) onAlert(a domain.Alert) {
	if prev, ok := s.proj.findAlert(a.AlertID); ok && prev.Acknowledged && !a.Acknowledged {
		s.logger.Debug("ignoring re-push of acknowledged alert", "alert_id", a.AlertID,
			"ack_unconfirmed", s.unconfirmed[a.AlertID])
		return
	}
	s.proj.recordHistory(a)
	s.persistAlert(a)
	defer s.changed(ProjectionAlerts, a.AlertID)

	if a.Acknowledged {
		return
	}
	s.proj.enqueueAlert(a)

	switch a.AlertType {
	case domain.AlertSync:
		cur, occupied := s.proj.blocking()
		switch {
		case !occupied:
			s.takeSlot(a)
		case cur.AlertID == a.AlertID:
			// reenvío de la misma alerta: el modal ya está presentado
		case a.Severity.Rank() > cur.Severity.Rank():
			s.logger.Info("blocking alert preempted", "previous", cur.AlertID, "next", a.AlertID, "severity", a.Severity)
			s.takeSlot(a)
		default:
			s.logger.Debug("sync alert queued behind blocking alert", "alert_id", a.AlertID, "blocking", cur.AlertID)
		}
	case domain.AlertAsync:
		s.host.ShowNotification(a.Title, a.Message)
		s.scheduleExpiry(a.AlertID)
	}
}

// takeSlot pone a en el slot bloqueante y pide al shell que la presente.
func (s *Session) takeSlot(a domain.Alert) {
	s.proj.setBlocking(a.AlertID)
	id := a.AlertID
	// el shell puede invocar onAck desde el propio loop; el ack va en otra goroutine
	s.host.ShowBlockingDialog(a, func() { go s.ackFromHost(id) })
	if a.Severity.High() {
		s.host.FocusWindow()
		s.host.FlashWindow()
		s.host.ShowNotification(a.Title, a.Message)
	}
}

func (s *Session) ackFromHost(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.RequestTimeout+time.Second)
	defer cancel()
	if err := s.AcknowledgeAlert(ctx, id); err != nil {
		s.logger.Warn("alert acknowledgment failed", "alert_id", id, "err", err)
	}
}

// promoteNext llena el slot libre con la siguiente alerta sync pendiente.
func (s *Session) promoteNext() {
	if _, occupied := s.proj.blocking(); occupied {
		return
	}
	if next, ok := s.proj.nextBlocking(); ok {
		s.takeSlot(next)
	}
}

func (s *Session) scheduleExpiry(id string) {
	if t, ok := s.expiries[id]; ok {
		t.Stop()
	}
	s.expiries[id] = s.loop.AfterFunc(s.clock, s.cfg.AsyncAlertTimeout, func() {
		delete(s.expiries, id)
		if _, changed := s.ackLocal(id); changed {
			s.logger.Debug("async alert expired", "alert_id", id)
		}
	})
}

// ackLocal es el paso local del reconocimiento. Debe correr en el loop.
func (s *Session) ackLocal(id string) (domain.Alert, bool) {
	a, changed, ok := s.proj.ackAlert(id, s.clock.Now())
	if !ok || !changed {
		return a, false
	}
	if t, ok := s.expiries[id]; ok {
		t.Stop()
		delete(s.expiries, id)
	}
	s.persistAlert(a)
	s.changed(ProjectionAlerts, id)
	s.promoteNext()
	return a, true
}

// replaceAlerts aplica la cola de alertas de un snapshot.
func (s *Session) replaceAlerts(list []domain.Alert) {
	prev, hadSlot := s.proj.blocking()
	s.proj.replaceAlertQueue(list)

	for id, t := range s.expiries {
		t.Stop()
		delete(s.expiries, id)
	}
	for _, a := range s.proj.pendingAlerts() {
		if a.AlertType == domain.AlertAsync {
			s.scheduleExpiry(a.AlertID)
		}
	}
	if cur, ok := s.proj.blocking(); ok && hadSlot && cur.AlertID == prev.AlertID {
		return
	}
	s.promoteNext()
}

// AcknowledgeAlert reconoce una alerta. Para sync marca la alerta localmente,
// libera el slot y espera el alert_ack del engine. Llamarla otra vez es un
// no-op, salvo que el alert_ack anterior haya fallado: entonces se reenvía.
// Para async equivale a DismissAlert.
func (s *Session) AcknowledgeAlert(ctx context.Context, alertID string) error {
	var (
		alert domain.Alert
		found bool
		send  bool
	)
	if err := s.loop.Call(ctx, func() {
		alert, found = s.proj.findAlert(alertID)
		if !found {
			return
		}
		var changed bool
		alert, changed = s.ackLocal(alertID)
		send = alert.Blocking() && (changed || s.unconfirmed[alertID])
		delete(s.unconfirmed, alertID)
	}); err != nil {
		return fmt.Errorf("session.AcknowledgeAlert: %w", err)
	}
	if !found {
		return fmt.Errorf("session.AcknowledgeAlert %s: %w", alertID, domain.ErrAlertNotFound)
	}
	if !send {
		return nil
	}

	if _, err := s.request(ctx, domain.KindAlertAck, alertAckPayload{AlertID: alertID}, nil); err != nil {
		s.loop.Post(func() { s.unconfirmed[alertID] = true })
		return fmt.Errorf("session.AcknowledgeAlert: %w", err)
	}
	s.logger.Info("alert acknowledged", "alert_id", alertID)
	return nil
}

// DismissAlert descarta una alerta async sin contactar al engine.
func (s *Session) DismissAlert(ctx context.Context, alertID string) error {
	var (
		alert domain.Alert
		found bool
	)
	err := s.loop.Call(ctx, func() {
		alert, found = s.proj.findAlert(alertID)
		if found && !alert.Blocking() {
			s.ackLocal(alertID)
		}
	})
	switch {
	case err != nil:
		return fmt.Errorf("session.DismissAlert: %w", err)
	case !found:
		return fmt.Errorf("session.DismissAlert %s: %w", alertID, domain.ErrAlertNotFound)
	case alert.Blocking():
		return fmt.Errorf("session.DismissAlert %s: %w", alertID, domain.ErrAlertRequiresAck)
	}
	return nil
}

func (s *Session) persistAlert(a domain.Alert) {
	if s.store != nil {
		s.store.saveAlert(a)
	}
}
