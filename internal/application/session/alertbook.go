package session

import (
	"time"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
)

// Cola de alertas pendientes, slot bloqueante e historial acotado.
// Misma regla que el resto de projections: escribe sólo el loop.

func (p *projections) recordHistory(a domain.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordHistoryLocked(a)
}

func (p *projections) recordHistoryLocked(a domain.Alert) {
	for i, h := range p.alertHistory {
		if h.AlertID == a.AlertID {
			p.alertHistory = append(p.alertHistory[:i], p.alertHistory[i+1:]...)
			break
		}
	}
	p.alertHistory = append([]domain.Alert{a}, p.alertHistory...)
	if p.historyLimit > 0 && len(p.alertHistory) > p.historyLimit {
		p.alertHistory = p.alertHistory[:p.historyLimit]
	}
}

// updateHistoryLocked reemplaza la entrada sin moverla de lugar.
func (p *projections) updateHistoryLocked(a domain.Alert) bool {
	for i, h := range p.alertHistory {
		if h.AlertID == a.AlertID {
			p.alertHistory[i] = a
			return true
		}
	}
	return false
}

func (p *projections) enqueueAlert(a domain.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, q := range p.alertQueue {
		if q.AlertID == a.AlertID {
			p.alertQueue[i] = a
			return
		}
	}
	p.alertQueue = append(p.alertQueue, a)
}

// ackAlert marca la alerta como reconocida, la saca de la cola y libera el slot
// si lo ocupaba. changed=false si ya estaba reconocida.
func (p *projections) ackAlert(id string, now time.Time) (a domain.Alert, changed, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, q := range p.alertQueue {
		if q.AlertID != id {
			continue
		}
		p.alertQueue = append(p.alertQueue[:i], p.alertQueue[i+1:]...)
		changed = q.Acknowledge(now)
		if p.blockingID == id {
			p.blockingID = ""
		}
		if !p.updateHistoryLocked(q) {
			p.recordHistoryLocked(q)
		}
		return q, changed, true
	}
	for i, h := range p.alertHistory {
		if h.AlertID != id {
			continue
		}
		changed = h.Acknowledge(now)
		p.alertHistory[i] = h
		return h, changed, true
	}
	return domain.Alert{}, false, false
}

func (p *projections) findAlert(id string) (domain.Alert, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, q := range p.alertQueue {
		if q.AlertID == id {
			return q, true
		}
	}
	for _, h := range p.alertHistory {
		if h.AlertID == id {
			return h, true
		}
	}
	return domain.Alert{}, false
}

func (p *projections) setBlocking(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blockingID = id
}

func (p *projections) blocking() (domain.Alert, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.blockingID == "" {
		return domain.Alert{}, false
	}
	for _, q := range p.alertQueue {
		if q.AlertID == p.blockingID {
			return q, true
		}
	}
	return domain.Alert{}, false
}

// nextBlocking elige la alerta sync pendiente de mayor severidad; a igual
// severidad, la más antigua.
func (p *projections) nextBlocking() (domain.Alert, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var (
		best  domain.Alert
		found bool
	)
	for _, q := range p.alertQueue {
		if !q.Blocking() || q.Acknowledged {
			continue
		}
		if !found || q.Severity.Rank() > best.Severity.Rank() {
			best, found = q, true
		}
	}
	return best, found
}

// replaceAlertQueue reemplaza la cola con las alertas no reconocidas de un
// snapshot; las ya reconocidas localmente tampoco entran. El slot se conserva
// sólo si su alerta sigue pendiente.
func (p *projections) replaceAlertQueue(list []domain.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := make([]domain.Alert, 0, len(list))
	keepSlot := false
	for _, a := range list {
		if a.AlertID == "" {
			continue
		}
		known, acked := false, false
		for _, h := range p.alertHistory {
			if h.AlertID == a.AlertID {
				known, acked = true, h.Acknowledged
				break
			}
		}
		if !known {
			p.recordHistoryLocked(a)
		}
		if a.Acknowledged || acked {
			continue
		}
		next = append(next, a)
		if a.AlertID == p.blockingID && a.Blocking() {
			keepSlot = true
		}
	}
	p.alertQueue = next
	if !keepSlot {
		p.blockingID = ""
	}
}

func (p *projections) pendingAlerts() []domain.Alert {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.Alert(nil), p.alertQueue...)
}

func (p *projections) history() []domain.Alert {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]domain.Alert(nil), p.alertHistory...)
}
