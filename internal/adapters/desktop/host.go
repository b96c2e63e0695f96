// Package desktop implementa el shell de escritorio sobre fyne.
package desktop

import (
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
)

// Host implementa ports.HostShell sobre una ventana fyne. Todo lo que toca
// widgets pasa por fyne.Do: la sesión lo invoca desde su propio loop.
type Host struct {
	app    fyne.App
	win    fyne.Window
	chime  *Chime // nil = sin sonido
	logger *slog.Logger
}

// NewHost crea el shell sobre win. chime puede ser nil.
func NewHost(app fyne.App, win fyne.Window, chime *Chime, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{app: app, win: win, chime: chime, logger: logger.With("component", "desktop")}
}

// ShowNotification levanta una notificación del sistema.
func (h *Host) ShowNotification(title, message string) {
	h.app.SendNotification(fyne.NewNotification(title, message))
}

// ShowBlockingDialog muestra un modal que sólo se cierra con "Acknowledge".
func (h *Host) ShowBlockingDialog(a domain.Alert, onAck func()) {
	fyne.Do(func() {
		d := dialog.NewInformation(dialogTitle(a), a.Message, h.win)
		d.SetDismissText("Acknowledge")
		d.SetOnClosed(onAck)
		d.Show()
	})
	h.logger.Debug("blocking alert shown", "alert_id", a.AlertID, "severity", a.Severity)
}

// FocusWindow trae la ventana principal al frente.
func (h *Host) FocusWindow() {
	fyne.Do(h.win.RequestFocus)
}

// FlashWindow pide atención con un tono corto. fyne no expone el parpadeo de
// la barra de tareas.
func (h *Host) FlashWindow() {
	if h.chime != nil {
		h.chime.Play()
	}
}

func dialogTitle(a domain.Alert) string {
	switch a.Severity {
	case domain.SeverityCritical:
		return "CRITICAL: " + a.Title
	case domain.SeverityError:
		return "Error: " + a.Title
	default:
		return a.Title
	}
}
