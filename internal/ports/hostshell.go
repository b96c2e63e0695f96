package ports

import "github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"

// HostShell son las primitivas del shell de escritorio que usa el subsistema de
// alertas. Fuera de escritorio degradan a equivalentes en consola.
//
// Se invocan desde el loop de la sesión: no deben bloquear.
type HostShell interface {
	// ShowNotification levanta una notificación de sistema.
	ShowNotification(title, message string)

	// ShowBlockingDialog presenta un modal que sólo se cierra reconociendo la alerta.
	// onAck se llama (desde cualquier goroutine) cuando el usuario la reconoce.
	ShowBlockingDialog(alert domain.Alert, onAck func())

	// FocusWindow trae la ventana al frente.
	FocusWindow()

	// FlashWindow pide atención del usuario.
	FlashWindow()
}
