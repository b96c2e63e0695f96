package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
)

// Console implementa ports.HostShell sobre una terminal. Los modales se
// imprimen y quedan esperando el comando ack del REPL.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	bell    bool
	limiter *rate.Limiter
	dropped int
	waiting map[string]func() // alert_id → onAck del modal impreso
}

// NewConsole crea un shell de consola que escribe a stdout.
func NewConsole(bell bool) *Console {
	return newConsole(os.Stdout, bell)
}

// NewConsoleWriter crea un shell de consola para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return newConsole(w, false)
}

func newConsole(w io.Writer, bell bool) *Console {
	return &Console{
		out:  w,
		bell: bell,
		// ráfagas de alertas async no deben tapar la terminal
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
		waiting: make(map[string]func()),
	}
}

// ShowNotification imprime una línea. Pasado el límite de ráfaga las
// notificaciones se cuentan y se resumen en la siguiente que pase.
func (c *Console) ShowNotification(title, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.limiter.Allow() {
		c.dropped++
		return
	}
	now := time.Now().Format("15:04:05")
	if c.dropped > 0 {
		fmt.Fprintf(c.out, "[%s] (%d notifications suppressed)\n", now, c.dropped)
		c.dropped = 0
	}
	fmt.Fprintf(c.out, "[%s] %s: %s\n", now, title, message)
}

// ShowBlockingDialog imprime la alerta en un recuadro y registra onAck para Ack.
func (c *Console) ShowBlockingDialog(a domain.Alert, onAck func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiting[a.AlertID] = onAck

	line := strings.Repeat("═", 62)
	fmt.Fprintf(c.out, "\n╔%s╗\n", line)
	fmt.Fprintf(c.out, "  %s %s\n", severityTag(a.Severity), truncate(a.Title, 50))
	fmt.Fprintf(c.out, "  %s\n", a.Message)
	fmt.Fprintf(c.out, "  %s  id=%s\n", a.Time().Format("2006-01-02 15:04:05"), a.AlertID)
	fmt.Fprintf(c.out, "  >>> type: ack %s\n", a.AlertID)
	fmt.Fprintf(c.out, "╚%s╝\n\n", line)
}

// Ack reconoce el modal de alertID. Devuelve false si no hay modal abierto con ese id.
func (c *Console) Ack(alertID string) bool {
	c.mu.Lock()
	onAck, ok := c.waiting[alertID]
	delete(c.waiting, alertID)
	c.mu.Unlock()
	if ok {
		onAck()
	}
	return ok
}

// FocusWindow no tiene equivalente en una terminal.
func (c *Console) FocusWindow() {}

// FlashWindow hace sonar la campana de la terminal si está habilitada.
func (c *Console) FlashWindow() {
	if !c.bell {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, "\a")
}

func severityTag(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return "[CRITICAL]"
	case domain.SeverityError:
		return "[ERROR]"
	case domain.SeverityWarning:
		return "[WARN]"
	default:
		return "[INFO]"
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
