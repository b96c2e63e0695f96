package eventloop

import (
	"time"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/clock"
)

// Timer es un timer cuyo callback corre dentro del loop.
type Timer struct {
	t    clock.Timer
	done bool // sólo se toca desde el loop
}

// AfterFunc programa fn en el loop cuando transcurre d según clk.
// Debe llamarse desde el loop.
func (l *Loop) AfterFunc(clk clock.Clock, d time.Duration, fn func()) *Timer {
	tm := &Timer{}
	tm.t = clk.AfterFunc(d, func() {
		l.Post(func() {
			if tm.done {
				return
			}
			tm.done = true
			fn()
		})
	})
	return tm
}

// Stop cancela el timer. Debe llamarse desde el loop: garantiza que fn no corre
// después, aunque el reloj ya haya disparado y la tarea esté encolada.
// Se puede llamar sobre un *Timer nil.
func (tm *Timer) Stop() {
	if tm == nil || tm.done {
		return
	}
	tm.done = true
	tm.t.Stop()
}
