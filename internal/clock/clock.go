// Package clock abstrae el tiempo para que los timers del cliente de sesión
// se puedan controlar desde los tests.
package clock

import "time"

// Timer es un timer cancelable devuelto por Clock.AfterFunc.
type Timer interface {
	// Stop cancela el timer. Devuelve false si ya había disparado o estaba detenido.
	Stop() bool
}

// Clock provee la hora actual y timers de un solo disparo.
type Clock interface {
	Now() time.Time
	// AfterFunc ejecuta f en su propia goroutine cuando transcurre d.
	AfterFunc(d time.Duration, f func()) Timer
}

// Real usa el reloj del sistema.
type Real struct{}

// Now devuelve time.Now().
func (Real) Now() time.Time { return time.Now() }

// AfterFunc delega en time.AfterFunc.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
