// Package eventloop serializa toda la mutación de estado del cliente de sesión
// en una única goroutine. Sockets, dialers y timers sólo encolan tareas.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrStopped se devuelve al encolar en un loop que ya terminó.
var ErrStopped = errors.New("eventloop: stopped")

// Loop ejecuta tareas en orden FIFO sobre una sola goroutine.
type Loop struct {
	inbox    chan func()
	stopped  chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// New crea un loop con un buffer de size tareas.
func New(size int, logger *slog.Logger) *Loop {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		inbox:   make(chan func(), size),
		stopped: make(chan struct{}),
		logger:  logger,
	}
}

// Run procesa tareas hasta que ctx se cancela o se llama a Stop.
func (l *Loop) Run(ctx context.Context) error {
	defer l.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopped:
			return nil
		case fn := <-l.inbox:
			l.exec(fn)
		}
	}
}

// exec aísla el panic de una tarea para no tirar el loop entero.
func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("eventloop task panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// Post encola fn. Bloquea si el buffer está lleno; devuelve false si el loop terminó.
// No debe llamarse desde dentro de una tarea con el buffer lleno.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}
	select {
	case l.inbox <- fn:
		return true
	case <-l.stopped:
		return false
	}
}

// Call encola fn y espera a que termine de ejecutarse.
// Nunca debe invocarse desde una tarea del propio loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		// puede haber terminado justo antes del stop
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Sync espera a que se procesen todas las tareas encoladas hasta ahora.
func (l *Loop) Sync(ctx context.Context) error {
	return l.Call(ctx, func() {})
}

// Stop detiene el loop. Las tareas pendientes se descartan.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopped) })
}

// Done se cierra cuando el loop terminó.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}
