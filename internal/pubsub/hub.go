// Package pubsub implementa un fan-out tipado con aislamiento de panics por suscriptor.
package pubsub

import (
	"fmt"
	"log/slog"
	"sync"
)

// Hub entrega cada valor publicado a todos los suscriptores, en orden de registro.
type Hub[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscriber[T]
	logger *slog.Logger
}

type subscriber[T any] struct {
	id uint64
	fn func(T)
}

// NewHub crea un hub vacío. logger puede ser nil.
func NewHub[T any](logger *slog.Logger) *Hub[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub[T]{logger: logger}
}

// Subscribe registra fn y devuelve la función para desuscribirse.
func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subs = append(h.subs, subscriber[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(id) })
	}
}

func (h *Hub[T]) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s.id == id {
			// copia para no mutar el slice que un Publish concurrente está recorriendo
			subs := make([]subscriber[T], 0, len(h.subs)-1)
			subs = append(subs, h.subs[:i]...)
			h.subs = append(subs, h.subs[i+1:]...)
			return
		}
	}
}

// Publish entrega v a cada suscriptor. Un panic en un handler se loguea y no
// impide la entrega al resto. Devuelve la cantidad de handlers que fallaron.
func (h *Hub[T]) Publish(v T) int {
	h.mu.RLock()
	subs := h.subs
	h.mu.RUnlock()

	failed := 0
	for _, s := range subs {
		if !h.deliver(s.fn, v) {
			failed++
		}
	}
	return failed
}

// Len devuelve la cantidad de suscriptores activos.
func (h *Hub[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub[T]) deliver(fn func(T), v T) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("subscriber panicked", "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	fn(v)
	return true
}
