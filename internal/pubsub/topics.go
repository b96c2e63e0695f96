package pubsub

import (
	"log/slog"
	"sync"
)

// Topics agrupa un Hub por clave (p.ej. el tipo de mensaje).
type Topics[K comparable, T any] struct {
	mu     sync.Mutex
	hubs   map[K]*Hub[T]
	logger *slog.Logger
}

// NewTopics crea un registro vacío.
func NewTopics[K comparable, T any](logger *slog.Logger) *Topics[K, T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Topics[K, T]{hubs: make(map[K]*Hub[T]), logger: logger}
}

// Subscribe registra fn para la clave key. Se admiten varios handlers por clave.
func (t *Topics[K, T]) Subscribe(key K, fn func(T)) (unsubscribe func()) {
	return t.hub(key).Subscribe(fn)
}

// Publish entrega v a los suscriptores de key. Devuelve false si no había ninguno.
func (t *Topics[K, T]) Publish(key K, v T) bool {
	t.mu.Lock()
	h, ok := t.hubs[key]
	t.mu.Unlock()
	if !ok || h.Len() == 0 {
		return false
	}
	h.Publish(v)
	return true
}

func (t *Topics[K, T]) hub(key K) *Hub[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.hubs[key]
	if !ok {
		h = NewHub[T](t.logger.With("topic", key))
		t.hubs[key] = h
	}
	return h
}
