package transport

import (
	"math"
	"time"
)

// Backoff calcula la espera entre intentos de reconexión: min(base*decay^attempt, max).
// Sin jitter: un único cliente contra un único engine local.
type Backoff struct {
	Base  time.Duration
	Max   time.Duration
	Decay float64
}

// Delay devuelve la espera antes del intento número attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	decay := b.Decay
	if decay < 1 {
		decay = 1
	}
	d := float64(b.Base) * math.Pow(decay, float64(attempt))
	if b.Max > 0 && (d > float64(b.Max) || math.IsInf(d, 1)) {
		return b.Max
	}
	return time.Duration(d)
}
