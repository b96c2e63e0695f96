package transport_test

import (
	"testing"
	"time"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/transport"
	"github.com/stretchr/testify/assert"
)

func TestBackoff_Delay(t *testing.T) {
	b := transport.Backoff{Base: time.Second, Max: 30 * time.Second, Decay: 1.5}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 1500 * time.Millisecond},
		{2, 2250 * time.Millisecond},
		{5, 7593750 * time.Microsecond}, // 7593.75ms
		{9, 30 * time.Second},           // 38443ms capado
		{50, 30 * time.Second},
		{5000, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoff_NeverExceedsMax(t *testing.T) {
	b := transport.Backoff{Base: 250 * time.Millisecond, Max: 5 * time.Second, Decay: 2}
	prev := time.Duration(0)
	for i := 0; i < 40; i++ {
		d := b.Delay(i)
		assert.LessOrEqual(t, d, 5*time.Second)
		assert.GreaterOrEqual(t, d, prev)
		prev = d
	}
}
