package desktop

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const (
	sampleRate  = beep.SampleRate(44100)
	chimeFreq   = 880.0 // La5
	chimeLength = 250 * time.Millisecond
	chimeVolume = 0.3
)

// Chime es el tono de atención de las alertas de severidad alta.
type Chime struct {
	mu     sync.Mutex
	buffer *beep.Buffer
}

// NewChime inicializa el speaker y pre-renderiza el tono.
func NewChime() (*Chime, error) {
	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("desktop.NewChime: init speaker: %w", err)
	}
	return &Chime{buffer: renderTone(chimeFreq, chimeLength)}, nil
}

// Play reproduce el tono sin bloquear.
func (c *Chime) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	speaker.Play(c.buffer.Streamer(0, c.buffer.Len()))
}

// renderTone genera una senoidal con fade-out lineal para evitar el click final.
func renderTone(freq float64, d time.Duration) *beep.Buffer {
	format := beep.Format{SampleRate: sampleRate, NumChannels: 2, Precision: 2}
	total := sampleRate.N(d)
	pos := 0
	sine := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			env := 1 - float64(pos)/float64(total)
			v := chimeVolume * env * math.Sin(2*math.Pi*freq*float64(pos)/float64(sampleRate))
			samples[i] = [2]float64{v, v}
			pos++
		}
		return len(samples), true
	})
	buf := beep.NewBuffer(format)
	buf.Append(beep.Take(total, sine))
	return buf
}
