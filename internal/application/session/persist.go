package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/ports"
)

const (
	persistQueueSize  = 256
	persistJobTimeout = 5 * time.Second
)

// persister saca la escritura a disco fuera del loop. Si la cola se llena se
// descarta la escritura: el cache es best effort y el engine es la fuente de verdad.
type persister struct {
	cache  ports.StateCache
	jobs   chan func(context.Context) error
	logger *slog.Logger
}

func newPersister(cache ports.StateCache, logger *slog.Logger) *persister {
	return &persister{
		cache:  cache,
		jobs:   make(chan func(context.Context) error, persistQueueSize),
		logger: logger.With("component", "state-cache"),
	}
}

// run ejecuta escrituras hasta que ctx se cancela; entonces vacía lo encolado.
func (p *persister) run(ctx context.Context) {
	for {
		select {
		case job := <-p.jobs:
			p.exec(job)
		case <-ctx.Done():
			for {
				select {
				case job := <-p.jobs:
					p.exec(job)
				default:
					return
				}
			}
		}
	}
}

func (p *persister) exec(job func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistJobTimeout)
	defer cancel()
	if err := job(ctx); err != nil {
		p.logger.Warn("state cache write failed", "err", err)
	}
}

func (p *persister) submit(what string, job func(context.Context) error) {
	select {
	case p.jobs <- job:
	default:
		p.logger.Warn("state cache queue full, dropping write", "what", what)
	}
}

func (p *persister) saveSnapshot(snap domain.StateSnapshot) {
	p.submit("snapshot", func(ctx context.Context) error {
		return p.cache.SaveSnapshot(ctx, snap)
	})
}

func (p *persister) saveAlert(a domain.Alert) {
	p.submit("alert", func(ctx context.Context) error {
		return p.cache.SaveAlert(ctx, a)
	})
}
