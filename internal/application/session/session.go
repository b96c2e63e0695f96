// Package session es la fachada que usa el resto de la aplicación: traduce
// acciones de dominio a mensajes del protocolo, espera sus respuestas y es el
// único escritor de las proyecciones locales.
//
// Una Session es independiente de cualquier otra: no hay estado global. Para
// compartir una instancia por proceso usar Holder.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/correlator"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/application/transport"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/clock"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/domain"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/eventloop"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/ports"
	"github.com/aimerfeng/AegisQuant-2.0--sub000/internal/pubsub"
)

// Config agrupa los parámetros de la sesión.
type Config struct {
	Transport         transport.Config
	RequestTimeout    time.Duration
	AlertHistoryLimit int
	AsyncAlertTimeout time.Duration // cuánto se muestra una alerta async antes de expirar
	TradeLogLimit     int
}

// DefaultConfig devuelve la configuración por defecto.
func DefaultConfig() Config {
	return Config{
		Transport:         transport.DefaultConfig(),
		RequestTimeout:    correlator.DefaultTimeout,
		AlertHistoryLimit: 100,
		AsyncAlertTimeout: 5 * time.Second,
		TradeLogLimit:     5000,
	}
}

// Deps son los colaboradores externos de la sesión. Dialer es obligatorio.
type Deps struct {
	Dialer ports.Dialer
	Host   ports.HostShell  // nil = sin shell
	Cache  ports.StateCache // nil = sin persistencia local
	Clock  clock.Clock
	Logger *slog.Logger
}

// Session coordina transporte, correlator, proyecciones y alertas.
type Session struct {
	cfg    Config
	loop   *eventloop.Loop
	tr     *transport.Transport
	corr   *correlator.Correlator
	clock  clock.Clock
	host   ports.HostShell
	logger *slog.Logger

	proj    *projections
	changes *pubsub.Hub[Change]
	store   *persister

	expiries    map[string]*eventloop.Timer // alertas async visibles; sólo el loop
	unconfirmed map[string]bool             // sync reconocidas cuyo alert_ack falló; sólo el loop

	running   atomic.Bool
	runOnce   sync.Once
	closeOnce sync.Once
}

// pushKinds son los tipos que la sesión aplica sobre las proyecciones.
var pushKinds = []domain.ControlKind{
	domain.KindConnect,
	domain.KindDisconnect,
	domain.KindTickUpdate,
	domain.KindBarUpdate,
	domain.KindPositionUpdate,
	domain.KindAccountUpdate,
	domain.KindTradeUpdate,
	domain.KindAlert,
	domain.KindError,
	domain.KindStatus,
	domain.KindStateSync,
}

// New construye una sesión desconectada. Hay que llamar a Run para que procese
// eventos y a Connect para abrir el socket.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Dialer == nil {
		return nil, errors.New("session.New: dialer is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Host == nil {
		deps.Host = noopHost{}
	}
	if cfg.AsyncAlertTimeout <= 0 {
		cfg.AsyncAlertTimeout = DefaultConfig().AsyncAlertTimeout
	}

	logger := deps.Logger
	loop := eventloop.New(4096, logger)
	tr := transport.New(cfg.Transport, deps.Dialer, loop,
		transport.WithClock(deps.Clock),
		transport.WithLogger(logger),
	)
	corr := correlator.New(tr, loop, deps.Clock, cfg.RequestTimeout, logger)

	s := &Session{
		cfg:      cfg,
		loop:     loop,
		tr:       tr,
		corr:     corr,
		clock:    deps.Clock,
		host:     deps.Host,
		logger:   logger.With("component", "session"),
		proj:     newProjections(cfg.TradeLogLimit, cfg.AlertHistoryLimit),
		changes:  pubsub.NewHub[Change](logger),
		expiries:    make(map[string]*eventloop.Timer),
		unconfirmed: make(map[string]bool),
	}
	if deps.Cache != nil {
		s.store = newPersister(deps.Cache, logger)
		s.seedFromCache(deps.Cache)
	}

	// la sesión se suscribe antes que cualquier consumidor: las proyecciones
	// ya están actualizadas cuando un handler externo ve el push
	tr.Subscribe(s.onTransportEvent)
	for _, kind := range pushKinds {
		corr.Subscribe(kind, s.applyPush)
	}
	return s, nil
}

// Run procesa eventos hasta que ctx se cancela o se llama a Close.
func (s *Session) Run(ctx context.Context) error {
	err := errors.New("session.Run: already running")
	s.runOnce.Do(func() {
		if s.store != nil {
			storeCtx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				defer close(done)
				s.store.run(storeCtx)
			}()
			defer func() {
				cancel()
				<-done
			}()
		}
		s.logger.Info("session loop started", "url", s.cfg.Transport.URL)
		s.running.Store(true)
		err = s.loop.Run(ctx)
		s.running.Store(false)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.logger.Info("session loop stopped")
	})
	return err
}

// Close desconecta de forma intencional y detiene el loop. Es idempotente.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.running.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if derr := s.tr.Disconnect(ctx); derr != nil && !errors.Is(derr, eventloop.ErrStopped) {
				err = fmt.Errorf("session.Close: %w", derr)
			}
		}
		s.loop.Stop()
	})
	return err
}

// Connect abre la conexión; no hace nada si ya está conectada o conectando.
// También limpia el estado fatal tras agotar los reintentos.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.tr.Connect(ctx); err != nil {
		return fmt.Errorf("session.Connect: %w", err)
	}
	return nil
}

// Disconnect cierra la conexión sin reconectar.
func (s *Session) Disconnect(ctx context.Context) error {
	if err := s.tr.Disconnect(ctx); err != nil {
		return fmt.Errorf("session.Disconnect: %w", err)
	}
	return nil
}

// Subscribe registra un handler para pushes de un tipo. Corre en el loop de la
// sesión después de aplicar el push a las proyecciones; no debe bloquear ni
// llamar métodos bloqueantes de Session (usar una goroutine).
func (s *Session) Subscribe(kind domain.ControlKind, fn func(domain.Message)) (unsubscribe func()) {
	return s.corr.Subscribe(kind, fn)
}

// Watch registra un handler de cambios de proyección, con las mismas reglas que Subscribe.
func (s *Session) Watch(fn func(Change)) (unsubscribe func()) {
	return s.changes.Subscribe(fn)
}

// Sync espera a que el loop procese todo lo encolado hasta ahora.
func (s *Session) Sync(ctx context.Context) error {
	return s.loop.Sync(ctx)
}

// --- lecturas de proyecciones ---

// Connection devuelve el estado de conexión.
func (s *Session) Connection() domain.ConnectionState { return s.proj.connection() }

// Account devuelve los totales de la cuenta.
func (s *Session) Account() domain.Account { return s.proj.accountView() }

// Backtest devuelve el estado del backtest.
func (s *Session) Backtest() domain.BacktestStatus { return s.proj.backtestView() }

// Positions devuelve las posiciones abiertas ordenadas por símbolo.
func (s *Session) Positions() []domain.Position { return s.proj.positionList() }

// Position devuelve la posición de un símbolo.
func (s *Session) Position(symbol string) (domain.Position, bool) { return s.proj.position(symbol) }

// Strategies devuelve las instancias de estrategia ordenadas por id.
func (s *Session) Strategies() []domain.StrategyInstance { return s.proj.strategyList() }

// Trades devuelve el log de trades, el más viejo primero.
func (s *Session) Trades() []domain.Trade { return s.proj.tradeList() }

// LastTick devuelve la última cotización de un símbolo.
func (s *Session) LastTick(symbol string) (domain.Tick, bool) { return s.proj.tick(symbol) }

// LastBar devuelve la última vela de un símbolo.
func (s *Session) LastBar(symbol string) (domain.Bar, bool) { return s.proj.bar(symbol) }

// PendingAlerts devuelve las alertas sin reconocer, en orden de llegada.
func (s *Session) PendingAlerts() []domain.Alert { return s.proj.pendingAlerts() }

// BlockingAlert devuelve la alerta que ocupa el slot bloqueante, si hay.
func (s *Session) BlockingAlert() (domain.Alert, bool) { return s.proj.blocking() }

// AlertHistory devuelve el historial de alertas, la más reciente primero.
func (s *Session) AlertHistory() []domain.Alert { return s.proj.history() }

func (s *Session) changed(kind ProjectionKind, key string) {
	s.changes.Publish(Change{Projection: kind, Key: key})
}

// Holder guarda la sesión compartida del proceso con semántica explícita de
// creación y reemplazo.
type Holder struct {
	mu  sync.RWMutex
	cur *Session
}

// Current devuelve la sesión actual o nil.
func (h *Holder) Current() *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cur
}

// Replace instala next y cierra la sesión anterior, si había. Devuelve el error
// de cierre de la anterior.
func (h *Holder) Replace(next *Session) error {
	h.mu.Lock()
	prev := h.cur
	h.cur = next
	h.mu.Unlock()
	if prev == nil || prev == next {
		return nil
	}
	return prev.Close()
}

type noopHost struct{}

func (noopHost) ShowNotification(string, string)          {}
func (noopHost) ShowBlockingDialog(domain.Alert, func()) {}
func (noopHost) FocusWindow()                             {}
func (noopHost) FlashWindow()                             {}
