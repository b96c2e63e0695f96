package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del cliente.
type Config struct {
	Session SessionConfig `yaml:"session"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// SessionConfig controla la conexión con el engine. Las duraciones van en ms.
type SessionConfig struct {
	URL                    string  `yaml:"url"`
	ReconnectIntervalMs    int     `yaml:"reconnect_interval_ms"`
	MaxReconnectIntervalMs int     `yaml:"max_reconnect_interval_ms"`
	ReconnectDecay         float64 `yaml:"reconnect_decay"`
	MaxReconnectAttempts   int     `yaml:"max_reconnect_attempts"`
	HeartbeatIntervalMs    int     `yaml:"heartbeat_interval_ms"`
	HeartbeatTimeoutMs     int     `yaml:"heartbeat_timeout_ms"`
	RequestTimeoutMs       int     `yaml:"request_timeout_ms"`
	HandshakeTimeoutMs     int     `yaml:"handshake_timeout_ms"`
	TradeLogLimit          int     `yaml:"trade_log_limit"`
}

// AlertsConfig controla el subsistema de alertas.
type AlertsConfig struct {
	HistoryLimit   int  `yaml:"history_limit"`
	AsyncTimeoutMs int  `yaml:"async_timeout_ms"` // cuánto se muestra una alerta async
	Sound          bool `yaml:"sound"`            // tono en alertas de severidad alta
}

// StorageConfig controla dónde se cachea el último estado.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, ":memory:", o "off" para desactivar
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Default devuelve la configuración sin archivo: defaults + variables de entorno.
func Default() *Config {
	var cfg Config
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)
	return &cfg
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// ReconnectInterval es la espera base antes del primer reintento.
func (s SessionConfig) ReconnectInterval() time.Duration { return ms(s.ReconnectIntervalMs) }

// MaxReconnectInterval es el tope de la espera entre reintentos.
func (s SessionConfig) MaxReconnectInterval() time.Duration { return ms(s.MaxReconnectIntervalMs) }

// HeartbeatInterval es cada cuánto se manda un heartbeat.
func (s SessionConfig) HeartbeatInterval() time.Duration { return ms(s.HeartbeatIntervalMs) }

// HeartbeatTimeout es cuánto se espera la respuesta a un heartbeat.
func (s SessionConfig) HeartbeatTimeout() time.Duration { return ms(s.HeartbeatTimeoutMs) }

// RequestTimeout es el timeout de cada request correlacionado.
func (s SessionConfig) RequestTimeout() time.Duration { return ms(s.RequestTimeoutMs) }

// HandshakeTimeout acota el handshake del WebSocket.
func (s SessionConfig) HandshakeTimeout() time.Duration { return ms(s.HandshakeTimeoutMs) }

// AsyncTimeout es cuánto se muestra una alerta async antes de expirar.
func (a AlertsConfig) AsyncTimeout() time.Duration { return ms(a.AsyncTimeoutMs) }

// CacheEnabled indica si hay que abrir el cache local.
func (s StorageConfig) CacheEnabled() bool { return s.DSN != "off" }

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AEGIS_WS_URL"); v != "" {
		cfg.Session.URL = v
	}
	if v := os.Getenv("AEGIS_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	s := &cfg.Session
	if s.URL == "" {
		s.URL = "ws://127.0.0.1:8765/ws"
	}
	if s.ReconnectIntervalMs <= 0 {
		s.ReconnectIntervalMs = 1000
	}
	if s.MaxReconnectIntervalMs <= 0 {
		s.MaxReconnectIntervalMs = 30000
	}
	if s.ReconnectDecay < 1 {
		s.ReconnectDecay = 1.5
	}
	if s.MaxReconnectAttempts <= 0 {
		s.MaxReconnectAttempts = 10
	}
	if s.HeartbeatIntervalMs <= 0 {
		s.HeartbeatIntervalMs = 30000
	}
	if s.HeartbeatTimeoutMs <= 0 {
		s.HeartbeatTimeoutMs = 10000
	}
	if s.RequestTimeoutMs <= 0 {
		s.RequestTimeoutMs = 30000
	}
	if s.HandshakeTimeoutMs <= 0 {
		s.HandshakeTimeoutMs = 10000
	}
	if s.TradeLogLimit <= 0 {
		s.TradeLogLimit = 5000
	}
	if cfg.Alerts.HistoryLimit <= 0 {
		cfg.Alerts.HistoryLimit = 100
	}
	if cfg.Alerts.AsyncTimeoutMs <= 0 {
		cfg.Alerts.AsyncTimeoutMs = 5000
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "aegis.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
