package domain

// StrategyStatus es el estado de una instancia de estrategia en el engine.
type StrategyStatus string

const (
	StrategyLoaded  StrategyStatus = "loaded"
	StrategyRunning StrategyStatus = "running"
	StrategyStopped StrategyStatus = "stopped"
	StrategyError   StrategyStatus = "error"
)

// StrategyInstance es una estrategia cargada, con clave StrategyID.
type StrategyInstance struct {
	StrategyID   string         `json:"strategy_id"`
	Name         string         `json:"name"`
	Status       StrategyStatus `json:"status"`
	Params       map[string]any `json:"params,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// StrategySpec es el payload de strategy_load.
type StrategySpec struct {
	Name     string         `json:"name"`
	FilePath string         `json:"file_path"`
	Params   map[string]any `json:"params,omitempty"`
}
