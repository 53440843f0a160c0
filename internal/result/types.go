package result

import "time"

// SweepMeta summarizes one (sweep, instance) target of a run.
type SweepMeta struct {
	Sweep      string         `json:"sweep"`
	Benchmark  string         `json:"benchmark"`
	Scenario   string         `json:"scenario"`
	Instance   string         `json:"instance"`
	Container  bool           `json:"container"`
	Seed       int64          `json:"seed"`
	Samples    int            `json:"samples"`
	Evaluated  int            `json:"evaluated"`
	Failed     int            `json:"failed"`
	Fidelity   map[string]any `json:"fidelity,omitempty"`
	BestValue  *float64       `json:"best_value,omitempty"`
	BestConfig map[string]any `json:"best_config,omitempty"`
	DurationS  float64        `json:"duration_s"`
	Error      string         `json:"error,omitempty"`
}

// Evaluation is one recorded objective call.
type Evaluation struct {
	ID            string         `json:"id"`
	Sweep         string         `json:"sweep"`
	Scenario      string         `json:"scenario"`
	Instance      string         `json:"instance"`
	ConfigKey     string         `json:"config_key"`
	Configuration map[string]any `json:"configuration"`
	Fidelity      map[string]any `json:"fidelity"`
	FunctionValue float64        `json:"function_value"`
	Cost          float64        `json:"cost"`
	Info          map[string]any `json:"info,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}
