package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file the CLI looks for when --config is unset.
const DefaultPath = "hpobench.yaml"

type Config struct {
	DataDir   string    `yaml:"data_dir"`
	Catalog   string    `yaml:"catalog"`
	Predictor Predictor `yaml:"predictor"`
	Container Container `yaml:"container"`
	Results   Results   `yaml:"results"`
	Server    Server    `yaml:"server"`
	Log       Log       `yaml:"log"`
	Sweeps    []Sweep   `yaml:"sweeps"`
}

// Predictor is the external surrogate command.
type Predictor struct {
	Command        string            `yaml:"command"`
	Args           []string          `yaml:"args"`
	Env            map[string]string `yaml:"env"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
}

type Container struct {
	Source                string  `yaml:"source"`
	Tag                   string  `yaml:"tag"`
	StartupTimeoutSeconds int     `yaml:"startup_timeout_seconds"`
	CPULimit              float64 `yaml:"cpu_limit"`
	MemoryLimitMB         int     `yaml:"memory_limit_mb"`
	EnvFile               string  `yaml:"env_file"`
	Pull                  bool    `yaml:"pull"`
}

type Results struct {
	Dir string `yaml:"dir"`
}

type Server struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Sweep is a random search over one scenario and a list of instances.
type Sweep struct {
	Name      string         `yaml:"name"`
	Benchmark string         `yaml:"benchmark"`
	Scenario  string         `yaml:"scenario"`
	Instances []string       `yaml:"instances"`
	Samples   int            `yaml:"samples"`
	Seed      int64          `yaml:"seed"`
	Fidelity  map[string]any `yaml:"fidelity"`
	Container bool           `yaml:"container"`
}

func (p Predictor) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (c Container) StartupTimeout() time.Duration {
	return time.Duration(c.StartupTimeoutSeconds) * time.Second
}

func (c Container) MemoryLimitBytes() int64 {
	return int64(c.MemoryLimitMB) << 20
}

// Load reads path strictly: unknown keys are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to the defaults when the file does
// not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func Default() *Config {
	var cfg Config
	if err := validate(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

func validate(cfg *Config) error {
	if cfg.DataDir == "" {
		cfg.DataDir = os.Getenv("YAHPO_DATA_PATH")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data/yahpo"
	}
	if cfg.Predictor.TimeoutSeconds < 0 {
		return fmt.Errorf("predictor.timeout_seconds must not be negative")
	}
	if cfg.Predictor.TimeoutSeconds == 0 {
		cfg.Predictor.TimeoutSeconds = 60
	}
	if cfg.Container.Tag == "" {
		cfg.Container.Tag = "0.0.1"
	}
	if cfg.Container.StartupTimeoutSeconds == 0 {
		cfg.Container.StartupTimeoutSeconds = 120
	}
	if cfg.Container.CPULimit < 0 || cfg.Container.MemoryLimitMB < 0 {
		return fmt.Errorf("container limits must not be negative")
	}
	if cfg.Results.Dir == "" {
		cfg.Results.Dir = "results"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:50051"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch cfg.Log.Format {
	case "":
		cfg.Log.Format = "text"
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}

	names := map[string]bool{}
	for i := range cfg.Sweeps {
		s := &cfg.Sweeps[i]
		if s.Scenario == "" {
			return fmt.Errorf("sweep %d: scenario is required", i)
		}
		if len(s.Instances) == 0 {
			return fmt.Errorf("sweep %d: at least one instance is required", i)
		}
		if s.Name == "" {
			s.Name = s.Scenario
		}
		if names[s.Name] {
			return fmt.Errorf("sweep %d: duplicate name %q", i, s.Name)
		}
		names[s.Name] = true
		if s.Benchmark == "" {
			s.Benchmark = "YAHPOGymBenchmark"
		}
		if s.Samples < 0 {
			return fmt.Errorf("sweep %q: samples must not be negative", s.Name)
		}
		if s.Samples == 0 {
			s.Samples = 10
		}
	}
	return nil
}
