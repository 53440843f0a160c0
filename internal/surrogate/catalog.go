package surrogate

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownScenario = errors.New("unknown scenario")
	ErrUnknownInstance = errors.New("unknown instance")
)

// ConfigurationError reports a scenario or instance the benchmark set does
// not know. It wraps ErrUnknownScenario or ErrUnknownInstance.
type ConfigurationError struct {
	Scenario string
	Instance string
	Err      error
	Known    []string
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("%v %q", e.Err, e.Scenario)
	if e.Instance != "" {
		msg = fmt.Sprintf("%v %q for scenario %q", e.Err, e.Instance, e.Scenario)
	}
	if len(e.Known) > 0 && len(e.Known) <= 12 {
		msg += fmt.Sprintf(" (known: %v)", e.Known)
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Scenario describes one family of surrogate models.
type Scenario struct {
	Name           string   `yaml:"-" json:"name"`
	InstanceParam  string   `yaml:"instance_param" json:"instance_param"`
	FidelityParams []string `yaml:"fidelity_params" json:"fidelity_params"`
	Targets        []string `yaml:"targets" json:"targets"`
	Objective      string   `yaml:"objective" json:"objective"`
	Maximize       bool     `yaml:"maximize" json:"maximize"`
}

func (s *Scenario) validate() error {
	if s.InstanceParam == "" {
		return fmt.Errorf("scenario %q: instance_param is required", s.Name)
	}
	if s.Objective == "" {
		return fmt.Errorf("scenario %q: objective is required", s.Name)
	}
	if len(s.Targets) > 0 && !lo.Contains(s.Targets, s.Objective) {
		return fmt.Errorf("scenario %q: objective %q is not a target", s.Name, s.Objective)
	}
	if lo.Contains(s.FidelityParams, s.InstanceParam) {
		return fmt.Errorf("scenario %q: instance parameter cannot be a fidelity", s.Name)
	}
	return nil
}

type Catalog struct {
	Scenarios map[string]*Scenario
}

var rbv2Targets = []string{"acc", "bac", "auc", "brier", "f1", "logloss", "timetrain", "timepredict", "memory"}

// DefaultCatalog returns the YAHPO Gym scenarios served by this module.
func DefaultCatalog() *Catalog {
	c := &Catalog{Scenarios: map[string]*Scenario{
		"lcbench": {
			InstanceParam:  "OpenML_task_id",
			FidelityParams: []string{"epoch"},
			Targets:        []string{"time", "val_accuracy", "val_cross_entropy", "val_balanced_accuracy", "test_cross_entropy", "test_balanced_accuracy"},
			Objective:      "val_accuracy",
			Maximize:       true,
		},
		"fcnet": {
			InstanceParam:  "task",
			FidelityParams: []string{"epoch"},
			Targets:        []string{"valid_loss", "runtime", "n_params"},
			Objective:      "valid_loss",
		},
		"nb301": {
			InstanceParam:  "dataset",
			FidelityParams: []string{"epoch"},
			Targets:        []string{"val_accuracy", "runtime"},
			Objective:      "val_accuracy",
			Maximize:       true,
		},
	}}
	for _, learner := range []string{"svm", "ranger", "rpart", "glmnet", "aknn", "xgboost", "super"} {
		c.Scenarios["rbv2_"+learner] = &Scenario{
			InstanceParam:  "task_id",
			FidelityParams: []string{"trainsize", "repl"},
			Targets:        rbv2Targets,
			Objective:      "acc",
			Maximize:       true,
		}
	}
	for name, s := range c.Scenarios {
		s.Name = name
	}
	return c
}

// LoadCatalog reads scenario definitions from a YAML file keyed by scenario
// name. Entries are laid over the default catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	var entries map[string]*Scenario
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing catalog file: %w", err)
	}
	c := DefaultCatalog()
	for name, s := range entries {
		if s == nil {
			continue
		}
		s.Name = name
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("invalid catalog file %s: %w", path, err)
		}
		c.Scenarios[name] = s
	}
	return c, nil
}

func (c *Catalog) Lookup(name string) (*Scenario, error) {
	s, ok := c.Scenarios[name]
	if !ok {
		return nil, &ConfigurationError{Scenario: name, Err: ErrUnknownScenario, Known: c.Names()}
	}
	return s, nil
}

func (c *Catalog) Names() []string {
	names := lo.Keys(c.Scenarios)
	sort.Strings(names)
	return names
}
