// Package surrogate is the contract between benchmark adapters and the
// surrogate library: a benchmark set selects a scenario and instance,
// exposes its search spaces and answers objective queries through a
// Predictor.
package surrogate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/signalnine/hpobench/internal/configspace"
)

var (
	ErrMissingFiles = errors.New("surrogate files missing")
	ErrNoInstance   = errors.New("no instance selected")
	ErrClosed       = errors.New("benchmark set closed")
)

// RequiredFiles are the per-scenario files of a YAHPO Gym data directory.
var RequiredFiles = []string{"config_space.json", "encoding.json", "model.onnx"}

// Set is one scenario of a surrogate benchmark suite.
type Set interface {
	Scenario() *Scenario
	Instances() []string
	Instance() string
	SetInstance(id string) error
	// ConfigurationSpace never contains the instance parameter; with
	// dropFidelity it also omits the fidelity parameters.
	ConfigurationSpace(dropFidelity bool) *configspace.Space
	FidelitySpace() *configspace.Space
	EnsureFiles(ctx context.Context) error
	ObjectiveFunction(ctx context.Context, params configspace.Configuration, seed int64) (map[string]float64, error)
	Close() error
}

type Options struct {
	DataDir   string
	Catalog   *Catalog
	Predictor Predictor
}

type fileSet struct {
	scenario  *Scenario
	dir       string
	space     *configspace.Space
	instance  string
	predictor Predictor
	closed    bool
}

// Open loads a scenario from <DataDir>/<scenario>/config_space.json.
func Open(scenario string, opts Options) (Set, error) {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	sc, err := catalog.Lookup(scenario)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(opts.DataDir, scenario)
	space, err := configspace.Load(filepath.Join(dir, "config_space.json"))
	if err != nil {
		return nil, fmt.Errorf("opening scenario %s: %w", scenario, err)
	}
	space.Name = scenario
	inst, ok := space.Get(sc.InstanceParam)
	if !ok || inst.Kind != configspace.Categorical {
		return nil, fmt.Errorf("opening scenario %s: instance parameter %q is not a categorical in the config space", scenario, sc.InstanceParam)
	}
	for _, p := range sc.FidelityParams {
		if _, ok := space.Get(p); !ok {
			return nil, fmt.Errorf("opening scenario %s: fidelity parameter %q is not in the config space", scenario, p)
		}
	}
	return &fileSet{scenario: sc, dir: dir, space: space, predictor: opts.Predictor}, nil
}

func (s *fileSet) Scenario() *Scenario { return s.scenario }

func (s *fileSet) Instance() string { return s.instance }

func (s *fileSet) Instances() []string {
	h, _ := s.space.Get(s.scenario.InstanceParam)
	return lo.Map(h.Choices, func(c any, _ int) string { return fmt.Sprint(c) })
}

func (s *fileSet) SetInstance(id string) error {
	known := s.Instances()
	if !lo.Contains(known, id) {
		return &ConfigurationError{Scenario: s.scenario.Name, Instance: id, Err: ErrUnknownInstance, Known: known}
	}
	s.instance = id
	return nil
}

func (s *fileSet) ConfigurationSpace(dropFidelity bool) *configspace.Space {
	drop := []string{s.scenario.InstanceParam}
	if dropFidelity {
		drop = append(drop, s.scenario.FidelityParams...)
	}
	return s.space.Without(drop...)
}

func (s *fileSet) FidelitySpace() *configspace.Space {
	fs := s.space.Only(s.scenario.FidelityParams...)
	fs.Name = s.scenario.Name + "/fidelity"
	return fs
}

func (s *fileSet) EnsureFiles(ctx context.Context) error {
	var missing []string
	for _, name := range RequiredFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := os.Stat(filepath.Join(s.dir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w in %s: %s", ErrMissingFiles, s.dir, strings.Join(missing, ", "))
	}
	return nil
}

func (s *fileSet) ObjectiveFunction(ctx context.Context, params configspace.Configuration, seed int64) (map[string]float64, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.instance == "" {
		return nil, ErrNoInstance
	}
	if s.predictor == nil {
		return nil, ErrNoPredictor
	}
	q := &Query{
		Scenario: s.scenario.Name,
		Instance: s.instance,
		Params:   params.Clone(),
		Seed:     seed,
	}
	if q.Params == nil {
		q.Params = map[string]any{}
	}
	h, _ := s.space.Get(s.scenario.InstanceParam)
	q.Params[s.scenario.InstanceParam], _ = lo.Find(h.Choices, func(c any) bool { return fmt.Sprint(c) == s.instance })
	return s.predictor.Predict(ctx, q)
}

func (s *fileSet) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.predictor.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
