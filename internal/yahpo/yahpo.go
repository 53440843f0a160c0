// Package yahpo adapts a YAHPO Gym surrogate scenario to the benchmark
// contract. One Benchmark serves a single (scenario, instance) pair for its
// whole lifetime.
package yahpo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/signalnine/hpobench/internal/benchmark"
	"github.com/signalnine/hpobench/internal/configspace"
	"github.com/signalnine/hpobench/internal/surrogate"
)

const (
	BenchmarkName     = "YAHPOGymBenchmark"
	RBv2BenchmarkName = "rbv2Benchmark"
	Version           = "0.0.1"

	rbv2Prefix = "rbv2_"
)

var ErrMissingObjective = errors.New("surrogate output lacks the objective target")

type Options struct {
	// Seed seeds the adapter's generator when Rand is nil.
	Seed      int64
	Rand      *rand.Rand
	Surrogate surrogate.Options
	// Open replaces surrogate.Open.
	Open func(scenario string, opts surrogate.Options) (surrogate.Set, error)
}

// Benchmark is not safe for concurrent use.
type Benchmark struct {
	scenario string
	instance string
	set      surrogate.Set
	cs       *configspace.Space
	fs       *configspace.Space
	rng      *rand.Rand
	eval     benchmark.ObjectiveFunc
}

var _ benchmark.Benchmark = (*Benchmark)(nil)

// New opens scenario, selects instance and checks the surrogate files.
// Unknown scenarios and instances fail with a *surrogate.ConfigurationError.
func New(ctx context.Context, scenario, instance string, opts Options) (*Benchmark, error) {
	open := opts.Open
	if open == nil {
		open = surrogate.Open
	}
	set, err := open(scenario, opts.Surrogate)
	if err != nil {
		return nil, err
	}
	if err := set.SetInstance(instance); err != nil {
		set.Close()
		return nil, err
	}
	if err := set.EnsureFiles(ctx); err != nil {
		set.Close()
		return nil, err
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(opts.Seed))
	}
	b := &Benchmark{
		scenario: scenario,
		instance: instance,
		set:      set,
		cs:       set.ConfigurationSpace(true),
		fs:       set.FidelitySpace(),
		rng:      rng,
	}
	b.eval = benchmark.CheckParameters(b.cs, b.fs, b.evaluate)

	log.WithFields(log.Fields{"scenario": scenario, "instance": instance}).Info("Start benchmark")
	return b, nil
}

// NewByName builds the adapter registered under name. rbv2Benchmark only
// serves rbv2 scenarios and accepts a bare learner such as "svm".
func NewByName(ctx context.Context, name, scenario, instance string, opts Options) (*Benchmark, error) {
	switch name {
	case BenchmarkName, "":
		return New(ctx, scenario, instance, opts)
	case RBv2BenchmarkName:
		return New(ctx, RBv2Scenario(scenario), instance, opts)
	}
	return nil, fmt.Errorf("%w: %q", benchmark.ErrUnknownBenchmark, name)
}

// RBv2Scenario prefixes a bare rbv2 learner name.
func RBv2Scenario(s string) string {
	if strings.HasPrefix(s, rbv2Prefix) {
		return s
	}
	return rbv2Prefix + s
}

func (b *Benchmark) Scenario() string { return b.scenario }
func (b *Benchmark) Instance() string { return b.instance }

// ConfigurationSpace returns the scenario space without fidelity
// parameters, its sampler seeded with seed.
func (b *Benchmark) ConfigurationSpace(_ context.Context, seed int64) (*configspace.Space, error) {
	return b.cs.Clone().Seed(seed), nil
}

func (b *Benchmark) FidelitySpace(_ context.Context, seed int64) (*configspace.Space, error) {
	return b.fs.Clone().Seed(seed), nil
}

func (b *Benchmark) ObjectiveFunction(ctx context.Context, cfg, fidelity configspace.Configuration, opts ...benchmark.EvalOption) (*benchmark.Result, error) {
	return b.eval(ctx, cfg, fidelity, benchmark.NewEvalOptions(opts...))
}

// ObjectiveFunctionTest is the same evaluation; the surrogates have no
// separate test split.
func (b *Benchmark) ObjectiveFunctionTest(ctx context.Context, cfg, fidelity configspace.Configuration, opts ...benchmark.EvalOption) (*benchmark.Result, error) {
	return b.ObjectiveFunction(ctx, cfg, fidelity, opts...)
}

func (b *Benchmark) evaluate(ctx context.Context, cfg, fidelity configspace.Configuration, o benchmark.EvalOptions) (*benchmark.Result, error) {
	params, err := benchmark.Merge(cfg, fidelity)
	if err != nil {
		return nil, err
	}
	out, err := b.set.ObjectiveFunction(ctx, params, o.DrawSeed(b.rng))
	if err != nil {
		return nil, fmt.Errorf("evaluating %s/%s: %w", b.scenario, b.instance, err)
	}

	sc := b.set.Scenario()
	v, ok := out[sc.Objective]
	if !ok {
		return nil, fmt.Errorf("%w %q (%s)", ErrMissingObjective, sc.Objective, b.scenario)
	}
	if sc.Maximize {
		v = -v
	}
	return &benchmark.Result{
		FunctionValue: v,
		Cost:          0,
		Info: map[string]any{
			benchmark.InfoFidelity:   fidelity,
			benchmark.InfoObjectives: out,
		},
	}, nil
}

func (b *Benchmark) MetaInformation(context.Context) (*benchmark.MetaInformation, error) {
	return MetaInformation(), nil
}

// Close releases the surrogate handle.
func (b *Benchmark) Close() error {
	return b.set.Close()
}

// MetaInformation describes the suite. It needs no loaded scenario.
func MetaInformation() *benchmark.MetaInformation {
	return &benchmark.MetaInformation{
		Name: "YAHPO Gym",
		References: []string{
			"@misc{pfisterer2021yahpo,",
			"title={YAHPO Gym -- Design Criteria and a new Multifidelity Benchmark for Hyperparameter Optimization},",
			"author    = {Florian Pfisterer and Lennart Schneider and Julia Moosbauer and Martin Binder and Bernd Bischl},",
			"eprint={2109.03670},",
			"archivePrefix={arXiv},",
			"year      = {2021}}",
		},
		Code: "https://github.com/pfistfl/yahpo_gym/yahpo_gym",
	}
}
