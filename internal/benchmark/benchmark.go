// Package benchmark defines the contract shared by local and containerized
// HPO benchmarks: search spaces, objective evaluation and static meta
// information.
package benchmark

import (
	"context"
	"errors"
	"math/rand"

	"github.com/signalnine/hpobench/internal/configspace"
)

var ErrUnknownBenchmark = errors.New("unknown benchmark")

// Result is the outcome of one objective evaluation. FunctionValue is lower
// is better. Info carries at least the fidelity the evaluation used under
// the "fidelity" key, completed with defaults and cast to the fidelity
// space's types (an integer fidelity given as 27.0 comes back as 27).
type Result struct {
	FunctionValue float64        `json:"function_value"`
	Cost          float64        `json:"cost"`
	Info          map[string]any `json:"info"`
}

// Fidelity returns the fidelity echoed in Info, if any.
func (r *Result) Fidelity() configspace.Configuration {
	switch f := r.Info[InfoFidelity].(type) {
	case configspace.Configuration:
		return f
	case map[string]any:
		return configspace.Configuration(f)
	}
	return nil
}

const (
	InfoFidelity   = "fidelity"
	InfoObjectives = "objectives"
)

type MetaInformation struct {
	Name       string   `json:"name"`
	References []string `json:"references"`
	Code       string   `json:"code"`
}

// Benchmark is implemented by every adapter. Implementations are not
// required to be safe for concurrent use.
type Benchmark interface {
	// ConfigurationSpace returns the search space without fidelity
	// parameters. The seed only seeds the returned space's sampler.
	ConfigurationSpace(ctx context.Context, seed int64) (*configspace.Space, error)
	FidelitySpace(ctx context.Context, seed int64) (*configspace.Space, error)
	ObjectiveFunction(ctx context.Context, cfg, fidelity configspace.Configuration, opts ...EvalOption) (*Result, error)
	ObjectiveFunctionTest(ctx context.Context, cfg, fidelity configspace.Configuration, opts ...EvalOption) (*Result, error)
	MetaInformation(ctx context.Context) (*MetaInformation, error)
}

// EvalOptions carries the per-call randomness of an evaluation.
type EvalOptions struct {
	Rand *rand.Rand
	Seed *int64
}

type EvalOption func(*EvalOptions)

func WithRand(r *rand.Rand) EvalOption {
	return func(o *EvalOptions) { o.Rand = r }
}

func WithSeed(seed int64) EvalOption {
	return func(o *EvalOptions) { o.Seed = &seed }
}

func NewEvalOptions(opts ...EvalOption) EvalOptions {
	var o EvalOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Options converts o back into options, for forwarding.
func (o EvalOptions) Options() []EvalOption {
	var out []EvalOption
	if o.Rand != nil {
		out = append(out, WithRand(o.Rand))
	}
	if o.Seed != nil {
		out = append(out, WithSeed(*o.Seed))
	}
	return out
}

// DrawSeed picks the seed for one evaluation: an explicit seed wins, then
// the per-call generator, then fallback.
func (o EvalOptions) DrawSeed(fallback *rand.Rand) int64 {
	switch {
	case o.Seed != nil:
		return *o.Seed
	case o.Rand != nil:
		return o.Rand.Int63()
	default:
		return fallback.Int63()
	}
}
