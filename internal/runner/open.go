package runner

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/signalnine/hpobench/internal/benchmark"
	"github.com/signalnine/hpobench/internal/config"
	"github.com/signalnine/hpobench/internal/container"
	"github.com/signalnine/hpobench/internal/docker"
	"github.com/signalnine/hpobench/internal/surrogate"
	"github.com/signalnine/hpobench/internal/yahpo"
)

// Target names one benchmark instance to open.
type Target struct {
	Benchmark string
	Scenario  string
	Instance  string
	Seed      int64
	Container bool
}

// Opener builds the benchmark for a target. Callers close the result when
// it implements io.Closer.
type Opener func(ctx context.Context, t Target) (benchmark.Benchmark, error)

// SurrogateOptions turns the data, catalog and predictor settings into the
// options of a local surrogate set.
func SurrogateOptions(cfg *config.Config) (surrogate.Options, error) {
	opts := surrogate.Options{DataDir: cfg.DataDir}
	if cfg.Catalog != "" {
		catalog, err := surrogate.LoadCatalog(cfg.Catalog)
		if err != nil {
			return opts, err
		}
		opts.Catalog = catalog
	}
	env := lo.MapToSlice(cfg.Predictor.Env, func(k, v string) string { return k + "=" + v })
	env = append(env, "YAHPO_DATA_PATH="+cfg.DataDir)
	opts.Predictor = &surrogate.CommandPredictor{
		Command: cfg.Predictor.Command,
		Args:    cfg.Predictor.Args,
		Env:     env,
		Timeout: cfg.Predictor.Timeout(),
	}
	return opts, nil
}

// ContainerOptions maps the container settings onto client options for t.
func ContainerOptions(cfg *config.Config, t Target) (container.Options, error) {
	opts := container.Options{
		BenchmarkName:   t.Benchmark,
		ContainerTag:    cfg.Container.Tag,
		ContainerSource: cfg.Container.Source,
		Scenario:        t.Scenario,
		Instance:        t.Instance,
		Seed:            t.Seed,
		DataDir:         cfg.DataDir,
		StartupTimeout:  cfg.Container.StartupTimeout(),
		CPULimit:        cfg.Container.CPULimit,
		MemoryLimit:     cfg.Container.MemoryLimitBytes(),
		Pull:            cfg.Container.Pull,
	}
	if cfg.Container.EnvFile != "" {
		env, err := docker.ParseEnvFile(cfg.Container.EnvFile)
		if err != nil {
			return opts, fmt.Errorf("reading container env file: %w", err)
		}
		opts.Env = env
	}
	return opts, nil
}

// NewOpener opens targets in-process or, when Target.Container is set, in a
// benchmark container.
func NewOpener(cfg *config.Config) (Opener, error) {
	so, err := SurrogateOptions(cfg)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, t Target) (benchmark.Benchmark, error) {
		if !t.Container {
			return yahpo.NewByName(ctx, t.Benchmark, t.Scenario, t.Instance, yahpo.Options{Seed: t.Seed, Surrogate: so})
		}
		opts, err := ContainerOptions(cfg, t)
		if err != nil {
			return nil, err
		}
		switch t.Benchmark {
		case yahpo.BenchmarkName, "":
			return container.NewYAHPOGym(ctx, opts)
		case yahpo.RBv2BenchmarkName:
			return container.NewRBv2(ctx, opts)
		}
		return nil, fmt.Errorf("%w: %q", benchmark.ErrUnknownBenchmark, t.Benchmark)
	}, nil
}
