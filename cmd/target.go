package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/signalnine/hpobench/internal/benchmark"
	"github.com/signalnine/hpobench/internal/configspace"
	"github.com/signalnine/hpobench/internal/runner"
	"github.com/signalnine/hpobench/internal/yahpo"
)

// targetFlags select one benchmark instance.
type targetFlags struct {
	benchmark string
	scenario  string
	instance  string
	seed      int64
	container bool
}

func (f *targetFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.benchmark, "benchmark", yahpo.BenchmarkName, "benchmark name ("+yahpo.BenchmarkName+" or "+yahpo.RBv2BenchmarkName+")")
	cmd.Flags().StringVar(&f.scenario, "scenario", "", "YAHPO scenario, e.g. lcbench")
	cmd.Flags().StringVar(&f.instance, "instance", "", "instance id, e.g. 3945")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "seed")
	cmd.Flags().BoolVar(&f.container, "container", false, "run the benchmark in a container")
	cmd.MarkFlagRequired("scenario")
	cmd.MarkFlagRequired("instance")
}

func (f *targetFlags) target() runner.Target {
	return runner.Target{
		Benchmark: f.benchmark,
		Scenario:  f.scenario,
		Instance:  f.instance,
		Seed:      f.seed,
		Container: f.container,
	}
}

// open returns the benchmark and a func releasing it.
func (f *targetFlags) open(ctx context.Context) (benchmark.Benchmark, func(), error) {
	opener, err := runner.NewOpener(appCfg)
	if err != nil {
		return nil, nil, err
	}
	b, err := opener(ctx, f.target())
	if err != nil {
		return nil, nil, err
	}
	release := func() {
		if c, ok := b.(io.Closer); ok {
			c.Close()
		}
	}
	return b, release, nil
}

// parseConfiguration decodes a JSON object flag. An empty string gives nil.
func parseConfiguration(s string) (configspace.Configuration, error) {
	if s == "" {
		return nil, nil
	}
	var cfg configspace.Configuration
	if err := json.Unmarshal([]byte(s), &cfg); err != nil {
		return nil, fmt.Errorf("parsing %q: %w", s, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("parsing %q: expected a JSON object", s)
	}
	return cfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
