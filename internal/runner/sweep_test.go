package runner_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/hpobench/internal/benchmark"
	"github.com/signalnine/hpobench/internal/config"
	"github.com/signalnine/hpobench/internal/metrics"
	"github.com/signalnine/hpobench/internal/result"
	"github.com/signalnine/hpobench/internal/runner"
	"github.com/signalnine/hpobench/internal/surrogate"
	"github.com/signalnine/hpobench/internal/surrogate/surrogatetest"
	"github.com/signalnine/hpobench/internal/yahpo"
)

func localOpener(predictor surrogate.Predictor) runner.Opener {
	return func(ctx context.Context, t runner.Target) (benchmark.Benchmark, error) {
		return yahpo.NewByName(ctx, t.Benchmark, t.Scenario, t.Instance, yahpo.Options{
			Seed: t.Seed,
			Surrogate: surrogate.Options{
				DataDir:   surrogatetest.DataDir(),
				Predictor: predictor,
			},
		})
	}
}

func newStore(t *testing.T, dir string) *result.Store {
	t.Helper()
	s, err := result.OpenStore(filepath.Join(dir, result.DatabaseFile))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunSweep(t *testing.T) {
	runDir := t.TempDir()
	store := newStore(t, runDir)
	rec := metrics.NewRecorder()
	sw := &config.Sweep{
		Name:      "lcbench-small",
		Benchmark: yahpo.BenchmarkName,
		Scenario:  "lcbench",
		Instances: []string{"3945"},
		Samples:   5,
		Seed:      1,
		Fidelity:  map[string]any{"epoch": 26},
	}

	meta, err := runner.RunSweep(context.Background(), &runner.SweepOpts{
		Sweep:    sw,
		Instance: "3945",
		RunDir:   runDir,
		Store:    store,
		Open:     localOpener(surrogatetest.Predictor(nil)),
		Recorder: rec,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, meta.Evaluated)
	assert.Zero(t, meta.Failed)
	assert.Equal(t, 26, meta.Fidelity["epoch"])
	require.NotNil(t, meta.BestValue)

	evals, err := store.List(result.Filter{Sweep: "lcbench-small"})
	require.NoError(t, err)
	require.Len(t, evals, 5)
	for _, e := range evals {
		assert.GreaterOrEqual(t, e.FunctionValue, *meta.BestValue)
		assert.Equal(t, 26.0, e.Fidelity["epoch"])
		assert.Zero(t, e.Cost)
	}

	onDisk, err := result.ReadSweepMeta(filepath.Join(result.SweepDir(runDir, sw.Name, "3945"), result.MetaFile))
	require.NoError(t, err)
	assert.Equal(t, *meta.BestValue, *onDisk.BestValue)
	assert.Empty(t, onDisk.Error)

	expected := `
# HELP hpobench_evaluations_total Objective evaluations by scenario and instance.
# TYPE hpobench_evaluations_total counter
hpobench_evaluations_total{instance="3945",scenario="lcbench"} 5
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected), "hpobench_evaluations_total"))
}

func TestRunSweepIsReproducible(t *testing.T) {
	run := func() *result.SweepMeta {
		sw := &config.Sweep{Name: "svm", Benchmark: yahpo.RBv2BenchmarkName, Scenario: "svm", Samples: 4, Seed: 42}
		meta, err := runner.RunSweep(context.Background(), &runner.SweepOpts{
			Sweep:    sw,
			Instance: "31",
			RunDir:   t.TempDir(),
			Open:     localOpener(surrogatetest.Predictor(nil)),
		})
		require.NoError(t, err)
		return meta
	}
	a, b := run(), run()
	assert.Equal(t, "rbv2_svm", a.Scenario)
	assert.Equal(t, *a.BestValue, *b.BestValue)
	assert.Equal(t, a.BestConfig, b.BestConfig)
	// Missing fidelity is completed with defaults.
	assert.Contains(t, a.Fidelity, "trainsize")
	assert.Contains(t, a.Fidelity, "repl")
}

func TestRunSweepAllFailed(t *testing.T) {
	runDir := t.TempDir()
	boom := errors.New("predictor crashed")
	failing := surrogate.PredictorFunc(func(context.Context, *surrogate.Query) (map[string]float64, error) {
		return nil, boom
	})
	sw := &config.Sweep{Name: "lcbench", Scenario: "lcbench", Samples: 3, Seed: 1}

	meta, err := runner.RunSweep(context.Background(), &runner.SweepOpts{
		Sweep: sw, Instance: "3945", RunDir: runDir, Open: localOpener(failing),
	})
	require.ErrorIs(t, err, runner.ErrAllFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, meta.Failed)
	assert.Nil(t, meta.BestValue)

	onDisk, err := result.ReadSweepMeta(filepath.Join(result.SweepDir(runDir, "lcbench", "3945"), result.MetaFile))
	require.NoError(t, err)
	assert.NotEmpty(t, onDisk.Error)
}

func TestRunSweepOpenError(t *testing.T) {
	runDir := t.TempDir()
	sw := &config.Sweep{Name: "unknown", Scenario: "does-not-exist", Samples: 3}
	meta, err := runner.RunSweep(context.Background(), &runner.SweepOpts{
		Sweep: sw, Instance: "1", RunDir: runDir, Open: localOpener(surrogatetest.Predictor(nil)),
	})
	var cerr *surrogate.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Zero(t, meta.Evaluated)
}

func TestRunSweepCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sw := &config.Sweep{Name: "lcbench", Scenario: "lcbench", Samples: 3}
	_, err := runner.RunSweep(ctx, &runner.SweepOpts{
		Sweep: sw, Instance: "3945", RunDir: t.TempDir(), Open: localOpener(surrogatetest.Predictor(nil)),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSurrogateOptions(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = "/data/yahpo"
	cfg.Predictor.Command = "yahpo-predict"
	cfg.Predictor.Env = map[string]string{"OMP_NUM_THREADS": "1"}

	so, err := runner.SurrogateOptions(cfg)
	require.NoError(t, err)
	assert.Equal(t, "/data/yahpo", so.DataDir)
	p, ok := so.Predictor.(*surrogate.CommandPredictor)
	require.True(t, ok)
	assert.Equal(t, "yahpo-predict", p.Command)
	assert.ElementsMatch(t, []string{"OMP_NUM_THREADS=1", "YAHPO_DATA_PATH=/data/yahpo"}, p.Env)

	cfg.Catalog = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = runner.SurrogateOptions(cfg)
	assert.Error(t, err)
}

func TestContainerOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Container.Source = "registry.example.org/hpobench"
	cfg.Container.MemoryLimitMB = 512
	opts, err := runner.ContainerOptions(cfg, runner.Target{
		Benchmark: yahpo.RBv2BenchmarkName, Scenario: "svm", Instance: "31", Seed: 3, Container: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "0.0.1", opts.ContainerTag)
	assert.Equal(t, int64(512<<20), opts.MemoryLimit)
	assert.Equal(t, "svm", opts.Scenario)

	cfg.Container.EnvFile = filepath.Join(t.TempDir(), "missing.env")
	_, err = runner.ContainerOptions(cfg, runner.Target{})
	assert.Error(t, err)
}
