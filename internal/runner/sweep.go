package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/signalnine/hpobench/internal/benchmark"
	"github.com/signalnine/hpobench/internal/config"
	"github.com/signalnine/hpobench/internal/configspace"
	"github.com/signalnine/hpobench/internal/metrics"
	"github.com/signalnine/hpobench/internal/result"
	"github.com/signalnine/hpobench/internal/yahpo"
)

var ErrAllFailed = errors.New("every evaluation failed")

type SweepOpts struct {
	Sweep    *config.Sweep
	Instance string
	RunDir   string
	Store    *result.Store
	Open     Opener
	// Recorder is optional.
	Recorder *metrics.Recorder
}

// RunSweep evaluates Sweep.Samples random configurations of one instance.
// Configurations and per-call seeds both derive from Sweep.Seed, so equal
// sweeps give equal evaluations. A meta.json is written even on failure.
func RunSweep(ctx context.Context, opts *SweepOpts) (*result.SweepMeta, error) {
	sw := opts.Sweep
	scenario := sw.Scenario
	if sw.Benchmark == yahpo.RBv2BenchmarkName {
		scenario = yahpo.RBv2Scenario(scenario)
	}
	meta := &result.SweepMeta{
		Sweep:     sw.Name,
		Benchmark: sw.Benchmark,
		Scenario:  scenario,
		Instance:  opts.Instance,
		Container: sw.Container,
		Seed:      sw.Seed,
		Samples:   sw.Samples,
	}
	dir := result.SweepDir(opts.RunDir, sw.Name, opts.Instance)
	entry := log.WithFields(log.Fields{"sweep": sw.Name, "scenario": scenario, "instance": opts.Instance})

	start := time.Now()
	err := sweep(ctx, opts, meta, entry)
	meta.DurationS = time.Since(start).Seconds()
	if err != nil {
		meta.Error = err.Error()
	}
	if werr := result.WriteSweepMeta(dir, meta); werr != nil {
		return meta, errors.Join(err, fmt.Errorf("writing meta: %w", werr))
	}
	if err != nil {
		return meta, err
	}
	entry.WithFields(log.Fields{"evaluated": meta.Evaluated, "failed": meta.Failed}).Info("Sweep finished")
	return meta, nil
}

func sweep(ctx context.Context, opts *SweepOpts, meta *result.SweepMeta, entry *log.Entry) error {
	sw := opts.Sweep
	b, err := opts.Open(ctx, Target{
		Benchmark: sw.Benchmark,
		Scenario:  sw.Scenario,
		Instance:  opts.Instance,
		Seed:      sw.Seed,
		Container: sw.Container,
	})
	if err != nil {
		return fmt.Errorf("opening benchmark: %w", err)
	}
	if c, ok := b.(io.Closer); ok {
		defer c.Close()
	}

	cs, err := b.ConfigurationSpace(ctx, sw.Seed)
	if err != nil {
		return fmt.Errorf("fetching configuration space: %w", err)
	}
	rng := rand.New(rand.NewSource(sw.Seed))
	fidelity := configspace.Configuration(sw.Fidelity)

	var lastErr error
	for i := 0; i < sw.Samples; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cfg := cs.Sample()
		res, err := b.ObjectiveFunction(ctx, cfg, fidelity, benchmark.WithRand(rng))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			meta.Failed++
			lastErr = err
			entry.WithField("sample", i).Warnf("Evaluation failed: %v", err)
			continue
		}
		meta.Evaluated++
		if meta.Fidelity == nil {
			meta.Fidelity = res.Fidelity()
		}
		if meta.BestValue == nil || res.FunctionValue < *meta.BestValue {
			v := res.FunctionValue
			meta.BestValue = &v
			meta.BestConfig = cfg
		}
		opts.Recorder.ObserveEvaluation(meta.Scenario, meta.Instance, res.FunctionValue)
		if opts.Store == nil {
			continue
		}
		err = opts.Store.Record(&result.Evaluation{
			Sweep:         sw.Name,
			Scenario:      meta.Scenario,
			Instance:      meta.Instance,
			Configuration: cfg,
			Fidelity:      res.Fidelity(),
			FunctionValue: res.FunctionValue,
			Cost:          res.Cost,
			Info:          res.Info,
		})
		if err != nil {
			return err
		}
	}
	if meta.Evaluated == 0 && meta.Failed > 0 {
		return fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
	}
	return nil
}
