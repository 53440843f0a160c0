package benchmark

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/signalnine/hpobench/internal/configspace"
)

var ErrOverlappingKeys = errors.New("configuration and fidelity share parameter names")

// Merge combines a configuration and a fidelity into one parameter set.
// The key sets must be disjoint.
func Merge(cfg, fidelity configspace.Configuration) (configspace.Configuration, error) {
	shared := lo.Filter(cfg.Keys(), func(k string, _ int) bool {
		_, ok := fidelity[k]
		return ok
	})
	if len(shared) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrOverlappingKeys, shared)
	}
	out := make(configspace.Configuration, len(cfg)+len(fidelity))
	for k, v := range cfg {
		out[k] = v
	}
	for k, v := range fidelity {
		out[k] = v
	}
	return out, nil
}

// ObjectiveFunc is an evaluation entry point that CheckParameters can wrap.
type ObjectiveFunc func(ctx context.Context, cfg, fidelity configspace.Configuration, o EvalOptions) (*Result, error)

// CheckParameters validates the configuration against cs and the fidelity
// against fs before calling next. A nil or partial fidelity is completed
// with the defaults of fs. next receives the cast values; failures are
// reported before next runs.
func CheckParameters(cs, fs *configspace.Space, next ObjectiveFunc) ObjectiveFunc {
	overlap := configspace.Overlap(cs, fs)
	return func(ctx context.Context, cfg, fidelity configspace.Configuration, o EvalOptions) (*Result, error) {
		if len(overlap) > 0 {
			return nil, fmt.Errorf("%w: %v", ErrOverlappingKeys, overlap)
		}
		checkedCfg, err := cs.Validate(cfg)
		if err != nil {
			return nil, fmt.Errorf("checking configuration: %w", err)
		}
		checkedFid, err := fs.Validate(fs.Complete(fidelity))
		if err != nil {
			return nil, fmt.Errorf("checking fidelity: %w", err)
		}
		return next(ctx, checkedCfg, checkedFid, o)
	}
}
