package configspace

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"reflect"

	"golang.org/x/exp/constraints"
)

// Kind names a hyperparameter type using the ConfigSpace JSON type strings.
type Kind string

const (
	UniformFloat Kind = "uniform_float"
	UniformInt   Kind = "uniform_int"
	Categorical  Kind = "categorical"
	Ordinal      Kind = "ordinal"
	Constant     Kind = "constant"
)

// Hyperparameter describes one dimension of a space. Which fields are
// meaningful depends on Kind: Lower/Upper/Log for the numeric kinds, Choices
// (and optional Weights) for categoricals, Sequence for ordinals and Value
// for constants.
type Hyperparameter struct {
	Name     string
	Kind     Kind
	Lower    float64
	Upper    float64
	Log      bool
	Choices  []any
	Weights  []float64
	Sequence []any
	Default  any
	Value    any
}

func FloatParam(name string, lower, upper float64, log bool) Hyperparameter {
	return Hyperparameter{Name: name, Kind: UniformFloat, Lower: lower, Upper: upper, Log: log}
}

func IntParam(name string, lower, upper int, log bool) Hyperparameter {
	return Hyperparameter{Name: name, Kind: UniformInt, Lower: float64(lower), Upper: float64(upper), Log: log}
}

func CategoricalParam(name string, choices ...any) Hyperparameter {
	return Hyperparameter{Name: name, Kind: Categorical, Choices: choices}
}

func OrdinalParam(name string, sequence ...any) Hyperparameter {
	return Hyperparameter{Name: name, Kind: Ordinal, Sequence: sequence}
}

func ConstantParam(name string, value any) Hyperparameter {
	return Hyperparameter{Name: name, Kind: Constant, Value: value}
}

// WithDefault returns a copy of h with an explicit default value.
func (h Hyperparameter) WithDefault(v any) Hyperparameter {
	h.Default = v
	return h
}

func (h Hyperparameter) check() error {
	if h.Name == "" {
		return fmt.Errorf("hyperparameter name is required")
	}
	switch h.Kind {
	case UniformFloat, UniformInt:
		if h.Lower > h.Upper {
			return fmt.Errorf("%s: lower %v exceeds upper %v", h.Name, h.Lower, h.Upper)
		}
		if h.Log && h.Lower <= 0 {
			return fmt.Errorf("%s: log scale requires a positive lower bound", h.Name)
		}
		if h.Kind == UniformInt && (h.Lower != math.Trunc(h.Lower) || h.Upper != math.Trunc(h.Upper)) {
			return fmt.Errorf("%s: integer bounds must be whole numbers", h.Name)
		}
	case Categorical:
		if len(h.Choices) == 0 {
			return fmt.Errorf("%s: categorical needs at least one choice", h.Name)
		}
		if len(h.Weights) > 0 && len(h.Weights) != len(h.Choices) {
			return fmt.Errorf("%s: %d weights for %d choices", h.Name, len(h.Weights), len(h.Choices))
		}
	case Ordinal:
		if len(h.Sequence) == 0 {
			return fmt.Errorf("%s: ordinal needs a non-empty sequence", h.Name)
		}
	case Constant:
		if h.Value == nil {
			return fmt.Errorf("%s: constant needs a value", h.Name)
		}
	default:
		return fmt.Errorf("%s: unsupported hyperparameter type %q", h.Name, h.Kind)
	}
	if h.Default != nil {
		if _, err := h.cast(h.Default); err != nil {
			return fmt.Errorf("%s: default: %w", h.Name, err)
		}
	}
	return nil
}

// DefaultValue returns the explicit default, or the ConfigSpace fallback:
// the (geometric) midpoint for numeric ranges and the first choice otherwise.
func (h Hyperparameter) DefaultValue() any {
	if h.Default != nil {
		if v, err := h.cast(h.Default); err == nil {
			return v
		}
	}
	switch h.Kind {
	case UniformFloat:
		if h.Log {
			return math.Exp((math.Log(h.Lower) + math.Log(h.Upper)) / 2)
		}
		return (h.Lower + h.Upper) / 2
	case UniformInt:
		mid := (h.Lower + h.Upper) / 2
		if h.Log {
			mid = math.Exp((math.Log(h.Lower) + math.Log(h.Upper)) / 2)
		}
		return int(clamp(math.Round(mid), h.Lower, h.Upper))
	case Categorical:
		return h.Choices[0]
	case Ordinal:
		return h.Sequence[0]
	default:
		return h.Value
	}
}

func (h Hyperparameter) sample(rng *rand.Rand) any {
	switch h.Kind {
	case UniformFloat:
		if h.Log {
			lo, hi := math.Log(h.Lower), math.Log(h.Upper)
			return clamp(math.Exp(lo+rng.Float64()*(hi-lo)), h.Lower, h.Upper)
		}
		return clamp(h.Lower+rng.Float64()*(h.Upper-h.Lower), h.Lower, h.Upper)
	case UniformInt:
		lower, upper := int(h.Lower), int(h.Upper)
		if h.Log {
			lo, hi := math.Log(h.Lower), math.Log(h.Upper+1)
			v := int(math.Floor(math.Exp(lo + rng.Float64()*(hi-lo))))
			return clamp(v, lower, upper)
		}
		return lower + rng.Intn(upper-lower+1)
	case Categorical:
		if len(h.Weights) == 0 {
			return h.Choices[rng.Intn(len(h.Choices))]
		}
		var total float64
		for _, w := range h.Weights {
			total += w
		}
		r := rng.Float64() * total
		for i, w := range h.Weights {
			if r < w {
				return h.Choices[i]
			}
			r -= w
		}
		return h.Choices[len(h.Choices)-1]
	case Ordinal:
		return h.Sequence[rng.Intn(len(h.Sequence))]
	default:
		return h.Value
	}
}

// cast converts v to the canonical Go type for h and checks its bounds:
// float64 for floats, int for integers and the matching choice itself for
// categorical, ordinal and constant parameters.
func (h Hyperparameter) cast(v any) (any, error) {
	switch h.Kind {
	case UniformFloat:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected a number, got %T", v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("value %v is not finite", f)
		}
		if f < h.Lower || f > h.Upper {
			return nil, fmt.Errorf("value %v outside [%v, %v]", f, h.Lower, h.Upper)
		}
		return f, nil
	case UniformInt:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("expected an integer, got %T", v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("value %v is not finite", f)
		}
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("value %v is not an integer", f)
		}
		if f < h.Lower || f > h.Upper {
			return nil, fmt.Errorf("value %v outside [%v, %v]", f, h.Lower, h.Upper)
		}
		return int(f), nil
	case Categorical:
		return matchChoice(v, h.Choices)
	case Ordinal:
		return matchChoice(v, h.Sequence)
	case Constant:
		if !sameValue(v, h.Value) {
			return nil, fmt.Errorf("value %v differs from constant %v", v, h.Value)
		}
		return h.Value, nil
	}
	return nil, fmt.Errorf("unsupported hyperparameter type %q", h.Kind)
}

func matchChoice(v any, choices []any) (any, error) {
	for _, c := range choices {
		if sameValue(v, c) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("value %v is not one of %v", v, choices)
}

func sameValue(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
