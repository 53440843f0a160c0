// Package configspace models hyperparameter search spaces in the format used
// by ConfigSpace JSON files: typed hyperparameters, simple activation
// conditions, seeded sampling and validation of configurations.
package configspace

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/samber/lo"
)

// Configuration maps hyperparameter names to values.
type Configuration map[string]any

func (c Configuration) Clone() Configuration {
	if c == nil {
		return nil
	}
	out := make(Configuration, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Keys returns the configuration's names in sorted order.
func (c Configuration) Keys() []string {
	keys := lo.Keys(c)
	sort.Strings(keys)
	return keys
}

type ConditionType string

const (
	Equals    ConditionType = "EQ"
	NotEquals ConditionType = "NEQ"
	In        ConditionType = "IN"
)

// Condition makes Child active only while Parent is active and its value
// satisfies the condition. Several conditions on one child must all hold.
type Condition struct {
	Child  string
	Parent string
	Type   ConditionType
	Values []any
}

func (c Condition) holds(parent any) bool {
	switch c.Type {
	case Equals, In:
		return lo.ContainsBy(c.Values, func(v any) bool { return sameValue(parent, v) })
	case NotEquals:
		return !lo.ContainsBy(c.Values, func(v any) bool { return sameValue(parent, v) })
	}
	return false
}

// ValidationError reports a configuration value rejected by a space.
type ValidationError struct {
	Space  string
	Param  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	where := "configuration"
	if e.Space != "" {
		where = e.Space
	}
	if e.Value == nil {
		return fmt.Sprintf("%s: %q: %s", where, e.Param, e.Reason)
	}
	return fmt.Sprintf("%s: %q=%v: %s", where, e.Param, e.Value, e.Reason)
}

// Space is an ordered set of hyperparameters plus activation conditions.
// A Space carries its own random source for Sample; it is not safe for
// concurrent sampling.
type Space struct {
	Name string

	params     []Hyperparameter
	index      map[string]int
	conditions []Condition
	rng        *rand.Rand
}

func New(name string, params ...Hyperparameter) (*Space, error) {
	s := &Space{Name: name, index: map[string]int{}}
	for _, h := range params {
		if err := s.Add(h); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Space) Add(h Hyperparameter) error {
	if err := h.check(); err != nil {
		return err
	}
	if _, dup := s.index[h.Name]; dup {
		return fmt.Errorf("duplicate hyperparameter %q", h.Name)
	}
	s.index[h.Name] = len(s.params)
	s.params = append(s.params, h)
	return nil
}

func (s *Space) AddCondition(c Condition) error {
	if _, ok := s.index[c.Child]; !ok {
		return fmt.Errorf("condition on unknown child %q", c.Child)
	}
	if _, ok := s.index[c.Parent]; !ok {
		return fmt.Errorf("condition on unknown parent %q", c.Parent)
	}
	if c.Child == c.Parent {
		return fmt.Errorf("hyperparameter %q cannot condition itself", c.Child)
	}
	switch c.Type {
	case Equals, NotEquals, In:
	default:
		return fmt.Errorf("unsupported condition type %q", c.Type)
	}
	s.conditions = append(s.conditions, c)
	return nil
}

func (s *Space) Len() int { return len(s.params) }

// Names returns the hyperparameter names in declaration order.
func (s *Space) Names() []string {
	return lo.Map(s.params, func(h Hyperparameter, _ int) string { return h.Name })
}

func (s *Space) Get(name string) (Hyperparameter, bool) {
	i, ok := s.index[name]
	if !ok {
		return Hyperparameter{}, false
	}
	return s.params[i], true
}

func (s *Space) Hyperparameters() []Hyperparameter {
	return append([]Hyperparameter(nil), s.params...)
}

func (s *Space) Conditions() []Condition {
	return append([]Condition(nil), s.conditions...)
}

// Clone returns an independent copy. The copy has no random source until
// Seed is called.
func (s *Space) Clone() *Space {
	return s.filter(func(string) bool { return true })
}

// Without returns a copy lacking the named hyperparameters and any condition
// that refers to them.
func (s *Space) Without(names ...string) *Space {
	return s.filter(func(n string) bool { return !lo.Contains(names, n) })
}

// Only returns a copy restricted to the named hyperparameters.
func (s *Space) Only(names ...string) *Space {
	return s.filter(func(n string) bool { return lo.Contains(names, n) })
}

func (s *Space) filter(keep func(string) bool) *Space {
	out := &Space{Name: s.Name, index: map[string]int{}}
	for _, h := range s.params {
		if keep(h.Name) {
			out.index[h.Name] = len(out.params)
			out.params = append(out.params, h)
		}
	}
	for _, c := range s.conditions {
		if keep(c.Child) && keep(c.Parent) {
			out.conditions = append(out.conditions, c)
		}
	}
	return out
}

// Seed resets the space's random source and returns the space.
func (s *Space) Seed(seed int64) *Space {
	s.rng = rand.New(rand.NewSource(seed))
	return s
}

// Sample draws a configuration from the space's own random source, seeding
// it from the clock if Seed was never called.
func (s *Space) Sample() Configuration {
	if s.rng == nil {
		s.Seed(time.Now().UnixNano())
	}
	return s.SampleWith(s.rng)
}

func (s *Space) SampleWith(rng *rand.Rand) Configuration {
	cfg := Configuration{}
	for _, h := range s.ordered() {
		if s.active(h.Name, cfg) {
			cfg[h.Name] = h.sample(rng)
		}
	}
	return cfg
}

// Default returns the configuration made of every active default value.
func (s *Space) Default() Configuration {
	return s.Complete(nil)
}

// Complete returns a copy of partial where every active hyperparameter that
// is missing takes its default value. Values already present are kept
// as given.
func (s *Space) Complete(partial Configuration) Configuration {
	cfg := partial.Clone()
	if cfg == nil {
		cfg = Configuration{}
	}
	for _, h := range s.ordered() {
		if _, ok := cfg[h.Name]; ok {
			continue
		}
		if s.active(h.Name, cfg) {
			cfg[h.Name] = h.DefaultValue()
		}
	}
	return cfg
}

// Validate checks cfg against the space and returns a copy with every value
// cast to its canonical type. Unknown names, missing active values, values
// set for inactive hyperparameters and out-of-domain values are rejected
// with a *ValidationError.
func (s *Space) Validate(cfg Configuration) (Configuration, error) {
	for _, k := range cfg.Keys() {
		if _, ok := s.index[k]; !ok {
			return nil, &ValidationError{Space: s.Name, Param: k, Reason: "unknown hyperparameter"}
		}
	}
	out := Configuration{}
	for _, h := range s.ordered() {
		v, present := cfg[h.Name]
		active := s.active(h.Name, out)
		switch {
		case !active && present:
			return nil, &ValidationError{Space: s.Name, Param: h.Name, Value: v, Reason: "hyperparameter is inactive"}
		case !active:
			continue
		case !present:
			return nil, &ValidationError{Space: s.Name, Param: h.Name, Reason: "missing value for active hyperparameter"}
		}
		cv, err := h.cast(v)
		if err != nil {
			return nil, &ValidationError{Space: s.Name, Param: h.Name, Value: v, Reason: err.Error()}
		}
		out[h.Name] = cv
	}
	return out, nil
}

func (s *Space) active(name string, cfg Configuration) bool {
	for _, c := range s.conditions {
		if c.Child != name {
			continue
		}
		pv, ok := cfg[c.Parent]
		if !ok || !c.holds(pv) {
			return false
		}
	}
	return true
}

// ordered returns hyperparameters with every parent ahead of its children.
func (s *Space) ordered() []Hyperparameter {
	parents := map[string][]string{}
	for _, c := range s.conditions {
		parents[c.Child] = append(parents[c.Child], c.Parent)
	}
	placed := make(map[string]bool, len(s.params))
	out := make([]Hyperparameter, 0, len(s.params))
	for len(out) < len(s.params) {
		progress := false
		for _, h := range s.params {
			if placed[h.Name] {
				continue
			}
			if lo.EveryBy(parents[h.Name], func(p string) bool { return placed[p] }) {
				placed[h.Name] = true
				out = append(out, h)
				progress = true
			}
		}
		if !progress {
			// cyclic conditions: keep declaration order for the rest
			for _, h := range s.params {
				if !placed[h.Name] {
					placed[h.Name] = true
					out = append(out, h)
				}
			}
		}
	}
	return out
}

// Overlap returns the hyperparameter names present in both spaces.
func Overlap(a, b *Space) []string {
	return lo.Filter(a.Names(), func(n string, _ int) bool {
		_, ok := b.index[n]
		return ok
	})
}

func Disjoint(a, b *Space) bool {
	return len(Overlap(a, b)) == 0
}
