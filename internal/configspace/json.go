package configspace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

type jsonSpace struct {
	Name              string               `json:"name,omitempty"`
	Hyperparameters   []jsonHyperparameter `json:"hyperparameters"`
	Conditions        []jsonCondition      `json:"conditions"`
	Forbiddens        []json.RawMessage    `json:"forbiddens"`
	JSONFormatVersion float64              `json:"json_format_version,omitempty"`
}

type jsonHyperparameter struct {
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Log           bool      `json:"log,omitempty"`
	Lower         *float64  `json:"lower,omitempty"`
	Upper         *float64  `json:"upper,omitempty"`
	Default       any       `json:"default,omitempty"`
	Choices       []any     `json:"choices,omitempty"`
	Weights       []float64 `json:"weights,omitempty"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	Sequence      []any     `json:"sequence,omitempty"`
	Value         any       `json:"value,omitempty"`
}

type jsonCondition struct {
	Child      string          `json:"child,omitempty"`
	Parent     string          `json:"parent,omitempty"`
	Type       string          `json:"type"`
	Value      any             `json:"value,omitempty"`
	Values     []any           `json:"values,omitempty"`
	Conditions []jsonCondition `json:"conditions,omitempty"`
}

const jsonFormatVersion = 0.2

// Load reads a ConfigSpace JSON file.
func Load(path string) (*Space, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config space %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config space %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a ConfigSpace JSON document. Conjunctions of conditions are
// flattened; disjunctions and forbidden clauses are not supported.
func Parse(data []byte) (*Space, error) {
	var js jsonSpace
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&js); err != nil {
		return nil, err
	}
	if len(js.Forbiddens) > 0 {
		return nil, fmt.Errorf("forbidden clauses are not supported")
	}
	s, err := New(js.Name)
	if err != nil {
		return nil, err
	}
	for _, jh := range js.Hyperparameters {
		h := Hyperparameter{
			Name:     jh.Name,
			Kind:     Kind(jh.Type),
			Log:      jh.Log,
			Default:  jh.Default,
			Choices:  jh.Choices,
			Weights:  jh.Weights,
			Sequence: jh.Sequence,
			Value:    jh.Value,
		}
		if len(h.Weights) == 0 {
			h.Weights = jh.Probabilities
		}
		if jh.Lower != nil {
			h.Lower = *jh.Lower
		}
		if jh.Upper != nil {
			h.Upper = *jh.Upper
		}
		if err := s.Add(h); err != nil {
			return nil, err
		}
	}
	for _, jc := range js.Conditions {
		conds, err := flattenCondition(jc)
		if err != nil {
			return nil, err
		}
		for _, c := range conds {
			if err := s.AddCondition(c); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func flattenCondition(jc jsonCondition) ([]Condition, error) {
	switch ConditionType(jc.Type) {
	case Equals, NotEquals:
		return []Condition{{Child: jc.Child, Parent: jc.Parent, Type: ConditionType(jc.Type), Values: []any{jc.Value}}}, nil
	case In:
		return []Condition{{Child: jc.Child, Parent: jc.Parent, Type: In, Values: jc.Values}}, nil
	}
	if jc.Type == "AND" {
		var out []Condition
		for _, sub := range jc.Conditions {
			conds, err := flattenCondition(sub)
			if err != nil {
				return nil, err
			}
			out = append(out, conds...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported condition type %q", jc.Type)
}

func (s *Space) MarshalJSON() ([]byte, error) {
	js := jsonSpace{
		Name:              s.Name,
		Hyperparameters:   make([]jsonHyperparameter, 0, len(s.params)),
		Conditions:        make([]jsonCondition, 0, len(s.conditions)),
		Forbiddens:        []json.RawMessage{},
		JSONFormatVersion: jsonFormatVersion,
	}
	for _, h := range s.params {
		jh := jsonHyperparameter{
			Name:     h.Name,
			Type:     string(h.Kind),
			Log:      h.Log,
			Default:  h.DefaultValue(),
			Choices:  h.Choices,
			Weights:  h.Weights,
			Sequence: h.Sequence,
			Value:    h.Value,
		}
		if h.Kind == UniformFloat || h.Kind == UniformInt {
			lower, upper := h.Lower, h.Upper
			jh.Lower, jh.Upper = &lower, &upper
		}
		js.Hyperparameters = append(js.Hyperparameters, jh)
	}
	for _, c := range s.conditions {
		jc := jsonCondition{Child: c.Child, Parent: c.Parent, Type: string(c.Type)}
		if c.Type == In {
			jc.Values = c.Values
		} else if len(c.Values) > 0 {
			jc.Value = c.Values[0]
		}
		js.Conditions = append(js.Conditions, jc)
	}
	return json.Marshal(js)
}

func (s *Space) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*s = *parsed
	return nil
}
