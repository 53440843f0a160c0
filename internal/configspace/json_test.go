package configspace_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/hpobench/internal/configspace"
)

const rpartJSON = `{
  "hyperparameters": [
    {"name": "cp", "type": "uniform_float", "log": true, "lower": 0.0009, "upper": 1.0, "default": 0.03},
    {"name": "maxdepth", "type": "uniform_int", "log": false, "lower": 1, "upper": 30, "default": 16},
    {"name": "num.impute.selected.cpo", "type": "categorical", "choices": ["impute.mean", "impute.median", "impute.hist"], "default": "impute.mean", "probabilities": null},
    {"name": "task_id", "type": "categorical", "choices": ["3", "31"], "default": "3"},
    {"name": "trainsize", "type": "uniform_float", "log": false, "lower": 0.03, "upper": 1.0, "default": 0.525},
    {"name": "repl", "type": "ordinal", "sequence": [1, 2, 3, 4, 5, 6, 7, 8, 9, 10], "default": 10},
    {"name": "usesurrogate", "type": "constant", "value": "0"},
    {"name": "minbucket", "type": "uniform_int", "log": false, "lower": 1, "upper": 100, "default": 50}
  ],
  "conditions": [
    {"type": "AND", "conditions": [
      {"child": "minbucket", "parent": "maxdepth", "type": "IN", "values": [10, 20, 30]},
      {"child": "minbucket", "parent": "num.impute.selected.cpo", "type": "NEQ", "value": "impute.hist"}
    ]}
  ],
  "forbiddens": [],
  "python_module_version": "0.4.18",
  "json_format_version": 0.2
}`

func TestParse(t *testing.T) {
	s, err := configspace.Parse([]byte(rpartJSON))
	require.NoError(t, err)
	assert.Equal(t, 8, s.Len())
	assert.Len(t, s.Conditions(), 2)

	maxdepth, ok := s.Get("maxdepth")
	require.True(t, ok)
	assert.Equal(t, configspace.UniformInt, maxdepth.Kind)
	assert.Equal(t, 16, maxdepth.DefaultValue())

	def := s.Default()
	assert.Equal(t, 10.0, def["repl"])
	assert.Equal(t, "0", def["usesurrogate"])
	assert.NotContains(t, def, "minbucket", "maxdepth=16 leaves minbucket inactive")

	_, err = s.Validate(configspace.Configuration{
		"cp": 0.1, "maxdepth": 20, "num.impute.selected.cpo": "impute.mean", "task_id": "31",
		"trainsize": 0.5, "repl": 3, "usesurrogate": "0", "minbucket": 7,
	})
	assert.NoError(t, err)
}

func TestParseRejectsUnsupported(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"malformed", `{"hyperparameters": [`},
		{"unknown type", `{"hyperparameters": [{"name": "x", "type": "normal_float", "mu": 0, "sigma": 1}], "conditions": []}`},
		{"or condition", `{"hyperparameters": [{"name": "a", "type": "constant", "value": 1}, {"name": "b", "type": "constant", "value": 1}],
			"conditions": [{"type": "OR", "conditions": []}]}`},
		{"forbidden", `{"hyperparameters": [], "conditions": [], "forbiddens": [{"name": "a", "type": "EQUALS", "value": 1}]}`},
		{"unknown parent", `{"hyperparameters": [{"name": "a", "type": "constant", "value": 1}],
			"conditions": [{"child": "a", "parent": "zz", "type": "EQ", "value": 1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := configspace.Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestMarshalRoundTripKeepsBehaviour(t *testing.T) {
	s, err := configspace.Parse([]byte(rpartJSON))
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back configspace.Space
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s.Names(), back.Names())
	assert.Equal(t, s.Default(), back.Default())
	assert.Equal(t, s.Seed(4).Sample(), back.Seed(4).Sample())
}
