package surrogate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var ErrNoPredictor = errors.New("no surrogate predictor configured")

// Query is one surrogate evaluation: the merged parameter set with the
// instance parameter already filled in.
type Query struct {
	Scenario string         `json:"scenario"`
	Instance string         `json:"instance"`
	Params   map[string]any `json:"params"`
	Seed     int64          `json:"seed"`
}

// Predictor answers surrogate queries with a value per target.
type Predictor interface {
	Predict(ctx context.Context, q *Query) (map[string]float64, error)
}

type PredictorFunc func(ctx context.Context, q *Query) (map[string]float64, error)

func (f PredictorFunc) Predict(ctx context.Context, q *Query) (map[string]float64, error) {
	return f(ctx, q)
}

// CommandPredictor runs an external program per query. The query is written
// to stdin as JSON and the program prints a JSON object of target values.
type CommandPredictor struct {
	Command string
	Args    []string
	Env     []string
	Timeout time.Duration
}

func (p *CommandPredictor) Predict(ctx context.Context, q *Query) (map[string]float64, error) {
	if p.Command == "" {
		return nil, ErrNoPredictor
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	in, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Env = append(os.Environ(), p.Env...)
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("predictor %s after %s: %w", p.Command, time.Since(start).Round(time.Millisecond), ctx.Err())
		}
		return nil, fmt.Errorf("running predictor %s: %s: %w", p.Command, strings.TrimSpace(stderr.String()), err)
	}

	var out map[string]float64
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("decoding predictor output: %w", err)
	}
	return out, nil
}
