package result_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/signalnine/hpobench/internal/result"
)

func TestWriteAndReadSweepMeta(t *testing.T) {
	dir := t.TempDir()
	best := -91.5
	meta := &result.SweepMeta{
		Sweep:      "lcbench-small",
		Benchmark:  "YAHPOGymBenchmark",
		Scenario:   "lcbench",
		Instance:   "3945",
		Seed:       7,
		Samples:    25,
		Evaluated:  24,
		Failed:     1,
		Fidelity:   map[string]any{"epoch": 26},
		BestValue:  &best,
		BestConfig: map[string]any{"num_layers": 3},
		DurationS:  1.5,
	}
	if err := result.WriteSweepMeta(dir, meta); err != nil {
		t.Fatalf("WriteSweepMeta: %v", err)
	}
	got, err := result.ReadSweepMeta(filepath.Join(dir, result.MetaFile))
	if err != nil {
		t.Fatalf("ReadSweepMeta: %v", err)
	}
	if got.Scenario != meta.Scenario || got.Instance != meta.Instance {
		t.Errorf("target: got %s/%s, want %s/%s", got.Scenario, got.Instance, meta.Scenario, meta.Instance)
	}
	if got.BestValue == nil || *got.BestValue != best {
		t.Errorf("best_value: got %v, want %v", got.BestValue, best)
	}
	if got.Fidelity["epoch"] != 26.0 {
		t.Errorf("fidelity: got %v", got.Fidelity)
	}
}

func TestReadSweepMetaErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := result.ReadSweepMeta(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing meta")
	}
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{"), 0o644)
	if _, err := result.ReadSweepMeta(bad); err == nil {
		t.Error("expected error for malformed meta")
	}
}

func TestCreateRunDir(t *testing.T) {
	base := t.TempDir()
	runDir, err := result.CreateRunDir(base)
	if err != nil {
		t.Fatalf("CreateRunDir: %v", err)
	}
	if _, err := os.Stat(runDir); os.IsNotExist(err) {
		t.Errorf("run directory not created: %s", runDir)
	}
	latest := filepath.Join(base, "latest")
	target, err := os.Readlink(latest)
	if err != nil {
		t.Fatalf("reading latest symlink: %v", err)
	}
	if target != runDir {
		t.Errorf("latest symlink: got %q, want %q", target, runDir)
	}
}

func TestSweepDir(t *testing.T) {
	base := t.TempDir()
	dir := result.SweepDir(base, "rbv2/svm", "1040")
	expected := filepath.Join(base, "sweeps", "rbv2_svm", "1040")
	if dir != expected {
		t.Errorf("got %q, want %q", dir, expected)
	}
}

func TestConfigKey(t *testing.T) {
	a := result.ConfigKey(map[string]any{"lr": 0.1, "layers": 2, "kernel": "radial"})
	b := result.ConfigKey(map[string]any{"kernel": "radial", "layers": 2.0, "lr": 0.1})
	if a != b {
		t.Errorf("keys differ for equal configurations: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("key length: got %d, want 16", len(a))
	}
	c := result.ConfigKey(map[string]any{"kernel": "linear", "layers": 2, "lr": 0.1})
	if a == c {
		t.Error("different configurations share a key")
	}
}
