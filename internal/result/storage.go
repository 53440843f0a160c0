package result

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash"
)

const (
	MetaFile     = "meta.json"
	DatabaseFile = "evaluations.db"
)

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir := filepath.Join(runsDir, stamp)
	runDir, err := filepath.Abs(runDir)
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// SweepDir is where a target's meta.json lives.
func SweepDir(runDir, sweep, instance string) string {
	return filepath.Join(runDir, "sweeps", safeName(sweep), safeName(instance))
}

func safeName(s string) string {
	return strings.NewReplacer("/", "_", string(filepath.Separator), "_", "..", "_").Replace(s)
}

func WriteSweepMeta(dir string, meta *SweepMeta) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating sweep dir: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, MetaFile), data, 0o644)
}

func ReadSweepMeta(path string) (*SweepMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	var meta SweepMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta: %w", err)
	}
	return &meta, nil
}

// ConfigKey identifies a configuration independently of map order.
// Numerically equal values of different Go types share a key.
func ConfigKey(cfg map[string]any) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		data = []byte(fmt.Sprint(cfg))
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}
