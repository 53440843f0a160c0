package docker_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalnine/hpobench/internal/docker"
)

func TestParseEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.env")
	content := `# surrogate data
YAHPO_DATA_PATH=/data/yahpo
export TOKEN="abc def"
QUOTED='x'
not a pair
EMPTY=
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	env, err := docker.ParseEnvFile(path)
	if err != nil {
		t.Fatalf("ParseEnvFile: %v", err)
	}
	want := map[string]string{
		"YAHPO_DATA_PATH": "/data/yahpo",
		"TOKEN":           "abc def",
		"QUOTED":          "x",
		"EMPTY":           "",
	}
	if len(env) != len(want) {
		t.Fatalf("got %d entries, want %d: %v", len(env), len(want), env)
	}
	for k, v := range want {
		if env[k] != v {
			t.Errorf("%s: got %q, want %q", k, env[k], v)
		}
	}
}

func TestParseEnvFileMissing(t *testing.T) {
	if _, err := docker.ParseEnvFile(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestStartContainer(t *testing.T) {
	if os.Getenv("HPOBENCH_DOCKER_TESTS") == "" {
		t.Skip("set HPOBENCH_DOCKER_TESTS=1 to run Docker tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	dataDir := t.TempDir()
	c, err := docker.StartContainer(ctx, &docker.RunOpts{
		Image:   "alpine:latest",
		Command: []string{"sh", "-c", "echo ready $YAHPO_DATA_PATH; ls /data; sleep 300"},
		Env:     map[string]string{"YAHPO_DATA_PATH": "/data"},
		Mounts:  []docker.Mount{{Source: dataDir, Target: "/data", ReadOnly: true}},
		Pull:    true,
	})
	if err != nil {
		t.Fatalf("StartContainer: %v", err)
	}
	defer c.Stop(context.Background())

	var logs string
	for i := 0; i < 20; i++ {
		logs, err = c.Logs(ctx, 10)
		if err != nil {
			t.Fatalf("Logs: %v", err)
		}
		if strings.Contains(logs, "ready /data") {
			break
		}
		time.Sleep(250 * time.Millisecond)
	}
	if !strings.Contains(logs, "ready /data") {
		t.Errorf("logs: got %q", logs)
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(ctx); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}
