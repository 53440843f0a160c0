package container_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalnine/hpobench/internal/benchmark"
	"github.com/signalnine/hpobench/internal/configspace"
	"github.com/signalnine/hpobench/internal/container"
	"github.com/signalnine/hpobench/internal/rpc"
	"github.com/signalnine/hpobench/internal/surrogate"
	"github.com/signalnine/hpobench/internal/surrogate/surrogatetest"
	"github.com/signalnine/hpobench/internal/yahpo"
)

// inProcess serves the benchmark from the test process instead of a
// container.
type inProcess struct {
	specs []*container.LaunchSpec
	srv   *rpc.Server
}

func (l *inProcess) Launch(_ context.Context, spec *container.LaunchSpec) (container.Instance, error) {
	l.specs = append(l.specs, spec)
	l.srv = rpc.NewServer(func(ctx context.Context, req *rpc.InitRequest) (benchmark.Benchmark, error) {
		return yahpo.NewByName(ctx, req.BenchmarkName, req.Scenario, req.Instance, yahpo.Options{
			Seed: req.Seed,
			Surrogate: surrogate.Options{
				DataDir:   surrogatetest.DataDir(),
				Predictor: surrogatetest.Predictor(nil),
			},
		})
	}, nil)
	if err := l.srv.Start(spec.Addr); err != nil {
		return nil, err
	}
	return &serverInstance{srv: l.srv}, nil
}

type serverInstance struct {
	srv     *rpc.Server
	stopped int
}

func (i *serverInstance) Logs(context.Context, int) (string, error) {
	return "server log line", nil
}

func (i *serverInstance) Stop(context.Context) error {
	i.stopped++
	i.srv.Stop()
	return nil
}

// silent never opens its port.
type silent struct{ inst *fakeInstance }

func (l *silent) Launch(context.Context, *container.LaunchSpec) (container.Instance, error) {
	l.inst = &fakeInstance{logs: "Traceback: model.onnx not found"}
	return l.inst, nil
}

type fakeInstance struct {
	logs    string
	stopped bool
}

func (i *fakeInstance) Logs(context.Context, int) (string, error) { return i.logs, nil }
func (i *fakeInstance) Stop(context.Context) error {
	i.stopped = true
	return nil
}

func TestNewYAHPOGymDefaults(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	launcher := &inProcess{}

	c, err := container.NewYAHPOGym(ctx, container.Options{
		Scenario: "lcbench",
		Instance: "3945",
		Seed:     1,
		DataDir:  "/srv/yahpo",
		Launcher: launcher,
	})
	require.NoError(t, err)

	opts := c.Options()
	assert.Equal(t, "YAHPOGymBenchmark", opts.BenchmarkName)
	assert.Equal(t, "yahpo_gym", opts.ContainerName)
	assert.Equal(t, "0.0.1", opts.ContainerTag)

	require.Len(t, launcher.specs, 1)
	spec := launcher.specs[0]
	assert.Equal(t, "yahpo_gym:0.0.1", spec.Image)
	assert.Equal(t, []string{"hpobench", "serve", "--addr", c.Addr()}, spec.Command)
	assert.Equal(t, container.DataMount, spec.Env["YAHPO_DATA_PATH"])
	require.Len(t, spec.Mounts, 1)
	assert.True(t, spec.Mounts[0].ReadOnly)

	cs, err := c.ConfigurationSpace(ctx, 1)
	require.NoError(t, err)
	fid := configspace.Configuration{"epoch": 12}
	res, err := c.ObjectiveFunction(ctx, cs.Sample(), fid)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Cost)
	assert.Equal(t, fid, res.Fidelity())

	meta, err := c.MetaInformation(ctx)
	require.NoError(t, err)
	assert.Equal(t, yahpo.MetaInformation(), meta)

	require.NoError(t, c.Close())
	select {
	case <-launcher.srv.Done():
	default:
		t.Error("remote benchmark was not shut down")
	}
}

func TestNewRBv2Defaults(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	launcher := &inProcess{}

	c, err := container.NewRBv2(ctx, container.Options{
		Scenario:        "svm",
		Instance:        "1040",
		ContainerTag:    "0.0.2",
		ContainerSource: "registry.example.org/hpo/",
		Launcher:        launcher,
	})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "rbv2Benchmark", c.Options().BenchmarkName)
	assert.Equal(t, "registry.example.org/hpo/rbv2:0.0.2", launcher.specs[0].Image, "an explicit tag wins")
	assert.Empty(t, launcher.specs[0].Mounts)

	fs, err := c.FidelitySpace(ctx, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"trainsize", "repl"}, fs.Names())
}

func TestNewClientStartupTimeout(t *testing.T) {
	launcher := &silent{}
	_, err := container.NewClient(context.Background(), container.Options{
		BenchmarkName:  "YAHPOGymBenchmark",
		ContainerName:  "yahpo_gym",
		Scenario:       "lcbench",
		Instance:       "3945",
		StartupTimeout: 300 * time.Millisecond,
		Launcher:       launcher,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "model.onnx not found")
	assert.True(t, launcher.inst.stopped)
}

func TestNewClientInitFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	launcher := &inProcess{}

	_, err := container.NewYAHPOGym(ctx, container.Options{Scenario: "lcbench", Instance: "42", Launcher: launcher})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Contains(t, err.Error(), "server log line")
}

func TestNewClientRequiresNames(t *testing.T) {
	_, err := container.NewClient(context.Background(), container.Options{ContainerName: "yahpo_gym"})
	assert.True(t, errors.Is(err, container.ErrMissingName))
}

func TestDockerLaunch(t *testing.T) {
	if os.Getenv("HPOBENCH_DOCKER_TESTS") == "" {
		t.Skip("set HPOBENCH_DOCKER_TESTS=1 to run Docker tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	c, err := container.NewYAHPOGym(ctx, container.Options{
		Scenario:        "lcbench",
		Instance:        "3945",
		ContainerSource: os.Getenv("HPOBENCH_CONTAINER_SOURCE"),
		DataDir:         os.Getenv("YAHPO_DATA_PATH"),
	})
	require.NoError(t, err)
	defer c.Close()

	cs, err := c.ConfigurationSpace(ctx, 1)
	require.NoError(t, err)
	res, err := c.ObjectiveFunction(ctx, cs.Sample(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Cost)
}
