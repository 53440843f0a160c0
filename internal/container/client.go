// Package container runs a benchmark inside a long-lived container and
// talks to it over RPC. NewYAHPOGym and NewRBv2 are the ready-made clients
// for the YAHPO Gym images.
package container

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/signalnine/hpobench/internal/benchmark"
	"github.com/signalnine/hpobench/internal/docker"
	"github.com/signalnine/hpobench/internal/rpc"
	"github.com/signalnine/hpobench/internal/yahpo"
)

const (
	DefaultTag            = "0.0.1"
	DefaultStartupTimeout = 2 * time.Minute
	// DataMount is where Options.DataDir appears inside the container.
	DataMount = "/data"

	logTail = 50
)

var ErrMissingName = errors.New("benchmark and container names are required")

type Options struct {
	BenchmarkName string
	ContainerName string
	ContainerTag  string
	// ContainerSource prefixes the image name, e.g. a registry path.
	ContainerSource string

	Scenario string
	Instance string
	Seed     int64

	Env            map[string]string
	DataDir        string
	StartupTimeout time.Duration
	CPULimit       float64
	MemoryLimit    int64
	Pull           bool

	Launcher Launcher
}

// Image returns the image reference <source>/<name>:<tag>.
func (o *Options) Image() string {
	ref := o.ContainerName + ":" + o.ContainerTag
	if o.ContainerSource == "" {
		return ref
	}
	return strings.TrimSuffix(o.ContainerSource, "/") + "/" + ref
}

// LaunchSpec describes the container a Launcher must start. The benchmark
// server inside has to listen on Addr.
type LaunchSpec struct {
	Image       string
	Name        string
	Addr        string
	Command     []string
	Env         map[string]string
	Mounts      []docker.Mount
	CPULimit    float64
	MemoryLimit int64
	Pull        bool
}

type Instance interface {
	Logs(ctx context.Context, tail int) (string, error)
	Stop(ctx context.Context) error
}

type Launcher interface {
	Launch(ctx context.Context, spec *LaunchSpec) (Instance, error)
}

// DockerLauncher starts the container through the Docker Engine API.
type DockerLauncher struct{}

func (DockerLauncher) Launch(ctx context.Context, spec *LaunchSpec) (Instance, error) {
	return docker.StartContainer(ctx, &docker.RunOpts{
		Image:       spec.Image,
		Name:        spec.Name,
		Command:     spec.Command,
		Env:         spec.Env,
		Mounts:      spec.Mounts,
		CPULimit:    spec.CPULimit,
		MemoryLimit: spec.MemoryLimit,
		Pull:        spec.Pull,
	})
}

// Client is a benchmark served from a container.
type Client struct {
	*rpc.Client
	opts     Options
	addr     string
	instance Instance
}

var _ benchmark.Benchmark = (*Client)(nil)

// NewYAHPOGym starts the YAHPO Gym container.
func NewYAHPOGym(ctx context.Context, opts Options) (*Client, error) {
	if opts.BenchmarkName == "" {
		opts.BenchmarkName = yahpo.BenchmarkName
	}
	if opts.ContainerName == "" {
		opts.ContainerName = "yahpo_gym"
	}
	if opts.ContainerTag == "" {
		opts.ContainerTag = DefaultTag
	}
	return NewClient(ctx, opts)
}

// NewRBv2 starts the rbv2 container.
func NewRBv2(ctx context.Context, opts Options) (*Client, error) {
	if opts.BenchmarkName == "" {
		opts.BenchmarkName = yahpo.RBv2BenchmarkName
	}
	if opts.ContainerName == "" {
		opts.ContainerName = "rbv2"
	}
	if opts.ContainerTag == "" {
		opts.ContainerTag = DefaultTag
	}
	return NewClient(ctx, opts)
}

// NewClient launches the container, waits for its server and initializes
// the remote benchmark.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.BenchmarkName == "" || opts.ContainerName == "" {
		return nil, ErrMissingName
	}
	if opts.ContainerTag == "" {
		opts.ContainerTag = DefaultTag
	}
	if opts.StartupTimeout <= 0 {
		opts.StartupTimeout = DefaultStartupTimeout
	}
	launcher := opts.Launcher
	if launcher == nil {
		launcher = DockerLauncher{}
	}

	port, err := FindFreePort()
	if err != nil {
		return nil, err
	}
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	spec := launchSpec(&opts, addr)

	entry := log.WithFields(log.Fields{"image": spec.Image, "scenario": opts.Scenario, "instance": opts.Instance})
	entry.Info("Launching benchmark container")
	inst, err := launcher.Launch(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("launching %s: %w", spec.Image, err)
	}

	c := &Client{opts: opts, addr: addr, instance: inst}
	if err := waitForPort(ctx, addr, opts.StartupTimeout); err != nil {
		return nil, c.abort(fmt.Errorf("benchmark container %s did not start: %w", spec.Image, err))
	}
	if c.Client, err = rpc.Dial(addr); err != nil {
		return nil, c.abort(err)
	}
	_, err = c.Init(ctx, &rpc.InitRequest{
		BenchmarkName: opts.BenchmarkName,
		Scenario:      opts.Scenario,
		Instance:      opts.Instance,
		Seed:          opts.Seed,
	})
	if err != nil {
		return nil, c.abort(fmt.Errorf("initializing %s: %w", opts.BenchmarkName, err))
	}
	entry.WithField("addr", addr).Info("Benchmark container ready")
	return c, nil
}

func launchSpec(opts *Options, addr string) *LaunchSpec {
	env := map[string]string{}
	for k, v := range opts.Env {
		env[k] = v
	}
	var mounts []docker.Mount
	if opts.DataDir != "" {
		mounts = append(mounts, docker.Mount{Source: opts.DataDir, Target: DataMount, ReadOnly: true})
		env["YAHPO_DATA_PATH"] = DataMount
	}
	return &LaunchSpec{
		Image:       opts.Image(),
		Addr:        addr,
		Command:     []string{"hpobench", "serve", "--addr", addr},
		Env:         env,
		Mounts:      mounts,
		CPULimit:    opts.CPULimit,
		MemoryLimit: opts.MemoryLimit,
		Pull:        opts.Pull,
	}
}

// abort tears down a half-started client and attaches the container log
// tail to err.
func (c *Client) abort(err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if logs, lerr := c.instance.Logs(ctx, logTail); lerr == nil && strings.TrimSpace(logs) != "" {
		err = fmt.Errorf("%w\ncontainer logs:\n%s", err, logs)
	}
	if c.Client != nil {
		c.Client.Close()
	}
	if serr := c.instance.Stop(ctx); serr != nil {
		log.Warnf("Failed to stop benchmark container: %v", serr)
	}
	return err
}

func (c *Client) Addr() string { return c.addr }

func (c *Client) Options() Options { return c.opts }

// Close shuts the remote benchmark down and removes the container.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		log.Debugf("Remote shutdown: %v", err)
	}
	c.Client.Close()
	return c.instance.Stop(ctx)
}

func FindFreePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port, nil
}

func waitForPort(ctx context.Context, addr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s not ready after %s: %w", addr, timeout, ctx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}
