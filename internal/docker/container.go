package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
	log "github.com/sirupsen/logrus"
)

// Label marks every container started by this package.
const Label = "hpobench"

type RunOpts struct {
	Image       string
	Name        string
	Command     []string
	Env         map[string]string
	Mounts      []Mount
	CPULimit    float64
	MemoryLimit int64
	// Pull fetches the image before creating the container.
	Pull bool
}

type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Container is a started, long-lived benchmark container.
type Container struct {
	ID    string
	Image string
	cli   *client.Client
}

// StartContainer creates and starts a container on the host network. The
// caller owns the container and must Stop it.
func StartContainer(ctx context.Context, opts *RunOpts) (*Container, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	if opts.Pull {
		if err := pullImage(ctx, cli, opts.Image); err != nil {
			cli.Close()
			return nil, err
		}
	}

	envSlice := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		envSlice = append(envSlice, k+"="+v)
	}

	var mounts []mount.Mount
	for _, m := range opts.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts:      mounts,
		Init:        &initTrue,
		NetworkMode: "host",
	}
	if opts.CPULimit > 0 {
		hostCfg.NanoCPUs = int64(opts.CPULimit * 1e9)
	}
	if opts.MemoryLimit > 0 {
		hostCfg.Memory = opts.MemoryLimit
	}

	containerCfg := &container.Config{
		Image:  opts.Image,
		Cmd:    opts.Command,
		Env:    envSlice,
		Labels: map[string]string{Label: "true"},
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
		Name:       opts.Name,
	})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("creating container: %w", err)
	}
	for _, w := range createResp.Warnings {
		log.Warnf("Container %s: %s", opts.Image, w)
	}

	c := &Container{ID: createResp.ID, Image: opts.Image, cli: cli}
	if _, err := cli.ContainerStart(ctx, c.ID, client.ContainerStartOptions{}); err != nil {
		c.Stop(context.Background())
		return nil, fmt.Errorf("starting container: %w", err)
	}
	log.WithFields(log.Fields{"image": opts.Image, "id": shortID(c.ID)}).Info("Started benchmark container")
	return c, nil
}

func pullImage(ctx context.Context, cli *client.Client, image string) error {
	resp, err := cli.ImagePull(ctx, image, client.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pulling %s: %w", image, err)
	}
	defer resp.Close()
	if err := resp.Wait(ctx); err != nil {
		return fmt.Errorf("pulling %s: %w", image, err)
	}
	return nil
}

// Logs returns the last tail lines of the container's combined output.
func (c *Container) Logs(ctx context.Context, tail int) (string, error) {
	opts := client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true}
	if tail > 0 {
		opts.Tail = fmt.Sprint(tail)
	}
	logReader, err := c.cli.ContainerLogs(ctx, c.ID, opts)
	if err != nil {
		return "", fmt.Errorf("reading container logs: %w", err)
	}
	defer logReader.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, logReader); err != nil && err != io.EOF {
		return buf.String(), fmt.Errorf("reading container logs: %w", err)
	}
	return buf.String(), nil
}

// Stop kills and removes the container. It is safe to call more than once.
func (c *Container) Stop(ctx context.Context) error {
	if c.cli == nil {
		return nil
	}
	defer func() {
		c.cli.Close()
		c.cli = nil
	}()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	c.cli.ContainerKill(ctx, c.ID, client.ContainerKillOptions{Signal: "SIGKILL"})
	if _, err := c.cli.ContainerRemove(ctx, c.ID, client.ContainerRemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("removing container %s: %w", shortID(c.ID), err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
