package rpc

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalnine/hpobench/internal/benchmark"
	"github.com/signalnine/hpobench/internal/configspace"
)

// Client is a benchmark.Benchmark backed by a remote Server.
type Client struct {
	conn *grpc.ClientConn

	mu       sync.Mutex
	fidelity *configspace.Space
}

var _ benchmark.Benchmark = (*Client)(nil)

// Dial creates a client for addr. No connection is made until the first
// call.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating benchmark client for %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	if err := c.conn.Invoke(ctx, fullMethod(method), req, resp); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (c *Client) Init(ctx context.Context, req *InitRequest) (*InitResponse, error) {
	resp := new(InitResponse)
	if err := c.invoke(ctx, "Init", req, resp); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.fidelity = nil
	c.mu.Unlock()
	return resp, nil
}

func (c *Client) ConfigurationSpace(ctx context.Context, seed int64) (*configspace.Space, error) {
	return c.space(ctx, "ConfigurationSpace", seed)
}

func (c *Client) FidelitySpace(ctx context.Context, seed int64) (*configspace.Space, error) {
	return c.space(ctx, "FidelitySpace", seed)
}

// space reseeds the decoded space locally; sampler state does not travel
// over the wire.
func (c *Client) space(ctx context.Context, method string, seed int64) (*configspace.Space, error) {
	resp := new(SpaceResponse)
	if err := c.invoke(ctx, method, &SpaceRequest{Seed: seed}, resp); err != nil {
		return nil, err
	}
	if resp.Space == nil {
		return nil, fmt.Errorf("%s: empty space in response", method)
	}
	return resp.Space.Seed(seed), nil
}

func (c *Client) ObjectiveFunction(ctx context.Context, cfg, fidelity configspace.Configuration, opts ...benchmark.EvalOption) (*benchmark.Result, error) {
	return c.evaluate(ctx, "ObjectiveFunction", cfg, fidelity, opts)
}

func (c *Client) ObjectiveFunctionTest(ctx context.Context, cfg, fidelity configspace.Configuration, opts ...benchmark.EvalOption) (*benchmark.Result, error) {
	return c.evaluate(ctx, "ObjectiveFunctionTest", cfg, fidelity, opts)
}

func (c *Client) evaluate(ctx context.Context, method string, cfg, fidelity configspace.Configuration, opts []benchmark.EvalOption) (*benchmark.Result, error) {
	req := &EvalRequest{Configuration: cfg, Fidelity: fidelity}
	if o := benchmark.NewEvalOptions(opts...); o.Seed != nil || o.Rand != nil {
		seed := o.DrawSeed(nil)
		req.Seed = &seed
	}
	res := new(benchmark.Result)
	if err := c.invoke(ctx, method, req, res); err != nil {
		return nil, err
	}
	c.restoreTypes(ctx, res)
	return res, nil
}

// restoreTypes undoes the JSON decoding of info: the fidelity gets its
// canonical value types back and objectives become floats again.
func (c *Client) restoreTypes(ctx context.Context, res *benchmark.Result) {
	if res.Info == nil {
		return
	}
	if raw, ok := res.Info[benchmark.InfoObjectives].(map[string]any); ok {
		out := make(map[string]float64, len(raw))
		for k, v := range raw {
			if f, ok := v.(float64); ok {
				out[k] = f
			}
		}
		res.Info[benchmark.InfoObjectives] = out
	}
	fid := res.Fidelity()
	if fid == nil {
		return
	}
	fs, err := c.fidelitySpace(ctx)
	if err != nil {
		return
	}
	if cast, err := fs.Validate(fid); err == nil {
		res.Info[benchmark.InfoFidelity] = cast
	}
}

func (c *Client) fidelitySpace(ctx context.Context) (*configspace.Space, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fidelity != nil {
		return c.fidelity, nil
	}
	fs, err := c.space(ctx, "FidelitySpace", 0)
	if err != nil {
		return nil, err
	}
	c.fidelity = fs
	return fs, nil
}

func (c *Client) MetaInformation(ctx context.Context) (*benchmark.MetaInformation, error) {
	resp := new(benchmark.MetaInformation)
	if err := c.invoke(ctx, "MetaInformation", &Empty{}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Shutdown asks the server to release its benchmark.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.invoke(ctx, "Shutdown", &Empty{}, &Empty{})
}

func (c *Client) Close() error {
	return c.conn.Close()
}
