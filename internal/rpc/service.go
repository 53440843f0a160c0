// Package rpc carries the benchmark contract over gRPC. Messages are plain
// Go structs encoded with a JSON codec, so the service needs no generated
// stubs.
package rpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/signalnine/hpobench/internal/benchmark"
	"github.com/signalnine/hpobench/internal/configspace"
)

const (
	ServiceName = "hpobench.BenchmarkService"
	codecName   = "json"
)

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type InitRequest struct {
	BenchmarkName string `json:"benchmark_name"`
	Scenario      string `json:"scenario"`
	Instance      string `json:"instance"`
	Seed          int64  `json:"seed"`
}

type InitResponse struct {
	BenchmarkName string `json:"benchmark_name"`
	Scenario      string `json:"scenario"`
	Instance      string `json:"instance"`
}

type SpaceRequest struct {
	Seed int64 `json:"seed"`
}

type SpaceResponse struct {
	Space *configspace.Space `json:"space"`
}

type EvalRequest struct {
	Configuration configspace.Configuration `json:"configuration"`
	Fidelity      configspace.Configuration `json:"fidelity,omitempty"`
	Seed          *int64                    `json:"seed,omitempty"`
}

type Empty struct{}

// benchmarkServer is the handler type of the service description.
type benchmarkServer interface {
	Init(context.Context, *InitRequest) (*InitResponse, error)
	ConfigurationSpace(context.Context, *SpaceRequest) (*SpaceResponse, error)
	FidelitySpace(context.Context, *SpaceRequest) (*SpaceResponse, error)
	ObjectiveFunction(context.Context, *EvalRequest) (*benchmark.Result, error)
	ObjectiveFunctionTest(context.Context, *EvalRequest) (*benchmark.Result, error)
	MetaInformation(context.Context, *Empty) (*benchmark.MetaInformation, error)
	Shutdown(context.Context, *Empty) (*Empty, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*benchmarkServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Init", benchmarkServer.Init),
		unary("ConfigurationSpace", benchmarkServer.ConfigurationSpace),
		unary("FidelitySpace", benchmarkServer.FidelitySpace),
		unary("ObjectiveFunction", benchmarkServer.ObjectiveFunction),
		unary("ObjectiveFunctionTest", benchmarkServer.ObjectiveFunctionTest),
		unary("MetaInformation", benchmarkServer.MetaInformation),
		unary("Shutdown", benchmarkServer.Shutdown),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hpobench/benchmark.json",
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(benchmarkServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(benchmarkServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
