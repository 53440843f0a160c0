package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"path"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalnine/hpobench/internal/benchmark"
	"github.com/signalnine/hpobench/internal/configspace"
	"github.com/signalnine/hpobench/internal/metrics"
	"github.com/signalnine/hpobench/internal/surrogate"
)

var ErrNotInitialized = errors.New("benchmark not initialized")

// Factory builds the benchmark an Init call asks for.
type Factory func(ctx context.Context, req *InitRequest) (benchmark.Benchmark, error)

// Server hosts one benchmark at a time. Calls on it are serialized.
type Server struct {
	factory  Factory
	recorder *metrics.Recorder

	mu     sync.Mutex
	bench  benchmark.Benchmark
	target InitRequest

	grpc     *grpc.Server
	lis      net.Listener
	done     chan struct{}
	doneOnce sync.Once
}

var _ benchmarkServer = (*Server)(nil)

func NewServer(factory Factory, recorder *metrics.Recorder) *Server {
	s := &Server{
		factory:  factory,
		recorder: recorder,
		done:     make(chan struct{}),
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.intercept))
	s.grpc.RegisterService(&serviceDesc, s)
	return s
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.lis = lis
	go func() {
		if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Errorf("Benchmark server stopped: %v", err)
		}
	}()
	log.Infof("Benchmark server listening on %s", lis.Addr())
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Done is closed once a client asked the server to shut down.
func (s *Server) Done() <-chan struct{} { return s.done }

// Stop drains in-flight calls and releases the benchmark.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release()
}

// Meta reports the hosted benchmark's meta information.
func (s *Server) Meta() (*benchmark.MetaInformation, error) {
	return s.MetaInformation(context.Background(), &Empty{})
}

func (s *Server) release() {
	if s.bench == nil {
		return
	}
	if c, ok := s.bench.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warnf("Failed to close benchmark: %v", err)
		}
	}
	s.bench = nil
}

func (s *Server) Init(ctx context.Context, req *InitRequest) (*InitResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := s.factory(ctx, req)
	if err != nil {
		return nil, err
	}
	s.release()
	s.bench = b
	s.target = *req
	return &InitResponse{BenchmarkName: req.BenchmarkName, Scenario: req.Scenario, Instance: req.Instance}, nil
}

func (s *Server) ConfigurationSpace(ctx context.Context, req *SpaceRequest) (*SpaceResponse, error) {
	return s.space(ctx, req, benchmark.Benchmark.ConfigurationSpace)
}

func (s *Server) FidelitySpace(ctx context.Context, req *SpaceRequest) (*SpaceResponse, error) {
	return s.space(ctx, req, benchmark.Benchmark.FidelitySpace)
}

func (s *Server) space(ctx context.Context, req *SpaceRequest, get func(benchmark.Benchmark, context.Context, int64) (*configspace.Space, error)) (*SpaceResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bench == nil {
		return nil, ErrNotInitialized
	}
	space, err := get(s.bench, ctx, req.Seed)
	if err != nil {
		return nil, err
	}
	return &SpaceResponse{Space: space}, nil
}

func (s *Server) ObjectiveFunction(ctx context.Context, req *EvalRequest) (*benchmark.Result, error) {
	return s.evaluate(ctx, req, benchmark.Benchmark.ObjectiveFunction)
}

func (s *Server) ObjectiveFunctionTest(ctx context.Context, req *EvalRequest) (*benchmark.Result, error) {
	return s.evaluate(ctx, req, benchmark.Benchmark.ObjectiveFunctionTest)
}

type evalFunc func(benchmark.Benchmark, context.Context, configspace.Configuration, configspace.Configuration, ...benchmark.EvalOption) (*benchmark.Result, error)

func (s *Server) evaluate(ctx context.Context, req *EvalRequest, eval evalFunc) (*benchmark.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bench == nil {
		return nil, ErrNotInitialized
	}
	var opts []benchmark.EvalOption
	if req.Seed != nil {
		opts = append(opts, benchmark.WithSeed(*req.Seed))
	}
	res, err := eval(s.bench, ctx, req.Configuration, req.Fidelity, opts...)
	if err != nil {
		return nil, err
	}
	s.recorder.ObserveEvaluation(s.target.Scenario, s.target.Instance, res.FunctionValue)
	return res, nil
}

func (s *Server) MetaInformation(ctx context.Context, _ *Empty) (*benchmark.MetaInformation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bench == nil {
		return nil, ErrNotInitialized
	}
	return s.bench.MetaInformation(ctx)
}

// Shutdown releases the benchmark and signals Done. The listener keeps
// running until Stop.
func (s *Server) Shutdown(context.Context, *Empty) (*Empty, error) {
	s.mu.Lock()
	s.release()
	s.mu.Unlock()
	s.doneOnce.Do(func() { close(s.done) })
	return &Empty{}, nil
}

func (s *Server) intercept(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	err = toStatus(err)

	method := path.Base(info.FullMethod)
	code := status.Code(err)
	s.recorder.ObserveCall(method, code.String(), time.Since(start))

	entry := log.WithFields(log.Fields{
		"method":   method,
		"code":     code.String(),
		"duration": time.Since(start).Round(time.Microsecond),
	})
	if err != nil {
		entry.WithError(err).Warn("Benchmark call failed")
	} else {
		entry.Debug("Benchmark call")
	}
	return resp, err
}

func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

func codeOf(err error) codes.Code {
	var verr *configspace.ValidationError
	var cerr *surrogate.ConfigurationError
	switch {
	case errors.As(err, &verr), errors.Is(err, benchmark.ErrOverlappingKeys):
		return codes.InvalidArgument
	case errors.Is(err, ErrNotInitialized), errors.Is(err, surrogate.ErrMissingFiles):
		return codes.FailedPrecondition
	case errors.As(err, &cerr), errors.Is(err, benchmark.ErrUnknownBenchmark):
		return codes.NotFound
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}
	return codes.Internal
}
