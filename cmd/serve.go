package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/signalnine/hpobench/internal/benchmark"
	"github.com/signalnine/hpobench/internal/metrics"
	"github.com/signalnine/hpobench/internal/rpc"
	"github.com/signalnine/hpobench/internal/runner"
)

func newServeCmd() *cobra.Command {
	var addr, metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a benchmark over gRPC until shut down",
		Long:  "Serve a benchmark over gRPC. This is the entrypoint of the benchmark containers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = appCfg.Server.Addr
			}
			if metricsAddr == "" {
				metricsAddr = appCfg.Server.MetricsAddr
			}
			opener, err := runner.NewOpener(appCfg)
			if err != nil {
				return err
			}
			factory := func(ctx context.Context, req *rpc.InitRequest) (benchmark.Benchmark, error) {
				return opener(ctx, runner.Target{
					Benchmark: req.BenchmarkName,
					Scenario:  req.Scenario,
					Instance:  req.Instance,
					Seed:      req.Seed,
				})
			}

			rec := metrics.NewRecorder()
			srv := rpc.NewServer(factory, rec)
			if err := srv.Start(addr); err != nil {
				return err
			}
			defer srv.Stop()

			if metricsAddr != "" {
				httpSrv := &http.Server{
					Addr:              metricsAddr,
					Handler:           metrics.NewRouter(rec, srv.Meta),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					log.Infof("Metrics listening on %s", metricsAddr)
					if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Errorf("Metrics server: %v", err)
					}
				}()
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					httpSrv.Shutdown(ctx)
				}()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			select {
			case <-srv.Done():
				log.Info("Shutdown requested by client")
			case <-ctx.Done():
				log.Info("Received signal, shutting down")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC listen address (default server.addr)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "HTTP address for /metrics, /healthz and /meta")
	return cmd
}
