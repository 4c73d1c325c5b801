package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/kgraph/internal/insight"
	"github.com/rohankatakam/kgraph/internal/mcp"
)

var (
	serveMetricsAddr string
	serveNoAnalysis  bool
)

var serveMCPCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve graph query tools to an LLM agent over MCP (stdio)",
	Long: `Starts a Model Context Protocol server on stdin/stdout with three tools:

  analyze_graph        run a read query and return a report
  articles_mentioning  articles that mention a person
  related_people       people connected to a person through a shared node

Logs go to stderr (and the log file) so they never corrupt the protocol
stream.`,
	Args: cobra.NoArgs,
	RunE: runServeMCP,
}

func init() {
	serveMCPCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	serveMCPCmd.Flags().BoolVar(&serveNoAnalysis, "no-analysis", false, "skip the LLM analysis in tool reports")
}

func runServeMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer backend.Close(context.Background())

	c := openCache(ctx, cfg.Cache)
	if c != nil {
		defer c.Close()
	}

	analyst, err := newAnalyst(ctx, serveNoAnalysis)
	if err != nil {
		return err
	}

	addr := serveMetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		srv := startMetricsServer(addr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	server := mcp.NewServer(newExecutor(backend, c), insight.NewAssembler(analyst), Version)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("MCP server stopped")
	return nil
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()
	logger.WithField("addr", addr).Info("Serving metrics at /metrics")
	return srv
}
