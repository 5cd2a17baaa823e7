package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mini-rpc-core/application"
	"mini-rpc-core/bootstrap"
	"mini-rpc-core/internal/logging"
	"mini-rpc-core/middleware"
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Serve the Calculator capability",
	RunE:  runProvider,
}

func init() {
	providerCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address (e.g. :9100)")
	providerCmd.Flags().Float64("rate", 0, "requests per second accepted, 0 disables limiting")
	providerCmd.Flags().Duration("handler-timeout", 0, "per request handler timeout, 0 disables it")
}

func runProvider(cmd *cobra.Command, _ []string) error {
	logger := logging.Named("provider")
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path, _ := cmd.Flags().GetString("config")
	rt, err := application.Init(ctx, path)
	if err != nil {
		return err
	}
	defer rt.Close()

	p := bootstrap.NewProvider(rt)
	if err := p.Export("Calculator", Calculator{}); err != nil {
		return err
	}

	if rate, _ := cmd.Flags().GetFloat64("rate"); rate > 0 {
		p.Server.Use(middleware.RateLimitMiddleware(rate, int(rate)+1))
	}
	if d, _ := cmd.Flags().GetDuration("handler-timeout"); d > 0 {
		p.Server.Use(middleware.TimeOutMiddleware(d))
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		m, err := middleware.NewMetrics(reg, "minirpc")
		if err != nil {
			return err
		}
		p.Server.Use(m.Middleware())
		metricsSrv := &http.Server{Addr: addr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer metricsSrv.Close()
	}

	if err := p.Start(ctx); err != nil {
		return err
	}
	logger.Info("provider started", zap.String("addr", p.Addr()))

	serveErr := make(chan error, 1)
	go func() { serveErr <- p.Wait() }()
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Stop(stopCtx, 5*time.Second)
}
