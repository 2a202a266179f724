package components

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/plans/pkg/metrics"
	"github.com/papercomputeco/plans/pkg/planservice"
	"github.com/papercomputeco/plans/pkg/storage"
	"github.com/papercomputeco/plans/pkg/validate"
)

// NewRegistry returns a registry with the plans metrics plus the Go runtime
// and process collectors.
func NewRegistry() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.New(reg)
}

// NewPlanService builds the plan service over store, publishing to stream.
func NewPlanService(store storage.Driver, stream *Stream, m *metrics.Metrics, log *slog.Logger) (*planservice.Service, error) {
	validator, err := validate.New()
	if err != nil {
		return nil, err
	}
	return planservice.New(&planservice.Config{
		Store:     store,
		Publisher: stream.Publisher,
		Topics:    stream.Topics,
		Validator: validator,
		Metrics:   m,
		Logger:    log,
	})
}

// NewMetricsApp serves /metrics for processes without the API server.
func NewMetricsApp(gatherer prometheus.Gatherer) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return app
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// Wait blocks until ctx is done or a background service fails. A clean
// shutdown returns nil.
func Wait(ctx context.Context, log *slog.Logger, errChan <-chan error) error {
	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		log.Info("received signal, shutting down")
		return nil
	}
}
