package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	metricsPath       = "/metrics"
	readHeaderTimeout = 5 * time.Second
)

// newPrometheusReader returns a metric reader backed by a private registry
// and the handler that serves it.
func newPrometheusReader() (sdkmetric.Reader, http.Handler, error) {
	registry := prometheus.NewRegistry()

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return exporter, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// MetricsServer serves a Prometheus scrape endpoint.
type MetricsServer struct {
	srv  *http.Server
	addr string
}

// ServeMetrics listens on addr and serves handler at /metrics in the background.
func ServeMetrics(addr string, handler http.Handler, logger *slog.Logger) (*MetricsServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsPath, handler)

	ms := &MetricsServer{
		srv:  &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout},
		addr: listener.Addr().String(),
	}

	go func() {
		serveErr := ms.srv.Serve(listener)
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) && logger != nil {
			logger.Error("metrics server stopped", "error", serveErr)
		}
	}()

	if logger != nil {
		logger.Debug("metrics server listening", "addr", ms.addr)
	}

	return ms, nil
}

// Addr returns the bound listen address.
func (ms *MetricsServer) Addr() string {
	return ms.addr
}

// Shutdown stops the server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	err := ms.srv.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}

	return nil
}
