// Package observability wires up tracing, the metrics endpoint, and
// logging for serialscope
package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/serialscope/pkg/logger"
)

var (
	// Global tracer instance
	tracer trace.Tracer

	// Global meter instance
	meter metric.Meter

	// Metrics HTTP server, nil when the endpoint is disabled
	metricsServer *http.Server

	// Bound address of the metrics endpoint
	metricsAddr string

	// Initialization lock
	initOnce sync.Once
)

// Config contains all observability configuration for a capture session.
type Config struct {
	ServiceName    string
	ServiceVersion string
	LogLevel       string
	LogEncoding    string // "json", "console"
	Development    bool
	EnableTracing  bool
	SampleRate     float64
	MetricsAddr    string // "" disables the endpoint
	BatchTimeout   time.Duration
	MaxExportBatch int
	MaxQueueSize   int
}

// DefaultConfig returns a default observability configuration
func DefaultConfig() Config {
	return Config{
		ServiceName:    "serialscope",
		ServiceVersion: "dev",
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogEncoding:    getEnv("LOG_FORMAT", "json"),
		Development:    getEnv("ENVIRONMENT", "development") == "development",
		EnableTracing:  false,
		SampleRate:     0.1, // 10% sampling
		MetricsAddr:    getEnv("METRICS_ADDR", ""),
		BatchTimeout:   5 * time.Second,
		MaxExportBatch: 512,
		MaxQueueSize:   2048,
	}
}

// Init sets up logging, tracing, and the metrics endpoint. Subsequent
// calls are no-ops.
func Init(cfg Config) error {
	var err error

	initOnce.Do(func() {
		err = initLogging(cfg)
		if err != nil {
			return
		}

		if cfg.EnableTracing {
			err = initTracing(cfg)
			if err != nil {
				return
			}
		}

		err = initMetrics(cfg)
	})

	return err
}

// initLogging initializes the structured logging
func initLogging(cfg Config) error {
	err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Encoding:    cfg.LogEncoding,
		Development: cfg.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	// Make zap.L() point at the same logger
	zap.ReplaceGlobals(logger.Get())

	return nil
}

// initTracing initializes the tracing provider
func initTracing(cfg Config) error {
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	// Configure sampling
	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(cfg.BatchTimeout),
			sdktrace.WithMaxExportBatchSize(cfg.MaxExportBatch),
			sdktrace.WithMaxQueueSize(cfg.MaxQueueSize),
		),
	)

	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(cfg.ServiceName)

	return nil
}

// initMetrics sets up the meter and, when configured, the prometheus
// scrape endpoint. The listener is bound here so bind failures surface
// from Init rather than from a goroutine.
func initMetrics(cfg Config) error {
	// Prometheus carries the actual metrics; the otel meter is kept for
	// future OTLP export
	meter = otel.Meter(cfg.ServiceName)

	if cfg.MetricsAddr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("failed to bind metrics endpoint: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsAddr = ln.Addr().String()

	go func() {
		if serveErr := metricsServer.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", zap.Error(serveErr))
		}
	}()

	logger.Info("metrics endpoint listening", zap.String("addr", metricsAddr))

	return nil
}

// Tracer returns the global tracer
func Tracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer("serialscope")
	}
	return tracer
}

// Meter returns the global meter
func Meter() metric.Meter {
	return meter
}

// MetricsAddr returns the bound address of the metrics endpoint, or ""
// when the endpoint is disabled.
func MetricsAddr() string {
	return metricsAddr
}

// getEnv gets environment variable with default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Shutdown gracefully shuts down all observability components
func Shutdown(ctx context.Context) error {
	var errs []error

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown metrics endpoint: %w", err))
		}
		metricsServer = nil
		metricsAddr = ""
	}

	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer: %w", err))
		}
	}

	if err := logger.Sync(); err != nil {
		// Ignore sync errors for stdout/stderr/stdin
		// These are common in tests and when output is redirected
		// See: https://github.com/uber-go/zap/issues/328
		errStr := err.Error()
		if !strings.Contains(errStr, "bad file descriptor") &&
			!strings.Contains(errStr, "invalid argument") &&
			!strings.Contains(errStr, "/dev/stdout") &&
			!strings.Contains(errStr, "/dev/stderr") {
			errs = append(errs, fmt.Errorf("failed to sync logger: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	return nil
}
