// Package metrics wires Parallax's run-level counters and histograms
// (spec.md §6 Metrics, §9 "Prometheus exporter on a configurable port") to
// OpenTelemetry, exported via the Prometheus collector registered on Go's
// default registry.
//
// Instrument-caching shape grounded on itsneelabh-gomind's
// telemetry.MetricInstruments; provider bootstrap grounded on the same
// package's otel.go (NewOTelProvider), swapping the OTLP/HTTP exporter pair
// for a single otel/exporters/prometheus pull exporter since Parallax has
// no collector to push to — just a /metrics endpoint for a local scrape.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"parallax/internal/logging"
)

// Meter names every Parallax metric instrument is created under.
const meterName = "parallax"

// Instruments-level metric names, grouped by component (spec.md §4, §8).
const (
	MetricPlannerCalls        = "parallax.planner.calls"
	MetricPlannerDuration     = "parallax.planner.duration_ms"
	MetricPlannerTokens       = "parallax.planner.tokens"
	MetricPlannerCostUSD      = "parallax.planner.cost_usd"
	MetricExecutorActions     = "parallax.executor.actions"
	MetricExecutorHeals       = "parallax.executor.self_heals"
	MetricExecutorStrategyTry = "parallax.executor.strategy_attempts"
	MetricObserverCaptures    = "parallax.observer.captures"
	MetricObserverDuration    = "parallax.observer.capture_duration_ms"
	MetricArchivistStates     = "parallax.archivist.states_written"
	MetricConstitutionFails   = "parallax.constitution.failures"
	MetricOrchestratorRetries = "parallax.orchestrator.retries"
	MetricRunOutcome          = "parallax.run.outcome"
)

// Instruments caches OTel metric instruments by name, creating each lazily
// on first use under a double-checked lock (grounded on
// itsneelabh-gomind/telemetry.MetricInstruments).
type Instruments struct {
	meter      metric.Meter
	mu         sync.RWMutex
	counters   map[string]metric.Int64Counter
	floats     map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

// NewInstruments creates an instrument cache bound to the global meter
// provider (call after Init, or the instruments will be no-ops).
func NewInstruments() *Instruments {
	return &Instruments{
		meter:      otel.Meter(meterName),
		counters:   make(map[string]metric.Int64Counter),
		floats:     make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (in *Instruments) counter(name string) (metric.Int64Counter, error) {
	in.mu.RLock()
	c, ok := in.counters[name]
	in.mu.RUnlock()
	if ok {
		return c, nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if c, ok = in.counters[name]; ok {
		return c, nil
	}
	c, err := in.meter.Int64Counter(name)
	if err != nil {
		return c, fmt.Errorf("create counter %s: %w", name, err)
	}
	in.counters[name] = c
	return c, nil
}

func (in *Instruments) floatCounter(name string) (metric.Float64Counter, error) {
	in.mu.RLock()
	c, ok := in.floats[name]
	in.mu.RUnlock()
	if ok {
		return c, nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if c, ok = in.floats[name]; ok {
		return c, nil
	}
	c, err := in.meter.Float64Counter(name)
	if err != nil {
		return c, fmt.Errorf("create float counter %s: %w", name, err)
	}
	in.floats[name] = c
	return c, nil
}

func (in *Instruments) histogram(name string) (metric.Float64Histogram, error) {
	in.mu.RLock()
	h, ok := in.histograms[name]
	in.mu.RUnlock()
	if ok {
		return h, nil
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if h, ok = in.histograms[name]; ok {
		return h, nil
	}
	h, err := in.meter.Float64Histogram(name)
	if err != nil {
		return h, fmt.Errorf("create histogram %s: %w", name, err)
	}
	in.histograms[name] = h
	return h, nil
}

// Count increments a counter metric by 1, tagged with the given attributes.
func (in *Instruments) Count(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	c, err := in.counter(name)
	if err != nil {
		logging.MetricsWarn("count %s: %v", name, err)
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Add increments a counter metric by value.
func (in *Instruments) Add(ctx context.Context, name string, value int64, attrs ...attribute.KeyValue) {
	c, err := in.counter(name)
	if err != nil {
		logging.MetricsWarn("add %s: %v", name, err)
		return
	}
	c.Add(ctx, value, metric.WithAttributes(attrs...))
}

// AddCost increments a float counter (used for cumulative USD spend).
func (in *Instruments) AddCost(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	c, err := in.floatCounter(name)
	if err != nil {
		logging.MetricsWarn("add cost %s: %v", name, err)
		return
	}
	c.Add(ctx, value, metric.WithAttributes(attrs...))
}

// Observe records a value in a distribution (durations, byte sizes).
func (in *Instruments) Observe(ctx context.Context, name string, value float64, attrs ...attribute.KeyValue) {
	h, err := in.histogram(name)
	if err != nil {
		logging.MetricsWarn("observe %s: %v", name, err)
		return
	}
	h.Record(ctx, value, metric.WithAttributes(attrs...))
}

// Provider owns the OTel SDK meter provider and the Prometheus HTTP server
// that exposes it. Init is idempotent: a second call with the same port is a
// no-op, matching spec.md §5's "metrics endpoint initializes once per
// process."
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	server        *http.Server
	Instruments   *Instruments
}

var (
	initOnce  sync.Once
	initErr   error
	singleton *Provider
)

// Init starts the Prometheus exporter on the configured port and registers
// the global OTel meter provider. Safe to call multiple times; only the
// first call takes effect.
func Init(port int) (*Provider, error) {
	initOnce.Do(func() {
		singleton, initErr = newProvider(port)
	})
	return singleton, initErr
}

func newProvider(port int) (*Provider, error) {
	if port <= 0 {
		port = 9109
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("parallax"),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		logging.Metrics("prometheus exporter listening on :%d/metrics", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.MetricsError("prometheus http server stopped: %v", err)
		}
	}()

	return &Provider{
		meterProvider: mp,
		server:        server,
		Instruments:   NewInstruments(),
	}, nil
}

// Shutdown stops the HTTP server and flushes the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.server != nil {
		if err := p.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http server: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("metrics shutdown: %v", errs)
	}
	return nil
}
