// Package observability exports cycle metrics over Prometheus and spans
// over OTLP. Everything is optional: a disabled collector is a cheap no-op.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"sprout/internal/evolution"
	"sprout/internal/logging"
	"sprout/internal/skilltree"
)

// Metrics manages the cycle-level instruments and the Prometheus scrape
// endpoint.
type Metrics struct {
	logger logging.Logger
	meter  metric.Meter

	cycles        metric.Int64Counter
	cycleDuration metric.Float64Histogram
	successes     metric.Int64Counter
	failures      metric.Int64Counter
	exhausted     metric.Int64Counter
	unlocks       metric.Int64Counter
	discovered    metric.Int64Counter
	indexValue    metric.Float64Gauge
	skillLevels   metric.Int64Gauge

	server *http.Server
}

// NewMetrics builds the instrument set and, when addr is non-empty, starts
// the scrape server. Pass an empty addr to collect without serving.
func NewMetrics(addr string, logger logging.Logger) (*Metrics, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter("sprout")

	m := &Metrics{logger: logging.OrNop(logger), meter: meter}

	if m.cycles, err = meter.Int64Counter(
		"sprout.cycles.total",
		metric.WithDescription("Total evolution cycles run"),
		metric.WithUnit("{cycle}"),
	); err != nil {
		return nil, fmt.Errorf("create cycles counter: %w", err)
	}

	if m.cycleDuration, err = meter.Float64Histogram(
		"sprout.cycle.duration",
		metric.WithDescription("Evolution cycle duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create cycle duration histogram: %w", err)
	}

	if m.successes, err = meter.Int64Counter(
		"sprout.attempts.success.total",
		metric.WithDescription("Successful evolution attempts"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("create success counter: %w", err)
	}

	if m.failures, err = meter.Int64Counter(
		"sprout.attempts.failure.total",
		metric.WithDescription("Failed evolution attempts"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("create failure counter: %w", err)
	}

	if m.exhausted, err = meter.Int64Counter(
		"sprout.cycles.exhausted.total",
		metric.WithDescription("Cycles with no eligible skill in either tree"),
		metric.WithUnit("{cycle}"),
	); err != nil {
		return nil, fmt.Errorf("create exhausted counter: %w", err)
	}

	if m.unlocks, err = meter.Int64Counter(
		"sprout.skills.unlocked.total",
		metric.WithDescription("Skills unlocked by the prerequisite sweep"),
		metric.WithUnit("{skill}"),
	); err != nil {
		return nil, fmt.Errorf("create unlock counter: %w", err)
	}

	if m.discovered, err = meter.Int64Counter(
		"sprout.skills.discovered.total",
		metric.WithDescription("Skills merged from discovery milestones"),
		metric.WithUnit("{skill}"),
	); err != nil {
		return nil, fmt.Errorf("create discovered counter: %w", err)
	}

	if m.indexValue, err = meter.Float64Gauge(
		"sprout.evolution.index",
		metric.WithDescription("Current evolution index (0-100)"),
	); err != nil {
		return nil, fmt.Errorf("create index gauge: %w", err)
	}

	if m.skillLevels, err = meter.Int64Gauge(
		"sprout.tree.levels",
		metric.WithDescription("Sum of skill levels per tree"),
		metric.WithUnit("{level}"),
	); err != nil {
		return nil, fmt.Errorf("create level gauge: %w", err)
	}

	if addr != "" {
		m.serve(addr)
	}
	return m, nil
}

func (m *Metrics) serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	m.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		m.logger.Info("prometheus metrics listening on %s", addr)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("prometheus server: %v", err)
		}
	}()
}

// Shutdown stops the scrape server.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.server != nil {
		return m.server.Shutdown(ctx)
	}
	return nil
}

// ObserveCycle records one completed cycle. Registered as a coordinator
// listener; a nil receiver is a no-op so wiring stays unconditional.
func (m *Metrics) ObserveCycle(result evolution.CycleResult) {
	if m == nil || m.cycles == nil {
		return
	}
	ctx := context.Background()

	stage := attribute.String("stage", string(result.Stage))
	m.cycles.Add(ctx, 1, metric.WithAttributes(stage))
	m.cycleDuration.Record(ctx, result.Duration.Seconds(), metric.WithAttributes(stage))
	m.indexValue.Record(ctx, result.Index.Value)

	if result.Exhausted {
		m.exhausted.Add(ctx, 1)
	}
	if len(result.Unlocked) > 0 {
		m.unlocks.Add(ctx, int64(len(result.Unlocked)))
	}
	if len(result.Discovered) > 0 {
		m.discovered.Add(ctx, int64(len(result.Discovered)))
	}

	if result.Selected == nil || result.Outcome == nil {
		return
	}
	attrs := metric.WithAttributes(
		stage,
		attribute.String("tree", string(result.Selected.Tree)),
		attribute.String("skill", result.Selected.SkillID),
	)
	if result.Outcome.Success {
		m.successes.Add(ctx, 1, attrs)
	} else {
		m.failures.Add(ctx, 1, attrs)
	}
}

// ObserveTreeLevels publishes the per-tree level sums. Called after every
// cycle from the snapshot, so the gauge tracks persisted state.
func (m *Metrics) ObserveTreeLevels(trees map[skilltree.TreeID]*skilltree.Graph) {
	if m == nil || m.skillLevels == nil {
		return
	}
	ctx := context.Background()
	for id, tree := range trees {
		var total int64
		for _, skill := range tree.Skills() {
			total += int64(skill.Level)
		}
		m.skillLevels.Record(ctx, total, metric.WithAttributes(attribute.String("tree", string(id))))
	}
}

// CycleTimer returns a listener-compatible wrapper that times external
// observers, so slow listeners surface in the logs instead of silently
// stretching cycles.
func (m *Metrics) CycleTimer(name string, fn evolution.CycleListener) evolution.CycleListener {
	return func(result evolution.CycleResult) {
		start := time.Now()
		fn(result)
		if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
			m.logger.Warn("cycle listener %s took %s", name, elapsed)
		}
	}
}
