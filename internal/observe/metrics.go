// Package observe provides application-wide observability primitives for
// Hartonomous: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Hartonomous metrics.
const meterName = "github.com/AHartTN/hartonomous"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per engine ---

	// IngestDuration tracks ingest.Pipeline.Ingest latency.
	IngestDuration metric.Float64Histogram

	// QueryDuration tracks query.Engine read-path latency (FindRelated,
	// AnswerQuestion).
	QueryDuration metric.Float64Histogram

	// WalkDuration tracks walk.Engine.Walk/Stream latency.
	WalkDuration metric.Float64Histogram

	// --- Ingest counters ---

	// AtomsProcessed counts atoms resolved or created during ingestion.
	AtomsProcessed metric.Int64Counter

	// CompositionsCreated counts new compositions recorded during ingestion.
	CompositionsCreated metric.Int64Counter

	// RelationsCreated counts new relations recorded during ingestion.
	RelationsCreated metric.Int64Counter

	// --- Query/walk counters ---

	// QueriesTotal counts query engine calls. Use with attributes:
	//   attribute.String("kind", "find_related"|"answer_question"), attribute.String("status", ...)
	QueriesTotal metric.Int64Counter

	// WalksTotal counts walk engine runs. Use with attributes:
	//   attribute.String("reason", ...), attribute.String("status", ...)
	WalksTotal metric.Int64Counter

	// --- Error counters ---

	// SubstrateErrors counts substrate store errors by operation.
	SubstrateErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// everything from a single-atom lookup to a full-document ingest.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.IngestDuration, err = m.Float64Histogram("hartonomous.ingest.duration",
		metric.WithDescription("Latency of document ingestion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.QueryDuration, err = m.Float64Histogram("hartonomous.query.duration",
		metric.WithDescription("Latency of gravitational-truth query resolution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.WalkDuration, err = m.Float64Histogram("hartonomous.walk.duration",
		metric.WithDescription("Latency of stochastic walk generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Ingest counters.
	if met.AtomsProcessed, err = m.Int64Counter("hartonomous.ingest.atoms_processed",
		metric.WithDescription("Total atoms resolved or created during ingestion."),
	); err != nil {
		return nil, err
	}
	if met.CompositionsCreated, err = m.Int64Counter("hartonomous.ingest.compositions_created",
		metric.WithDescription("Total compositions created during ingestion."),
	); err != nil {
		return nil, err
	}
	if met.RelationsCreated, err = m.Int64Counter("hartonomous.ingest.relations_created",
		metric.WithDescription("Total relations created during ingestion."),
	); err != nil {
		return nil, err
	}

	// Query/walk counters.
	if met.QueriesTotal, err = m.Int64Counter("hartonomous.query.total",
		metric.WithDescription("Total query engine calls by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.WalksTotal, err = m.Int64Counter("hartonomous.walk.total",
		metric.WithDescription("Total walk engine runs by termination reason and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.SubstrateErrors, err = m.Int64Counter("hartonomous.substrate.errors",
		metric.WithDescription("Total substrate store errors by operation."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("hartonomous.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordIngest is a convenience method that records ingest counters from a
// completed ingest.Counters-shaped result.
func (m *Metrics) RecordIngest(ctx context.Context, atoms, compositions, relations int64) {
	m.AtomsProcessed.Add(ctx, atoms)
	m.CompositionsCreated.Add(ctx, compositions)
	m.RelationsCreated.Add(ctx, relations)
}

// RecordQuery is a convenience method that records a query counter increment
// with the standard attribute set.
func (m *Metrics) RecordQuery(ctx context.Context, kind, status string) {
	m.QueriesTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordWalk is a convenience method that records a walk counter increment
// with the standard attribute set.
func (m *Metrics) RecordWalk(ctx context.Context, reason, status string) {
	m.WalksTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("reason", reason),
			attribute.String("status", status),
		),
	)
}

// RecordSubstrateError is a convenience method that records a substrate
// error counter increment.
func (m *Metrics) RecordSubstrateError(ctx context.Context, operation string) {
	m.SubstrateErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("operation", operation)),
	)
}
