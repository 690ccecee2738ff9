// Package observe provides application-wide observability primitives for
// tradeledger: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is set up by [InitProvider] so that metrics can be scraped
// via the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tradeledger metrics.
const meterName = "github.com/MrWong99/tradeledger"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Storage latency ---

	// LoadDuration tracks namespace file load latency, including recovery.
	LoadDuration metric.Float64Histogram

	// SaveDuration tracks atomic save latency.
	SaveDuration metric.Float64Histogram

	// BackupDuration tracks backup copy plus retention latency.
	BackupDuration metric.Float64Histogram

	// --- Storage counters ---

	// Saves counts save attempts. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	Saves metric.Int64Counter

	// Backups counts backup attempts. Use with attributes:
	//   attribute.String("trigger", "leave"|"manual"), attribute.String("status", ...)
	Backups metric.Int64Counter

	// BackupsPruned counts backup files removed by retention.
	BackupsPruned metric.Int64Counter

	// CorruptFiles counts namespace files quarantined as corrupted.
	CorruptFiles metric.Int64Counter

	// Restores counts restore attempts. Use with attribute:
	//   attribute.String("status", "ok"|"empty")
	Restores metric.Int64Counter

	// SanitizedRecords counts records clamped during load.
	SanitizedRecords metric.Int64Counter

	// DroppedEntries counts map entries discarded during load because their
	// key was not a valid identifier.
	DroppedEntries metric.Int64Counter

	// --- Ledger ---

	// Captures counts capture events applied to the ledger. Use with attribute:
	//   attribute.String("status", "stored"|"cleared"|"skipped"|"error")
	Captures metric.Int64Counter

	// ActiveNamespaces is 1 while a namespace is joined and 0 otherwise.
	ActiveNamespaces metric.Int64UpDownCounter

	// --- Bridge ---

	// BridgeConnections tracks open collaborator connections.
	BridgeConnections metric.Int64UpDownCounter

	// BridgeMessages counts inbound bridge messages. Use with attributes:
	//   attribute.String("type", ...), attribute.String("status", ...)
	BridgeMessages metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for local
// file operations.
var latencyBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.LoadDuration, err = m.Float64Histogram("tradeledger.storage.load.duration",
		metric.WithDescription("Latency of loading a namespace file."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SaveDuration, err = m.Float64Histogram("tradeledger.storage.save.duration",
		metric.WithDescription("Latency of an atomic namespace save."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackupDuration, err = m.Float64Histogram("tradeledger.storage.backup.duration",
		metric.WithDescription("Latency of creating a backup including retention."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Storage counters.
	if met.Saves, err = m.Int64Counter("tradeledger.storage.saves",
		metric.WithDescription("Total save attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.Backups, err = m.Int64Counter("tradeledger.storage.backups",
		metric.WithDescription("Total backup attempts by trigger and status."),
	); err != nil {
		return nil, err
	}
	if met.BackupsPruned, err = m.Int64Counter("tradeledger.storage.backups_pruned",
		metric.WithDescription("Total backup files removed by retention."),
	); err != nil {
		return nil, err
	}
	if met.CorruptFiles, err = m.Int64Counter("tradeledger.storage.corrupt_files",
		metric.WithDescription("Total namespace files quarantined as corrupted."),
	); err != nil {
		return nil, err
	}
	if met.Restores, err = m.Int64Counter("tradeledger.storage.restores",
		metric.WithDescription("Total restore-from-backup attempts by status."),
	); err != nil {
		return nil, err
	}
	if met.SanitizedRecords, err = m.Int64Counter("tradeledger.storage.sanitized_records",
		metric.WithDescription("Total records clamped into range during load."),
	); err != nil {
		return nil, err
	}
	if met.DroppedEntries, err = m.Int64Counter("tradeledger.storage.dropped_entries",
		metric.WithDescription("Total entries dropped during load because of an unparseable key."),
	); err != nil {
		return nil, err
	}

	// Ledger.
	if met.Captures, err = m.Int64Counter("tradeledger.ledger.captures",
		metric.WithDescription("Total capture events by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ActiveNamespaces, err = m.Int64UpDownCounter("tradeledger.ledger.active_namespaces",
		metric.WithDescription("Number of currently joined namespaces."),
	); err != nil {
		return nil, err
	}

	// Bridge.
	if met.BridgeConnections, err = m.Int64UpDownCounter("tradeledger.bridge.connections",
		metric.WithDescription("Number of open collaborator connections."),
	); err != nil {
		return nil, err
	}
	if met.BridgeMessages, err = m.Int64Counter("tradeledger.bridge.messages",
		metric.WithDescription("Total inbound bridge messages by type and status."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("tradeledger.http.request.duration",
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

// Status returns "ok" when err is nil and "error" otherwise.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordSave records a save counter increment.
func (m *Metrics) RecordSave(ctx context.Context, err error) {
	m.Saves.Add(ctx, 1, metric.WithAttributes(attribute.String("status", Status(err))))
}

// RecordBackup records a backup counter increment with the standard
// attribute set.
func (m *Metrics) RecordBackup(ctx context.Context, trigger, status string) {
	m.Backups.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("trigger", trigger),
			attribute.String("status", status),
		),
	)
}

// RecordRestore records a restore counter increment.
func (m *Metrics) RecordRestore(ctx context.Context, status string) {
	m.Restores.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordCapture records a capture counter increment.
func (m *Metrics) RecordCapture(ctx context.Context, status string) {
	m.Captures.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordBridgeMessage records an inbound bridge message.
func (m *Metrics) RecordBridgeMessage(ctx context.Context, typ, status string) {
	m.BridgeMessages.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("type", typ),
			attribute.String("status", status),
		),
	)
}
