package metrics

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func New() (m Metrics, err error) {
	exporter, err := prometheus.New()
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("filedepot")

	if m.UploadsTotal, err = meter.Int64Counter("uploads_total", metric.WithDescription("Total number of successfully stored files")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create uploads_total counter: %w", err)
	}
	if m.UploadedBytesTotal, err = meter.Int64Counter("uploaded_bytes_total", metric.WithDescription("Total bytes stored")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create uploaded_bytes_total counter: %w", err)
	}
	if m.DownloadsTotal, err = meter.Int64Counter("downloads_total", metric.WithDescription("Total number of files served")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create downloads_total counter: %w", err)
	}
	if m.DownloadedBytesTotal, err = meter.Int64Counter("downloaded_bytes_total", metric.WithDescription("Total bytes served")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create downloaded_bytes_total counter: %w", err)
	}
	if m.FailoversTotal, err = meter.Int64Counter("failovers_total", metric.WithDescription("Total number of operations retried on the failover path")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create failovers_total counter: %w", err)
	}
	if m.ScalesTotal, err = meter.Int64Counter("scales_total", metric.WithDescription("Total number of image scale operations")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create scales_total counter: %w", err)
	}
	if m.AuditErrorsTotal, err = meter.Int64Counter("audit_errors_total", metric.WithDescription("Total number of audit record write errors")); err != nil {
		return Metrics{}, fmt.Errorf("failed to create audit_errors_total counter: %w", err)
	}

	return m, nil
}

type Metrics struct {
	UploadsTotal         metric.Int64Counter
	UploadedBytesTotal   metric.Int64Counter
	DownloadsTotal       metric.Int64Counter
	DownloadedBytesTotal metric.Int64Counter
	FailoversTotal       metric.Int64Counter
	ScalesTotal          metric.Int64Counter
	AuditErrorsTotal     metric.Int64Counter
}

func ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())
	return http.ListenAndServe(addr, mux)
}

func (m Metrics) IncrementUploadMetrics(ctx context.Context, backend string, bytes int64) {
	if m.UploadsTotal == nil || m.UploadedBytesTotal == nil {
		return
	}
	m.UploadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
	m.UploadedBytesTotal.Add(ctx, bytes, metric.WithAttributes(attribute.String("backend", backend)))
}

func (m Metrics) IncrementDownloadMetrics(ctx context.Context, backend string, bytes int64) {
	if m.DownloadsTotal == nil || m.DownloadedBytesTotal == nil {
		return
	}
	m.DownloadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("backend", backend)))
	m.DownloadedBytesTotal.Add(ctx, bytes, metric.WithAttributes(attribute.String("backend", backend)))
}

func (m Metrics) IncrementFailovers(ctx context.Context, op string) {
	if m.FailoversTotal == nil {
		return
	}
	m.FailoversTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m Metrics) IncrementScales(ctx context.Context) {
	if m.ScalesTotal == nil {
		return
	}
	m.ScalesTotal.Add(ctx, 1)
}

func (m Metrics) IncrementAuditErrors(ctx context.Context) {
	if m.AuditErrorsTotal == nil {
		return
	}
	m.AuditErrorsTotal.Add(ctx, 1)
}
