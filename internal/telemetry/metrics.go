package telemetry

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

const defaultMetricInterval = time.Minute

// MeterProvider owns the metric SDK provider. A disabled provider hands out
// no-op meters.
type MeterProvider struct {
	provider *sdkmetric.MeterProvider
	log      *zap.Logger
}

// NewMeterProvider installs a global OTLP/gRPC meter provider when enabled.
func NewMeterProvider(ctx context.Context, cfg Config, log *zap.Logger) (*MeterProvider, error) {
	mp := &MeterProvider{log: log}
	if !cfg.Enabled {
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create otlp metric exporter")
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create resource")
	}

	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = defaultMetricInterval
	}
	mp.provider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp.provider)

	log.Info("metrics enabled",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Duration("interval", interval))
	return mp, nil
}

func (mp *MeterProvider) Meter() metric.Meter {
	if mp.provider == nil {
		return noop.NewMeterProvider().Meter(TracerName)
	}
	return mp.provider.Meter(TracerName)
}

// Shutdown flushes pending data points.
func (mp *MeterProvider) Shutdown(ctx context.Context) error {
	if mp.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := mp.provider.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown meter provider")
	}
	return nil
}

// 计数器名称
const (
	MetricReservations        = "storefront.stock.reservations"
	MetricUniqueIDCollisions  = "storefront.order.unique_id_collisions"
	MetricNotificationFailure = "storefront.notification.failures"
)

// Reservation outcomes.
const (
	OutcomeReserved = "reserved"
	OutcomeRejected = "rejected"
)

// Metrics holds the business counters. A nil *Metrics records nothing, so
// components built without one need no special casing.
type Metrics struct {
	reservations   metric.Int64Counter
	idCollisions   metric.Int64Counter
	notifyFailures metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		return nil, errors.New("meter must not be nil")
	}
	var (
		m   Metrics
		err error
	)
	if m.reservations, err = meter.Int64Counter(MetricReservations,
		metric.WithDescription("Stock reservation attempts by outcome."),
		metric.WithUnit("{reservation}")); err != nil {
		return nil, errors.Wrap(err, MetricReservations)
	}
	if m.idCollisions, err = meter.Int64Counter(MetricUniqueIDCollisions,
		metric.WithDescription("Order inserts retried because the unique id was taken."),
		metric.WithUnit("{collision}")); err != nil {
		return nil, errors.Wrap(err, MetricUniqueIDCollisions)
	}
	if m.notifyFailures, err = meter.Int64Counter(MetricNotificationFailure,
		metric.WithDescription("Notifications that failed or panicked."),
		metric.WithUnit("{notification}")); err != nil {
		return nil, errors.Wrap(err, MetricNotificationFailure)
	}
	return &m, nil
}

func (m *Metrics) Reservation(ctx context.Context, outcome string, productID uint) {
	if m == nil {
		return
	}
	m.reservations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int64("product.id", int64(productID))))
}

func (m *Metrics) UniqueIDCollision(ctx context.Context) {
	if m == nil {
		return
	}
	m.idCollisions.Add(ctx, 1)
}

func (m *Metrics) NotificationFailed(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.notifyFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("notification", kind)))
}
