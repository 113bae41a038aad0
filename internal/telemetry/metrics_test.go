package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront/internal/telemetry"
	"storefront/internal/telemetry/telemetrytest"
)

func TestMetrics_Counters(t *testing.T) {
	ctx := context.Background()
	m, rec := telemetrytest.NewMetrics(t)

	m.Reservation(ctx, telemetry.OutcomeReserved, 1)
	m.Reservation(ctx, telemetry.OutcomeReserved, 2)
	m.Reservation(ctx, telemetry.OutcomeRejected, 1)
	m.UniqueIDCollision(ctx)
	m.NotificationFailed(ctx, "order_placed")

	assert.EqualValues(t, 3, rec.Count(telemetry.MetricReservations))
	assert.EqualValues(t, 2, rec.Count(telemetry.MetricReservations, "outcome", telemetry.OutcomeReserved))
	assert.EqualValues(t, 1, rec.Count(telemetry.MetricReservations, "outcome", telemetry.OutcomeRejected, "product.id", "1"))
	assert.EqualValues(t, 1, rec.Count(telemetry.MetricUniqueIDCollisions))
	assert.EqualValues(t, 1, rec.Count(telemetry.MetricNotificationFailure, "notification", "order_placed"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *telemetry.Metrics
	assert.NotPanics(t, func() {
		m.Reservation(context.Background(), telemetry.OutcomeReserved, 1)
		m.UniqueIDCollision(context.Background())
		m.NotificationFailed(context.Background(), "order_placed")
	})

	_, err := telemetry.NewMetrics(nil)
	assert.Error(t, err)
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	mp, err := telemetry.NewMeterProvider(context.Background(), telemetry.Config{}, zap.NewNop())
	require.NoError(t, err)

	m, err := telemetry.NewMetrics(mp.Meter())
	require.NoError(t, err)
	m.UniqueIDCollision(context.Background())
	assert.NoError(t, mp.Shutdown(context.Background()))
}
