package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/telemetry"
	"storefront/internal/telemetry/telemetrytest"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) decoded(t *testing.T) []Message {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Message, 0, len(w.msgs))
	for _, m := range w.msgs {
		var msg Message
		require.NoError(t, json.Unmarshal(m.Value, &msg))
		out = append(out, msg)
	}
	return out
}

func sampleOrder(uid string, total string) model.Order {
	return model.Order{
		UniqueID:         uid,
		ProductName:      "Sneaker",
		ProductPrice:     decimal.RequireFromString("59.90"),
		ProductSize:      "41",
		CustomerFullName: "Arta Krasniqi",
		CustomerEmail:    "arta@example.com",
		CustomerCountry:  "kosovo",
		Quantity:         1,
		TotalAmount:      decimal.RequireFromString(total),
		Status:           model.StatusPending,
	}
}

var now = time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

func TestKafkaDispatcher_Messages(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{}
	d := NewKafkaDispatcher(w, "shop@example.com", clockwork.NewFakeClockAt(now), zap.NewNop())

	o1 := sampleOrder("ORD-AAAA1111", "64.90")
	o2 := sampleOrder("ORD-BBBB2222", "35.10")

	require.NoError(t, d.SendOrderPlaced(ctx, &o1))
	require.NoError(t, d.SendMultiOrderPlacedAdmin(ctx, []model.Order{o1, o2}))
	require.NoError(t, d.SendStatusUpdated(ctx, &o1, model.StatusPending, model.StatusShipped))

	msgs := w.decoded(t)
	require.Len(t, msgs, 3)

	assert.Equal(t, KindOrderPlaced, msgs[0].Kind)
	assert.Equal(t, AudienceCustomer, msgs[0].Audience)
	assert.Equal(t, "arta@example.com", msgs[0].Recipient)
	assert.True(t, now.Equal(msgs[0].OccurredAt))
	assert.Equal(t, []byte("arta@example.com"), w.msgs[0].Key)

	assert.Equal(t, KindMultiOrderPlacedAdmin, msgs[1].Kind)
	assert.Equal(t, "shop@example.com", msgs[1].Recipient)
	require.Len(t, msgs[1].Orders, 2)
	assert.Equal(t, "100", msgs[1].Total.String())

	assert.Equal(t, "pending", msgs[2].FromStatus)
	assert.Equal(t, "shipped", msgs[2].ToStatus)
	assert.NotEqual(t, msgs[0].EventID, msgs[2].EventID)
}

func TestKafkaDispatcher_RejectsInvalidMessage(t *testing.T) {
	w := &fakeWriter{}
	d := NewKafkaDispatcher(w, "", clockwork.NewFakeClockAt(now), nil)
	o := sampleOrder("ORD-AAAA1111", "10")

	err := d.SendOrderPlacedAdmin(context.Background(), &o)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient is required")
	assert.Empty(t, w.msgs)
}

type mockDispatcher struct{ mock.Mock }

func (m *mockDispatcher) SendOrderPlaced(ctx context.Context, o *model.Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *mockDispatcher) SendOrderPlacedAdmin(ctx context.Context, o *model.Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *mockDispatcher) SendMultiOrderPlaced(ctx context.Context, orders []model.Order) error {
	return m.Called(ctx, orders).Error(0)
}

func (m *mockDispatcher) SendMultiOrderPlacedAdmin(ctx context.Context, orders []model.Order) error {
	return m.Called(ctx, orders).Error(0)
}

func (m *mockDispatcher) SendStatusUpdated(ctx context.Context, o *model.Order, from, to model.OrderStatus) error {
	return m.Called(ctx, o, from, to).Error(0)
}

func TestGuard_IsolatesFailures(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.ErrorLevel)
	d := &mockDispatcher{}
	metrics, rec := telemetrytest.NewMetrics(t)
	g := NewGuard(d, zap.New(core), WithMetrics(metrics))
	o := sampleOrder("ORD-AAAA1111", "10")

	d.On("SendOrderPlaced", ctx, &o).Return(assert.AnError)
	d.On("SendOrderPlacedAdmin", ctx, &o).Panic("smtp exploded")

	assert.NotPanics(t, func() { g.Single(ctx, &o) })
	d.AssertExpectations(t)

	require.Equal(t, 2, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "notification failed", entry.Message)
	assert.Equal(t, KindOrderPlaced, entry.ContextMap()["notification"])
	assert.Contains(t, logs.All()[1].ContextMap()["error"], "smtp exploded")

	assert.EqualValues(t, 2, rec.Count(telemetry.MetricNotificationFailure))
	assert.EqualValues(t, 1, rec.Count(telemetry.MetricNotificationFailure, "notification", KindOrderPlacedAdmin))
}

func TestGuard_StatusUpdatedReturnsNotificationError(t *testing.T) {
	ctx := context.Background()
	d := &mockDispatcher{}
	g := NewGuard(d, zap.NewNop())
	o := sampleOrder("ORD-AAAA1111", "10")
	d.On("SendStatusUpdated", ctx, &o, model.StatusPending, model.StatusShipped).Return(assert.AnError)

	err := g.StatusUpdated(ctx, &o, model.StatusPending, model.StatusShipped)

	var nerr *apperr.NotificationError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, []string{"ORD-AAAA1111"}, nerr.OrderIDs)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestGuard_GroupedSendsBoth(t *testing.T) {
	ctx := context.Background()
	d := &mockDispatcher{}
	g := NewGuard(d, zap.NewNop())
	orders := []model.Order{sampleOrder("ORD-AAAA1111", "10"), sampleOrder("ORD-BBBB2222", "20")}
	d.On("SendMultiOrderPlaced", ctx, orders).Return(nil).Once()
	d.On("SendMultiOrderPlacedAdmin", ctx, orders).Return(nil).Once()

	g.Grouped(ctx, orders)

	d.AssertExpectations(t)
}
