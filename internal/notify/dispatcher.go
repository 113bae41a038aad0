// Package notify delivers customer and admin notifications about orders.
// Delivery happens after commit and its failures never reach the caller's
// response path.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/telemetry"
)

const (
	KindOrderPlaced           = "order_placed"
	KindOrderPlacedAdmin      = "order_placed_admin"
	KindMultiOrderPlaced      = "multi_order_placed"
	KindMultiOrderPlacedAdmin = "multi_order_placed_admin"
	KindStatusUpdated         = "status_updated"
)

var errNoOrders = errors.New("no orders to notify")

// Dispatcher sends one notification per call.
type Dispatcher interface {
	SendOrderPlaced(ctx context.Context, order *model.Order) error
	SendOrderPlacedAdmin(ctx context.Context, order *model.Order) error
	SendMultiOrderPlaced(ctx context.Context, orders []model.Order) error
	SendMultiOrderPlacedAdmin(ctx context.Context, orders []model.Order) error
	SendStatusUpdated(ctx context.Context, order *model.Order, from, to model.OrderStatus) error
}

// Guard wraps a Dispatcher so every send is isolated: errors and panics are
// logged with the affected order ids and returned as *apperr.NotificationError,
// never propagated as panics.
type Guard struct {
	d       Dispatcher
	log     *zap.Logger
	metrics *telemetry.Metrics
}

type GuardOption func(*Guard)

func WithMetrics(m *telemetry.Metrics) GuardOption { return func(g *Guard) { g.metrics = m } }

func NewGuard(d Dispatcher, log *zap.Logger, opts ...GuardOption) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Guard{d: d, log: log.Named("notify")}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Single sends the customer and admin notifications for one order. Both are
// attempted even if the first fails.
func (g *Guard) Single(ctx context.Context, order *model.Order) {
	ids := []string{order.UniqueID}
	_ = g.deliver(ctx, KindOrderPlaced, ids, func() error { return g.d.SendOrderPlaced(ctx, order) })
	_ = g.deliver(ctx, KindOrderPlacedAdmin, ids, func() error { return g.d.SendOrderPlacedAdmin(ctx, order) })
}

// Grouped sends the combined customer and admin notifications for orders.
func (g *Guard) Grouped(ctx context.Context, orders []model.Order) {
	ids := UniqueIDs(orders)
	_ = g.deliver(ctx, KindMultiOrderPlaced, ids, func() error { return g.d.SendMultiOrderPlaced(ctx, orders) })
	_ = g.deliver(ctx, KindMultiOrderPlacedAdmin, ids, func() error { return g.d.SendMultiOrderPlacedAdmin(ctx, orders) })
}

func (g *Guard) StatusUpdated(ctx context.Context, order *model.Order, from, to model.OrderStatus) error {
	return g.deliver(ctx, KindStatusUpdated, []string{order.UniqueID}, func() error {
		return g.d.SendStatusUpdated(ctx, order, from, to)
	})
}

func (g *Guard) deliver(ctx context.Context, kind string, ids []string, send func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = g.fail(ctx, kind, ids, fmt.Errorf("panic: %v", r))
		}
	}()
	if sendErr := send(); sendErr != nil {
		return g.fail(ctx, kind, ids, sendErr)
	}
	return nil
}

func (g *Guard) fail(ctx context.Context, kind string, ids []string, cause error) error {
	nerr := &apperr.NotificationError{Kind: kind, OrderIDs: ids, Err: cause}
	g.metrics.NotificationFailed(ctx, kind)
	g.log.Error("notification failed",
		zap.String("notification", kind),
		zap.Strings("order_ids", ids),
		zap.Error(cause))
	return nerr
}

func UniqueIDs(orders []model.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.UniqueID)
	}
	return ids
}
