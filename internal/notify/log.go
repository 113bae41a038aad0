package notify

import (
	"context"

	"go.uber.org/zap"

	"storefront/internal/model"
)

// LogDispatcher writes notifications to the log instead of a broker. Used for
// local development.
type LogDispatcher struct {
	log        *zap.Logger
	adminEmail string
}

var _ Dispatcher = (*LogDispatcher)(nil)

func NewLogDispatcher(log *zap.Logger, adminEmail string) *LogDispatcher {
	return &LogDispatcher{log: log.Named("notify"), adminEmail: adminEmail}
}

func (d *LogDispatcher) SendOrderPlaced(_ context.Context, o *model.Order) error {
	d.log.Info(KindOrderPlaced, zap.String("to", o.CustomerEmail), zap.String("order_id", o.UniqueID))
	return nil
}

func (d *LogDispatcher) SendOrderPlacedAdmin(_ context.Context, o *model.Order) error {
	d.log.Info(KindOrderPlacedAdmin, zap.String("to", d.adminEmail), zap.String("order_id", o.UniqueID))
	return nil
}

func (d *LogDispatcher) SendMultiOrderPlaced(_ context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return errNoOrders
	}
	d.log.Info(KindMultiOrderPlaced,
		zap.String("to", orders[0].CustomerEmail),
		zap.Strings("order_ids", UniqueIDs(orders)),
		zap.String("total", model.SumTotals(orders).StringFixed(2)))
	return nil
}

func (d *LogDispatcher) SendMultiOrderPlacedAdmin(_ context.Context, orders []model.Order) error {
	d.log.Info(KindMultiOrderPlacedAdmin,
		zap.String("to", d.adminEmail),
		zap.Strings("order_ids", UniqueIDs(orders)),
		zap.String("total", model.SumTotals(orders).StringFixed(2)))
	return nil
}

func (d *LogDispatcher) SendStatusUpdated(_ context.Context, o *model.Order, from, to model.OrderStatus) error {
	d.log.Info(KindStatusUpdated,
		zap.String("to", o.CustomerEmail),
		zap.String("order_id", o.UniqueID),
		zap.Stringer("from", from),
		zap.Stringer("status", to))
	return nil
}
