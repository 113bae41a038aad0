// Package batch groups near-simultaneous orders from one customer into a
// single notification. Grouping is best effort: the windows are wall-clock
// heuristics, not transactional guarantees.
package batch

import (
	"context"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"storefront/internal/model"
)

// MarkerPrefix namespaces the per-customer "deferred check pending" marker.
const MarkerPrefix = "order_batch_"

func MarkerKey(email string) string {
	return MarkerPrefix + strings.ToLower(strings.TrimSpace(email))
}

// Windows are the correlation time windows.
type Windows struct {
	// Recent is how far back the synchronous decision looks.
	Recent time.Duration
	// Delay is how long a flagged order waits before the deferred check.
	Delay time.Duration
	// Confirm is how far back the deferred check looks.
	Confirm time.Duration
	// MarkerTTL bounds how long later flagged orders defer to an earlier one.
	MarkerTTL time.Duration
}

func DefaultWindows() Windows {
	return Windows{
		Recent:    10 * time.Second,
		Delay:     3 * time.Second,
		Confirm:   5 * time.Second,
		MarkerTTL: 5 * time.Second,
	}
}

// Finder loads a customer's orders created at or after since, oldest first.
type Finder interface {
	RecentByEmail(ctx context.Context, email string, since time.Time) ([]model.Order, error)
}

// Notifier sends already-isolated notifications.
type Notifier interface {
	Single(ctx context.Context, order *model.Order)
	Grouped(ctx context.Context, orders []model.Order)
}

// Marker is a TTL'd presence flag.
type Marker interface {
	Mark(ctx context.Context, key string, ttl time.Duration) error
	Seen(ctx context.Context, key string) (bool, error)
}

// Task is a deferred batch check.
type Task struct {
	CustomerEmail string `json:"customer_email"`
	OrderUniqueID string `json:"order_unique_id"`
}

// Scheduler runs a Task after delay.
type Scheduler interface {
	Schedule(ctx context.Context, delay time.Duration, task Task) error
}

type Correlator struct {
	finder    Finder
	notifier  Notifier
	marker    Marker
	scheduler Scheduler
	clock     clockwork.Clock
	windows   Windows
	log       *zap.Logger
}

type Option func(*Correlator)

func WithWindows(w Windows) Option { return func(c *Correlator) { c.windows = w } }

func WithClock(clk clockwork.Clock) Option { return func(c *Correlator) { c.clock = clk } }

func WithLogger(log *zap.Logger) Option { return func(c *Correlator) { c.log = log } }

func NewCorrelator(finder Finder, notifier Notifier, marker Marker, scheduler Scheduler, opts ...Option) *Correlator {
	c := &Correlator{
		finder:    finder,
		notifier:  notifier,
		marker:    marker,
		scheduler: scheduler,
		clock:     clockwork.NewRealClock(),
		windows:   DefaultWindows(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.Named("batch")
	return c
}

// Evaluate runs after an order has committed. Flagged orders defer to a
// single check per customer; unflagged orders are decided immediately.
func (c *Correlator) Evaluate(ctx context.Context, order *model.Order, flagged bool) {
	if !flagged {
		c.decide(ctx, order)
		return
	}

	key := MarkerKey(order.CustomerEmail)
	seen, err := c.marker.Seen(ctx, key)
	if err != nil {
		c.log.Warn("batch marker lookup failed", zap.String("order_id", order.UniqueID), zap.Error(err))
	}
	if seen {
		c.log.Debug("deferred check already pending", zap.String("order_id", order.UniqueID))
		return
	}
	if err := c.marker.Mark(ctx, key, c.windows.MarkerTTL); err != nil {
		c.log.Warn("batch marker set failed", zap.String("order_id", order.UniqueID), zap.Error(err))
	}

	task := Task{CustomerEmail: order.CustomerEmail, OrderUniqueID: order.UniqueID}
	if err := c.scheduler.Schedule(context.WithoutCancel(ctx), c.windows.Delay, task); err != nil {
		c.log.Warn("deferred batch check not scheduled, deciding now",
			zap.String("order_id", order.UniqueID), zap.Error(err))
		c.decide(ctx, order)
	}
}

// decide is the synchronous grouping decision over the Recent window.
func (c *Correlator) decide(ctx context.Context, order *model.Order) {
	since := c.clock.Now().Add(-c.windows.Recent)
	orders, err := c.finder.RecentByEmail(ctx, order.CustomerEmail, since)
	if err != nil {
		c.log.Error("recent orders lookup failed", zap.String("order_id", order.UniqueID), zap.Error(err))
		c.notifier.Single(ctx, order)
		return
	}
	if len(orders) > 1 {
		c.notifier.Grouped(ctx, orders)
		return
	}
	c.notifier.Single(ctx, order)
}

// ConfirmBatch is the deferred check. It is the Scheduler's handler.
func (c *Correlator) ConfirmBatch(ctx context.Context, task Task) {
	since := c.clock.Now().Add(-c.windows.Confirm)
	orders, err := c.finder.RecentByEmail(ctx, task.CustomerEmail, since)
	if err != nil {
		c.log.Error("deferred batch lookup failed", zap.String("order_id", task.OrderUniqueID), zap.Error(err))
		return
	}
	switch len(orders) {
	case 0:
		c.log.Warn("deferred batch check found no orders", zap.String("order_id", task.OrderUniqueID))
	case 1:
		c.notifier.Single(ctx, &orders[0])
	default:
		c.log.Info("grouping orders",
			zap.String("order_id", task.OrderUniqueID),
			zap.Int("count", len(orders)))
		c.notifier.Grouped(ctx, orders)
	}
}
