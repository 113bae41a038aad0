package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"storefront/internal/model"
)

// MessageWriter is the part of *kafka.Writer the dispatcher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewKafkaWriter 配置可靠性参数：
// - Hash + Key: 同一收件人的通知落到同一分区，保证先后顺序。
// - RequireAll: 等待 ISR 副本确认，降低消息丢失风险。
// - MaxAttempts/Timeout: 控制重试与超时边界。
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  5,
		WriteTimeout: 5 * time.Second,
		ReadTimeout:  5 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
}

// KafkaDispatcher publishes one Message per notification.
type KafkaDispatcher struct {
	w          MessageWriter
	adminEmail string
	clock      clockwork.Clock
	log        *zap.Logger
}

var _ Dispatcher = (*KafkaDispatcher)(nil)

func NewKafkaDispatcher(w MessageWriter, adminEmail string, clk clockwork.Clock, log *zap.Logger) *KafkaDispatcher {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaDispatcher{w: w, adminEmail: adminEmail, clock: clk, log: log.Named("kafka")}
}

func (d *KafkaDispatcher) Close() error { return d.w.Close() }

func (d *KafkaDispatcher) SendOrderPlaced(ctx context.Context, order *model.Order) error {
	return d.publish(ctx, d.message(KindOrderPlaced, AudienceCustomer, order.CustomerEmail, []model.Order{*order}))
}

func (d *KafkaDispatcher) SendOrderPlacedAdmin(ctx context.Context, order *model.Order) error {
	return d.publish(ctx, d.message(KindOrderPlacedAdmin, AudienceAdmin, d.adminEmail, []model.Order{*order}))
}

func (d *KafkaDispatcher) SendMultiOrderPlaced(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return errNoOrders
	}
	return d.publish(ctx, d.message(KindMultiOrderPlaced, AudienceCustomer, orders[0].CustomerEmail, orders))
}

func (d *KafkaDispatcher) SendMultiOrderPlacedAdmin(ctx context.Context, orders []model.Order) error {
	return d.publish(ctx, d.message(KindMultiOrderPlacedAdmin, AudienceAdmin, d.adminEmail, orders))
}

func (d *KafkaDispatcher) SendStatusUpdated(ctx context.Context, order *model.Order, from, to model.OrderStatus) error {
	msg := d.message(KindStatusUpdated, AudienceCustomer, order.CustomerEmail, []model.Order{*order})
	msg.FromStatus = from.String()
	msg.ToStatus = to.String()
	return d.publish(ctx, msg)
}

func (d *KafkaDispatcher) message(kind, audience, recipient string, orders []model.Order) Message {
	summaries := make([]OrderSummary, 0, len(orders))
	for i := range orders {
		summaries = append(summaries, summarize(&orders[i]))
	}
	return Message{
		EventID:    uuid.NewString(),
		Kind:       kind,
		Audience:   audience,
		Recipient:  recipient,
		Orders:     summaries,
		Total:      model.SumTotals(orders),
		OccurredAt: d.clock.Now().UTC(),
	}
}

func (d *KafkaDispatcher) publish(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return errors.Wrapf(err, "invalid %s message", msg.Kind)
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	if err := d.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Recipient),
		Value: b,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(msg.Kind)},
			{Key: "event_id", Value: []byte(msg.EventID)},
		},
	}); err != nil {
		return errors.Wrapf(err, "publish %s", msg.Kind)
	}
	d.log.Debug("notification published",
		zap.String("kind", msg.Kind),
		zap.String("event_id", msg.EventID),
		zap.Int("orders", len(msg.Orders)))
	return nil
}
