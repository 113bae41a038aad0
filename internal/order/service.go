// Package order creates orders together with their stock reservation and
// drives the status lifecycle.
package order

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/apperr"
	"storefront/internal/catalog"
	"storefront/internal/inventory"
	"storefront/internal/model"
	"storefront/internal/telemetry"
	"storefront/internal/validation"
)

const defaultIDAttempts = 5

// Correlator decides how a committed order is announced.
type Correlator interface {
	Evaluate(ctx context.Context, order *model.Order, flagged bool)
}

// StatusNotifier announces status changes. Implementations log their own
// failures; the returned error is informational.
type StatusNotifier interface {
	StatusUpdated(ctx context.Context, order *model.Order, from, to model.OrderStatus) error
}

type Service struct {
	db         *gorm.DB
	repo       *Repository
	catalog    catalog.Reader
	ledger     *inventory.Ledger
	correlator Correlator
	notifier   StatusNotifier

	ids          IDGenerator
	idAttempts   int
	clock        clockwork.Clock
	transitions  TransitionPolicy
	cancellation CancellationPolicy
	metrics      *telemetry.Metrics
	log          *zap.Logger
}

type Option func(*Service)

func WithIDGenerator(g IDGenerator) Option { return func(s *Service) { s.ids = g } }

func WithIDAttempts(n int) Option { return func(s *Service) { s.idAttempts = n } }

func WithClock(clk clockwork.Clock) Option { return func(s *Service) { s.clock = clk } }

func WithTransitionPolicy(p TransitionPolicy) Option { return func(s *Service) { s.transitions = p } }

func WithCancellationPolicy(p CancellationPolicy) Option {
	return func(s *Service) { s.cancellation = p }
}

func WithMetrics(m *telemetry.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(log *zap.Logger) Option { return func(s *Service) { s.log = log } }

func NewService(db *gorm.DB, reader catalog.Reader, ledger *inventory.Ledger, correlator Correlator, notifier StatusNotifier, opts ...Option) *Service {
	s := &Service{
		db:           db,
		repo:         NewRepository(db),
		catalog:      reader,
		ledger:       ledger,
		correlator:   correlator,
		notifier:     notifier,
		ids:          RandomIDs,
		idAttempts:   defaultIDAttempts,
		clock:        clockwork.NewRealClock(),
		transitions:  AllowAll(),
		cancellation: KeepStock(),
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("order")
	return s
}

func (s *Service) Repository() *Repository { return s.repo }

// Create validates the checkout, reserves stock and inserts the order in one
// transaction, then hands the committed order to the correlator.
func (s *Service) Create(ctx context.Context, in CreateInput) (_ *model.Order, err error) {
	ctx, span := telemetry.StartSpan(ctx, "order", "create",
		attribute.Int64("product.id", int64(in.ProductID)),
		attribute.Int("order.quantity", in.Quantity))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	in.normalize()
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	product, err := s.catalog.FindProductWithSizeStocks(ctx, in.ProductID)
	if err != nil {
		var nf *apperr.NotFoundError
		if errors.As(err, &nf) {
			return nil, apperr.Validation("product_id", "The selected product id is invalid.")
		}
		return nil, err
	}

	order := s.newOrder(in, product)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.ledger.ReserveTx(ctx, tx, inventory.Request{
			ProductID: product.ID,
			Size:      in.ProductSize,
			Quantity:  in.Quantity,
		}); err != nil {
			return err
		}
		return s.insert(tx, order)
	})
	if err != nil {
		return nil, err
	}

	// 返回提交后的库存，而不是下单前读到的快照
	if fresh, err := s.catalog.FindProductWithSizeStocks(ctx, product.ID); err == nil {
		product = fresh
	} else {
		s.log.Warn("reload product after order", zap.Uint("product_id", product.ID), zap.Error(err))
	}
	order.Product = product
	span.SetAttributes(attribute.String("order.unique_id", order.UniqueID))
	s.log.Info("order placed",
		zap.String("order_id", order.UniqueID),
		zap.Uint("product_id", order.ProductID),
		zap.String("size", order.ProductSize),
		zap.Int("quantity", order.Quantity),
		zap.Bool("batch", in.IsBatchOrder))

	s.afterCommit(func() { s.correlator.Evaluate(ctx, order, in.IsBatchOrder) }, order.UniqueID)
	return order, nil
}

func (s *Service) newOrder(in CreateInput, p *model.Product) *model.Order {
	price := in.ProductPrice
	if price.IsZero() {
		price = p.Price
	}
	return &model.Order{
		CreatedAt:        s.clock.Now().UTC(),
		BatchID:          in.BatchID,
		ProductID:        p.ID,
		ProductName:      p.Name,
		ProductPrice:     price,
		ProductImage:     s.catalog.ResolveProductImage(p),
		ProductSize:      in.ProductSize,
		ProductColor:     in.ProductColor,
		CustomerFullName: in.CustomerFullName,
		CustomerEmail:    in.CustomerEmail,
		CustomerPhone:    in.CustomerPhone,
		CustomerAddress:  in.CustomerAddress,
		CustomerCity:     in.CustomerCity,
		CustomerCountry:  in.CustomerCountry,
		Quantity:         in.Quantity,
		TotalAmount:      in.TotalAmount,
		ShippingFee:      in.ShippingFee,
		Notes:            in.Notes,
		Status:           model.StatusPending,
	}
}

// insert retries unique id collisions, each attempt behind its own savepoint
// so a failed insert does not poison the surrounding transaction.
func (s *Service) insert(tx *gorm.DB, order *model.Order) error {
	for attempt := 1; attempt <= s.idAttempts; attempt++ {
		sp := fmt.Sprintf("order_uid_%d", attempt)
		if err := tx.SavePoint(sp).Error; err != nil {
			return errors.Wrap(err, "savepoint")
		}
		order.UniqueID = s.ids.NewUniqueID()
		err := tx.Omit(clause.Associations).Create(order).Error
		if err == nil {
			return nil
		}
		if !isDuplicateKey(err) {
			return errors.Wrap(err, "insert order")
		}
		s.metrics.UniqueIDCollision(tx.Statement.Context)
		s.log.Warn("order unique id collision", zap.String("unique_id", order.UniqueID), zap.Int("attempt", attempt))
		if err := tx.RollbackTo(sp).Error; err != nil {
			return errors.Wrap(err, "rollback to savepoint")
		}
		order.ID = 0
	}
	return errors.Errorf("no free order id after %d attempts", s.idAttempts)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// 驱动未开启 TranslateError 时退回字符串匹配
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE") || strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}

// Transition moves an order to rawStatus. The row is written even when the
// status is unchanged; notification only fires on an actual change.
func (s *Service) Transition(ctx context.Context, id uint, rawStatus string, notes *string) (_ *model.Order, err error) {
	ctx, span := telemetry.StartSpan(ctx, "order", "transition",
		attribute.Int64("order.id", int64(id)),
		attribute.String("order.status", rawStatus))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	to, err := model.ParseOrderStatus(strings.ToLower(strings.TrimSpace(rawStatus)))
	if err != nil {
		return nil, apperr.Validation("status", "The selected status is invalid.")
	}

	var from model.OrderStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o model.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Take(&o, id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &apperr.NotFoundError{Resource: "order", ID: id}
		}
		if err != nil {
			return errors.Wrapf(err, "load order %d", id)
		}

		from = o.Status
		if !s.transitions.CanTransition(from, to) {
			return apperr.Validation("status", fmt.Sprintf("Cannot change status from %s to %s.", from, to))
		}
		o.Status = to
		o.StampStatus(to, s.clock.Now().UTC())
		if notes != nil {
			o.Notes = strings.TrimSpace(*notes)
		}
		if err := saveStatus(tx, &o); err != nil {
			return errors.Wrap(err, "save status")
		}
		if to == model.StatusCancelled && from != model.StatusCancelled {
			return s.cancellation.OnCancel(ctx, tx, &o)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if from != to {
		s.log.Info("order status changed",
			zap.String("order_id", order.UniqueID),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
		s.afterCommit(func() { _ = s.notifier.StatusUpdated(ctx, order, from, to) }, order.UniqueID)
	}
	return order, nil
}

// afterCommit runs a post-commit side effect. A panic there is logged and
// swallowed; the write it follows has already committed.
func (s *Service) afterCommit(fn func(), orderID string) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("post-commit hook panicked",
				zap.String("order_id", orderID),
				zap.Error(fmt.Errorf("panic: %v", r)))
		}
	}()
	fn()
}

// Lookup finds an order by its public id.
func (s *Service) Lookup(ctx context.Context, uniqueID string) (*model.Order, error) {
	return s.repo.FindByUniqueID(ctx, uniqueID)
}
