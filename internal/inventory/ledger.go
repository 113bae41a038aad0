// Package inventory owns the stock counters. Every decrement runs under a row
// lock on the counter it touches and is additionally guarded in SQL, so two
// checkouts can never take the same unit.
package inventory

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/telemetry"
)

// Request asks for Quantity units of Size. Size is ignored for products that
// have no size rows.
type Request struct {
	ProductID uint
	Size      string
	Quantity  int
}

// Reservation is the outcome of a successful reserve or release.
type Reservation struct {
	ProductID uint
	Size      string
	Quantity  int
	Remaining int64
}

type Ledger struct {
	db      *gorm.DB
	log     *zap.Logger
	metrics *telemetry.Metrics
}

type Option func(*Ledger)

func WithMetrics(m *telemetry.Metrics) Option { return func(l *Ledger) { l.metrics = m } }

func NewLedger(db *gorm.DB, log *zap.Logger, opts ...Option) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{db: db, log: log.Named("ledger")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reserve decrements stock in its own transaction.
func (l *Ledger) Reserve(ctx context.Context, req Request) (Reservation, error) {
	var res Reservation
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = l.ReserveTx(ctx, tx, req)
		return err
	})
	return res, err
}

// ReserveTx decrements stock inside the caller's transaction. The row lock is
// held until that transaction ends.
func (l *Ledger) ReserveTx(ctx context.Context, tx *gorm.DB, req Request) (Reservation, error) {
	res, err := l.reserveTx(ctx, tx, req)
	outcome := telemetry.OutcomeReserved
	if err != nil {
		outcome = telemetry.OutcomeRejected
	}
	l.metrics.Reservation(ctx, outcome, req.ProductID)
	return res, err
}

func (l *Ledger) reserveTx(ctx context.Context, tx *gorm.DB, req Request) (Reservation, error) {
	if req.Quantity < 1 {
		return Reservation{}, apperr.Validation("quantity", "The quantity must be at least 1.")
	}
	tx = tx.WithContext(ctx)

	sizes, err := sizesOf(tx, req.ProductID)
	if err != nil {
		return Reservation{}, err
	}
	if len(sizes) == 0 {
		return l.reserveLegacy(tx, req)
	}

	size := strings.TrimSpace(req.Size)
	if size == "" {
		return Reservation{}, apperr.ErrSizeRequired
	}

	row, err := lockSizeRow(tx, req.ProductID, size, sizes)
	if err != nil {
		return Reservation{}, err
	}
	if row.Quantity < int64(req.Quantity) {
		return Reservation{}, &apperr.InsufficientStockError{Size: size, Requested: req.Quantity, Available: row.Quantity}
	}

	// 锁之外再加一道 quantity >= n 条件，SQLite 没有行锁也不会超卖
	result := tx.Model(&model.SizeStock{}).
		Where("id = ? AND quantity >= ?", row.ID, req.Quantity).
		Update("quantity", gorm.Expr("quantity - ?", req.Quantity))
	if result.Error != nil {
		return Reservation{}, errors.Wrap(result.Error, "decrement size stock")
	}
	if result.RowsAffected != 1 {
		var current model.SizeStock
		if err := tx.Select("quantity").Take(&current, row.ID).Error; err != nil {
			return Reservation{}, errors.Wrap(err, "reload size stock")
		}
		return Reservation{}, &apperr.InsufficientStockError{Size: size, Requested: req.Quantity, Available: current.Quantity}
	}

	remaining := row.Quantity - int64(req.Quantity)
	l.log.Debug("reserved",
		zap.Uint("product_id", req.ProductID),
		zap.String("size", size),
		zap.Int("quantity", req.Quantity),
		zap.Int64("remaining", remaining))
	return Reservation{ProductID: req.ProductID, Size: size, Quantity: req.Quantity, Remaining: remaining}, nil
}

func (l *Ledger) reserveLegacy(tx *gorm.DB, req Request) (Reservation, error) {
	p, err := lockProduct(tx, req.ProductID)
	if err != nil {
		return Reservation{}, err
	}
	if p.Stock < int64(req.Quantity) {
		return Reservation{}, &apperr.InsufficientStockError{Requested: req.Quantity, Available: p.Stock}
	}

	result := tx.Model(&model.Product{}).
		Where("id = ? AND stock >= ?", p.ID, req.Quantity).
		Update("stock", gorm.Expr("stock - ?", req.Quantity))
	if result.Error != nil {
		return Reservation{}, errors.Wrap(result.Error, "decrement product stock")
	}
	if result.RowsAffected != 1 {
		var current model.Product
		if err := tx.Select("stock").Take(&current, p.ID).Error; err != nil {
			return Reservation{}, errors.Wrap(err, "reload product stock")
		}
		return Reservation{}, &apperr.InsufficientStockError{Requested: req.Quantity, Available: current.Stock}
	}

	remaining := p.Stock - int64(req.Quantity)
	l.log.Debug("reserved legacy stock",
		zap.Uint("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity),
		zap.Int64("remaining", remaining))
	return Reservation{ProductID: req.ProductID, Quantity: req.Quantity, Remaining: remaining}, nil
}

// Release puts units back in its own transaction.
func (l *Ledger) Release(ctx context.Context, req Request) (Reservation, error) {
	var res Reservation
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		res, err = l.ReleaseTx(ctx, tx, req)
		return err
	})
	return res, err
}

// ReleaseTx puts units back inside the caller's transaction.
func (l *Ledger) ReleaseTx(ctx context.Context, tx *gorm.DB, req Request) (Reservation, error) {
	if req.Quantity < 1 {
		return Reservation{}, apperr.Validation("quantity", "The quantity must be at least 1.")
	}
	tx = tx.WithContext(ctx)

	sizes, err := sizesOf(tx, req.ProductID)
	if err != nil {
		return Reservation{}, err
	}

	if len(sizes) == 0 {
		p, err := lockProduct(tx, req.ProductID)
		if err != nil {
			return Reservation{}, err
		}
		if err := tx.Model(&model.Product{}).Where("id = ?", p.ID).
			Update("stock", gorm.Expr("stock + ?", req.Quantity)).Error; err != nil {
			return Reservation{}, errors.Wrap(err, "increment product stock")
		}
		return Reservation{ProductID: p.ID, Quantity: req.Quantity, Remaining: p.Stock + int64(req.Quantity)}, nil
	}

	size := strings.TrimSpace(req.Size)
	if size == "" {
		return Reservation{}, apperr.ErrSizeRequired
	}
	row, err := lockSizeRow(tx, req.ProductID, size, sizes)
	if err != nil {
		return Reservation{}, err
	}
	if err := tx.Model(&model.SizeStock{}).Where("id = ?", row.ID).
		Update("quantity", gorm.Expr("quantity + ?", req.Quantity)).Error; err != nil {
		return Reservation{}, errors.Wrap(err, "increment size stock")
	}

	remaining := row.Quantity + int64(req.Quantity)
	l.log.Info("released",
		zap.Uint("product_id", req.ProductID),
		zap.String("size", size),
		zap.Int("quantity", req.Quantity),
		zap.Int64("remaining", remaining))
	return Reservation{ProductID: req.ProductID, Size: size, Quantity: req.Quantity, Remaining: remaining}, nil
}

func sizesOf(tx *gorm.DB, productID uint) ([]string, error) {
	var sizes []string
	if err := tx.Model(&model.SizeStock{}).
		Where("product_id = ?", productID).
		Order("id").
		Pluck("size", &sizes).Error; err != nil {
		return nil, errors.Wrap(err, "list sizes")
	}
	return sizes, nil
}

func lockSizeRow(tx *gorm.DB, productID uint, size string, sizes []string) (model.SizeStock, error) {
	var row model.SizeStock
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND size = ?", productID, size).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return row, &apperr.SizeUnavailableError{Requested: size, Available: sizes}
	}
	if err != nil {
		return row, errors.Wrap(err, "lock size stock")
	}
	return row, nil
}

func lockProduct(tx *gorm.DB, productID uint) (model.Product, error) {
	var p model.Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "stock").
		Where("id = ?", productID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return p, &apperr.NotFoundError{Resource: "product", ID: productID}
	}
	if err != nil {
		return p, errors.Wrap(err, "lock product")
	}
	return p, nil
}
