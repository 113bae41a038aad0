package inventory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storefront/internal/apperr"
	"storefront/internal/model"
	"storefront/internal/telemetry"
	"storefront/internal/telemetry/telemetrytest"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.Category{}, &model.Product{}, &model.SizeStock{}))
	return db
}

func seedSneaker(t *testing.T, db *gorm.DB) model.Product {
	t.Helper()
	p := model.Product{
		Name:  "Sneaker",
		Price: decimal.RequireFromString("59.90"),
		SizeStocks: []model.SizeStock{
			{Size: "40", Quantity: 0},
			{Size: "41", Quantity: 5},
		},
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

func quantityOf(t *testing.T, db *gorm.DB, productID uint, size string) int64 {
	t.Helper()
	var row model.SizeStock
	require.NoError(t, db.Where("product_id = ? AND size = ?", productID, size).Take(&row).Error)
	return row.Quantity
}

func TestLedger_ReserveBySize(t *testing.T) {
	ctx := context.Background()

	t.Run("sold out size reports zero available", func(t *testing.T) {
		db := newTestDB(t)
		p := seedSneaker(t, db)
		ledger := NewLedger(db, zap.NewNop())

		_, err := ledger.Reserve(ctx, Request{ProductID: p.ID, Size: "40", Quantity: 1})

		var stockErr *apperr.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, "40", stockErr.Size)
		assert.EqualValues(t, 0, stockErr.Available)
		assert.EqualValues(t, 0, quantityOf(t, db, p.ID, "40"))
	})

	t.Run("decrements the requested size only", func(t *testing.T) {
		db := newTestDB(t)
		p := seedSneaker(t, db)
		ledger := NewLedger(db, zap.NewNop())

		res, err := ledger.Reserve(ctx, Request{ProductID: p.ID, Size: "41", Quantity: 2})

		require.NoError(t, err)
		assert.EqualValues(t, 3, res.Remaining)
		assert.EqualValues(t, 3, quantityOf(t, db, p.ID, "41"))
		assert.EqualValues(t, 0, quantityOf(t, db, p.ID, "40"))
	})

	t.Run("more than available", func(t *testing.T) {
		db := newTestDB(t)
		p := seedSneaker(t, db)
		ledger := NewLedger(db, zap.NewNop())

		_, err := ledger.Reserve(ctx, Request{ProductID: p.ID, Size: "41", Quantity: 6})

		var stockErr *apperr.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.EqualValues(t, 5, stockErr.Available)
		assert.Equal(t, "Insufficient stock for size 41. Only 5 available.", stockErr.Error())
		assert.EqualValues(t, 5, quantityOf(t, db, p.ID, "41"))
	})

	t.Run("unknown size lists the valid ones", func(t *testing.T) {
		db := newTestDB(t)
		p := seedSneaker(t, db)
		ledger := NewLedger(db, zap.NewNop())

		_, err := ledger.Reserve(ctx, Request{ProductID: p.ID, Size: "45", Quantity: 1})

		var sizeErr *apperr.SizeUnavailableError
		require.ErrorAs(t, err, &sizeErr)
		assert.Equal(t, "45", sizeErr.Requested)
		assert.Equal(t, []string{"40", "41"}, sizeErr.Available)
	})

	t.Run("missing size", func(t *testing.T) {
		db := newTestDB(t)
		p := seedSneaker(t, db)
		ledger := NewLedger(db, zap.NewNop())

		_, err := ledger.Reserve(ctx, Request{ProductID: p.ID, Size: "  ", Quantity: 1})

		var valErr *apperr.ValidationError
		require.ErrorAs(t, err, &valErr)
		assert.Equal(t, "size required", valErr.Message)
		assert.Contains(t, valErr.Fields, "product_size")
	})

	t.Run("zero quantity", func(t *testing.T) {
		db := newTestDB(t)
		p := seedSneaker(t, db)
		ledger := NewLedger(db, zap.NewNop())

		_, err := ledger.Reserve(ctx, Request{ProductID: p.ID, Size: "41", Quantity: 0})

		var valErr *apperr.ValidationError
		require.ErrorAs(t, err, &valErr)
		assert.EqualValues(t, 5, quantityOf(t, db, p.ID, "41"))
	})
}

func TestLedger_ReserveLegacyStock(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	p := model.Product{Name: "Cap", Price: decimal.NewFromInt(10), Stock: 3}
	require.NoError(t, db.Create(&p).Error)
	metrics, rec := telemetrytest.NewMetrics(t)
	ledger := NewLedger(db, zap.NewNop(), WithMetrics(metrics))

	res, err := ledger.Reserve(ctx, Request{ProductID: p.ID, Size: "ignored", Quantity: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.Remaining)
	assert.Empty(t, res.Size)

	_, err = ledger.Reserve(ctx, Request{ProductID: p.ID, Quantity: 2})
	var stockErr *apperr.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.EqualValues(t, 1, stockErr.Available)
	assert.Equal(t, "Insufficient stock. Only 1 available.", stockErr.Error())

	var reloaded model.Product
	require.NoError(t, db.First(&reloaded, p.ID).Error)
	assert.EqualValues(t, 1, reloaded.Stock)

	assert.EqualValues(t, 1, rec.Count(telemetry.MetricReservations, "outcome", telemetry.OutcomeReserved))
	assert.EqualValues(t, 1, rec.Count(telemetry.MetricReservations, "outcome", telemetry.OutcomeRejected))
}

func TestLedger_ReserveUnknownProduct(t *testing.T) {
	ledger := NewLedger(newTestDB(t), zap.NewNop())

	_, err := ledger.Reserve(context.Background(), Request{ProductID: 999, Quantity: 1})

	var nf *apperr.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "product", nf.Resource)
}

func TestLedger_ConcurrentReservesNeverOversell(t *testing.T) {
	db := newTestDB(t)
	p := seedSneaker(t, db)
	ledger := NewLedger(db, zap.NewNop())

	const buyers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Reserve(context.Background(), Request{ProductID: p.ID, Size: "41", Quantity: 1})
			mu.Lock()
			defer mu.Unlock()
			var stockErr *apperr.InsufficientStockError
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorAs(t, err, &stockErr):
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, buyers-5, rejected)
	assert.EqualValues(t, 0, quantityOf(t, db, p.ID, "41"))
}

func TestLedger_ReserveTxRollsBackWithCaller(t *testing.T) {
	db := newTestDB(t)
	p := seedSneaker(t, db)
	ledger := NewLedger(db, zap.NewNop())

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := ledger.ReserveTx(context.Background(), tx, Request{ProductID: p.ID, Size: "41", Quantity: 3})
		require.NoError(t, err)
		return assert.AnError
	})

	require.ErrorIs(t, err, assert.AnError)
	assert.EqualValues(t, 5, quantityOf(t, db, p.ID, "41"))
}

func TestLedger_Release(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	p := seedSneaker(t, db)
	ledger := NewLedger(db, zap.NewNop())

	_, err := ledger.Reserve(ctx, Request{ProductID: p.ID, Size: "41", Quantity: 4})
	require.NoError(t, err)

	res, err := ledger.Release(ctx, Request{ProductID: p.ID, Size: "41", Quantity: 4})
	require.NoError(t, err)
	assert.EqualValues(t, 5, res.Remaining)
	assert.EqualValues(t, 5, quantityOf(t, db, p.ID, "41"))

	_, err = ledger.Release(ctx, Request{ProductID: p.ID, Size: "39", Quantity: 1})
	var sizeErr *apperr.SizeUnavailableError
	require.ErrorAs(t, err, &sizeErr)
}
