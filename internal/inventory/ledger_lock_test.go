package inventory

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"storefront/internal/apperr"
)

// newMockLedger wires the ledger to sqlmock through the postgres dialector so
// the generated SQL, including the row lock, can be asserted.
func newMockLedger(t *testing.T) (*Ledger, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	return NewLedger(gormDB, zap.NewNop()), mock, mockDB
}

func sizeStockRows(id uint, size string, qty int64) *sqlmock.Rows {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{"id", "created_at", "updated_at", "product_id", "size", "quantity"}).
		AddRow(id, now, now, 7, size, qty)
}

func TestLedger_ReserveLocksSizeRow(t *testing.T) {
	t.Run("locks, checks and decrements", func(t *testing.T) {
		ledger, mock, mockDB := newMockLedger(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT "size" FROM "size_stocks"`).
			WillReturnRows(sqlmock.NewRows([]string{"size"}).AddRow("40").AddRow("41"))
		mock.ExpectQuery(`SELECT \* FROM "size_stocks" WHERE .* FOR UPDATE`).
			WillReturnRows(sizeStockRows(2, "41", 5))
		mock.ExpectExec(`UPDATE "size_stocks" SET .*quantity >= `).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := ledger.Reserve(context.Background(), Request{ProductID: 7, Size: "41", Quantity: 2})

		require.NoError(t, err)
		assert.EqualValues(t, 3, res.Remaining)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient stock rolls back without writing", func(t *testing.T) {
		ledger, mock, mockDB := newMockLedger(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT "size" FROM "size_stocks"`).
			WillReturnRows(sqlmock.NewRows([]string{"size"}).AddRow("40").AddRow("41"))
		mock.ExpectQuery(`SELECT \* FROM "size_stocks" WHERE .* FOR UPDATE`).
			WillReturnRows(sizeStockRows(1, "40", 0))
		mock.ExpectRollback()

		_, err := ledger.Reserve(context.Background(), Request{ProductID: 7, Size: "40", Quantity: 1})

		var stockErr *apperr.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error is wrapped and rolled back", func(t *testing.T) {
		ledger, mock, mockDB := newMockLedger(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT "size" FROM "size_stocks"`).
			WillReturnError(assert.AnError)
		mock.ExpectRollback()

		_, err := ledger.Reserve(context.Background(), Request{ProductID: 7, Size: "41", Quantity: 1})

		require.ErrorIs(t, err, assert.AnError)
		assert.Contains(t, err.Error(), "list sizes")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
