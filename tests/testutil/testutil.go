// Package testutil provides test helpers for the POS backend: a sqlmock GORM
// handle, HTTP envelope helpers, in-memory repositories with optimistic
// locking, and an event recorder.
package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cassa/backend/internal/domain/order"
	"github.com/cassa/backend/internal/domain/shared/valueobject"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockDB wraps a GORM database with sqlmock for testing.
type MockDB struct {
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	SqlDB *sql.DB
}

// NewMockDB creates a postgres-dialect GORM handle backed by sqlmock.
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err, "Failed to create sqlmock")

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err, "Failed to open GORM connection")

	t.Cleanup(func() { _ = mockDB.Close() })
	return &MockDB{DB: gormDB, Mock: mock, SqlDB: mockDB}
}

// ExpectationsWereMet verifies that all expectations were met.
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	require.NoError(t, m.Mock.ExpectationsWereMet(), "Unmet database expectations")
}

// Money parses a decimal amount, failing the test on error.
func Money(t *testing.T, s string) valueobject.Money {
	t.Helper()
	m, err := valueobject.ParseMoney(s)
	require.NoError(t, err)
	return m
}

// Line is a shorthand for an order line input.
func Line(name, unitPrice string, qty int) order.LineInput {
	return order.LineInput{
		ProductName: name,
		UnitPrice:   valueobject.MustParseMoney(unitPrice),
		Quantity:    qty,
	}
}

// NewDeliveredOrder builds an order that can take payments.
func NewDeliveredOrder(t *testing.T, number, table string, lines ...order.LineInput) *order.Order {
	t.Helper()
	o, err := order.NewOrder(number, table, lines)
	require.NoError(t, err)
	o.MarkDelivered(time.Now())
	o.ClearDomainEvents()
	return o
}

// WaitForCondition polls condition until it holds or timeout elapses.
func WaitForCondition(t *testing.T, condition func() bool, timeout, interval time.Duration) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}
	return condition()
}

// AssertNever verifies a condition never becomes true within the duration.
func AssertNever(t *testing.T, condition func() bool, duration, interval time.Duration, msgAndArgs ...interface{}) {
	t.Helper()

	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if condition() {
			t.Fatalf("Condition unexpectedly became true: %v", msgAndArgs)
		}
		time.Sleep(interval)
	}
}
