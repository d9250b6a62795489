// Package storetest provides an in-memory SQLite store and fixtures for tests.
package storetest

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/internal/store"
	"bank-transfer-reconciler/pkg/logger"
)

var dbSeq atomic.Int64

// New opens a migrated in-memory database private to the test.
func New(t testing.TB) (store.Repository, *gorm.DB) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	db, err := store.Open(&store.Config{Driver: store.DriverSQLite, DSN: dsn, MaxRetries: 1}, logger.Discard())
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return store.NewRepository(db), db
}

// SeedUser inserts a user with the given role.
func SeedUser(t testing.TB, repo store.Repository, role models.Role) *models.User {
	t.Helper()

	n := dbSeq.Add(1)
	user := &models.User{
		Name:  fmt.Sprintf("User %d", n),
		Email: fmt.Sprintf("user%d@example.com", n),
		Phone: fmt.Sprintf("+21260000%04d", n),
		Role:  role,
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

// SeedRecord inserts a billing record for the user.
func SeedRecord(t testing.TB, repo store.Repository, userID uint, kind models.BillingKind, code string, price int64) *models.BillingRecord {
	t.Helper()

	deadline := time.Now().Add(7 * 24 * time.Hour)
	record := models.NewBillingRecord(userID, kind, code, decimal.NewFromInt(price), &deadline)
	require.NoError(t, repo.CreateBillingRecord(context.Background(), record))
	return record
}
