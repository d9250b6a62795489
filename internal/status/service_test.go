package status

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/internal/store"
	"bank-transfer-reconciler/internal/store/storetest"
	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

func TestServiceForUser(t *testing.T) {
	repo, _ := storetest.New(t)
	ctx := context.Background()
	service := NewService(repo, func() time.Time { return now }, logger.Discard())

	user := storetest.SeedUser(t, repo, models.RoleUser)

	got, err := service.ForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoSubscription, got.Status)

	record := storetest.SeedRecord(t, repo, user.ID, models.KindSubscription, "MOD12345678", 150)
	got, err = service.ForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingPayment, got.Status)
	assert.True(t, got.NeedsPayment)

	require.NoError(t, repo.CreatePayment(ctx, &models.Payment{
		BillingRecordID: record.ID,
		Amount:          decimal.NewFromInt(150),
		TransactionDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		BankReference:   "MOD12345678|2024-03-15",
		SenderName:      models.UnknownSender,
		Source:          models.SourceReceipt,
	}))
	got, err = service.ForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingVerification, got.Status)
	assert.False(t, got.NeedsPayment)

	paidAt := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	expires := paidAt.Add(models.PaidPeriod)
	_, err = repo.UpdateBillingRecordState(ctx, record.ID, record.Version, store.StateUpdate{
		State:          models.StatePaid,
		PaymentDate:    &paidAt,
		ExpirationDate: &expires,
	})
	require.NoError(t, err)
	require.NoError(t, repo.CreatePayment(ctx, &models.Payment{
		BillingRecordID: record.ID,
		Amount:          decimal.NewFromInt(150),
		TransactionDate: time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
		BankReference:   "Payment MOD12345678|2024-03-16",
		SenderName:      models.UnknownSender,
		Source:          models.SourceStatement,
		Verified:        true,
	}))

	got, err = service.ForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, 25, got.DaysRemaining)
	assert.False(t, got.NeedsPayment)
}

func TestServiceForUserNotFound(t *testing.T) {
	repo, _ := storetest.New(t)
	service := NewService(repo, nil, logger.Discard())

	_, err := service.ForUser(context.Background(), 4242)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}

func TestServiceForAdmin(t *testing.T) {
	repo, _ := storetest.New(t)
	service := NewService(repo, nil, logger.Discard())
	admin := storetest.SeedUser(t, repo, models.RoleAdmin)

	got, err := service.ForUser(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.Equal(t, Result{Status: StatusAdmin}, got)
}
