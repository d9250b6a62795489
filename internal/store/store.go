// Package store is the persistence collaborator of the reconciliation engine.
//
// Repository is the only way components reach the database. It is built once
// at process start and passed explicitly; transactional work runs through
// WithinTx, which hands the callback a Repository bound to the transaction.
package store

import (
	"context"
	"errors"
	"time"

	"bank-transfer-reconciler/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a conditional update found the row in an
	// unexpected state.
	ErrConflict = errors.New("store: conflicting update")
	// ErrDuplicateReference is returned when a payment with the same bank
	// reference already exists for the billing record.
	ErrDuplicateReference = errors.New("store: duplicate bank reference")
	// ErrDuplicateCode is returned when a billing record code is taken.
	ErrDuplicateCode = errors.New("store: duplicate billing code")
)

// RecordFilter selects billing records. Empty fields do not filter.
type RecordFilter struct {
	Codes  []string
	States []models.PaymentState
	UserID uint
}

// StateUpdate is the set of billing record fields advanced by a commit
type StateUpdate struct {
	State          models.PaymentState
	PaymentDate    *time.Time
	ExpirationDate *time.Time
}

// Repository provides the store operations used by the engine.
type Repository interface {
	WithinTx(ctx context.Context, fn func(tx Repository) error) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uint) (*models.User, error)

	CreateBillingRecord(ctx context.Context, record *models.BillingRecord) error
	GetBillingRecord(ctx context.Context, id uint) (*models.BillingRecord, error)
	LatestBillingRecordForUser(ctx context.Context, userID uint, kind models.BillingKind) (*models.BillingRecord, error)
	FindOutstandingBillingRecords(ctx context.Context, filter RecordFilter) ([]*models.BillingRecord, error)
	UpdateBillingRecordState(ctx context.Context, id uint, expectedVersion int, update StateUpdate) (*models.BillingRecord, error)
	PurgeBillingRecord(ctx context.Context, id uint) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id uint) (*models.Payment, error)
	FindPaymentByReference(ctx context.Context, recordID uint, reference string) (*models.Payment, error)
	ListPayments(ctx context.Context, recordIDs []uint) ([]*models.Payment, error)
	LatestPayment(ctx context.Context, recordID uint) (*models.Payment, error)
	MarkPaymentVerified(ctx context.Context, id uint) (bool, error)

	CreateIntents(ctx context.Context, intents []*models.NotificationIntent) error
	ListIntents(ctx context.Context, paymentID uint) ([]*models.NotificationIntent, error)
	ClaimIntents(ctx context.Context, limit int, now time.Time) ([]*models.NotificationIntent, error)
	MarkIntentSent(ctx context.Context, id string, now time.Time) error
	MarkIntentFailed(ctx context.Context, id string, reason string, maxAttempts int) (models.IntentStatus, error)
	ReleaseStuckIntents(ctx context.Context, claimedBefore time.Time) (int64, error)
	MarkNotificationSentIfComplete(ctx context.Context, paymentID uint) (bool, error)
}
