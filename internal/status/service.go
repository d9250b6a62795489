package status

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/internal/store"
	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

// Reader is the subset of the store the deriver reads
type Reader interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	LatestBillingRecordForUser(ctx context.Context, userID uint, kind models.BillingKind) (*models.BillingRecord, error)
	LatestPayment(ctx context.Context, recordID uint) (*models.Payment, error)
}

// Service loads a user's subscription state and derives its status
type Service struct {
	reader Reader
	now    func() time.Time
	logger logger.Logger
}

// NewService creates a status service. A nil now uses time.Now.
func NewService(reader Reader, now func() time.Time, log logger.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		reader: reader,
		now:    now,
		logger: logger.OrGlobal(log).WithComponent("status"),
	}
}

// ForUser derives the status of the user's latest subscription
func (s *Service) ForUser(ctx context.Context, userID uint) (Result, error) {
	user, err := s.reader.GetUser(ctx, userID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return Result{}, errors.NotFoundError(errors.CodeUserNotFound, fmt.Sprint(userID), err)
		}
		return Result{}, errors.PersistenceError(errors.CodeReadFailed, "get_user", err)
	}

	record, err := s.reader.LatestBillingRecordForUser(ctx, userID, models.KindSubscription)
	if err != nil && !stderrors.Is(err, store.ErrNotFound) {
		return Result{}, errors.PersistenceError(errors.CodeReadFailed, "latest_billing_record", err)
	}

	var latest *models.Payment
	if record != nil {
		latest, err = s.reader.LatestPayment(ctx, record.ID)
		if err != nil && !stderrors.Is(err, store.ErrNotFound) {
			return Result{}, errors.PersistenceError(errors.CodeReadFailed, "latest_payment", err)
		}
	}

	result := DeriveStatus(user, record, latest, s.now())
	s.logger.WithFields(logger.Fields{
		"user_id": userID,
		"status":  result.Status,
	}).Debug("Status derived")
	return result, nil
}
