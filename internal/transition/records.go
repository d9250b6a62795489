package transition

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"bank-transfer-reconciler/internal/lock"
	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/internal/store"
	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

// maxCodeAttempts bounds retries after a generated code collides.
const maxCodeAttempts = 5

var (
	subscriptionSpace = big.NewInt(100000000)
	projectSpace      = big.NewInt(10000)
)

// GenerateCode returns a random transfer code for the kind: MOD and eight
// digits for subscriptions, MOD- and four digits for projects.
func GenerateCode(kind models.BillingKind) (string, error) {
	switch kind {
	case models.KindSubscription:
		n, err := rand.Int(rand.Reader, subscriptionSpace)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("MOD%08d", n.Int64()), nil
	case models.KindProject:
		n, err := rand.Int(rand.Reader, projectSpace)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("MOD-%04d", n.Int64()), nil
	}
	return "", fmt.Errorf("unknown billing kind %q", kind)
}

// OpenBillingRecord creates a NotPaid record with a fresh unique code.
func (e *Engine) OpenBillingRecord(ctx context.Context, userID uint, kind models.BillingKind, price decimal.Decimal, deadline *time.Time) (*models.BillingRecord, error) {
	if !kind.IsValid() {
		return nil, errors.ValidationError(errors.CodeInvalidArgument, "kind", kind, nil)
	}
	if price.IsNegative() {
		return nil, errors.ValidationError(errors.CodeInvalidAmount, "price", price.String(), nil)
	}
	if _, err := e.repo.GetUser(ctx, userID); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NotFoundError(errors.CodeUserNotFound, fmt.Sprint(userID), err)
		}
		return nil, errors.PersistenceError(errors.CodeReadFailed, "get_user", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := e.codes(kind)
		if err != nil {
			return nil, errors.InternalError(errors.CodeUnexpectedError, "generate_code", err)
		}

		record := models.NewBillingRecord(userID, kind, code, price, deadline)
		err = e.repo.CreateBillingRecord(ctx, record)
		if err == nil {
			e.logger.WithFields(logger.Fields{
				"record": record.Code,
				"kind":   kind,
				"user":   userID,
			}).Info("Billing record opened")
			return record, nil
		}
		if !stderrors.Is(err, store.ErrDuplicateCode) {
			return nil, errors.PersistenceError(errors.CodeWriteFailed, "create_billing_record", err)
		}
		lastErr = err
		e.logger.WithField("code", code).Debug("Generated code collided, retrying")
	}
	return nil, errors.PersistenceError(errors.CodeWriteFailed, "create_billing_record", lastErr).
		WithSuggestion("code space is crowded, retry the request")
}

// PurgeBillingRecord deletes the record with its payments and their intents.
// It holds the record lock so no commit races the delete.
func (e *Engine) PurgeBillingRecord(ctx context.Context, id uint) error {
	unlock, err := e.locker.Lock(ctx, lock.RecordKey(id))
	if err != nil {
		return errors.PersistenceError(errors.CodeLockFailed, "lock_billing_record", err).
			WithContext("record_id", id)
	}
	defer unlock()

	if err := e.repo.PurgeBillingRecord(ctx, id); err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return errors.NotFoundError(errors.CodeRecordNotFound, fmt.Sprint(id), err)
		}
		return errors.PersistenceError(errors.CodeWriteFailed, "purge_billing_record", err)
	}
	e.logger.WithField("record_id", id).Info("Billing record purged")
	return nil
}
