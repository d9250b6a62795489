// Package transition commits matched payments and advances billing records
// through their payment state machine:
//
//	NotPaid --commit--> Paid
//	Paid    --time passes ExpirationDate--> Expired (derived on read)
//	Expired --commit--> Paid
//
// Every commit runs under a per-record lock and inside one store transaction
// that also appends the notification intents for the outbox.
package transition

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"bank-transfer-reconciler/internal/lock"
	"bank-transfer-reconciler/internal/matcher"
	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/internal/store"
	"bank-transfer-reconciler/pkg/errors"
	"bank-transfer-reconciler/pkg/logger"
)

// Config holds engine options
type Config struct {
	Now    func() time.Time
	Logger logger.Logger
}

// Engine applies state transitions to billing records.
type Engine struct {
	repo   store.Repository
	locker lock.Locker
	now    func() time.Time
	codes  func(models.BillingKind) (string, error)
	logger logger.Logger
}

// NewEngine creates a state transition engine. A nil locker falls back to an
// in-process lock.
func NewEngine(repo store.Repository, locker lock.Locker, config *Config) *Engine {
	if config == nil {
		config = &Config{}
	}
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		repo:   repo,
		locker: locker,
		now:    now,
		codes:  GenerateCode,
		logger: logger.OrGlobal(config.Logger).WithComponent("transition"),
	}
}

// CommitResult describes one applied commit
type CommitResult struct {
	Payment  *models.Payment
	Record   *models.BillingRecord
	Intents  []*models.NotificationIntent
	Advanced bool
}

// Commit applies a matched candidate as a payment. Statement payments are
// verified and move the record to Paid with a 30 day expiry; receipt payments
// are stored unverified and leave the record untouched until ConfirmPayment.
//
// A reference that is already recorded for the record yields a duplicate
// error and changes nothing. A record that is Paid and not yet expired is
// not outstanding and yields a not found error.
func (e *Engine) Commit(ctx context.Context, match *matcher.MatchResult, source models.PaymentSource) (*CommitResult, error) {
	if err := e.checkCommittable(match, source); err != nil {
		return nil, err
	}

	recordID := match.Record.ID
	unlock, err := e.locker.Lock(ctx, lock.RecordKey(recordID))
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeLockFailed, "lock_billing_record", err).
			WithContext("record_id", recordID)
	}
	defer unlock()

	now := e.now()
	candidate := match.Candidate
	reference := match.Reference
	if reference == "" {
		reference = candidate.BankReference()
	}

	var result *CommitResult
	err = e.repo.WithinTx(ctx, func(tx store.Repository) error {
		record, err := tx.GetBillingRecord(ctx, recordID)
		if err != nil {
			return err
		}
		if _, err := tx.FindPaymentByReference(ctx, record.ID, reference); err == nil {
			return store.ErrDuplicateReference
		} else if !stderrors.Is(err, store.ErrNotFound) {
			return err
		}
		if record.EffectiveState(now) == models.StatePaid {
			return errors.NotFoundError(errors.CodeCodeNotFound, record.Code, nil).
				WithContext("paid_until", record.ExpirationDate)
		}

		sender := candidate.SenderName
		if sender == "" {
			sender = models.UnknownSender
		}
		payment := &models.Payment{
			BillingRecordID: record.ID,
			Amount:          *candidate.Amount,
			TransactionDate: candidate.TransactionDate(now),
			BankReference:   reference,
			SenderName:      sender,
			Source:          source,
			Verified:        source.Verified(),
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}

		advanced := false
		if source == models.SourceStatement {
			record, err = markPaid(ctx, tx, record, payment.TransactionDate)
			if err != nil {
				return err
			}
			advanced = true
		}

		event := EventPaymentReceived
		if !payment.Verified {
			event = EventReceiptSubmitted
		}
		intents, err := e.enqueue(ctx, tx, event, record, payment)
		if err != nil {
			return err
		}

		result = &CommitResult{Payment: payment, Record: record, Intents: intents, Advanced: advanced}
		return nil
	})
	if err != nil {
		return nil, e.classify(err, match.Record.Code, reference)
	}

	e.logger.WithFields(logger.Fields{
		"record":    result.Record.Code,
		"payment":   result.Payment.ID,
		"reference": reference,
		"source":    source,
		"advanced":  result.Advanced,
	}).Info("Payment committed")
	return result, nil
}

// ConfirmPayment verifies an unverified receipt payment and advances its
// record to Paid from the payment's transaction date. Confirming a verified
// payment is a no-op and returns Advanced false.
func (e *Engine) ConfirmPayment(ctx context.Context, paymentID uint) (*CommitResult, error) {
	payment, err := e.repo.GetPayment(ctx, paymentID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil, errors.NotFoundError(errors.CodePaymentNotFound, fmt.Sprint(paymentID), err)
		}
		return nil, errors.PersistenceError(errors.CodeReadFailed, "get_payment", err)
	}

	unlock, err := e.locker.Lock(ctx, lock.RecordKey(payment.BillingRecordID))
	if err != nil {
		return nil, errors.PersistenceError(errors.CodeLockFailed, "lock_billing_record", err).
			WithContext("record_id", payment.BillingRecordID)
	}
	defer unlock()

	result := &CommitResult{Payment: payment}
	err = e.repo.WithinTx(ctx, func(tx store.Repository) error {
		flipped, err := tx.MarkPaymentVerified(ctx, paymentID)
		if err != nil {
			return err
		}
		record, err := tx.GetBillingRecord(ctx, payment.BillingRecordID)
		if err != nil {
			return err
		}
		result.Record = record
		if !flipped {
			return nil
		}

		payment.Verified = true
		record, err = markPaid(ctx, tx, record, payment.TransactionDate)
		if err != nil {
			return err
		}
		intents, err := e.enqueue(ctx, tx, EventPaymentConfirmed, record, payment)
		if err != nil {
			return err
		}

		result.Record = record
		result.Intents = intents
		result.Advanced = true
		return nil
	})
	if err != nil {
		return nil, e.classify(err, "", payment.BankReference)
	}

	if result.Advanced {
		e.logger.WithFields(logger.Fields{
			"record":  result.Record.Code,
			"payment": payment.ID,
		}).Info("Receipt payment confirmed")
	}
	return result, nil
}

func (e *Engine) checkCommittable(match *matcher.MatchResult, source models.PaymentSource) error {
	if !source.IsValid() {
		return errors.ValidationError(errors.CodeInvalidArgument, "source", source, nil)
	}
	if match == nil || !match.IsMatched() || match.Record == nil {
		return errors.ValidationError(errors.CodeInvalidArgument, "match", nil, nil).
			WithSuggestion("only matched candidates can be committed")
	}
	amount := match.Candidate.Amount
	if amount == nil {
		return errors.ValidationError(errors.CodeMissingField, "amount", nil, nil)
	}
	if amount.LessThan(source.MinAmount()) {
		return errors.ValidationError(errors.CodeBelowThreshold, "amount", amount.String(), nil).
			WithContext("minimum", source.MinAmount().String())
	}
	return nil
}

// markPaid moves the record to Paid, conditioned on the version read in the
// same transaction.
func markPaid(ctx context.Context, tx store.Repository, record *models.BillingRecord, paidAt time.Time) (*models.BillingRecord, error) {
	expires := paidAt.Add(models.PaidPeriod)
	return tx.UpdateBillingRecordState(ctx, record.ID, record.Version, store.StateUpdate{
		State:          models.StatePaid,
		PaymentDate:    &paidAt,
		ExpirationDate: &expires,
	})
}

func (e *Engine) classify(err error, code, reference string) error {
	if rerr, ok := errors.AsReconcilerError(err); ok {
		return rerr
	}
	switch {
	case stderrors.Is(err, store.ErrDuplicateReference):
		return errors.DuplicateError(code, reference)
	case stderrors.Is(err, store.ErrConflict):
		return errors.PersistenceError(errors.CodeStateConflict, "update_billing_record", err)
	case stderrors.Is(err, store.ErrNotFound):
		return errors.NotFoundError(errors.CodeRecordNotFound, code, err)
	default:
		return errors.PersistenceError(errors.CodeWriteFailed, "commit_payment", err)
	}
}
