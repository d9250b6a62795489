package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"bank-transfer-reconciler/internal/models"
)

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithinTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.Role == "" {
		user.Role = models.RoleUser
	}
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *gormRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err, "user %d", id)
	}
	return &user, nil
}

func (r *gormRepository) CreateBillingRecord(ctx context.Context, record *models.BillingRecord) error {
	record.Code = models.NormalizeCode(record.Code)
	if record.PaymentState == "" {
		record.PaymentState = models.StateNotPaid
	}
	err := r.db.WithContext(ctx).Create(record).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", ErrDuplicateCode, record.Code)
	}
	return err
}

func (r *gormRepository) GetBillingRecord(ctx context.Context, id uint) (*models.BillingRecord, error) {
	var record models.BillingRecord
	if err := r.db.WithContext(ctx).First(&record, id).Error; err != nil {
		return nil, notFound(err, "billing record %d", id)
	}
	return &record, nil
}

func (r *gormRepository) LatestBillingRecordForUser(ctx context.Context, userID uint, kind models.BillingKind) (*models.BillingRecord, error) {
	var record models.BillingRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ?", userID, kind).
		Order("created_at DESC").Order("id DESC").
		First(&record).Error
	if err != nil {
		return nil, notFound(err, "%s for user %d", kind, userID)
	}
	return &record, nil
}

func (r *gormRepository) FindOutstandingBillingRecords(ctx context.Context, filter RecordFilter) ([]*models.BillingRecord, error) {
	q := r.db.WithContext(ctx).Model(&models.BillingRecord{})
	if len(filter.Codes) > 0 {
		codes := make([]string, 0, len(filter.Codes))
		for _, c := range filter.Codes {
			codes = append(codes, models.NormalizeCode(c))
		}
		q = q.Where("code IN ?", codes)
	}
	if len(filter.States) > 0 {
		q = q.Where("payment_state IN ?", filter.States)
	}
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}

	var records []*models.BillingRecord
	err := q.Order("id").Find(&records).Error
	return records, err
}

// UpdateBillingRecordState applies update only if the record still has
// expectedVersion, bumping the version.
func (r *gormRepository) UpdateBillingRecordState(ctx context.Context, id uint, expectedVersion int, update StateUpdate) (*models.BillingRecord, error) {
	res := r.db.WithContext(ctx).Model(&models.BillingRecord{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"payment_state":   update.State,
			"payment_date":    update.PaymentDate,
			"expiration_date": update.ExpirationDate,
			"version":         gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetBillingRecord(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: billing record %d is no longer at version %d", ErrConflict, id, expectedVersion)
	}
	return r.GetBillingRecord(ctx, id)
}

// PurgeBillingRecord deletes the record together with its payments and
// their outbox intents.
func (r *gormRepository) PurgeBillingRecord(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.BillingRecord
		if err := tx.First(&record, id).Error; err != nil {
			return notFound(err, "billing record %d", id)
		}
		paymentIDs := tx.Model(&models.Payment{}).Select("id").Where("billing_record_id = ?", id)
		if err := tx.Where("payment_id IN (?)", paymentIDs).Delete(&models.NotificationIntent{}).Error; err != nil {
			return err
		}
		if err := tx.Where("billing_record_id = ?", id).Delete(&models.Payment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&record).Error
	})
}

// CreatePayment inserts the payment. The unique (record, reference) index
// makes a second insert of the same reference fail with
// ErrDuplicateReference and change nothing.
func (r *gormRepository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "billing_record_id"},
			{Name: "bank_reference"},
		},
		DoNothing: true,
	}).Create(payment)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicateReference, payment.BankReference)
		}
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateReference, payment.BankReference)
	}
	return nil
}

func (r *gormRepository) GetPayment(ctx context.Context, id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).First(&payment, id).Error; err != nil {
		return nil, notFound(err, "payment %d", id)
	}
	return &payment, nil
}

func (r *gormRepository) FindPaymentByReference(ctx context.Context, recordID uint, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("billing_record_id = ? AND bank_reference = ?", recordID, reference).
		First(&payment).Error
	if err != nil {
		return nil, notFound(err, "payment %q on record %d", reference, recordID)
	}
	return &payment, nil
}

func (r *gormRepository) ListPayments(ctx context.Context, recordIDs []uint) ([]*models.Payment, error) {
	var payments []*models.Payment
	if len(recordIDs) == 0 {
		return payments, nil
	}
	err := r.db.WithContext(ctx).
		Where("billing_record_id IN ?", recordIDs).
		Order("id").
		Find(&payments).Error
	return payments, err
}

func (r *gormRepository) LatestPayment(ctx context.Context, recordID uint) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("billing_record_id = ?", recordID).
		Order("transaction_date DESC").Order("id DESC").
		First(&payment).Error
	if err != nil {
		return nil, notFound(err, "latest payment on record %d", recordID)
	}
	return &payment, nil
}

// MarkPaymentVerified flips Verified from false to true. It reports false
// when the payment was already verified.
func (r *gormRepository) MarkPaymentVerified(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND verified = ?", id, false).
		Update("verified", true)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetPayment(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *gormRepository) CreateIntents(ctx context.Context, intents []*models.NotificationIntent) error {
	if len(intents) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&intents).Error
}

func (r *gormRepository) ListIntents(ctx context.Context, paymentID uint) ([]*models.NotificationIntent, error) {
	var intents []*models.NotificationIntent
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at").Order("id").
		Find(&intents).Error
	return intents, err
}

// ClaimIntents moves up to limit pending intents to processing. Each claim is
// a conditional update, so concurrent dispatchers never claim the same row.
func (r *gormRepository) ClaimIntents(ctx context.Context, limit int, now time.Time) ([]*models.NotificationIntent, error) {
	var pending []*models.NotificationIntent
	err := r.db.WithContext(ctx).
		Where("status = ?", models.IntentPending).
		Order("created_at").Order("id").
		Limit(limit).
		Find(&pending).Error
	if err != nil {
		return nil, err
	}

	claimed := make([]*models.NotificationIntent, 0, len(pending))
	for _, intent := range pending {
		res := r.db.WithContext(ctx).Model(&models.NotificationIntent{}).
			Where("id = ? AND status = ?", intent.ID, models.IntentPending).
			Updates(map[string]interface{}{
				"status":     models.IntentProcessing,
				"claimed_at": now,
				"attempts":   gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		intent.Status = models.IntentProcessing
		intent.ClaimedAt = &now
		intent.Attempts++
		claimed = append(claimed, intent)
	}
	return claimed, nil
}

func (r *gormRepository) MarkIntentSent(ctx context.Context, id string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.NotificationIntent{}).
		Where("id = ? AND status = ?", id, models.IntentProcessing).
		Updates(map[string]interface{}{
			"status":     models.IntentSent,
			"sent_at":    now,
			"last_error": "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: intent %s is not processing", ErrConflict, id)
	}
	return nil
}

// MarkIntentFailed returns a processing intent to pending, or marks it failed
// once it has used maxAttempts.
func (r *gormRepository) MarkIntentFailed(ctx context.Context, id string, reason string, maxAttempts int) (models.IntentStatus, error) {
	var intent models.NotificationIntent
	if err := r.db.WithContext(ctx).First(&intent, "id = ?", id).Error; err != nil {
		return "", notFound(err, "intent %s", id)
	}

	next := models.IntentPending
	if intent.Attempts >= maxAttempts {
		next = models.IntentFailed
	}

	res := r.db.WithContext(ctx).Model(&models.NotificationIntent{}).
		Where("id = ? AND status = ?", id, models.IntentProcessing).
		Updates(map[string]interface{}{
			"status":     next,
			"last_error": reason,
			"claimed_at": nil,
		})
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", fmt.Errorf("%w: intent %s is not processing", ErrConflict, id)
	}
	return next, nil
}

// ReleaseStuckIntents returns intents claimed before claimedBefore to pending.
func (r *gormRepository) ReleaseStuckIntents(ctx context.Context, claimedBefore time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.NotificationIntent{}).
		Where("status = ? AND claimed_at < ?", models.IntentProcessing, claimedBefore).
		Updates(map[string]interface{}{
			"status":     models.IntentPending,
			"claimed_at": nil,
			"last_error": "released after processing timeout",
		})
	return res.RowsAffected, res.Error
}

// MarkNotificationSentIfComplete sets Payment.NotificationSent once every
// intent of the payment is sent. It reports whether the flag was set by this
// call.
func (r *gormRepository) MarkNotificationSentIfComplete(ctx context.Context, paymentID uint) (bool, error) {
	var open int64
	err := r.db.WithContext(ctx).Model(&models.NotificationIntent{}).
		Where("payment_id = ? AND status <> ?", paymentID, models.IntentSent).
		Count(&open).Error
	if err != nil {
		return false, err
	}
	if open > 0 {
		return false, nil
	}

	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND notification_sent = ?", paymentID, false).
		Update("notification_sent", true)
	return res.RowsAffected > 0, res.Error
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
