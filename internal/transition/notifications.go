package transition

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"bank-transfer-reconciler/internal/models"
	"bank-transfer-reconciler/internal/store"
	"bank-transfer-reconciler/pkg/logger"
)

// Event is the state change a notification describes
type Event string

const (
	EventPaymentReceived  Event = "payment_received"
	EventReceiptSubmitted Event = "receipt_submitted"
	EventPaymentConfirmed Event = "payment_confirmed"
)

const dateFormat = "02/01/2006"

// enqueue appends one intent per reachable channel of the record owner. An
// owner with no channel leaves nothing to send, so the payment is flagged
// notified at once.
func (e *Engine) enqueue(ctx context.Context, tx store.Repository, event Event, record *models.BillingRecord, payment *models.Payment) ([]*models.NotificationIntent, error) {
	user, err := tx.GetUser(ctx, record.UserID)
	if err != nil {
		return nil, err
	}

	subject, body := compose(event, user, record, payment)
	var intents []*models.NotificationIntent
	if user.Email != "" {
		intents = append(intents, &models.NotificationIntent{
			ID:        uuid.NewString(),
			PaymentID: payment.ID,
			Channel:   models.ChannelEmail,
			Recipient: user.Email,
			Subject:   subject,
			Body:      body,
			Status:    models.IntentPending,
		})
	}
	if user.Phone != "" {
		intents = append(intents, &models.NotificationIntent{
			ID:        uuid.NewString(),
			PaymentID: payment.ID,
			Channel:   models.ChannelMessage,
			Recipient: user.Phone,
			Body:      body,
			Status:    models.IntentPending,
		})
	}

	if len(intents) == 0 {
		e.logger.WithFields(logger.Fields{
			"user":    user.ID,
			"record":  record.Code,
			"payment": payment.ID,
			"event":   event,
		}).Warn("No notification channel for user")
		if _, err := tx.MarkNotificationSentIfComplete(ctx, payment.ID); err != nil {
			return nil, err
		}
		payment.NotificationSent = true
		return nil, nil
	}

	if err := tx.CreateIntents(ctx, intents); err != nil {
		return nil, err
	}
	return intents, nil
}

func compose(event Event, user *models.User, record *models.BillingRecord, payment *models.Payment) (string, string) {
	switch event {
	case EventReceiptSubmitted:
		return fmt.Sprintf("Receipt received for %s", record.Code),
			fmt.Sprintf("Hello %s, we received your receipt of %s for %s dated %s. It will be checked against our bank statement shortly.",
				user.Name, payment.Amount.StringFixed(2), record.Code, payment.TransactionDate.Format(dateFormat))
	case EventPaymentConfirmed:
		return fmt.Sprintf("Payment confirmed for %s", record.Code),
			fmt.Sprintf("Hello %s, your payment of %s for %s is confirmed. Your %s is active until %s.",
				user.Name, payment.Amount.StringFixed(2), record.Code, record.Kind, expiry(record))
	default:
		return fmt.Sprintf("Payment received for %s", record.Code),
			fmt.Sprintf("Hello %s, we received your transfer of %s for %s. Your %s is active until %s.",
				user.Name, payment.Amount.StringFixed(2), record.Code, record.Kind, expiry(record))
	}
}

func expiry(record *models.BillingRecord) string {
	if record.ExpirationDate == nil {
		return "further notice"
	}
	return record.ExpirationDate.Format(dateFormat)
}
