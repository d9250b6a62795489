// Package status derives the user-facing payment status from committed
// state. It is read-only and never fails for any combination of inputs.
package status

import (
	"math"
	"time"

	"bank-transfer-reconciler/internal/models"
)

// Status is the label shown on the dashboard
type Status string

const (
	StatusAdmin               Status = "Admin"
	StatusNoSubscription      Status = "No Subscription"
	StatusExpired             Status = "Expired"
	StatusPendingVerification Status = "Pending Verification"
	StatusActive              Status = "Active"
	StatusPendingPayment      Status = "Pending Payment"
)

// RenewalWarningDays is how close to expiry a paid record asks for payment.
const RenewalWarningDays = 7

const day = 24 * time.Hour

// Result is the derived status of one user
type Result struct {
	NeedsPayment   bool       `json:"needs_payment"`
	Status         Status     `json:"status"`
	DaysRemaining  int        `json:"days_remaining"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

// DeriveStatus applies the rules in priority order: admin, no subscription,
// expired, pending verification, then active or pending payment. Any argument
// may be nil.
func DeriveStatus(user *models.User, record *models.BillingRecord, latest *models.Payment, now time.Time) Result {
	if user.IsAdmin() {
		return Result{Status: StatusAdmin}
	}
	if record == nil {
		return Result{NeedsPayment: true, Status: StatusNoSubscription}
	}

	expires := record.ExpirationDate
	if expires != nil && expires.Before(now) {
		return Result{NeedsPayment: true, Status: StatusExpired, ExpirationDate: expires}
	}

	days := daysRemaining(expires, now)
	if latest != nil && !latest.Verified {
		return Result{Status: StatusPendingVerification, DaysRemaining: days, ExpirationDate: expires}
	}

	paid := record.PaymentState == models.StatePaid
	result := Result{
		NeedsPayment:   !paid || days < RenewalWarningDays,
		Status:         StatusPendingPayment,
		DaysRemaining:  days,
		ExpirationDate: expires,
	}
	if paid {
		result.Status = StatusActive
	}
	return result
}

// daysRemaining rounds up to whole days. A missing expiration counts as zero.
func daysRemaining(expires *time.Time, now time.Time) int {
	if expires == nil {
		return 0
	}
	return int(math.Ceil(expires.Sub(now).Hours() / day.Hours()))
}
