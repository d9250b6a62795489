package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Domain constants. They are fixed by the billing flow and kept as named
// constants rather than configuration.
const (
	// StatementMinAmount is the smallest amount accepted from bank statements.
	StatementMinAmount = 100
	// ReceiptMinAmount is the smallest amount accepted from receipt photos.
	ReceiptMinAmount = 50
	// PaidPeriod is how long a committed payment keeps a record paid.
	PaidPeriod = 30 * 24 * time.Hour
	// RenewalWarning is the remaining time under which a renewal is requested.
	RenewalWarning = 7 * 24 * time.Hour

	// DateLayout is the normalized candidate date format.
	DateLayout = "2006-01-02"
	// UnknownSender is used when no sender name could be extracted.
	UnknownSender = "Unknown"
)

var validate = validator.New()

// Role is the user role
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User owns billing records
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(150);not null" json:"name" validate:"required"`
	Email     string    `gorm:"type:varchar(200);uniqueIndex" json:"email" validate:"required,email"`
	Phone     string    `gorm:"type:varchar(32);default:''" json:"phone,omitempty"`
	Role      Role      `gorm:"type:varchar(16);not null;default:'user'" json:"role" validate:"oneof=user admin"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// BillingKind distinguishes subscriptions from one-off project payments
type BillingKind string

const (
	KindSubscription BillingKind = "subscription"
	KindProject      BillingKind = "project"
)

// IsValid checks if the billing kind is valid
func (k BillingKind) IsValid() bool {
	return k == KindSubscription || k == KindProject
}

// PaymentState is the stored state of a billing record
type PaymentState string

const (
	StateNotPaid PaymentState = "NotPaid"
	StatePaid    PaymentState = "Paid"
	StateExpired PaymentState = "Expired"
)

// String returns the string representation of PaymentState
func (s PaymentState) String() string {
	return string(s)
}

// IsValid checks if the payment state is valid
func (s PaymentState) IsValid() bool {
	switch s {
	case StateNotPaid, StatePaid, StateExpired:
		return true
	}
	return false
}

// BillingRecord is a subscription or project payment obligation identified by
// a unique transfer code.
type BillingRecord struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"not null;index" json:"user_id" validate:"required"`
	User            *User           `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Kind            BillingKind     `gorm:"type:varchar(16);not null;index" json:"kind" validate:"required,oneof=subscription project"`
	Code            string          `gorm:"type:varchar(32);not null;uniqueIndex" json:"code" validate:"required"`
	Price           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	PaymentState    PaymentState    `gorm:"type:varchar(16);not null;default:'NotPaid';index" json:"payment_state"`
	PaymentDate     *time.Time      `gorm:"default:null" json:"payment_date,omitempty"`
	ExpirationDate  *time.Time      `gorm:"default:null" json:"expiration_date,omitempty"`
	PaymentDeadline *time.Time      `gorm:"default:null" json:"payment_deadline,omitempty"`
	Version         int             `gorm:"not null;default:0" json:"-"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewBillingRecord creates a NotPaid record for the user
func NewBillingRecord(userID uint, kind BillingKind, code string, price decimal.Decimal, deadline *time.Time) *BillingRecord {
	return &BillingRecord{
		UserID:          userID,
		Kind:            kind,
		Code:            NormalizeCode(code),
		Price:           price,
		PaymentState:    StateNotPaid,
		PaymentDeadline: deadline,
	}
}

// Validate performs basic validation on the BillingRecord
func (b *BillingRecord) Validate() error {
	if err := validate.Struct(b); err != nil {
		return err
	}
	if b.Price.IsNegative() {
		return fmt.Errorf("price cannot be negative: %s", b.Price)
	}
	if !b.PaymentState.IsValid() {
		return fmt.Errorf("invalid payment state: %s", b.PaymentState)
	}
	return nil
}

// EffectiveState returns the state as seen at now. Expiry is derived from
// ExpirationDate and never stored.
func (b *BillingRecord) EffectiveState(now time.Time) PaymentState {
	if b.PaymentState == StatePaid && b.ExpirationDate != nil && b.ExpirationDate.Before(now) {
		return StateExpired
	}
	return b.PaymentState
}

func (b *BillingRecord) String() string {
	return fmt.Sprintf("BillingRecord{ID: %d, Code: %s, Kind: %s, State: %s}", b.ID, b.Code, b.Kind, b.PaymentState)
}

// NormalizeCode returns the canonical, upper-case form of a transfer code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// PaymentSource identifies where payment evidence came from
type PaymentSource string

const (
	SourceStatement PaymentSource = "statement"
	SourceReceipt   PaymentSource = "receipt"
)

// IsValid checks if the source is valid
func (s PaymentSource) IsValid() bool {
	return s == SourceStatement || s == SourceReceipt
}

// MinAmount returns the minimum accepted amount for the source
func (s PaymentSource) MinAmount() decimal.Decimal {
	if s == SourceReceipt {
		return decimal.NewFromInt(ReceiptMinAmount)
	}
	return decimal.NewFromInt(StatementMinAmount)
}

// Verified reports whether payments from this source are trusted without review
func (s PaymentSource) Verified() bool {
	return s == SourceStatement
}

// Payment is a committed transfer against one billing record. The pair
// (BillingRecordID, BankReference) is unique.
type Payment struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	BillingRecordID  uint            `gorm:"not null;uniqueIndex:ux_payments_record_reference,priority:1" json:"billing_record_id"`
	BillingRecord    *BillingRecord  `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Amount           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	TransactionDate  time.Time       `gorm:"not null" json:"transaction_date"`
	BankReference    string          `gorm:"type:varchar(191);not null;uniqueIndex:ux_payments_record_reference,priority:2" json:"bank_reference"`
	SenderName       string          `gorm:"type:varchar(100);not null;default:'Unknown'" json:"sender_name"`
	Source           PaymentSource   `gorm:"type:varchar(16);not null" json:"source"`
	Verified         bool            `gorm:"not null;default:false" json:"verified"`
	NotificationSent bool            `gorm:"not null;default:false" json:"notification_sent"`
	CreatedAt        time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Payment) String() string {
	return fmt.Sprintf("Payment{ID: %d, Record: %d, Amount: %s, Reference: %s, Verified: %t}",
		p.ID, p.BillingRecordID, p.Amount.String(), p.BankReference, p.Verified)
}

// NotificationChannel is the delivery channel of an outbox intent
type NotificationChannel string

const (
	ChannelEmail   NotificationChannel = "email"
	ChannelMessage NotificationChannel = "message"
)

// IntentStatus tracks an outbox intent through delivery
type IntentStatus string

const (
	IntentPending    IntentStatus = "pending"
	IntentProcessing IntentStatus = "processing"
	IntentSent       IntentStatus = "sent"
	IntentFailed     IntentStatus = "failed"
)

// NotificationIntent is an outbox row written in the same transaction as the
// payment it describes.
type NotificationIntent struct {
	ID        string              `gorm:"type:varchar(36);primaryKey" json:"id"`
	PaymentID uint                `gorm:"not null;index" json:"payment_id"`
	Payment   *Payment            `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Channel   NotificationChannel `gorm:"type:varchar(16);not null" json:"channel"`
	Recipient string              `gorm:"type:varchar(200);not null" json:"recipient"`
	Subject   string              `gorm:"type:varchar(200);default:''" json:"subject,omitempty"`
	Body      string              `gorm:"type:text" json:"body"`
	Status    IntentStatus        `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	Attempts  int                 `gorm:"not null;default:0" json:"attempts"`
	LastError string              `gorm:"type:text" json:"last_error,omitempty"`
	ClaimedAt *time.Time          `gorm:"default:null" json:"claimed_at,omitempty"`
	SentAt    *time.Time          `gorm:"default:null" json:"sent_at,omitempty"`
	CreatedAt time.Time           `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// Row is one pre-extracted transfer submitted by an operator, for example a
// spreadsheet line.
type Row struct {
	Date        string          `json:"date" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required,max=500"`
	SenderName  string          `json:"senderName,omitempty" validate:"max=200"`
}

// Validate performs basic validation on the Row
func (r *Row) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive: %s", r.Amount)
	}
	return nil
}

// TransactionCandidate is an unvalidated transaction extracted from text.
// It is never persisted.
type TransactionCandidate struct {
	Code   string           `json:"code,omitempty"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Date   string           `json:"date,omitempty"`
	// DateDefaulted is set when no date was found and Date holds the
	// extraction day.
	DateDefaulted bool   `json:"date_defaulted,omitempty"`
	SenderName    string `json:"sender_name,omitempty"`
	Description   string `json:"description,omitempty"`
	SourceLine    string `json:"source_line,omitempty"`
}

// HasCode reports whether the candidate carries a usable code
func (c *TransactionCandidate) HasCode() bool {
	return strings.TrimSpace(c.Code) != ""
}

// HasAmount reports whether the candidate carries an amount
func (c *TransactionCandidate) HasAmount() bool {
	return c.Amount != nil
}

// BankReference is the dedup key of the transfer. The date keeps monthly
// renewals with the same memo distinct. A defaulted date is left out so the
// same document yields the same reference on any day.
func (c *TransactionCandidate) BankReference() string {
	desc := strings.TrimSpace(c.Description)
	if desc == "" {
		desc = NormalizeCode(c.Code)
	}
	if c.Date == "" || c.DateDefaulted {
		return desc
	}
	return desc + "|" + c.Date
}

// TransactionDate parses the normalized date, falling back to fallback.
func (c *TransactionCandidate) TransactionDate(fallback time.Time) time.Time {
	if t, err := time.Parse(DateLayout, c.Date); err == nil {
		return t
	}
	return fallback
}

func (c *TransactionCandidate) String() string {
	amount := "<nil>"
	if c.Amount != nil {
		amount = c.Amount.String()
	}
	return fmt.Sprintf("Candidate{Code: %s, Amount: %s, Date: %s, Sender: %s}", c.Code, amount, c.Date, c.SenderName)
}
