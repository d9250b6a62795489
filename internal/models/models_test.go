package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPaymentState_IsValid(t *testing.T) {
	tests := []struct {
		state PaymentState
		valid bool
	}{
		{StateNotPaid, true},
		{StatePaid, true},
		{StateExpired, true},
		{"Refunded", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.valid {
				t.Errorf("PaymentState.IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestBillingRecord_EffectiveState(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name     string
		state    PaymentState
		expires  *time.Time
		expected PaymentState
	}{
		{"not paid stays not paid", StateNotPaid, &past, StateNotPaid},
		{"paid without expiry", StatePaid, nil, StatePaid},
		{"paid before expiry", StatePaid, &future, StatePaid},
		{"paid after expiry", StatePaid, &past, StateExpired},
		{"stored expired", StateExpired, nil, StateExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &BillingRecord{PaymentState: tt.state, ExpirationDate: tt.expires}
			if got := record.EffectiveState(now); got != tt.expected {
				t.Errorf("EffectiveState() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestNewBillingRecord(t *testing.T) {
	record := NewBillingRecord(7, KindProject, " mod-0042 ", decimal.NewFromInt(300), nil)

	if record.Code != "MOD-0042" {
		t.Errorf("Expected code 'MOD-0042', got %s", record.Code)
	}
	if record.PaymentState != StateNotPaid {
		t.Errorf("Expected state %s, got %s", StateNotPaid, record.PaymentState)
	}
	if err := record.Validate(); err != nil {
		t.Errorf("Expected valid record, got %v", err)
	}
}

func TestBillingRecord_Validate(t *testing.T) {
	tests := []struct {
		name      string
		record    BillingRecord
		wantError bool
	}{
		{
			name:   "valid",
			record: BillingRecord{UserID: 1, Kind: KindSubscription, Code: "MOD12345678", Price: decimal.NewFromInt(150), PaymentState: StateNotPaid},
		},
		{
			name:      "missing code",
			record:    BillingRecord{UserID: 1, Kind: KindSubscription, Price: decimal.NewFromInt(150), PaymentState: StateNotPaid},
			wantError: true,
		},
		{
			name:      "unknown kind",
			record:    BillingRecord{UserID: 1, Kind: "donation", Code: "MOD12345678", PaymentState: StateNotPaid},
			wantError: true,
		},
		{
			name:      "negative price",
			record:    BillingRecord{UserID: 1, Kind: KindProject, Code: "MOD-0001", Price: decimal.NewFromInt(-1), PaymentState: StateNotPaid},
			wantError: true,
		},
		{
			name:      "bad state",
			record:    BillingRecord{UserID: 1, Kind: KindProject, Code: "MOD-0001", PaymentState: "Refunded"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.record.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestPaymentSource(t *testing.T) {
	if !SourceStatement.MinAmount().Equal(decimal.NewFromInt(100)) {
		t.Errorf("statement minimum = %s, want 100", SourceStatement.MinAmount())
	}
	if !SourceReceipt.MinAmount().Equal(decimal.NewFromInt(50)) {
		t.Errorf("receipt minimum = %s, want 50", SourceReceipt.MinAmount())
	}
	if !SourceStatement.Verified() || SourceReceipt.Verified() {
		t.Error("only statement payments are verified on commit")
	}
	if PaymentSource("cash").IsValid() {
		t.Error("unexpected valid source")
	}
}

func TestTransactionCandidate_BankReference(t *testing.T) {
	tests := []struct {
		name      string
		candidate TransactionCandidate
		expected  string
	}{
		{"description and date", TransactionCandidate{Code: "MOD12345678", Description: "Payment MOD12345678", Date: "2024-03-15"}, "Payment MOD12345678|2024-03-15"},
		{"code fallback", TransactionCandidate{Code: "mod12345678", Date: "2024-03-15"}, "MOD12345678|2024-03-15"},
		{"no date", TransactionCandidate{Code: "MOD-0001", Description: "Payment MOD-0001"}, "Payment MOD-0001"},
		{"defaulted date", TransactionCandidate{Code: "MOD-0001", Description: "Payment MOD-0001", Date: "2024-03-20", DateDefaulted: true}, "Payment MOD-0001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.candidate.BankReference(); got != tt.expected {
				t.Errorf("BankReference() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestTransactionCandidate_TransactionDate(t *testing.T) {
	fallback := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	c := TransactionCandidate{Date: "2024-03-15"}
	if got := c.TransactionDate(fallback); !got.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("TransactionDate() = %v", got)
	}

	c.Date = "15/03/2024"
	if got := c.TransactionDate(fallback); !got.Equal(fallback) {
		t.Errorf("TransactionDate() = %v, want fallback", got)
	}
}

func TestUser_IsAdmin(t *testing.T) {
	var nilUser *User
	if nilUser.IsAdmin() {
		t.Error("nil user is not admin")
	}
	if !(&User{Role: RoleAdmin}).IsAdmin() {
		t.Error("expected admin")
	}
	if (&User{Role: RoleUser}).IsAdmin() {
		t.Error("expected non-admin")
	}
}
