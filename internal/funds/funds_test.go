package funds

import (
	"errors"
	"testing"

	"github.com/Hazyshades/mantle-estate-sub000/internal/testutil"
	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestCreditDeposit(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)

	resp, err := service.CreditDeposit("USER_1", d(100), "tx-1")
	if err != nil {
		t.Fatalf("CreditDeposit failed: %v", err)
	}
	if !resp.NewBalance.Equal(d(100)) {
		t.Errorf("expected balance 100, got %s", resp.NewBalance)
	}

	// A second deposit with a fresh key accumulates
	resp, err = service.CreditDeposit("USER_1", d(50.5), "tx-2")
	if err != nil {
		t.Fatalf("CreditDeposit failed: %v", err)
	}
	if !resp.NewBalance.Equal(d(150.5)) {
		t.Errorf("expected balance 150.5, got %s", resp.NewBalance)
	}

	balance, err := service.GetBalance("USER_1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Balance.Equal(d(150.5)) {
		t.Errorf("expected stored balance 150.5, got %s", balance.Balance)
	}
}

func TestCreditDepositReplayedKey(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)

	if _, err := service.CreditDeposit("USER_1", d(100), "tx-1"); err != nil {
		t.Fatalf("CreditDeposit failed: %v", err)
	}

	// Replaying the same key must fail and leave the balance untouched,
	// even with a different amount or user.
	if _, err := service.CreditDeposit("USER_1", d(100), "tx-1"); !errors.Is(err, types.ErrAlreadyExists) {
		t.Errorf("expected AlreadyExists on replay, got %v", err)
	}
	if _, err := service.CreditDeposit("USER_2", d(999), "tx-1"); !errors.Is(err, types.ErrAlreadyExists) {
		t.Errorf("expected AlreadyExists on replay for another user, got %v", err)
	}

	balance, err := service.GetBalance("USER_1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Balance.Equal(d(100)) {
		t.Errorf("replay changed balance: got %s, want 100", balance.Balance)
	}
}

func TestCreditDepositValidation(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)

	cases := []struct {
		name      string
		userID    string
		amount    decimal.Decimal
		dedupeKey string
	}{
		{"missing user", "", d(100), "tx-1"},
		{"missing key", "USER_1", d(100), ""},
		{"zero amount", "USER_1", decimal.Zero, "tx-1"},
		{"negative amount", "USER_1", d(-5), "tx-1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.CreditDeposit(tc.userID, tc.amount, tc.dedupeKey)
			if !errors.Is(err, types.ErrInvalidArgument) {
				t.Errorf("expected InvalidArgument, got %v", err)
			}
		})
	}
}

func TestBalancePreservesFullDecimalPrecision(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)

	// 21 significant digits, far past what a float64 column can carry.
	// The balance must read back from the database bit for bit.
	amount := decimal.RequireFromString("999.260067993200679986")
	if _, err := service.CreditDeposit("USER_1", amount, "tx-1"); err != nil {
		t.Fatalf("CreditDeposit failed: %v", err)
	}

	balance, err := service.GetBalance("USER_1")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Balance.Equal(amount) {
		t.Errorf("balance lost precision at rest: got %s, want %s", balance.Balance, amount)
	}
}

func TestGetBalanceUnknownUser(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)

	balance, err := service.GetBalance("NOBODY")
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if !balance.Balance.IsZero() {
		t.Errorf("expected zero balance for unknown user, got %s", balance.Balance)
	}
}
