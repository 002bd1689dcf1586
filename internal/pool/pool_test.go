package pool

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Hazyshades/mantle-estate-sub000/internal/funds"
	"github.com/Hazyshades/mantle-estate-sub000/internal/testutil"
	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var depositSeq int

// fundUser credits a balance through the funds service so the pool tests go
// through the same ledger the production flow uses.
func fundUser(t *testing.T, db *gorm.DB, userID string, amount decimal.Decimal) {
	t.Helper()
	depositSeq++
	key := fmt.Sprintf("seed-%s-%d", userID, depositSeq)
	if _, err := funds.NewService(db).CreditDeposit(userID, amount, key); err != nil {
		t.Fatalf("failed to fund %s: %v", userID, err)
	}
}

func TestDepositFirstPegsShareToDollar(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)
	fundUser(t, db, "LP_1", d(1000))

	resp, err := service.Deposit("LP_1", "NYC_RE", d(100))
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	if !resp.SharesMinted.Equal(d(100)) {
		t.Errorf("expected 100 shares for first deposit, got %s", resp.SharesMinted)
	}
	if !resp.PricePerShare.Equal(d(1)) {
		t.Errorf("expected price per share 1, got %s", resp.PricePerShare)
	}
	if !resp.NewTotalLiquidity.Equal(d(100)) {
		t.Errorf("expected total liquidity 100, got %s", resp.NewTotalLiquidity)
	}
	if !resp.NewBalance.Equal(d(900)) {
		t.Errorf("expected balance 900 after deposit, got %s", resp.NewBalance)
	}
}

func TestDepositProportionalMint(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)
	fundUser(t, db, "LP_1", d(1000))
	fundUser(t, db, "LP_2", d(1000))

	if _, err := service.Deposit("LP_1", "NYC_RE", d(100)); err != nil {
		t.Fatalf("seed deposit failed: %v", err)
	}

	// Double the pool's liquidity without minting shares, as accrued
	// counterparty P&L would, so one share is now worth two dollars.
	var lpPool types.LiquidityPool
	if err := db.Where("market_id = ?", "NYC_RE").First(&lpPool).Error; err != nil {
		t.Fatalf("failed to load pool: %v", err)
	}
	lpPool.TotalLiquidity = d(200)
	if err := db.Save(&lpPool).Error; err != nil {
		t.Fatalf("failed to update pool: %v", err)
	}

	resp, err := service.Deposit("LP_2", "NYC_RE", d(50))
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if !resp.SharesMinted.Equal(d(25)) {
		t.Errorf("expected 25 shares at price 2, got %s", resp.SharesMinted)
	}
	if !resp.PricePerShare.Equal(d(2)) {
		t.Errorf("expected price per share 2, got %s", resp.PricePerShare)
	}
}

func TestDepositBelowMinimum(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)
	fundUser(t, db, "LP_1", d(1000))

	_, err := service.Deposit("LP_1", "NYC_RE", d(9.99))
	if !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("expected InvalidArgument below minimum, got %v", err)
	}
}

func TestDepositInsufficientBalance(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)
	fundUser(t, db, "LP_1", d(15))

	_, err := service.Deposit("LP_1", "NYC_RE", d(20))
	if !errors.Is(err, types.ErrInsufficientBalance) {
		t.Errorf("expected InsufficientBalance, got %v", err)
	}

	// The failed deposit must not have created a pool.
	if _, err := service.GetPool("NYC_RE"); !errors.Is(err, types.ErrPoolNotFound) {
		t.Errorf("expected no pool after failed deposit, got %v", err)
	}
}

func TestWithdrawFullRoundTrip(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)
	fundUser(t, db, "LP_1", d(1000))

	deposit, err := service.Deposit("LP_1", "NYC_RE", d(250))
	if err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	resp, err := service.Withdraw("LP_1", "NYC_RE", deposit.SharesMinted)
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}

	// With no pool activity in between, redeeming every share returns the
	// deposit exactly and restores the original balance.
	if !resp.AmountWithdrawn.Equal(d(250)) {
		t.Errorf("expected 250 back, got %s", resp.AmountWithdrawn)
	}
	if !resp.NewBalance.Equal(d(1000)) {
		t.Errorf("expected balance restored to 1000, got %s", resp.NewBalance)
	}

	lpPool, err := service.GetPool("NYC_RE")
	if err != nil {
		t.Fatalf("GetPool failed: %v", err)
	}
	if !lpPool.TotalLiquidity.IsZero() || !lpPool.TotalShares.IsZero() {
		t.Errorf("expected empty pool, got liquidity %s shares %s",
			lpPool.TotalLiquidity, lpPool.TotalShares)
	}
}

func TestWithdrawPartialAtAppreciatedPrice(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)
	fundUser(t, db, "LP_1", d(1000))

	if _, err := service.Deposit("LP_1", "NYC_RE", d(100)); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	var lpPool types.LiquidityPool
	if err := db.Where("market_id = ?", "NYC_RE").First(&lpPool).Error; err != nil {
		t.Fatalf("failed to load pool: %v", err)
	}
	lpPool.TotalLiquidity = d(150)
	if err := db.Save(&lpPool).Error; err != nil {
		t.Fatalf("failed to update pool: %v", err)
	}

	resp, err := service.Withdraw("LP_1", "NYC_RE", d(40))
	if err != nil {
		t.Fatalf("Withdraw failed: %v", err)
	}
	if !resp.AmountWithdrawn.Equal(d(60)) {
		t.Errorf("expected 60 for 40 shares at price 1.5, got %s", resp.AmountWithdrawn)
	}
	if !resp.PricePerShare.Equal(d(1.5)) {
		t.Errorf("expected price per share 1.5, got %s", resp.PricePerShare)
	}
}

func TestWithdrawInsufficientShares(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)
	fundUser(t, db, "LP_1", d(1000))
	fundUser(t, db, "LP_2", d(1000))

	if _, err := service.Deposit("LP_1", "NYC_RE", d(100)); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}

	// More shares than held
	if _, err := service.Withdraw("LP_1", "NYC_RE", d(200)); !errors.Is(err, types.ErrInsufficientShares) {
		t.Errorf("expected InsufficientShares, got %v", err)
	}
	// No stake at all
	if _, err := service.Withdraw("LP_2", "NYC_RE", d(1)); !errors.Is(err, types.ErrInsufficientShares) {
		t.Errorf("expected InsufficientShares for user with no stake, got %v", err)
	}
}

func TestWithdrawValidation(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)

	if _, err := service.Withdraw("LP_1", "NYC_RE", decimal.Zero); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("expected InvalidArgument for zero shares, got %v", err)
	}
	if _, err := service.Withdraw("LP_1", "NOWHERE", d(1)); !errors.Is(err, types.ErrPoolNotFound) {
		t.Errorf("expected PoolNotFound, got %v", err)
	}
}

func TestCreditFeeSplit(t *testing.T) {
	db := testutil.NewTestDB(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		poolDB := NewDatabase(tx)
		lpPool, err := poolDB.GetOrCreatePoolForUpdate("NYC_RE")
		if err != nil {
			return err
		}

		split, err := poolDB.CreditFee(lpPool, d(1))
		if err != nil {
			return err
		}
		if !split.LpFee.Equal(d(0.8)) || !split.ProtocolFee.Equal(d(0.2)) {
			t.Errorf("expected 0.8/0.2 split, got %s/%s", split.LpFee, split.ProtocolFee)
		}
		if !lpPool.TotalLiquidity.Equal(d(0.8)) {
			t.Errorf("expected pool liquidity 0.8, got %s", lpPool.TotalLiquidity)
		}
		if !lpPool.TotalFeesCollected.Equal(d(0.8)) {
			t.Errorf("expected fees collected 0.8, got %s", lpPool.TotalFeesCollected)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	fees, err := NewDatabase(db).GetProtocolFees()
	if err != nil {
		t.Fatalf("GetProtocolFees failed: %v", err)
	}
	if !fees.Equal(d(0.2)) {
		t.Errorf("expected protocol fees 0.2, got %s", fees)
	}
}

func TestSettleCloseAbsorbsCounterpartyPnl(t *testing.T) {
	db := testutil.NewTestDB(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		poolDB := NewDatabase(tx)
		lpPool, err := poolDB.GetOrCreatePoolForUpdate("NYC_RE")
		if err != nil {
			return err
		}
		lpPool.TotalLiquidity = d(1000)
		lpPool.TotalShares = d(1000)
		if err := poolDB.SavePool(lpPool); err != nil {
			return err
		}

		// Trader made 10 net after a closing fee of 2: the pool pays the
		// 12 the trader side receives beyond its margin, and gets 80% of
		// the fee back.
		split, pnlImpact, err := poolDB.SettleClose(lpPool, d(2), d(10))
		if err != nil {
			return err
		}
		if !pnlImpact.Equal(d(-12)) {
			t.Errorf("expected pnl impact -12, got %s", pnlImpact)
		}
		if !split.LpFee.Equal(d(1.6)) || !split.ProtocolFee.Equal(d(0.4)) {
			t.Errorf("expected 1.6/0.4 split, got %s/%s", split.LpFee, split.ProtocolFee)
		}
		// 1000 + 1.6 - 12
		if !lpPool.TotalLiquidity.Equal(d(989.6)) {
			t.Errorf("expected liquidity 989.6, got %s", lpPool.TotalLiquidity)
		}
		if !lpPool.CumulativePnl.Equal(d(-12)) {
			t.Errorf("expected cumulative pnl -12, got %s", lpPool.CumulativePnl)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}

func TestSettleCloseRejectsInsolvency(t *testing.T) {
	db := testutil.NewTestDB(t)

	err := db.Transaction(func(tx *gorm.DB) error {
		poolDB := NewDatabase(tx)
		lpPool, err := poolDB.GetOrCreatePoolForUpdate("NYC_RE")
		if err != nil {
			return err
		}
		lpPool.TotalLiquidity = d(5)
		lpPool.TotalShares = d(5)
		if err := poolDB.SavePool(lpPool); err != nil {
			return err
		}

		_, _, err = poolDB.SettleClose(lpPool, d(1), d(100))
		if !errors.Is(err, types.ErrFailedPrecondition) {
			t.Errorf("expected FailedPrecondition when pool cannot pay, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
}
