package pool

import (
	"errors"
	"fmt"

	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Fee split between liquidity providers and the protocol.
var (
	lpFeeShare       = decimal.NewFromFloat(0.8)
	protocolFeeShare = decimal.NewFromFloat(0.2)
)

// FeeSplit is the result of routing one fee through the ledger.
type FeeSplit struct {
	LpFee       decimal.Decimal
	ProtocolFee decimal.Decimal
}

// Database wraps liquidity-pool persistence. Construct it over a transaction
// handle to join an enclosing atomic mutation; every method expecting a
// locked row documents it.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetPoolByMarketForUpdate loads a market's pool under an exclusive row lock.
func (d *Database) GetPoolByMarketForUpdate(marketID string) (*types.LiquidityPool, error) {
	var pool types.LiquidityPool
	err := d.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("market_id = ?", marketID).
		First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrPoolNotFound
		}
		return nil, err
	}
	return &pool, nil
}

// GetOrCreatePoolForUpdate loads a market's pool under lock, creating an
// empty pool first if the market has none yet.
func (d *Database) GetOrCreatePoolForUpdate(marketID string) (*types.LiquidityPool, error) {
	pool, err := d.GetPoolByMarketForUpdate(marketID)
	if err == nil {
		return pool, nil
	}
	if !errors.Is(err, types.ErrPoolNotFound) {
		return nil, err
	}

	created := &types.LiquidityPool{
		PoolID:   "POOL_" + uuid.New().String(),
		MarketID: marketID,
	}
	if err := d.db.Create(created).Error; err != nil {
		return nil, err
	}
	return d.GetPoolByMarketForUpdate(marketID)
}

// GetPoolByMarket loads a market's pool without locking.
func (d *Database) GetPoolByMarket(marketID string) (*types.LiquidityPool, error) {
	var pool types.LiquidityPool
	err := d.db.Where("market_id = ?", marketID).First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrPoolNotFound
		}
		return nil, err
	}
	return &pool, nil
}

// SavePool persists a mutated pool row.
func (d *Database) SavePool(pool *types.LiquidityPool) error {
	return d.db.Save(pool).Error
}

// GetLpPositionForUpdate loads a provider's stake under an exclusive row lock.
func (d *Database) GetLpPositionForUpdate(userID, poolID string) (*types.LpPosition, error) {
	var lp types.LpPosition
	err := d.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND pool_id = ?", userID, poolID).
		First(&lp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, err
	}
	return &lp, nil
}

// GetOrCreateLpPositionForUpdate loads a provider's stake under lock,
// creating an empty stake row on first deposit.
func (d *Database) GetOrCreateLpPositionForUpdate(userID, poolID string) (*types.LpPosition, error) {
	lp, err := d.GetLpPositionForUpdate(userID, poolID)
	if err == nil {
		return lp, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := &types.LpPosition{UserID: userID, PoolID: poolID}
	if err := d.db.Create(created).Error; err != nil {
		return nil, err
	}
	return d.GetLpPositionForUpdate(userID, poolID)
}

// SaveLpPosition persists a mutated stake row.
func (d *Database) SaveLpPosition(lp *types.LpPosition) error {
	return d.db.Save(lp).Error
}

// getOrCreateProtocolAccountForUpdate loads the singleton protocol fee row
// under lock, creating it on first use.
func (d *Database) getOrCreateProtocolAccountForUpdate() (*types.ProtocolFeeAccount, error) {
	var account types.ProtocolFeeAccount
	err := d.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&account).Error
	if err == nil {
		return &account, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err := d.db.Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// GetProtocolFees returns the running protocol fee total.
func (d *Database) GetProtocolFees() (decimal.Decimal, error) {
	var account types.ProtocolFeeAccount
	err := d.db.First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return account.TotalFees, nil
}

// CreditFee routes a fee through the ledger: 80% accrues to the locked pool
// row's liquidity and fee total, 20% to the protocol account. The pool row is
// mutated in memory and persisted; the caller must already hold its lock.
func (d *Database) CreditFee(pool *types.LiquidityPool, fee decimal.Decimal) (FeeSplit, error) {
	split := FeeSplit{
		LpFee:       fee.Mul(lpFeeShare),
		ProtocolFee: fee.Mul(protocolFeeShare),
	}

	pool.TotalLiquidity = pool.TotalLiquidity.Add(split.LpFee)
	pool.TotalFeesCollected = pool.TotalFeesCollected.Add(split.LpFee)
	if err := d.SavePool(pool); err != nil {
		return FeeSplit{}, err
	}

	protocol, err := d.getOrCreateProtocolAccountForUpdate()
	if err != nil {
		return FeeSplit{}, err
	}
	protocol.TotalFees = protocol.TotalFees.Add(split.ProtocolFee)
	if err := d.db.Save(protocol).Error; err != nil {
		return FeeSplit{}, err
	}

	return split, nil
}

// SettleClose applies a position close to the locked pool row in one step:
// the closing fee is split 80/20 and the pool absorbs the counterparty P&L.
// The absorbed amount excludes the closing fee, which flows only through the
// fee split. Together the trader credit, fee split, and absorption sum to
// zero across the system.
func (d *Database) SettleClose(pool *types.LiquidityPool, closingFee, netPnl decimal.Decimal) (FeeSplit, decimal.Decimal, error) {
	split := FeeSplit{
		LpFee:       closingFee.Mul(lpFeeShare),
		ProtocolFee: closingFee.Mul(protocolFeeShare),
	}
	pnlImpact := netPnl.Add(closingFee).Neg()

	pool.TotalLiquidity = pool.TotalLiquidity.Add(split.LpFee).Add(pnlImpact)
	pool.TotalFeesCollected = pool.TotalFeesCollected.Add(split.LpFee)
	pool.CumulativePnl = pool.CumulativePnl.Add(pnlImpact)
	if pool.TotalLiquidity.IsNegative() {
		return FeeSplit{}, decimal.Zero, fmt.Errorf("%w: pool cannot cover counterparty loss", types.ErrFailedPrecondition)
	}
	if err := d.SavePool(pool); err != nil {
		return FeeSplit{}, decimal.Zero, err
	}

	protocol, err := d.getOrCreateProtocolAccountForUpdate()
	if err != nil {
		return FeeSplit{}, decimal.Zero, err
	}
	protocol.TotalFees = protocol.TotalFees.Add(split.ProtocolFee)
	if err := d.db.Save(protocol).Error; err != nil {
		return FeeSplit{}, decimal.Zero, err
	}

	return split, pnlImpact, nil
}
