package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Position sides.
const (
	SideLong  = "long"
	SideShort = "short"
)

// Transaction record types.
const (
	TxTypeOpen         = "open"
	TxTypeClose        = "close"
	TxTypePoolDeposit  = "pool_deposit"
	TxTypePoolWithdraw = "pool_withdraw"
)

// Money and price columns are declared with TEXT affinity. Under sqlite a
// decimal(38,18) declaration takes NUMERIC affinity and the strings
// shopspring/decimal writes get coerced to float64 at rest, so exact
// conservation would break on read-back.

// Market is one isolated trading venue per city. MarketPrice is the oracle
// baseline; IndexPrice is derived from it and the current open-interest skew
// and always stays within ±5% of MarketPrice.
type Market struct {
	gorm.Model        `json:"-"`
	MarketID          string          `gorm:"uniqueIndex" json:"market_id"`
	City              string          `json:"city"`
	MarketPrice       decimal.Decimal `gorm:"type:text" json:"market_price"`
	IndexPrice        decimal.Decimal `gorm:"type:text" json:"index_price"`
	FundingRate       decimal.Decimal `gorm:"type:text" json:"funding_rate"` // signed daily rate
	LastFundingUpdate time.Time       `json:"last_funding_update"`
}

// Position is a trader's leveraged exposure. MarginRequired = notional/leverage
// where notional = Quantity * EntryPrice. Once ClosedAt is set the record is
// immutable.
type Position struct {
	gorm.Model     `json:"-"`
	PositionID     string          `gorm:"uniqueIndex" json:"position_id"`
	UserID         string          `gorm:"index" json:"user_id"`
	MarketID       string          `gorm:"index" json:"market_id"`
	Side           string          `json:"side"` // long or short
	Quantity       decimal.Decimal `gorm:"type:text" json:"quantity"`
	EntryPrice     decimal.Decimal `gorm:"type:text" json:"entry_price"`
	Leverage       int             `json:"leverage"` // 1 or 2
	MarginRequired decimal.Decimal `gorm:"type:text" json:"margin_required"`
	OpeningFee     decimal.Decimal `gorm:"type:text" json:"opening_fee"`
	ExitPrice      decimal.Decimal `gorm:"type:text" json:"exit_price"`
	ClosingFee     decimal.Decimal `gorm:"type:text" json:"closing_fee"`
	RealizedPnl    decimal.Decimal `gorm:"type:text" json:"realized_pnl"`
	ClosedAt       *time.Time      `gorm:"index" json:"closed_at,omitempty"`
}

// Open reports whether the position is still open.
func (p *Position) Open() bool {
	return p.ClosedAt == nil
}

// LiquidityPool is the automatic counterparty for one market. TotalLiquidity
// is the pool's net asset value and must never go negative at commit time.
// Price per share is TotalLiquidity/TotalShares, pegged to 1.0 while the pool
// is empty.
type LiquidityPool struct {
	gorm.Model         `json:"-"`
	PoolID             string          `gorm:"uniqueIndex" json:"pool_id"`
	MarketID           string          `gorm:"uniqueIndex" json:"market_id"`
	TotalLiquidity     decimal.Decimal `gorm:"type:text" json:"total_liquidity"`
	TotalShares        decimal.Decimal `gorm:"type:text" json:"total_shares"`
	CumulativePnl      decimal.Decimal `gorm:"type:text" json:"cumulative_pnl"`
	TotalFeesCollected decimal.Decimal `gorm:"type:text" json:"total_fees_collected"`
}

// PricePerShare returns the current share price, 1.0 for an empty pool.
func (p *LiquidityPool) PricePerShare() decimal.Decimal {
	if p.TotalShares.IsZero() {
		return decimal.NewFromInt(1)
	}
	return p.TotalLiquidity.Div(p.TotalShares)
}

// LpPosition is a liquidity provider's stake in one pool. Never deleted;
// Shares >= 0 at all times.
type LpPosition struct {
	gorm.Model      `json:"-"`
	UserID          string          `gorm:"uniqueIndex:idx_lp_user_pool" json:"user_id"`
	PoolID          string          `gorm:"uniqueIndex:idx_lp_user_pool" json:"pool_id"`
	Shares          decimal.Decimal `gorm:"type:text" json:"shares"`
	DepositedAmount decimal.Decimal `gorm:"type:text" json:"deposited_amount"`
	WithdrawnAmount decimal.Decimal `gorm:"type:text" json:"withdrawn_amount"`
}

// TransactionRecord is an append-only audit row, one per trade or pool event.
// Written once, never mutated.
type TransactionRecord struct {
	gorm.Model  `json:"-"`
	TxID        string          `gorm:"uniqueIndex" json:"tx_id"`
	Type        string          `gorm:"index" json:"type"`
	UserID      string          `gorm:"index" json:"user_id"`
	MarketID    string          `gorm:"index" json:"market_id"`
	PositionID  string          `json:"position_id,omitempty"`
	PoolID      string          `json:"pool_id,omitempty"`
	Quantity    decimal.Decimal `gorm:"type:text" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:text" json:"price"`
	Fee         decimal.Decimal `gorm:"type:text" json:"fee"`
	RealizedPnl decimal.Decimal `gorm:"type:text" json:"realized_pnl"`
	LpFee       decimal.Decimal `gorm:"type:text" json:"lp_fee"`
	ProtocolFee decimal.Decimal `gorm:"type:text" json:"protocol_fee"`
}

// ProtocolFeeAccount is the single running total of protocol-retained fees.
// Mutated additively only.
type ProtocolFeeAccount struct {
	gorm.Model `json:"-"`
	TotalFees  decimal.Decimal `gorm:"type:text" json:"total_fees"`
}

// Account holds a user's USD balance. Balance mutations always happen inside
// the same transaction as the position/pool mutation they pay for.
type Account struct {
	gorm.Model `json:"-"`
	UserID     string          `gorm:"uniqueIndex" json:"user_id"`
	Balance    decimal.Decimal `gorm:"type:text" json:"balance"`
}

// DepositRecord makes external balance credits idempotent: the dedupe key is
// unique, so a replayed credit fails instead of double-crediting.
type DepositRecord struct {
	gorm.Model `json:"-"`
	DedupeKey  string          `gorm:"uniqueIndex" json:"dedupe_key"`
	UserID     string          `gorm:"index" json:"user_id"`
	Amount     decimal.Decimal `gorm:"type:text" json:"amount"`
}

// PricePoint is a price-history snapshot, appended on every trade-driven
// reprice and every scheduler tick.
type PricePoint struct {
	gorm.Model  `json:"-"`
	MarketID    string          `gorm:"index" json:"market_id"`
	MarketPrice decimal.Decimal `gorm:"type:text" json:"market_price"`
	IndexPrice  decimal.Decimal `gorm:"type:text" json:"index_price"`
	FundingRate decimal.Decimal `gorm:"type:text" json:"funding_rate"`
	Timestamp   time.Time       `gorm:"index" json:"timestamp"`
}
