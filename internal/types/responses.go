package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpenPositionResponse is returned from the open-position operation.
type OpenPositionResponse struct {
	PositionID string          `json:"position_id"`
	MarketID   string          `json:"market_id"`
	Side       string          `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Leverage   int             `json:"leverage"`
	Fee        decimal.Decimal `json:"fee"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// ClosePositionResponse is returned from the close-position operation.
type ClosePositionResponse struct {
	PositionID string          `json:"position_id"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	ClosingFee decimal.Decimal `json:"closing_fee"`
	Pnl        decimal.Decimal `json:"pnl"`
	NewBalance decimal.Decimal `json:"new_balance"`
}

// PoolDepositResponse is returned from the deposit-to-pool operation.
type PoolDepositResponse struct {
	PoolID            string          `json:"pool_id"`
	SharesMinted      decimal.Decimal `json:"shares_minted"`
	PricePerShare     decimal.Decimal `json:"price_per_share"`
	NewTotalLiquidity decimal.Decimal `json:"new_total_liquidity"`
	NewBalance        decimal.Decimal `json:"new_balance"`
}

// PoolWithdrawResponse is returned from the withdraw-from-pool operation.
type PoolWithdrawResponse struct {
	PoolID          string          `json:"pool_id"`
	AmountWithdrawn decimal.Decimal `json:"amount_withdrawn"`
	SharesBurned    decimal.Decimal `json:"shares_burned"`
	PricePerShare   decimal.Decimal `json:"price_per_share"`
	NewBalance      decimal.Decimal `json:"new_balance"`
}

// MarketMetricsResponse reports aggregate open interest and volume for a
// market. Available OI on one side equals the opposite side's current OI: a
// trade can grow one side up to the size currently backing it on the other.
type MarketMetricsResponse struct {
	MarketID         string          `json:"market_id"`
	Volume24h        decimal.Decimal `json:"volume_24h"`
	OpenInterest     decimal.Decimal `json:"open_interest"`
	LongOI           decimal.Decimal `json:"long_oi"`
	ShortOI          decimal.Decimal `json:"short_oi"`
	LongOIAvailable  decimal.Decimal `json:"long_oi_available"`
	ShortOIAvailable decimal.Decimal `json:"short_oi_available"`
}

// BalanceResponse reports a user's current balance.
type BalanceResponse struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

// DepositCreditResponse is returned when an external deposit is credited.
type DepositCreditResponse struct {
	UserID     string          `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	DedupeKey  string          `json:"dedupe_key"`
	NewBalance decimal.Decimal `json:"new_balance"`
	CreditedAt time.Time       `json:"credited_at"`
}
