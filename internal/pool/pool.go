// Package pool implements the liquidity-pool ledger: share issuance and
// redemption, the 80/20 LP/protocol fee split, and absorption of counterparty
// P&L. The pool is structurally the counterparty to every trader: a trader's
// profit is the pool's loss and vice versa.
package pool

import (
	"errors"

	"github.com/Hazyshades/mantle-estate-sub000/internal/auth"
	"github.com/Hazyshades/mantle-estate-sub000/internal/funds"
	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"github.com/Hazyshades/mantle-estate-sub000/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MinDeposit is the smallest accepted pool deposit, in USD.
var MinDeposit = decimal.NewFromInt(10)

// Service handles liquidity provider deposits and withdrawals.
type Service struct {
	db *gorm.DB
}

// NewService creates a new pool service with the given database connection
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Deposit adds liquidity to a market's pool, minting shares at the price per
// share measured before the deposit is applied. The first deposit into an
// empty pool pegs one share to one USD.
func (s *Service) Deposit(userID, marketID string, amount decimal.Decimal) (*types.PoolDepositResponse, error) {
	if amount.LessThan(MinDeposit) {
		return nil, types.InvalidArgumentf("deposit must be at least %s", MinDeposit)
	}

	logger := log.With().
		Str("service", "pool").
		Str("user_id", userID).
		Str("market_id", marketID).
		Logger()

	var resp *types.PoolDepositResponse
	err := s.db.Transaction(func(tx *gorm.DB) error {
		poolDB := NewDatabase(tx)
		fundsDB := funds.NewDatabase(tx)

		account, err := fundsDB.GetAccountForUpdate(userID)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(amount) {
			return types.ErrInsufficientBalance
		}

		pool, err := poolDB.GetOrCreatePoolForUpdate(marketID)
		if err != nil {
			return err
		}

		// Share price measured before this deposit is applied.
		pricePerShare := pool.PricePerShare()
		var sharesMinted decimal.Decimal
		if pool.TotalShares.IsZero() || pool.TotalLiquidity.IsZero() {
			sharesMinted = amount
			pricePerShare = decimal.NewFromInt(1)
		} else {
			sharesMinted = amount.Mul(pool.TotalShares).Div(pool.TotalLiquidity)
		}

		account.Balance = account.Balance.Sub(amount)
		if err := fundsDB.SaveAccount(account); err != nil {
			return err
		}

		pool.TotalLiquidity = pool.TotalLiquidity.Add(amount)
		pool.TotalShares = pool.TotalShares.Add(sharesMinted)
		if err := poolDB.SavePool(pool); err != nil {
			return err
		}

		lp, err := poolDB.GetOrCreateLpPositionForUpdate(userID, pool.PoolID)
		if err != nil {
			return err
		}
		lp.Shares = lp.Shares.Add(sharesMinted)
		lp.DepositedAmount = lp.DepositedAmount.Add(amount)
		if err := poolDB.SaveLpPosition(lp); err != nil {
			return err
		}

		record := &types.TransactionRecord{
			TxID:     "TXN_" + uuid.New().String(),
			Type:     types.TxTypePoolDeposit,
			UserID:   userID,
			MarketID: marketID,
			PoolID:   pool.PoolID,
			Quantity: sharesMinted,
			Price:    pricePerShare,
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		resp = &types.PoolDepositResponse{
			PoolID:            pool.PoolID,
			SharesMinted:      sharesMinted,
			PricePerShare:     pricePerShare,
			NewTotalLiquidity: pool.TotalLiquidity,
			NewBalance:        account.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("amount", amount.String()).
		Str("shares_minted", resp.SharesMinted.String()).
		Msg("pool deposit")
	return resp, nil
}

// Withdraw redeems shares at the current price per share, crediting the
// provider's balance. Fails with InsufficientShares when the caller holds
// fewer shares than requested.
func (s *Service) Withdraw(userID, marketID string, shares decimal.Decimal) (*types.PoolWithdrawResponse, error) {
	if !shares.IsPositive() {
		return nil, types.InvalidArgumentf("shares must be positive")
	}

	logger := log.With().
		Str("service", "pool").
		Str("user_id", userID).
		Str("market_id", marketID).
		Logger()

	var resp *types.PoolWithdrawResponse
	err := s.db.Transaction(func(tx *gorm.DB) error {
		poolDB := NewDatabase(tx)
		fundsDB := funds.NewDatabase(tx)

		pool, err := poolDB.GetPoolByMarketForUpdate(marketID)
		if err != nil {
			return err
		}

		lp, err := poolDB.GetLpPositionForUpdate(userID, pool.PoolID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.ErrInsufficientShares
			}
			return err
		}
		if lp.Shares.LessThan(shares) {
			return types.ErrInsufficientShares
		}

		pricePerShare := pool.PricePerShare()
		// Multiply before dividing so redeeming every share returns the
		// full remaining liquidity exactly.
		amount := shares.Mul(pool.TotalLiquidity).Div(pool.TotalShares)
		if amount.GreaterThan(pool.TotalLiquidity) {
			amount = pool.TotalLiquidity
		}

		pool.TotalLiquidity = pool.TotalLiquidity.Sub(amount)
		pool.TotalShares = pool.TotalShares.Sub(shares)
		if err := poolDB.SavePool(pool); err != nil {
			return err
		}

		lp.Shares = lp.Shares.Sub(shares)
		lp.WithdrawnAmount = lp.WithdrawnAmount.Add(amount)
		if err := poolDB.SaveLpPosition(lp); err != nil {
			return err
		}

		account, err := fundsDB.GetOrCreateAccountForUpdate(userID)
		if err != nil {
			return err
		}
		account.Balance = account.Balance.Add(amount)
		if err := fundsDB.SaveAccount(account); err != nil {
			return err
		}

		record := &types.TransactionRecord{
			TxID:     "TXN_" + uuid.New().String(),
			Type:     types.TxTypePoolWithdraw,
			UserID:   userID,
			MarketID: pool.MarketID,
			PoolID:   pool.PoolID,
			Quantity: shares,
			Price:    pricePerShare,
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}

		resp = &types.PoolWithdrawResponse{
			PoolID:          pool.PoolID,
			AmountWithdrawn: amount,
			SharesBurned:    shares,
			PricePerShare:   pricePerShare,
			NewBalance:      account.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("shares", shares.String()).
		Str("amount", resp.AmountWithdrawn.String()).
		Msg("pool withdrawal")
	return resp, nil
}

// GetPool returns the pool for a market.
func (s *Service) GetPool(marketID string) (*types.LiquidityPool, error) {
	return NewDatabase(s.db).GetPoolByMarket(marketID)
}

// GinHandlers contains HTTP handlers for liquidity pool endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for pool endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type withdrawRequest struct {
	Shares decimal.Decimal `json:"shares"`
}

// DepositHandler handles POST requests to add liquidity to a market's pool
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var req depositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		resp, err := h.service.Deposit(userID, c.Param("market_id"), req.Amount)
		response.Handle(c, resp, err)
	}
}

// WithdrawHandler handles POST requests to redeem pool shares
func (h *GinHandlers) WithdrawHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var req withdrawRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		resp, err := h.service.Withdraw(userID, c.Param("market_id"), req.Shares)
		response.Handle(c, resp, err)
	}
}

// GetPoolHandler handles GET requests for a market's pool state
func (h *GinHandlers) GetPoolHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pool, err := h.service.GetPool(c.Param("market_id"))
		response.Handle(c, pool, err)
	}
}
