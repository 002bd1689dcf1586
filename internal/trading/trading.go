// Package trading implements the position lifecycle: opening and closing
// leveraged exposure against a market's liquidity pool. Every mutation runs
// as one transaction holding exclusive row locks on the account, market,
// pool, and position rows it touches; any failure rolls the whole mutation
// back.
package trading

import (
	"time"

	"github.com/Hazyshades/mantle-estate-sub000/internal/funds"
	"github.com/Hazyshades/mantle-estate-sub000/internal/markets"
	"github.com/Hazyshades/mantle-estate-sub000/internal/pool"
	"github.com/Hazyshades/mantle-estate-sub000/internal/pricing"
	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service orchestrates position opens and closes.
type Service struct {
	db *gorm.DB
}

// NewService creates a new trading service with the given database connection
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// OpenPosition opens leveraged exposure for a trader. The trader posts
// amountUsd as margin and pays a fee on the leveraged notional; the fill
// price charges half the trade's own size as impact. After the mutation the
// market is repriced with the new position included.
func (s *Service) OpenPosition(userID, marketID, side string, amountUsd decimal.Decimal, leverage int) (*types.OpenPositionResponse, error) {
	// Validation happens before any lock is taken.
	if userID == "" {
		return nil, types.InvalidArgumentf("user id is required")
	}
	if !amountUsd.IsPositive() {
		return nil, types.InvalidArgumentf("amount must be positive")
	}
	if leverage != 1 && leverage != 2 {
		return nil, types.InvalidArgumentf("leverage must be 1 or 2")
	}
	if side != types.SideLong && side != types.SideShort {
		return nil, types.InvalidArgumentf("side must be %q or %q", types.SideLong, types.SideShort)
	}

	logger := log.With().
		Str("service", "trading").
		Str("user_id", userID).
		Str("market_id", marketID).
		Str("side", side).
		Logger()

	var resp *types.OpenPositionResponse
	err := s.db.Transaction(func(tx *gorm.DB) error {
		tradingDB := NewDatabase(tx)
		fundsDB := funds.NewDatabase(tx)
		marketsDB := markets.NewDatabase(tx)
		poolDB := pool.NewDatabase(tx)

		account, err := fundsDB.GetAccountForUpdate(userID)
		if err != nil {
			return err
		}
		market, err := marketsDB.GetMarketForUpdate(marketID)
		if err != nil {
			return err
		}
		lpPool, err := poolDB.GetOrCreatePoolForUpdate(marketID)
		if err != nil {
			return err
		}

		// The position does not exist yet, so no exclusion is needed.
		m, err := markets.ComputeMetrics(tx, marketID, "")
		if err != nil {
			return err
		}

		notional := amountUsd.Mul(decimal.NewFromInt(int64(leverage)))
		indexPrice := pricing.IndexPrice(market.MarketPrice, m)
		tradeSize := pricing.SignedSize(notional, side == types.SideLong)
		fillPrice := pricing.FillPrice(indexPrice, m.Skew(), tradeSize)

		quantity := notional.Div(fillPrice)
		openingFee := notional.Mul(pricing.FeeRate)
		totalCost := amountUsd.Add(openingFee)

		if account.Balance.LessThan(totalCost) {
			return types.ErrInsufficientBalance
		}

		account.Balance = account.Balance.Sub(totalCost)
		if err := fundsDB.SaveAccount(account); err != nil {
			return err
		}

		position := &types.Position{
			PositionID:     "POS_" + uuid.New().String(),
			UserID:         userID,
			MarketID:       marketID,
			Side:           side,
			Quantity:       quantity,
			EntryPrice:     fillPrice,
			Leverage:       leverage,
			MarginRequired: amountUsd,
			OpeningFee:     openingFee,
		}
		if err := tradingDB.CreatePosition(position); err != nil {
			return err
		}

		split, err := poolDB.CreditFee(lpPool, openingFee)
		if err != nil {
			return err
		}

		if err := tradingDB.CreateTransactionRecord(&types.TransactionRecord{
			TxID:        "TXN_" + uuid.New().String(),
			Type:        types.TxTypeOpen,
			UserID:      userID,
			MarketID:    marketID,
			PositionID:  position.PositionID,
			PoolID:      lpPool.PoolID,
			Quantity:    quantity,
			Price:       fillPrice,
			Fee:         openingFee,
			LpFee:       split.LpFee,
			ProtocolFee: split.ProtocolFee,
		}); err != nil {
			return err
		}

		// Re-read metrics including the new position and refresh the
		// market's stored index price and funding rate.
		if err := markets.Reprice(tx, market, time.Now()); err != nil {
			return err
		}

		resp = &types.OpenPositionResponse{
			PositionID: position.PositionID,
			MarketID:   marketID,
			Side:       side,
			Quantity:   quantity,
			EntryPrice: fillPrice,
			Leverage:   leverage,
			Fee:        openingFee,
			NewBalance: account.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("position_id", resp.PositionID).
		Str("entry_price", resp.EntryPrice.String()).
		Str("quantity", resp.Quantity.String()).
		Msg("opened position")
	return resp, nil
}

// ClosePosition closes an open position at the index price computed with the
// position itself excluded from the aggregate: its own open interest must
// not bias the price it closes at. Opening models self-impact in the fill
// price; closing deliberately does not, mirroring the venue's pricing rule.
func (s *Service) ClosePosition(userID, positionID string) (*types.ClosePositionResponse, error) {
	if userID == "" {
		return nil, types.InvalidArgumentf("user id is required")
	}
	if positionID == "" {
		return nil, types.InvalidArgumentf("position id is required")
	}

	logger := log.With().
		Str("service", "trading").
		Str("user_id", userID).
		Str("position_id", positionID).
		Logger()

	var resp *types.ClosePositionResponse
	err := s.db.Transaction(func(tx *gorm.DB) error {
		tradingDB := NewDatabase(tx)
		fundsDB := funds.NewDatabase(tx)
		marketsDB := markets.NewDatabase(tx)
		poolDB := pool.NewDatabase(tx)

		position, err := tradingDB.GetPositionForUpdate(positionID)
		if err != nil {
			return err
		}
		if position.UserID != userID {
			return types.ErrPermissionDenied
		}
		if !position.Open() {
			return types.ErrPositionClosed
		}

		account, err := fundsDB.GetAccountForUpdate(userID)
		if err != nil {
			return err
		}
		market, err := marketsDB.GetMarketForUpdate(position.MarketID)
		if err != nil {
			return err
		}
		lpPool, err := poolDB.GetOrCreatePoolForUpdate(position.MarketID)
		if err != nil {
			return err
		}

		m, err := markets.ComputeMetrics(tx, position.MarketID, position.PositionID)
		if err != nil {
			return err
		}
		exitPrice := pricing.IndexPrice(market.MarketPrice, m)

		grossPnl := exitPrice.Sub(position.EntryPrice).Mul(position.Quantity)
		if position.Side == types.SideShort {
			grossPnl = grossPnl.Neg()
		}
		closingFee := position.Quantity.Mul(exitPrice).Mul(pricing.FeeRate)
		netPnl := grossPnl.Sub(position.OpeningFee).Sub(closingFee)

		// May be negative when losses exceed margin; there is no
		// liquidation in this version and the balance is allowed to go
		// negative rather than clamping.
		returnAmount := position.MarginRequired.Add(netPnl)
		account.Balance = account.Balance.Add(returnAmount)
		if err := fundsDB.SaveAccount(account); err != nil {
			return err
		}

		now := time.Now()
		position.ExitPrice = exitPrice
		position.ClosingFee = closingFee
		position.RealizedPnl = netPnl
		position.ClosedAt = &now
		if err := tradingDB.SavePosition(position); err != nil {
			return err
		}

		split, _, err := poolDB.SettleClose(lpPool, closingFee, netPnl)
		if err != nil {
			return err
		}

		if err := tradingDB.CreateTransactionRecord(&types.TransactionRecord{
			TxID:        "TXN_" + uuid.New().String(),
			Type:        types.TxTypeClose,
			UserID:      userID,
			MarketID:    position.MarketID,
			PositionID:  position.PositionID,
			PoolID:      lpPool.PoolID,
			Quantity:    position.Quantity,
			Price:       exitPrice,
			Fee:         closingFee,
			RealizedPnl: netPnl,
			LpFee:       split.LpFee,
			ProtocolFee: split.ProtocolFee,
		}); err != nil {
			return err
		}

		// The position is closed inside this transaction, so the reprice
		// naturally sees the market without it.
		if err := markets.Reprice(tx, market, now); err != nil {
			return err
		}

		resp = &types.ClosePositionResponse{
			PositionID: position.PositionID,
			ExitPrice:  exitPrice,
			ClosingFee: closingFee,
			Pnl:        netPnl,
			NewBalance: account.Balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("exit_price", resp.ExitPrice.String()).
		Str("pnl", resp.Pnl.String()).
		Msg("closed position")
	return resp, nil
}

// GetPosition returns a position owned by the user.
func (s *Service) GetPosition(userID, positionID string) (*types.Position, error) {
	position, err := NewDatabase(s.db).GetPosition(positionID)
	if err != nil {
		return nil, err
	}
	if position.UserID != userID {
		return nil, types.ErrPermissionDenied
	}
	return position, nil
}

// ListPositions returns the user's positions.
func (s *Service) ListPositions(userID string, openOnly bool) ([]types.Position, error) {
	return NewDatabase(s.db).ListUserPositions(userID, openOnly)
}
