package markets

import (
	"time"

	"github.com/Hazyshades/mantle-estate-sub000/internal/pricing"
	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"gorm.io/gorm"
)

// Reprice refreshes a market's stored index price and funding rate from the
// current open-interest metrics and appends a price-history snapshot. The
// caller must hold the market row's lock; the funding rate advances by the
// wall-clock time elapsed since the last update.
func Reprice(tx *gorm.DB, market *types.Market, now time.Time) error {
	m, err := ComputeMetrics(tx, market.MarketID, "")
	if err != nil {
		return err
	}

	daysElapsed := now.Sub(market.LastFundingUpdate).Hours() / 24

	market.IndexPrice = pricing.IndexPrice(market.MarketPrice, m)
	market.FundingRate = pricing.FundingRate(market.FundingRate, m, daysElapsed)
	market.LastFundingUpdate = now

	db := NewDatabase(tx)
	if err := db.SaveMarket(market); err != nil {
		return err
	}

	return db.CreatePricePoint(&types.PricePoint{
		MarketID:    market.MarketID,
		MarketPrice: market.MarketPrice,
		IndexPrice:  market.IndexPrice,
		FundingRate: market.FundingRate,
		Timestamp:   now,
	})
}
