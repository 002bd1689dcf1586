// Package pricing implements the deterministic price math for the perpetual
// markets: index price derivation from open-interest skew, fill price with
// trade impact, and funding-rate evolution.
//
// Every function here is pure: no I/O, no clock reads. Monetary inputs and
// outputs use shopspring/decimal; float64 appears only for the fractional-day
// decay exponent and is converted back to decimal immediately.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

var (
	// SkewScale divides the dollar skew when deriving price premiums. Sized
	// so small trades move the index by a negligible amount, which keeps the
	// index hard to push around with dust orders.
	SkewScale = decimal.NewFromInt(10_000_000)

	// MaxPremium caps the index price drift at ±5% of the oracle baseline.
	MaxPremium = decimal.NewFromFloat(0.05)

	// MaxFundingVelocity caps funding-rate movement at 1% per day.
	MaxFundingVelocity = decimal.NewFromFloat(0.01)

	// FeeRate is charged on notional at open and close (1 basis point).
	FeeRate = decimal.NewFromFloat(0.0001)

	// balancedSkewEpsilon is the normalized-skew magnitude under which the
	// market counts as balanced and the funding rate decays toward zero.
	balancedSkewEpsilon = decimal.NewFromFloat(0.0001)

	// smallRateEpsilon separates the two decay speeds: rates already below
	// it decay with the faster base so they reach zero instead of lingering.
	smallRateEpsilon = decimal.NewFromFloat(0.0001)

	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// Metrics is the aggregate open-interest snapshot the price math consumes.
// Long and short values are sums of quantity*entryPrice over open positions.
type Metrics struct {
	TotalLongValue  decimal.Decimal
	TotalShortValue decimal.Decimal
	TotalOI         decimal.Decimal
	Volume24h       decimal.Decimal
}

// Skew returns the signed dollar imbalance, positive when longs dominate.
func (m Metrics) Skew() decimal.Decimal {
	return m.TotalLongValue.Sub(m.TotalShortValue)
}

// IndexPrice derives the trading price from the oracle baseline and the
// current skew:
//
//	indexPrice = marketPrice * (1 + clamp(skew/SkewScale, ±MaxPremium))
//
// The result is always within ±5% of marketPrice.
func IndexPrice(marketPrice decimal.Decimal, m Metrics) decimal.Decimal {
	premium := clamp(m.Skew().Div(SkewScale), MaxPremium.Neg(), MaxPremium)
	return marketPrice.Mul(one.Add(premium))
}

// FillPrice is the execution price for a trade of signed dollar size
// (positive long, negative short) against the given index price and skew:
//
//	fillPrice = indexPrice * (1 + (skew + tradeSize/2) / SkewScale)
//
// Half the trade's own size is charged as impact, so a trade worsening the
// imbalance pays a worse price and one improving it fills at or better than
// index.
func FillPrice(indexPrice, skew, tradeSize decimal.Decimal) decimal.Decimal {
	impact := skew.Add(tradeSize.Div(two)).Div(SkewScale)
	return indexPrice.Mul(one.Add(impact))
}

// PriceImpact is the relative deviation of a fill from the index price.
func PriceImpact(indexPrice, fillPrice decimal.Decimal) decimal.Decimal {
	if indexPrice.IsZero() {
		return decimal.Zero
	}
	return fillPrice.Sub(indexPrice).Div(indexPrice)
}

// FundingRate evolves the signed daily funding rate.
//
// With zero open interest the rate is zero. Otherwise the rate drifts toward
// the heavier side at up to MaxFundingVelocity per day. When the book is
// effectively balanced the new rate additionally decays multiplicatively:
// base 0.5 while the current rate is still material, base 0.1 once it is
// already small, so the rate converges to zero instead of shrinking forever.
func FundingRate(currentRate decimal.Decimal, m Metrics, daysElapsed float64) decimal.Decimal {
	if m.TotalOI.IsZero() {
		return decimal.Zero
	}

	normalizedSkew := clamp(m.Skew().Div(SkewScale), one.Neg(), one)
	deltaRate := normalizedSkew.Mul(MaxFundingVelocity).Mul(decimal.NewFromFloat(daysElapsed))
	newRate := currentRate.Add(deltaRate)

	if normalizedSkew.Abs().LessThan(balancedSkewEpsilon) {
		decayBase := 0.1
		if currentRate.Abs().GreaterThan(smallRateEpsilon) {
			decayBase = 0.5
		}
		factor := decimal.NewFromFloat(math.Pow(decayBase, daysElapsed))
		newRate = newRate.Mul(factor)
	}

	return newRate
}

// SignedSize returns the signed dollar trade size for a side: positive for
// longs, negative for shorts.
func SignedSize(notional decimal.Decimal, long bool) decimal.Decimal {
	if long {
		return notional
	}
	return notional.Neg()
}

func clamp(v, min, max decimal.Decimal) decimal.Decimal {
	if v.LessThan(min) {
		return min
	}
	if v.GreaterThan(max) {
		return max
	}
	return v
}
