package markets

import (
	"time"

	"github.com/Hazyshades/mantle-estate-sub000/internal/pricing"
	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"gorm.io/gorm"
)

// ComputeMetrics aggregates open interest by side and trailing-24h volume for
// a market. Values are summed in Go over decimal fields rather than in SQL so
// the aggregate stays exact.
//
// excludePositionID must carry the closing position's id when the caller is
// pricing that position's own close: leaving the position in the aggregate
// would let its own open interest bias the price it closes at.
func ComputeMetrics(db *gorm.DB, marketID, excludePositionID string) (pricing.Metrics, error) {
	d := NewDatabase(db)

	positions, err := d.OpenPositions(marketID, excludePositionID)
	if err != nil {
		return pricing.Metrics{}, err
	}

	var m pricing.Metrics
	for _, p := range positions {
		value := p.Quantity.Mul(p.EntryPrice)
		if p.Side == types.SideLong {
			m.TotalLongValue = m.TotalLongValue.Add(value)
		} else {
			m.TotalShortValue = m.TotalShortValue.Add(value)
		}
	}
	m.TotalOI = m.TotalLongValue.Add(m.TotalShortValue)

	cutoff := time.Now().Add(-24 * time.Hour)
	records, err := d.TradeRecordsSince(marketID, cutoff)
	if err != nil {
		return pricing.Metrics{}, err
	}
	for _, r := range records {
		m.Volume24h = m.Volume24h.Add(r.Quantity.Mul(r.Price))
	}

	return m, nil
}
