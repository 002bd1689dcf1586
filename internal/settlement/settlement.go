// Package settlement periodically reprices every market so the index price
// tracks open interest and funding keeps accruing by wall-clock time even
// while no trades arrive.
package settlement

import (
	"time"

	"github.com/Hazyshades/mantle-estate-sub000/internal/markets"
	"gorm.io/gorm"
)

// nowFunc is swapped out by tests that advance the funding clock.
var nowFunc = time.Now

// Service reprices markets outside the trade path.
type Service struct {
	db *gorm.DB
}

// NewService creates a new settlement service with the given database connection
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// RepriceMarket recomputes one market's index price and funding rate inside
// its own transaction, holding the market row lock. The oracle baseline is
// refreshed by the external collaborator, never here.
func (s *Service) RepriceMarket(marketID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		market, err := markets.NewDatabase(tx).GetMarketForUpdate(marketID)
		if err != nil {
			return err
		}
		return markets.Reprice(tx, market, nowFunc())
	})
}

// RepriceAll sweeps every market. One failing market does not stop the
// sweep; the first error is returned after all markets were attempted.
func (s *Service) RepriceAll() error {
	ids, err := markets.NewDatabase(s.db).ListMarketIDs()
	if err != nil {
		return err
	}

	var firstErr error
	for _, id := range ids {
		if err := s.RepriceMarket(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
