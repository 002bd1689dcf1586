// Package markets owns the per-city market records: oracle baseline ingest,
// index/funding state, open-interest aggregation, and price history.
package markets

import (
	"errors"
	"time"

	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"github.com/Hazyshades/mantle-estate-sub000/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service handles market queries and oracle price ingestion.
type Service struct {
	db *gorm.DB
}

// NewService creates a new markets service with the given database connection
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// SetMarketPrice overwrites a market's oracle baseline, creating the market
// implicitly on the first price for a city. The engine never computes the
// baseline itself.
func (s *Service) SetMarketPrice(marketID, city string, price decimal.Decimal) (*types.Market, error) {
	if marketID == "" {
		return nil, types.InvalidArgumentf("market id is required")
	}
	if !price.IsPositive() {
		return nil, types.InvalidArgumentf("market price must be positive")
	}

	logger := log.With().
		Str("service", "markets").
		Str("market_id", marketID).
		Logger()

	var result *types.Market
	err := s.db.Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)

		market, err := db.GetMarketForUpdate(marketID)
		if errors.Is(err, types.ErrMarketNotFound) {
			market = &types.Market{
				MarketID:          marketID,
				City:              city,
				MarketPrice:       price,
				IndexPrice:        price,
				FundingRate:       decimal.Zero,
				LastFundingUpdate: time.Now(),
			}
			if err := db.CreateMarket(market); err != nil {
				return err
			}
			logger.Info().Str("price", price.String()).Msg("created market from first oracle price")
			result = market
			return nil
		}
		if err != nil {
			return err
		}

		market.MarketPrice = price
		if city != "" {
			market.City = city
		}
		// Recompute the index in the same transaction so it never sits
		// outside the clamp band around the new baseline.
		if err := Reprice(tx, market, time.Now()); err != nil {
			return err
		}
		result = market
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Debug().Str("price", price.String()).Msg("updated oracle baseline")
	return result, nil
}

// GetMarket returns a single market.
func (s *Service) GetMarket(marketID string) (*types.Market, error) {
	return NewDatabase(s.db).GetMarket(marketID)
}

// ListMarkets returns all markets.
func (s *Service) ListMarkets() ([]types.Market, error) {
	return NewDatabase(s.db).ListMarkets()
}

// GetPriceHistory returns recent price snapshots for a market.
func (s *Service) GetPriceHistory(marketID string, limit int) ([]types.PricePoint, error) {
	if _, err := NewDatabase(s.db).GetMarket(marketID); err != nil {
		return nil, err
	}
	return NewDatabase(s.db).GetPriceHistory(marketID, limit)
}

// GetMarketMetrics reports open interest, volume, and the available OI per
// side. Available OI for one side equals the opposite side's current OI.
func (s *Service) GetMarketMetrics(marketID string) (*types.MarketMetricsResponse, error) {
	if _, err := NewDatabase(s.db).GetMarket(marketID); err != nil {
		return nil, err
	}

	m, err := ComputeMetrics(s.db, marketID, "")
	if err != nil {
		return nil, err
	}

	return &types.MarketMetricsResponse{
		MarketID:         marketID,
		Volume24h:        m.Volume24h,
		OpenInterest:     m.TotalOI,
		LongOI:           m.TotalLongValue,
		ShortOI:          m.TotalShortValue,
		LongOIAvailable:  m.TotalShortValue,
		ShortOIAvailable: m.TotalLongValue,
	}, nil
}

// GinHandlers contains HTTP handlers for market endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for market endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// ListMarketsHandler handles GET requests for all markets
func (h *GinHandlers) ListMarketsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		markets, err := h.service.ListMarkets()
		response.Handle(c, markets, err)
	}
}

// GetMarketHandler handles GET requests for a single market
func (h *GinHandlers) GetMarketHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		market, err := h.service.GetMarket(c.Param("market_id"))
		response.Handle(c, market, err)
	}
}

// GetMarketMetricsHandler handles GET requests for market metrics
func (h *GinHandlers) GetMarketMetricsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics, err := h.service.GetMarketMetrics(c.Param("market_id"))
		response.Handle(c, metrics, err)
	}
}

// GetPriceHistoryHandler handles GET requests for market price history
func (h *GinHandlers) GetPriceHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		history, err := h.service.GetPriceHistory(c.Param("market_id"), 200)
		response.Handle(c, history, err)
	}
}

type oraclePriceRequest struct {
	City        string          `json:"city"`
	MarketPrice decimal.Decimal `json:"market_price"`
}

// SetMarketPriceHandler handles the internal oracle price push
func (h *GinHandlers) SetMarketPriceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req oraclePriceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		market, err := h.service.SetMarketPrice(c.Param("market_id"), req.City, req.MarketPrice)
		response.Handle(c, market, err)
	}
}
