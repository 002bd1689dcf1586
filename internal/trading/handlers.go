package trading

import (
	"github.com/Hazyshades/mantle-estate-sub000/internal/auth"
	"github.com/Hazyshades/mantle-estate-sub000/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// GinHandlers contains HTTP handlers for position endpoints. The external
// handlers resolve the trader from the JWT; the internal handlers trust a
// user id passed by another service. Both call the same service operations,
// so the transaction logic has a single source of truth.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for position endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

type openPositionRequest struct {
	MarketID  string          `json:"market_id"`
	Side      string          `json:"side"`
	AmountUsd decimal.Decimal `json:"amount_usd"`
	Leverage  int             `json:"leverage"`
	// UserID is honored only on the internal route.
	UserID string `json:"user_id,omitempty"`
}

type closePositionRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// OpenPositionHandler handles POST requests to open a position for the
// authenticated trader
func (h *GinHandlers) OpenPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		var req openPositionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		resp, err := h.service.OpenPosition(userID, req.MarketID, req.Side, req.AmountUsd, req.Leverage)
		response.Handle(c, resp, err)
	}
}

// ClosePositionHandler handles POST requests to close the authenticated
// trader's position
func (h *GinHandlers) ClosePositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		resp, err := h.service.ClosePosition(userID, c.Param("position_id"))
		response.Handle(c, resp, err)
	}
}

// GetPositionHandler handles GET requests for a single position
func (h *GinHandlers) GetPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		position, err := h.service.GetPosition(userID, c.Param("position_id"))
		response.Handle(c, position, err)
	}
}

// ListPositionsHandler handles GET requests for the trader's positions.
// Pass ?open=true to filter to open positions only.
func (h *GinHandlers) ListPositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		positions, err := h.service.ListPositions(userID, c.Query("open") == "true")
		response.Handle(c, positions, err)
	}
}

// InternalOpenPositionHandler is the trusted entry point: it performs the
// same open operation but takes the trader id from the request body.
func (h *GinHandlers) InternalOpenPositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req openPositionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		resp, err := h.service.OpenPosition(req.UserID, req.MarketID, req.Side, req.AmountUsd, req.Leverage)
		response.Handle(c, resp, err)
	}
}

// InternalClosePositionHandler is the trusted close entry point.
func (h *GinHandlers) InternalClosePositionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req closePositionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		resp, err := h.service.ClosePosition(req.UserID, c.Param("position_id"))
		response.Handle(c, resp, err)
	}
}
