// Package funds owns user balances and the idempotent crediting of
// externally verified deposits. The deposit verification collaborator sends
// (userId, amount, dedupeKey) tuples; replays of the same key are rejected
// with AlreadyExists and leave the balance untouched.
package funds

import (
	"errors"
	"time"

	"github.com/Hazyshades/mantle-estate-sub000/internal/auth"
	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"github.com/Hazyshades/mantle-estate-sub000/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service handles balance queries and external deposit credits.
type Service struct {
	db *gorm.DB
}

// NewService creates a new funds service with the given database connection
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CreditDeposit credits a pre-verified external deposit exactly once, keyed
// by dedupeKey. The credit and the dedupe record commit atomically.
func (s *Service) CreditDeposit(userID string, amount decimal.Decimal, dedupeKey string) (*types.DepositCreditResponse, error) {
	if userID == "" {
		return nil, types.InvalidArgumentf("user id is required")
	}
	if dedupeKey == "" {
		return nil, types.InvalidArgumentf("dedupe key is required")
	}
	if !amount.IsPositive() {
		return nil, types.InvalidArgumentf("deposit amount must be positive")
	}

	logger := log.With().
		Str("service", "funds").
		Str("user_id", userID).
		Str("dedupe_key", dedupeKey).
		Logger()

	var resp *types.DepositCreditResponse
	err := s.db.Transaction(func(tx *gorm.DB) error {
		db := NewDatabase(tx)

		existing, err := db.GetDepositByKey(dedupeKey)
		if err != nil {
			return err
		}
		if existing != nil {
			return types.ErrDuplicateDeposit
		}

		account, err := db.GetOrCreateAccountForUpdate(userID)
		if err != nil {
			return err
		}

		account.Balance = account.Balance.Add(amount)
		if err := db.SaveAccount(account); err != nil {
			return err
		}

		if err := db.CreateDeposit(&types.DepositRecord{
			DedupeKey: dedupeKey,
			UserID:    userID,
			Amount:    amount,
		}); err != nil {
			return err
		}

		resp = &types.DepositCreditResponse{
			UserID:     userID,
			Amount:     amount,
			DedupeKey:  dedupeKey,
			NewBalance: account.Balance,
			CreditedAt: time.Now(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Str("amount", amount.String()).Msg("credited external deposit")
	return resp, nil
}

// GetBalance returns the user's current balance, zero if no account exists.
func (s *Service) GetBalance(userID string) (*types.BalanceResponse, error) {
	account, err := NewDatabase(s.db).GetAccount(userID)
	if err != nil {
		if errors.Is(err, types.ErrAccountNotFound) {
			return &types.BalanceResponse{UserID: userID, Balance: decimal.Zero}, nil
		}
		return nil, err
	}
	return &types.BalanceResponse{UserID: userID, Balance: account.Balance}, nil
}

// GinHandlers contains HTTP handlers for balance and deposit endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for the funds endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

type creditDepositRequest struct {
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	DedupeKey string          `json:"dedupe_key"`
}

// CreditDepositHandler handles the internal, pre-verified deposit credit.
// The caller is trusted to have validated the on-chain event already.
func (h *GinHandlers) CreditDepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req creditDepositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		resp, err := h.service.CreditDeposit(req.UserID, req.Amount, req.DedupeKey)
		response.Handle(c, resp, err)
	}
}

// GetBalanceHandler handles GET requests for the caller's balance
func (h *GinHandlers) GetBalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserID(c)
		if userID == "" {
			response.Unauthorized(c, "Missing user identity")
			return
		}

		resp, err := h.service.GetBalance(userID)
		response.Handle(c, resp, err)
	}
}
