package markets

import (
	"errors"
	"time"

	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Database wraps market and price-history persistence. Construct it over a
// transaction handle to join an enclosing atomic mutation.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetMarket loads a market without locking, for read-only queries.
func (d *Database) GetMarket(marketID string) (*types.Market, error) {
	var market types.Market
	err := d.db.Where("market_id = ?", marketID).First(&market).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrMarketNotFound
		}
		return nil, err
	}
	return &market, nil
}

// GetMarketForUpdate loads a market under an exclusive row lock. All
// read-then-write paths on the Market row go through here so concurrent
// index/funding updates serialize.
func (d *Database) GetMarketForUpdate(marketID string) (*types.Market, error) {
	var market types.Market
	err := d.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("market_id = ?", marketID).
		First(&market).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrMarketNotFound
		}
		return nil, err
	}
	return &market, nil
}

// ListMarkets returns all markets ordered by id.
func (d *Database) ListMarkets() ([]types.Market, error) {
	var markets []types.Market
	if err := d.db.Order("market_id").Find(&markets).Error; err != nil {
		return nil, err
	}
	return markets, nil
}

// ListMarketIDs returns every market id, for the settlement sweep.
func (d *Database) ListMarketIDs() ([]string, error) {
	var ids []string
	err := d.db.Model(&types.Market{}).
		Order("market_id").
		Pluck("market_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SaveMarket persists a mutated market row.
func (d *Database) SaveMarket(market *types.Market) error {
	return d.db.Save(market).Error
}

// CreateMarket inserts a new market row.
func (d *Database) CreateMarket(market *types.Market) error {
	return d.db.Create(market).Error
}

// CreatePricePoint appends a price-history snapshot.
func (d *Database) CreatePricePoint(point *types.PricePoint) error {
	return d.db.Create(point).Error
}

// GetPriceHistory returns the most recent price points for a market, newest
// first.
func (d *Database) GetPriceHistory(marketID string, limit int) ([]types.PricePoint, error) {
	if limit <= 0 {
		limit = 200
	}
	var points []types.PricePoint
	err := d.db.Where("market_id = ?", marketID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&points).Error
	if err != nil {
		return nil, err
	}
	return points, nil
}

// OpenPositions returns the open positions on a market, optionally excluding
// one position id.
func (d *Database) OpenPositions(marketID, excludePositionID string) ([]types.Position, error) {
	query := d.db.Where("market_id = ? AND closed_at IS NULL", marketID)
	if excludePositionID != "" {
		query = query.Where("position_id <> ?", excludePositionID)
	}
	var positions []types.Position
	if err := query.Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

// TradeRecordsSince returns open/close transaction records on a market newer
// than the cutoff, for the trailing-volume aggregate.
func (d *Database) TradeRecordsSince(marketID string, cutoff time.Time) ([]types.TransactionRecord, error) {
	var records []types.TransactionRecord
	err := d.db.Where(
		"market_id = ? AND type IN (?, ?) AND created_at > ?",
		marketID, types.TxTypeOpen, types.TxTypeClose, cutoff,
	).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
