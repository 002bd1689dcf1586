package trading

import (
	"errors"

	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Database wraps position and transaction-record persistence. Construct it
// over a transaction handle to join an enclosing atomic mutation.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// CreatePosition inserts a new position row.
func (d *Database) CreatePosition(position *types.Position) error {
	return d.db.Create(position).Error
}

// GetPosition loads a position without locking, for read-only queries.
func (d *Database) GetPosition(positionID string) (*types.Position, error) {
	var position types.Position
	err := d.db.Where("position_id = ?", positionID).First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrPositionNotFound
		}
		return nil, err
	}
	return &position, nil
}

// GetPositionForUpdate loads a position under an exclusive row lock so two
// concurrent closes of the same position cannot both succeed.
func (d *Database) GetPositionForUpdate(positionID string) (*types.Position, error) {
	var position types.Position
	err := d.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("position_id = ?", positionID).
		First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrPositionNotFound
		}
		return nil, err
	}
	return &position, nil
}

// SavePosition persists a mutated position row.
func (d *Database) SavePosition(position *types.Position) error {
	return d.db.Save(position).Error
}

// ListUserPositions returns a user's positions, newest first. When openOnly
// is set, closed positions are filtered out.
func (d *Database) ListUserPositions(userID string, openOnly bool) ([]types.Position, error) {
	query := d.db.Where("user_id = ?", userID)
	if openOnly {
		query = query.Where("closed_at IS NULL")
	}
	var positions []types.Position
	if err := query.Order("created_at DESC").Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

// CreateTransactionRecord appends an audit row. Records are write-once.
func (d *Database) CreateTransactionRecord(record *types.TransactionRecord) error {
	return d.db.Create(record).Error
}
