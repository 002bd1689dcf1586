package funds

import (
	"errors"

	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Database wraps account and deposit persistence. Construct it over a
// transaction handle to join an enclosing atomic mutation.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetAccountForUpdate loads an account under an exclusive row lock.
func (d *Database) GetAccountForUpdate(userID string) (*types.Account, error) {
	var account types.Account
	err := d.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetOrCreateAccountForUpdate loads an account under lock, creating a
// zero-balance row first if none exists.
func (d *Database) GetOrCreateAccountForUpdate(userID string) (*types.Account, error) {
	account, err := d.GetAccountForUpdate(userID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, types.ErrAccountNotFound) {
		return nil, err
	}

	created := &types.Account{UserID: userID}
	if err := d.db.Create(created).Error; err != nil {
		return nil, err
	}
	return d.GetAccountForUpdate(userID)
}

// GetAccount loads an account without locking, for read-only queries.
func (d *Database) GetAccount(userID string) (*types.Account, error) {
	var account types.Account
	err := d.db.Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// SaveAccount persists a mutated account row.
func (d *Database) SaveAccount(account *types.Account) error {
	return d.db.Save(account).Error
}

// GetDepositByKey returns the deposit credited under the dedupe key, or nil.
func (d *Database) GetDepositByKey(dedupeKey string) (*types.DepositRecord, error) {
	var record types.DepositRecord
	err := d.db.Where("dedupe_key = ?", dedupeKey).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// CreateDeposit appends a deposit record. The unique index on dedupe_key
// rejects replays that race past the pre-check.
func (d *Database) CreateDeposit(record *types.DepositRecord) error {
	return d.db.Create(record).Error
}
