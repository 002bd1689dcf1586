package database

import (
	"fmt"

	"github.com/Hazyshades/mantle-estate-sub000/internal/database/migrations"
	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase initializes and returns a new GORM DB connection.
// An empty path defaults to a local file database.
func NewDatabase(path string) (*gorm.DB, error) {
	if path == "" {
		path = "estate.db"
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate applies the schema for every engine model plus hand-written index
// migrations.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&types.Market{},
		&types.Position{},
		&types.LiquidityPool{},
		&types.LpPosition{},
		&types.TransactionRecord{},
		&types.ProtocolFeeAccount{},
		&types.Account{},
		&types.DepositRecord{},
		&types.PricePoint{},
	)
	if err != nil {
		return err
	}

	if err := migrations.AddLedgerIndexes(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
