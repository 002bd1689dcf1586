package migrations

import (
	"gorm.io/gorm"
)

// AddLedgerIndexes creates the composite indexes the hot read paths need:
// open-interest scans filter positions by market and closed_at, and the 24h
// volume aggregate filters transaction records by market and created_at.
func AddLedgerIndexes(db *gorm.DB) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_positions_market_closed
			ON positions (market_id, closed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_transaction_records_market_created
			ON transaction_records (market_id, created_at)`,
	}

	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}

	return nil
}
