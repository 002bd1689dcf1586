package markets

import (
	"errors"
	"testing"
	"time"

	"github.com/Hazyshades/mantle-estate-sub000/internal/testutil"
	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func createPosition(t *testing.T, db *gorm.DB, positionID, marketID, side string, quantity, entryPrice decimal.Decimal) {
	t.Helper()
	err := db.Create(&types.Position{
		PositionID:     positionID,
		UserID:         "USER_1",
		MarketID:       marketID,
		Side:           side,
		Quantity:       quantity,
		EntryPrice:     entryPrice,
		Leverage:       1,
		MarginRequired: quantity.Mul(entryPrice),
	}).Error
	if err != nil {
		t.Fatalf("failed to create position: %v", err)
	}
}

func TestSetMarketPriceCreatesMarket(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)

	market, err := service.SetMarketPrice("NYC_RE", "New York", d(300000))
	if err != nil {
		t.Fatalf("SetMarketPrice failed: %v", err)
	}

	if !market.MarketPrice.Equal(d(300000)) {
		t.Errorf("expected market price 300000, got %s", market.MarketPrice)
	}
	// A fresh market has no open interest, so index equals the baseline
	// and funding is flat.
	if !market.IndexPrice.Equal(d(300000)) {
		t.Errorf("expected index price 300000, got %s", market.IndexPrice)
	}
	if !market.FundingRate.IsZero() {
		t.Errorf("expected zero funding rate, got %s", market.FundingRate)
	}
}

func TestSetMarketPriceUpdatesBaseline(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)

	if _, err := service.SetMarketPrice("NYC_RE", "New York", d(300000)); err != nil {
		t.Fatalf("SetMarketPrice failed: %v", err)
	}
	market, err := service.SetMarketPrice("NYC_RE", "", d(310000))
	if err != nil {
		t.Fatalf("SetMarketPrice failed: %v", err)
	}

	if !market.MarketPrice.Equal(d(310000)) {
		t.Errorf("expected updated baseline 310000, got %s", market.MarketPrice)
	}
	if market.City != "New York" {
		t.Errorf("empty city overwrote existing value: %q", market.City)
	}
	// No open interest, so the refreshed index tracks the new baseline
	if !market.IndexPrice.Equal(d(310000)) {
		t.Errorf("expected index 310000 after baseline update, got %s", market.IndexPrice)
	}
}

func TestSetMarketPriceRecomputesIndex(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)

	if _, err := service.SetMarketPrice("NYC_RE", "New York", d(300000)); err != nil {
		t.Fatalf("SetMarketPrice failed: %v", err)
	}
	// 1,000,000 of long skew pins the index at the +5% clamp
	createPosition(t, db, "POS_1", "NYC_RE", types.SideLong, d(10), d(100000))

	market, err := service.SetMarketPrice("NYC_RE", "", d(200000))
	if err != nil {
		t.Fatalf("SetMarketPrice failed: %v", err)
	}

	// The index must land inside the clamp band around the new baseline in
	// the same call, not on the next trade or scheduler tick.
	if !market.IndexPrice.Equal(d(210000)) {
		t.Errorf("expected clamped index 210000, got %s", market.IndexPrice)
	}

	history, err := service.GetPriceHistory("NYC_RE", 10)
	if err != nil {
		t.Fatalf("GetPriceHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 price point, got %d", len(history))
	}
}

func TestSetMarketPriceValidation(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)

	if _, err := service.SetMarketPrice("", "New York", d(100)); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("expected InvalidArgument for missing id, got %v", err)
	}
	if _, err := service.SetMarketPrice("NYC_RE", "New York", d(-1)); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("expected InvalidArgument for negative price, got %v", err)
	}
}

func TestComputeMetricsAggregatesBySide(t *testing.T) {
	db := testutil.NewTestDB(t)

	createPosition(t, db, "POS_1", "NYC_RE", types.SideLong, d(2), d(100))
	createPosition(t, db, "POS_2", "NYC_RE", types.SideShort, d(1), d(150))
	// Positions on other markets and closed positions stay out
	createPosition(t, db, "POS_3", "LON_RE", types.SideLong, d(5), d(100))
	now := time.Now()
	err := db.Create(&types.Position{
		PositionID: "POS_4",
		UserID:     "USER_1",
		MarketID:   "NYC_RE",
		Side:       types.SideLong,
		Quantity:   d(10),
		EntryPrice: d(100),
		Leverage:   1,
		ClosedAt:   &now,
	}).Error
	if err != nil {
		t.Fatalf("failed to create closed position: %v", err)
	}

	m, err := ComputeMetrics(db, "NYC_RE", "")
	if err != nil {
		t.Fatalf("ComputeMetrics failed: %v", err)
	}

	if !m.TotalLongValue.Equal(d(200)) {
		t.Errorf("expected long value 200, got %s", m.TotalLongValue)
	}
	if !m.TotalShortValue.Equal(d(150)) {
		t.Errorf("expected short value 150, got %s", m.TotalShortValue)
	}
	if !m.TotalOI.Equal(d(350)) {
		t.Errorf("expected total OI 350, got %s", m.TotalOI)
	}
	if !m.Skew().Equal(d(50)) {
		t.Errorf("expected skew 50, got %s", m.Skew())
	}
}

func TestComputeMetricsExcludesPosition(t *testing.T) {
	db := testutil.NewTestDB(t)

	createPosition(t, db, "POS_1", "NYC_RE", types.SideLong, d(2), d(100))
	createPosition(t, db, "POS_2", "NYC_RE", types.SideShort, d(1), d(150))

	m, err := ComputeMetrics(db, "NYC_RE", "POS_1")
	if err != nil {
		t.Fatalf("ComputeMetrics failed: %v", err)
	}

	if !m.TotalLongValue.IsZero() {
		t.Errorf("excluded position still counted: long value %s", m.TotalLongValue)
	}
	if !m.TotalShortValue.Equal(d(150)) {
		t.Errorf("expected short value 150, got %s", m.TotalShortValue)
	}
}

func TestComputeMetricsVolume24h(t *testing.T) {
	db := testutil.NewTestDB(t)

	records := []types.TransactionRecord{
		{TxID: "TXN_1", Type: types.TxTypeOpen, MarketID: "NYC_RE", Quantity: d(2), Price: d(100)},
		{TxID: "TXN_2", Type: types.TxTypeClose, MarketID: "NYC_RE", Quantity: d(1), Price: d(110)},
		// Pool flows are not trades
		{TxID: "TXN_3", Type: types.TxTypePoolDeposit, MarketID: "NYC_RE", Quantity: d(100), Price: d(1)},
		// Stale and foreign records stay out
		{TxID: "TXN_4", Type: types.TxTypeOpen, MarketID: "NYC_RE", Quantity: d(50), Price: d(100)},
		{TxID: "TXN_5", Type: types.TxTypeOpen, MarketID: "LON_RE", Quantity: d(3), Price: d(100)},
	}
	for _, r := range records {
		record := r
		if err := db.Create(&record).Error; err != nil {
			t.Fatalf("failed to create record: %v", err)
		}
	}
	stale := time.Now().Add(-25 * time.Hour)
	err := db.Model(&types.TransactionRecord{}).
		Where("tx_id = ?", "TXN_4").
		Update("created_at", stale).Error
	if err != nil {
		t.Fatalf("failed to age record: %v", err)
	}

	m, err := ComputeMetrics(db, "NYC_RE", "")
	if err != nil {
		t.Fatalf("ComputeMetrics failed: %v", err)
	}

	// 2*100 + 1*110
	if !m.Volume24h.Equal(d(310)) {
		t.Errorf("expected 24h volume 310, got %s", m.Volume24h)
	}
}

func TestGetMarketMetricsAvailableOI(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)

	if _, err := service.SetMarketPrice("NYC_RE", "New York", d(300000)); err != nil {
		t.Fatalf("SetMarketPrice failed: %v", err)
	}
	createPosition(t, db, "POS_1", "NYC_RE", types.SideLong, d(2), d(100))
	createPosition(t, db, "POS_2", "NYC_RE", types.SideShort, d(1), d(150))

	metrics, err := service.GetMarketMetrics("NYC_RE")
	if err != nil {
		t.Fatalf("GetMarketMetrics failed: %v", err)
	}

	// Available OI on each side is what the opposite side currently backs
	if !metrics.LongOIAvailable.Equal(d(150)) {
		t.Errorf("expected long available 150, got %s", metrics.LongOIAvailable)
	}
	if !metrics.ShortOIAvailable.Equal(d(200)) {
		t.Errorf("expected short available 200, got %s", metrics.ShortOIAvailable)
	}
}

func TestGetMarketMetricsUnknownMarket(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)

	if _, err := service.GetMarketMetrics("NOWHERE"); !errors.Is(err, types.ErrMarketNotFound) {
		t.Errorf("expected MarketNotFound, got %v", err)
	}
	if _, err := service.GetPriceHistory("NOWHERE", 10); !errors.Is(err, types.ErrMarketNotFound) {
		t.Errorf("expected MarketNotFound, got %v", err)
	}
}

func TestRepriceRefreshesIndexAndHistory(t *testing.T) {
	db := testutil.NewTestDB(t)
	service := NewService(db)

	if _, err := service.SetMarketPrice("NYC_RE", "New York", d(300000)); err != nil {
		t.Fatalf("SetMarketPrice failed: %v", err)
	}
	// 1,000,000 of long skew moves the index by 10%, clamped to 5%
	createPosition(t, db, "POS_1", "NYC_RE", types.SideLong, d(10), d(100000))

	market, err := NewDatabase(db).GetMarket("NYC_RE")
	if err != nil {
		t.Fatalf("GetMarket failed: %v", err)
	}
	if err := Reprice(db, market, time.Now()); err != nil {
		t.Fatalf("Reprice failed: %v", err)
	}

	if !market.IndexPrice.Equal(d(315000)) {
		t.Errorf("expected clamped index 315000, got %s", market.IndexPrice)
	}

	history, err := service.GetPriceHistory("NYC_RE", 10)
	if err != nil {
		t.Fatalf("GetPriceHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 price point, got %d", len(history))
	}
	if !history[0].IndexPrice.Equal(d(315000)) {
		t.Errorf("expected snapshot index 315000, got %s", history[0].IndexPrice)
	}
}
