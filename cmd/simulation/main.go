package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Hazyshades/mantle-estate-sub000/internal/auth"
	"github.com/Hazyshades/mantle-estate-sub000/internal/database"
	"github.com/Hazyshades/mantle-estate-sub000/internal/funds"
	"github.com/Hazyshades/mantle-estate-sub000/internal/markets"
	"github.com/Hazyshades/mantle-estate-sub000/internal/pool"
	"github.com/Hazyshades/mantle-estate-sub000/internal/trading"
	"github.com/Hazyshades/mantle-estate-sub000/internal/types"
	"github.com/Hazyshades/mantle-estate-sub000/pkg/middleware"
)

const (
	minTrades     = 15
	maxTrades     = 150
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
	jwtSecret     = "estate-secret-key"
)

// cityMarkets seeds one market per city with its oracle base price (USD per
// square meter of the city index).
var cityMarkets = map[string]struct {
	city  string
	price float64
}{
	"NYC_RE": {"New York", 15000},
	"LON_RE": {"London", 12500},
	"TOK_RE": {"Tokyo", 9800},
	"PAR_RE": {"Paris", 11200},
	"BER_RE": {"Berlin", 5400},
}

var sides = []string{types.SideLong, types.SideShort}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the perpetuals API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	mu        sync.Mutex
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":          {name: "Authentication"},
			"oracle":        {name: "Oracle Price"},
			"deposit":       {name: "Credit Deposit"},
			"pool_deposit":  {name: "Pool Deposit"},
			"pool_withdraw": {name: "Pool Withdraw"},
			"open":          {name: "Open Position"},
			"close":         {name: "Close Position"},
			"metrics":       {name: "Market Metrics"},
		},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// record tracks a request duration and failure state for a route
func (sc *simulationClient) record(route string, start time.Time, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.stats[route].addDuration(time.Since(start))
	if failed {
		sc.stats[route].failures++
	}
}

// doJSON issues an authenticated request with an optional JSON body and
// decodes the envelope's data field into out
func (sc *simulationClient) doJSON(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewBuffer(encoded)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("path", path).Str("response", string(respBody)).Msg("API response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}

	envelope := struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}{}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return json.Unmarshal(envelope.Data, out)
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	var failed bool
	defer func() { sc.record("auth", start, failed) }()

	credentials := map[string]string{
		"api_key":    auth.TestAPIKey,
		"api_secret": auth.TestAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		failed = true
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		failed = true
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		failed = true
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"jwt_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		failed = true
		return "", err
	}

	return result.Token, nil
}

// setMarketPrice pushes an oracle observation for a market
func (sc *simulationClient) setMarketPrice(marketID, city string, price float64) error {
	start := time.Now()
	var failed bool
	defer func() { sc.record("oracle", start, failed) }()

	body := map[string]interface{}{
		"city":         city,
		"market_price": price,
	}
	if err := sc.doJSON("POST", fmt.Sprintf("/api/v1/internal/oracle/%s", marketID), body, nil); err != nil {
		failed = true
		return err
	}
	return nil
}

// creditDeposit credits a verified external deposit to a user's balance
func (sc *simulationClient) creditDeposit(userID string, amount float64) (*types.DepositCreditResponse, error) {
	start := time.Now()
	var failed bool
	defer func() { sc.record("deposit", start, failed) }()

	body := map[string]interface{}{
		"user_id":    userID,
		"amount":     amount,
		"dedupe_key": uuid.New().String(),
	}
	var out types.DepositCreditResponse
	if err := sc.doJSON("POST", "/api/v1/internal/deposits", body, &out); err != nil {
		failed = true
		return nil, err
	}
	return &out, nil
}

// depositToPool adds liquidity to a market's pool as the authenticated user
func (sc *simulationClient) depositToPool(marketID string, amount float64) (*types.PoolDepositResponse, error) {
	start := time.Now()
	var failed bool
	defer func() { sc.record("pool_deposit", start, failed) }()

	body := map[string]interface{}{"amount": amount}
	var out types.PoolDepositResponse
	if err := sc.doJSON("POST", fmt.Sprintf("/api/v1/pools/%s/deposits", marketID), body, &out); err != nil {
		failed = true
		return nil, err
	}
	return &out, nil
}

// withdrawFromPool redeems pool shares as the authenticated user
func (sc *simulationClient) withdrawFromPool(marketID string, shares decimal.Decimal) (*types.PoolWithdrawResponse, error) {
	start := time.Now()
	var failed bool
	defer func() { sc.record("pool_withdraw", start, failed) }()

	body := map[string]interface{}{"shares": shares}
	var out types.PoolWithdrawResponse
	if err := sc.doJSON("POST", fmt.Sprintf("/api/v1/pools/%s/withdrawals", marketID), body, &out); err != nil {
		failed = true
		return nil, err
	}
	return &out, nil
}

// openPosition opens a position for a trader via the internal trusted route
func (sc *simulationClient) openPosition(userID, marketID, side string, amountUsd float64, leverage int) (*types.OpenPositionResponse, error) {
	start := time.Now()
	var failed bool
	defer func() { sc.record("open", start, failed) }()

	body := map[string]interface{}{
		"user_id":    userID,
		"market_id":  marketID,
		"side":       side,
		"amount_usd": amountUsd,
		"leverage":   leverage,
	}
	var out types.OpenPositionResponse
	if err := sc.doJSON("POST", "/api/v1/internal/positions", body, &out); err != nil {
		failed = true
		return nil, err
	}
	return &out, nil
}

// closePosition closes a trader's position via the internal trusted route
func (sc *simulationClient) closePosition(userID, positionID string) (*types.ClosePositionResponse, error) {
	start := time.Now()
	var failed bool
	defer func() { sc.record("close", start, failed) }()

	body := map[string]interface{}{"user_id": userID}
	var out types.ClosePositionResponse
	if err := sc.doJSON("POST", fmt.Sprintf("/api/v1/internal/positions/%s/close", positionID), body, &out); err != nil {
		failed = true
		return nil, err
	}
	return &out, nil
}

// getMarketMetrics retrieves open interest and volume for a market
func (sc *simulationClient) getMarketMetrics(marketID string) (*types.MarketMetricsResponse, error) {
	start := time.Now()
	var failed bool
	defer func() { sc.record("metrics", start, failed) }()

	var out types.MarketMetricsResponse
	if err := sc.doJSON("GET", fmt.Sprintf("/api/v1/markets/%s/metrics", marketID), nil, &out); err != nil {
		failed = true
		return nil, err
	}
	return &out, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\n📊 API Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

type openedPosition struct {
	userID     string
	positionID string
	marketID   string
	side       string
}

// main runs the perpetuals simulation
// It starts a local API server, seeds markets and liquidity, then drives
// multiple concurrent traders through open/close round trips
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	// Seed markets from the oracle
	marketIDs := make([]string, 0, len(cityMarkets))
	for marketID, seed := range cityMarkets {
		if err := simClient.setMarketPrice(marketID, seed.city, seed.price); err != nil {
			log.Fatal().Err(err).Str("market_id", marketID).Msg("Failed to seed market price")
		}
		marketIDs = append(marketIDs, marketID)
	}
	sort.Strings(marketIDs)
	log.Info().Int("markets", len(marketIDs)).Msg("Markets seeded")

	// Fund the liquidity provider and every trader
	lpUserID := auth.TestAPIKey
	if _, err := simClient.creditDeposit(lpUserID, 5_000_000); err != nil {
		log.Fatal().Err(err).Msg("Failed to fund liquidity provider")
	}
	for w := 0; w < numWorkers; w++ {
		if _, err := simClient.creditDeposit(traderID(w), 250_000); err != nil {
			log.Fatal().Err(err).Str("user_id", traderID(w)).Msg("Failed to fund trader")
		}
	}

	// Seed each pool with liquidity
	lpShares := make(map[string]decimal.Decimal)
	for _, marketID := range marketIDs {
		deposit, err := simClient.depositToPool(marketID, 500_000)
		if err != nil {
			log.Fatal().Err(err).Str("market_id", marketID).Msg("Failed to seed pool")
		}
		lpShares[marketID] = deposit.SharesMinted
		log.Info().
			Str("market_id", marketID).
			Str("pool_id", deposit.PoolID).
			Str("shares_minted", deposit.SharesMinted.String()).
			Msg("Pool seeded")
	}

	targetTrades := rand.Intn(maxTrades-minTrades) + minTrades
	log.Info().Int("target_trades", targetTrades).Msg("Starting simulation")

	positionsChan := make(chan openedPosition, targetTrades)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			openPositionsHTTP(workerID, targetTrades/numWorkers, marketIDs, simClient, positionsChan)
		}(i)
	}

	wg.Wait()
	close(positionsChan)

	var opened []openedPosition
	for p := range positionsChan {
		opened = append(opened, p)
	}
	log.Info().Int("positions_opened", len(opened)).Msg("All positions opened")

	stats := struct {
		TargetTrades    int
		OpenedPositions int
		ClosedPositions int
		FailedOpens     int
		FailedCloses    int
		TotalPnl        decimal.Decimal
		TotalFees       decimal.Decimal
		StartTime       time.Time
		Markets         map[string]int
		Sides           map[string]int
	}{
		TargetTrades: targetTrades,
		StartTime:    time.Now(),
		Markets:      make(map[string]int),
		Sides:        make(map[string]int),
	}
	stats.OpenedPositions = len(opened)
	stats.FailedOpens = targetTrades/numWorkers*numWorkers - len(opened)

	for _, p := range opened {
		stats.Markets[p.marketID]++
		stats.Sides[p.side]++

		closed, err := simClient.closePosition(p.userID, p.positionID)
		if err != nil {
			log.Error().Err(err).
				Str("position_id", p.positionID).
				Msg("Failed to close position")
			stats.FailedCloses++
			continue
		}
		stats.ClosedPositions++
		stats.TotalPnl = stats.TotalPnl.Add(closed.Pnl)
		stats.TotalFees = stats.TotalFees.Add(closed.ClosingFee)
		log.Info().
			Str("position_id", p.positionID).
			Str("exit_price", closed.ExitPrice.String()).
			Str("pnl", closed.Pnl.String()).
			Msg("Position closed")
	}

	// Withdraw half the provider's stake from each pool
	for _, marketID := range marketIDs {
		half := lpShares[marketID].Div(decimal.NewFromInt(2))
		withdrawal, err := simClient.withdrawFromPool(marketID, half)
		if err != nil {
			log.Error().Err(err).Str("market_id", marketID).Msg("Failed to withdraw from pool")
			continue
		}
		log.Info().
			Str("market_id", marketID).
			Str("amount", withdrawal.AmountWithdrawn.String()).
			Str("price_per_share", withdrawal.PricePerShare.String()).
			Msg("Pool withdrawal")
	}

	// Print summary
	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🚀 PERPETUALS SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
📊 Trade Statistics
------------------
Target Trades:    %d
Opened:           %d
Closed:           %d
Failed Opens:     %d
Failed Closes:    %d
Trader P&L:       $%s
Closing Fees:     $%s
Duration:         %v

📈 Market Distribution
--------------------
`, stats.TargetTrades, stats.OpenedPositions, stats.ClosedPositions,
		stats.FailedOpens, stats.FailedCloses,
		stats.TotalPnl.StringFixed(2), stats.TotalFees.StringFixed(2),
		duration.Round(time.Millisecond))

	maxMarketCount := 0
	for _, count := range stats.Markets {
		if count > maxMarketCount {
			maxMarketCount = count
		}
	}
	for _, marketID := range marketIDs {
		count := stats.Markets[marketID]
		barLength := 0
		if maxMarketCount > 0 {
			barLength = int(float64(count) / float64(maxMarketCount) * 20)
		}
		bar := strings.Repeat("█", barLength)
		fmt.Printf("%-8s: %s (%d)\n", marketID, bar, count)
	}

	fmt.Println("\n📉 Side Distribution")
	fmt.Println("------------------")
	for side, count := range stats.Sides {
		barLength := 0
		if stats.OpenedPositions > 0 {
			barLength = int(float64(count) / float64(stats.OpenedPositions) * 20)
		}
		bar := strings.Repeat("█", barLength)
		fmt.Printf("%-6s: %s (%d)\n", side, bar, count)
	}

	fmt.Println("\n📐 Final Market State")
	fmt.Println("-------------------")
	for _, marketID := range marketIDs {
		metrics, err := simClient.getMarketMetrics(marketID)
		if err != nil {
			log.Error().Err(err).Str("market_id", marketID).Msg("Failed to fetch metrics")
			continue
		}
		fmt.Printf("%-8s: OI $%s (long $%s / short $%s), 24h volume $%s\n",
			marketID,
			metrics.OpenInterest.StringFixed(2),
			metrics.LongOI.StringFixed(2),
			metrics.ShortOI.StringFixed(2),
			metrics.Volume24h.StringFixed(2))
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	successRate := 0.0
	if stats.OpenedPositions > 0 {
		successRate = float64(stats.ClosedPositions) / float64(stats.OpenedPositions) * 100
	}
	log.Info().
		Float64("success_rate", successRate).
		Int("opened", stats.OpenedPositions).
		Int("closed", stats.ClosedPositions).
		Str("trader_pnl", stats.TotalPnl.StringFixed(2)).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

func traderID(workerID int) string {
	return fmt.Sprintf("TRADER_%d", workerID)
}

// openPositionsHTTP opens random positions as a trader
// Runs as a worker goroutine, sending opened positions to positionsChan
func openPositionsHTTP(workerID, numTrades int, marketIDs []string, simClient *simulationClient, positionsChan chan<- openedPosition) {
	userID := traderID(workerID)
	for i := 0; i < numTrades; i++ {
		marketID := marketIDs[rand.Intn(len(marketIDs))]
		side := sides[rand.Intn(len(sides))]
		amountUsd := float64(rand.Intn(900) + 100)
		leverage := rand.Intn(2) + 1

		position, err := simClient.openPosition(userID, marketID, side, amountUsd, leverage)
		if err != nil {
			log.Error().Err(err).
				Str("user_id", userID).
				Str("market_id", marketID).
				Msg("Failed to open position")
			continue
		}

		positionsChan <- openedPosition{
			userID:     userID,
			positionID: position.PositionID,
			marketID:   marketID,
			side:       side,
		}
		log.Info().
			Str("user_id", userID).
			Str("position_id", position.PositionID).
			Str("market_id", marketID).
			Str("side", side).
			Str("entry_price", position.EntryPrice.String()).
			Float64("amount_usd", amountUsd).
			Int("leverage", leverage).
			Msg("Position opened")

		// Random sleep between trades
		time.Sleep(time.Duration(rand.Intn(500)) * time.Millisecond)
	}
}

// startServer initializes and starts the perpetuals API server
// Sets up all required services, handlers and routes
func startServer() error {
	db, err := database.NewDatabase(os.Getenv("DATABASE_PATH"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	authService := auth.NewService(jwtSecret)
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	fundsService := funds.NewService(db)
	marketsService := markets.NewService(db)
	poolService := pool.NewService(db)
	tradingService := trading.NewService(db)

	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	fundsHandlers := funds.NewGinHandlers(fundsService)
	marketsHandlers := markets.NewGinHandlers(marketsService)
	poolHandlers := pool.NewGinHandlers(poolService)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	setupRoutes(router, authHandlers, tradingHandlers, poolHandlers, marketsHandlers, fundsHandlers)

	return router.Run(":8080")
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality and applies appropriate middleware
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	poolHandlers *pool.GinHandlers,
	marketsHandlers *markets.GinHandlers,
	fundsHandlers *funds.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		marketsGroup := v1.Group("/markets")
		{
			marketsGroup.GET("", marketsHandlers.ListMarketsHandler())
			marketsGroup.GET("/:market_id", marketsHandlers.GetMarketHandler())
			marketsGroup.GET("/:market_id/metrics", marketsHandlers.GetMarketMetricsHandler())
			marketsGroup.GET("/:market_id/history", marketsHandlers.GetPriceHistoryHandler())
		}

		positions := v1.Group("/positions")
		positions.Use(middleware.JWTAuth(jwtSecret))
		{
			positions.POST("", tradingHandlers.OpenPositionHandler())
			positions.GET("", tradingHandlers.ListPositionsHandler())
			positions.GET("/:position_id", tradingHandlers.GetPositionHandler())
			positions.POST("/:position_id/close", tradingHandlers.ClosePositionHandler())
		}

		pools := v1.Group("/pools")
		pools.Use(middleware.JWTAuth(jwtSecret))
		{
			pools.GET("/:market_id", poolHandlers.GetPoolHandler())
			pools.POST("/:market_id/deposits", poolHandlers.DepositHandler())
			pools.POST("/:market_id/withdrawals", poolHandlers.WithdrawHandler())
		}

		balance := v1.Group("/balance")
		balance.Use(middleware.JWTAuth(jwtSecret))
		{
			balance.GET("", fundsHandlers.GetBalanceHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/oracle/:market_id", marketsHandlers.SetMarketPriceHandler())
			internal.POST("/deposits", fundsHandlers.CreditDepositHandler())
			internal.POST("/positions", tradingHandlers.InternalOpenPositionHandler())
			internal.POST("/positions/:position_id/close", tradingHandlers.InternalClosePositionHandler())
		}
	}
}
