// Package papertrader simulates taking the engine's strongest signals
// with a fixed-size position book. Open positions and balance persist as
// a JSON portfolio file; closed trades additionally land in a sqlite
// ledger for offline analysis.
package papertrader

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	appconfig "signalflow/config"
	"signalflow/internal/model"
	"signalflow/logger"
)

const (
	SideLong  = "LONG"
	SideShort = "SHORT"

	ReasonTakeProfit = "take_profit"
	ReasonStopLoss   = "stop_loss"
)

// Position is one simulated open trade.
type Position struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	EntryPrice float64 `json:"entryPrice"`
	Quantity   float64 `json:"quantity"`
	Signal     float64 `json:"signal"`
	OpenedAt   string  `json:"openedAt"`
}

// ClosedTrade is one settled position.
type ClosedTrade struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	EntryPrice float64 `json:"entryPrice"`
	ExitPrice  float64 `json:"exitPrice"`
	PnL        float64 `json:"pnl"`
	Reason     string  `json:"reason"`
	OpenedAt   string  `json:"openedAt"`
	ClosedAt   string  `json:"closedAt"`
}

// Portfolio is the persisted trading state.
type Portfolio struct {
	Balance       float64              `json:"balance"`
	OpenPositions map[string]*Position `json:"openPositions"`
	TradeHistory  []ClosedTrade        `json:"tradeHistory"`
}

// Trader applies derived records to the simulated book.
type Trader struct {
	config *appconfig.Config
	log    *logger.Log

	mu        sync.Mutex
	portfolio Portfolio
	db        *sql.DB

	now func() time.Time
}

const ledgerSchema = `CREATE TABLE IF NOT EXISTS closed_trades (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	entry_price REAL NOT NULL,
	exit_price  REAL NOT NULL,
	pnl         REAL NOT NULL,
	reason      TEXT NOT NULL,
	opened_at   TEXT NOT NULL,
	closed_at   TEXT NOT NULL
)`

// New loads the portfolio file, or starts a fresh book with the
// configured balance, and opens the closed-trade ledger.
func New(cfg *appconfig.Config) (*Trader, error) {
	t := &Trader{
		config: cfg,
		log:    logger.GetLogger(),
		now:    time.Now,
	}

	if err := t.loadPortfolio(); err != nil {
		return nil, err
	}

	if cfg.PaperTrader.LedgerDB != "" {
		db, err := sql.Open("sqlite3", cfg.PaperTrader.LedgerDB)
		if err != nil {
			return nil, fmt.Errorf("open trade ledger: %w", err)
		}
		if _, err := db.Exec(ledgerSchema); err != nil {
			db.Close()
			return nil, fmt.Errorf("prepare trade ledger: %w", err)
		}
		t.db = db
	}

	t.log.WithComponent("papertrader").WithFields(logger.Fields{
		"balance":        t.portfolio.Balance,
		"open_positions": len(t.portfolio.OpenPositions),
	}).Info("paper trader ready")

	return t, nil
}

// Close releases the ledger handle.
func (t *Trader) Close() error {
	if t.db != nil {
		return t.db.Close()
	}
	return nil
}

func (t *Trader) loadPortfolio() error {
	path := t.config.PaperTrader.PortfolioFile

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.portfolio = Portfolio{
				Balance:       t.config.PaperTrader.StartingBalance,
				OpenPositions: make(map[string]*Position),
			}
			return nil
		}
		return fmt.Errorf("read portfolio: %w", err)
	}

	if err := json.Unmarshal(data, &t.portfolio); err != nil {
		return fmt.Errorf("parse portfolio: %w", err)
	}
	if t.portfolio.OpenPositions == nil {
		t.portfolio.OpenPositions = make(map[string]*Position)
	}
	return nil
}

// savePortfolio writes the book atomically; a crash mid-write must not
// corrupt the previous state.
func (t *Trader) savePortfolio() {
	path := t.config.PaperTrader.PortfolioFile
	if path == "" {
		return
	}

	data, err := json.MarshalIndent(t.portfolio, "", "  ")
	if err != nil {
		return
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		t.log.WithComponent("papertrader").WithError(err).Warn("could not write portfolio file")
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		t.log.WithComponent("papertrader").WithError(err).Warn("could not replace portfolio file")
	}
}

// OnRecord first settles any open position against the new price, then
// considers opening a position when the composite score clears the trade
// threshold.
func (t *Trader) OnRecord(record *model.Record) {
	if !t.config.PaperTrader.Enabled || record.Price <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.checkTrades(record.Symbol, record.Price)

	threshold := t.config.Thresholds.TradeScore
	if threshold <= 0 || math.Abs(record.Alpha7Score) < threshold {
		return
	}
	if _, open := t.portfolio.OpenPositions[record.Symbol]; open {
		return
	}

	// The composite score alone is not enough: the short-term VWAP
	// deviation must point the same way, matching the alert gate. An
	// unreadable deviation blocks the entry.
	deviation, ok := parsePercent(record.VWAPDeviation15m)
	if !ok || !sameSign(record.Alpha7Score, deviation) {
		t.log.WithComponent("papertrader").WithFields(logger.Fields{
			"symbol":   record.Symbol,
			"signal":   record.Alpha7Score,
			"vwap_15m": record.VWAPDeviation15m,
		}).Debug("signal disagrees with vwap deviation, entry skipped")
		return
	}

	size := t.config.PaperTrader.PositionSize
	if t.portfolio.Balance < size {
		t.log.WithComponent("papertrader").WithFields(logger.Fields{
			"symbol":  record.Symbol,
			"balance": t.portfolio.Balance,
		}).Debug("insufficient balance for new position")
		return
	}

	side := SideLong
	if record.Alpha7Score < 0 {
		side = SideShort
	}

	t.portfolio.Balance -= size
	t.portfolio.OpenPositions[record.Symbol] = &Position{
		Symbol:     record.Symbol,
		Side:       side,
		EntryPrice: record.Price,
		Quantity:   size / record.Price,
		Signal:     record.Alpha7Score,
		OpenedAt:   t.now().UTC().Format(time.RFC3339),
	}
	t.savePortfolio()

	t.log.WithComponent("papertrader").WithFields(logger.Fields{
		"symbol": record.Symbol,
		"side":   side,
		"price":  record.Price,
		"signal": record.Alpha7Score,
	}).Info("opened paper position")
}

// checkTrades closes the symbol's position when the price has crossed
// the take-profit or stop-loss distance. Callers hold the lock.
func (t *Trader) checkTrades(symbol string, price float64) {
	position, ok := t.portfolio.OpenPositions[symbol]
	if !ok {
		return
	}

	movePct := (price - position.EntryPrice) / position.EntryPrice * 100
	if position.Side == SideShort {
		movePct = -movePct
	}

	switch {
	case movePct >= t.config.PaperTrader.TakeProfitPercent:
		t.closePosition(position, price, movePct, ReasonTakeProfit)
	case movePct <= -t.config.PaperTrader.StopLossPercent:
		t.closePosition(position, price, movePct, ReasonStopLoss)
	}
}

func (t *Trader) closePosition(position *Position, price, movePct float64, reason string) {
	size := position.Quantity * position.EntryPrice
	pnl := size * movePct / 100

	t.portfolio.Balance += size + pnl
	delete(t.portfolio.OpenPositions, position.Symbol)

	trade := ClosedTrade{
		Symbol:     position.Symbol,
		Side:       position.Side,
		EntryPrice: position.EntryPrice,
		ExitPrice:  price,
		PnL:        pnl,
		Reason:     reason,
		OpenedAt:   position.OpenedAt,
		ClosedAt:   t.now().UTC().Format(time.RFC3339),
	}
	t.portfolio.TradeHistory = append(t.portfolio.TradeHistory, trade)
	t.savePortfolio()
	t.recordTrade(trade)

	t.log.WithComponent("papertrader").WithFields(logger.Fields{
		"symbol": trade.Symbol,
		"side":   trade.Side,
		"pnl":    trade.PnL,
		"reason": trade.Reason,
	}).Info("closed paper position")
}

func (t *Trader) recordTrade(trade ClosedTrade) {
	if t.db == nil {
		return
	}
	_, err := t.db.Exec(
		`INSERT INTO closed_trades (symbol, side, entry_price, exit_price, pnl, reason, opened_at, closed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.Symbol, trade.Side, trade.EntryPrice, trade.ExitPrice, trade.PnL, trade.Reason, trade.OpenedAt, trade.ClosedAt,
	)
	if err != nil {
		t.log.WithComponent("papertrader").WithError(err).Warn("could not record trade in ledger")
	}
}

// Snapshot returns a copy of the current book for the status API.
func (t *Trader) Snapshot() Portfolio {
	t.mu.Lock()
	defer t.mu.Unlock()

	snapshot := Portfolio{
		Balance:       t.portfolio.Balance,
		OpenPositions: make(map[string]*Position, len(t.portfolio.OpenPositions)),
		TradeHistory:  append([]ClosedTrade(nil), t.portfolio.TradeHistory...),
	}
	for symbol, position := range t.portfolio.OpenPositions {
		copied := *position
		snapshot.OpenPositions[symbol] = &copied
	}
	return snapshot
}

func parsePercent(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

// LedgerTrades reads the most recent closed trades from the sqlite
// ledger, newest first.
func (t *Trader) LedgerTrades(limit int) ([]ClosedTrade, error) {
	if t.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := t.db.Query(
		`SELECT symbol, side, entry_price, exit_price, pnl, reason, opened_at, closed_at
		 FROM closed_trades ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []ClosedTrade
	for rows.Next() {
		var trade ClosedTrade
		if err := rows.Scan(&trade.Symbol, &trade.Side, &trade.EntryPrice, &trade.ExitPrice,
			&trade.PnL, &trade.Reason, &trade.OpenedAt, &trade.ClosedAt); err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}
