// Package alert turns strong composite scores into operator
// notifications. A symbol that fires goes onto a cooldown blacklist so
// the same setup cannot re-alert every cycle.
package alert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	appconfig "signalflow/config"
	"signalflow/internal/model"
	"signalflow/logger"
)

const telegramAPIBase = "https://api.telegram.org"

// Entry is one line of the signal log.
type Entry struct {
	Symbol           string  `json:"symbol"`
	Direction        string  `json:"direction"`
	Alpha7Score      float64 `json:"alpha7Score"`
	AIScore          int     `json:"aiScore"`
	Price            float64 `json:"price"`
	VWAPDeviation15m string  `json:"vwapDeviation15m"`
	Timestamp        string  `json:"timestamp"`
}

// BlacklistStatus describes one suppressed symbol for the status API.
type BlacklistStatus struct {
	Symbol        string `json:"symbol"`
	TimeRemaining int    `json:"timeRemaining"`
}

// Notifier watches derived records and dispatches alerts.
type Notifier struct {
	config     *appconfig.Config
	httpClient *http.Client
	apiBase    string
	log        *logger.Log

	mu        sync.Mutex
	blacklist map[string]time.Time

	now func() time.Time
}

// New builds a notifier from the alerts configuration.
func New(cfg *appconfig.Config) *Notifier {
	return &Notifier{
		config:     cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiBase:    telegramAPIBase,
		log:        logger.GetLogger(),
		blacklist:  make(map[string]time.Time),
		now:        time.Now,
	}
}

// OnRecord evaluates one record against the alert threshold. The
// composite score must clear the configured magnitude and the short-term
// VWAP deviation must point the same way; a divergence between the two
// is treated as noise.
func (n *Notifier) OnRecord(record *model.Record) {
	if !n.config.Alerts.Enabled {
		return
	}

	threshold := n.config.Thresholds.AlertScore
	if threshold <= 0 {
		return
	}

	score := record.Alpha7Score
	if score < threshold && score > -threshold {
		return
	}

	deviation, ok := parsePercent(record.VWAPDeviation15m)
	if !ok || !sameSign(score, deviation) {
		return
	}

	if n.suppressed(record.Symbol) {
		n.log.WithComponent("alert").WithFields(logger.Fields{"symbol": record.Symbol}).Debug("symbol on cooldown, alert suppressed")
		return
	}

	direction := "LONG"
	if score < 0 {
		direction = "SHORT"
	}

	entry := Entry{
		Symbol:           record.Symbol,
		Direction:        direction,
		Alpha7Score:      score,
		AIScore:          record.AIScore,
		Price:            record.Price,
		VWAPDeviation15m: record.VWAPDeviation15m,
		Timestamp:        n.now().UTC().Format(time.RFC3339),
	}

	n.appendSignalLog(entry)
	n.sendTelegram(entry)
	logger.IncrementAlert()

	n.mu.Lock()
	n.blacklist[record.Symbol] = n.now()
	n.mu.Unlock()

	n.log.WithComponent("alert").WithFields(logger.Fields{
		"symbol":    entry.Symbol,
		"direction": entry.Direction,
		"score":     entry.Alpha7Score,
	}).Info("alert dispatched")
}

func (n *Notifier) suppressed(symbol string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	at, ok := n.blacklist[symbol]
	if !ok {
		return false
	}
	if n.now().Sub(at) >= n.config.Thresholds.BlacklistCooldown() {
		delete(n.blacklist, symbol)
		return false
	}
	return true
}

// Status lists symbols still on cooldown with seconds remaining.
func (n *Notifier) Status() []BlacklistStatus {
	n.mu.Lock()
	defer n.mu.Unlock()

	cooldown := n.config.Thresholds.BlacklistCooldown()
	now := n.now()

	statuses := make([]BlacklistStatus, 0, len(n.blacklist))
	for symbol, at := range n.blacklist {
		remaining := cooldown - now.Sub(at)
		if remaining <= 0 {
			delete(n.blacklist, symbol)
			continue
		}
		statuses = append(statuses, BlacklistStatus{
			Symbol:        symbol,
			TimeRemaining: int(remaining.Seconds() + 0.5),
		})
	}
	return statuses
}

func (n *Notifier) appendSignalLog(entry Entry) {
	path := n.config.Alerts.SignalLog
	if path == "" {
		return
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		n.log.WithComponent("alert").WithError(err).Warn("could not open signal log")
		return
	}
	defer file.Close()

	if _, err := file.Write(append(payload, '\n')); err != nil {
		n.log.WithComponent("alert").WithError(err).Warn("could not append to signal log")
	}
}

// SignalHistory reads the signal log back newest-first for the data API.
func (n *Notifier) SignalHistory() ([]Entry, error) {
	path := n.config.Alerts.SignalLog
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func (n *Notifier) sendTelegram(entry Entry) {
	tg := n.config.Alerts.Telegram
	if tg.Token == "" || tg.ChatID == "" {
		return
	}

	text := fmt.Sprintf("*%s %s*\nalpha7: %.2f\nai: %d\nprice: %v\nvwap15m: %s",
		entry.Direction, entry.Symbol, entry.Alpha7Score, entry.AIScore, entry.Price, entry.VWAPDeviation15m)

	body, err := json.Marshal(map[string]string{
		"chat_id":    tg.ChatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, tg.Token)
	resp, err := n.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		n.log.WithComponent("alert").WithError(err).Warn("failed to send telegram message")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		n.log.WithComponent("alert").WithFields(logger.Fields{"status": resp.StatusCode}).Warn("telegram rejected message")
	}
}

func parsePercent(s string) (float64, bool) {
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
