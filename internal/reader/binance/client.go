// Package binance implements the upstream data client for the exchange's
// futures REST API. Per-symbol fetches never return errors to callers:
// failures are classified, logged and collapsed to nil so downstream
// indicator code treats missing data as a normal input.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	appconfig "signalflow/config"
	"signalflow/internal/breaker"
	"signalflow/internal/model"
	"signalflow/logger"
)

const (
	pathExchangeInfo  = "/fapi/v1/exchangeInfo"
	pathOpenInterest  = "/fapi/v1/openInterest"
	pathTickerPrice   = "/fapi/v1/ticker/price"
	pathPremiumIndex  = "/fapi/v1/premiumIndex"
	pathFundingRate   = "/fapi/v1/fundingRate"
	pathKlines        = "/fapi/v1/klines"
	pathOIHist        = "/futures/data/openInterestHist"
	pathTopLSRatio    = "/futures/data/topLongShortPositionRatio"
	pathGlobalLSRatio = "/futures/data/globalLongShortAccountRatio"
)

// Client issues parameterized GET requests against the futures API.
// A circuit breaker guards against the exchange's IP-ban responses and a
// token-bucket limiter paces requests inside one symbol's fan-out.
type Client struct {
	config      *appconfig.Config
	httpClient  *http.Client
	limiter     *rate.Limiter
	breaker     *breaker.Breaker
	baseURL     string
	log         *logger.Log
	weightLimit int64
}

// NewClient builds a client from the source configuration, mirroring the
// connection-pool settings onto the HTTP transport.
func NewClient(cfg *appconfig.Config) *Client {
	log := logger.GetLogger()
	src := cfg.Source.Binance

	transport := &http.Transport{
		MaxIdleConns:        src.ConnectionPool.MaxIdleConns,
		MaxIdleConnsPerHost: src.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost:     src.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout:     src.ConnectionPool.IdleConnTimeout(),
		DisableCompression:  false,
	}

	rps := src.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 18
	}
	burst := src.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	client := &Client{
		config: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   src.Timeout(),
		},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: breaker.New(cfg.Thresholds.IPBanCooldown()),
		baseURL: src.BaseURL,
		log:     log,
	}

	log.WithComponent("binance_client").WithFields(logger.Fields{
		"base_url":            src.BaseURL,
		"timeout":             src.Timeout().String(),
		"requests_per_second": rps,
	}).Info("binance client initialized")

	return client
}

// Breaker exposes the ban circuit breaker, mainly for status reporting.
func (c *Client) Breaker() *breaker.Breaker {
	return c.breaker
}

// get performs one GET request and returns the raw body, or nil when the
// request failed for any reason. While the breaker is open every call
// short-circuits without touching the network.
func (c *Client) get(ctx context.Context, path string, symbol string, params url.Values) []byte {
	log := c.log.WithComponent("binance_client").WithFields(logger.Fields{
		"endpoint": path,
		"symbol":   symbol,
	})

	if !c.breaker.Allow() {
		log.Debug("request skipped while upstream pause is active")
		return nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil
	}

	if params == nil {
		params = url.Values{}
	}
	if symbol != "" {
		params.Set("symbol", symbol)
	}

	reqURL := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		log.WithError(err).Warn("failed to build request")
		return nil
	}

	logger.IncrementUpstreamCall()
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.IncrementUpstreamError()
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			log.WithError(err).Warn("request timed out; will retry next cycle")
		case errors.Is(err, context.Canceled):
		default:
			log.WithError(err).Warn("request failed; will retry next cycle")
		}
		return nil
	}
	defer resp.Body.Close()

	c.reportUsedWeight(resp.Header)

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTeapot:
		logger.IncrementUpstreamError()
		c.breaker.Trip()
		log.WithFields(logger.Fields{
			"status":   resp.StatusCode,
			"cooldown": c.config.Thresholds.IPBanCooldown().String(),
		}).Warn("upstream signalled IP ban; pausing all requests")
		return nil
	case resp.StatusCode != http.StatusOK:
		logger.IncrementUpstreamError()
		log.WithFields(logger.Fields{"status": resp.StatusCode}).Error("unhandled upstream response")
		return nil
	}

	c.breaker.Success()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("failed to read response body")
		return nil
	}

	if elapsed := time.Since(start); elapsed > c.config.Source.Binance.Timeout()/2 {
		logger.LogPerformanceEntry(log, "binance_client", "api_request", elapsed, logger.Fields{
			"endpoint": path,
		})
	}

	return body
}

func (c *Client) reportUsedWeight(header http.Header) {
	usedStr := header.Get("X-MBX-USED-WEIGHT-1m")
	if usedStr == "" {
		return
	}
	used, err := strconv.ParseInt(usedStr, 10, 64)
	if err != nil {
		return
	}
	if c.weightLimit > 0 && used > c.weightLimit*9/10 {
		c.log.WithComponent("binance_client").WithFields(logger.Fields{
			"used_weight":  used,
			"weight_limit": c.weightLimit,
		}).Warn("request weight approaching limit")
	}
}

type exchangeInfoResponse struct {
	Symbols []struct {
		Symbol     string `json:"symbol"`
		Status     string `json:"status"`
		QuoteAsset string `json:"quoteAsset"`
	} `json:"symbols"`
}

// Symbols fetches the tradable universe: actively trading contracts
// quoted in the configured quote asset. This is the one call whose
// failure surfaces as an error, so the scheduler can drive its retry
// and backoff around it.
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	body := c.get(ctx, pathExchangeInfo, "", nil)
	if body == nil {
		return nil, fmt.Errorf("exchange info unavailable")
	}

	var info exchangeInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode exchange info: %w", err)
	}

	quote := c.config.Scanner.QuoteAsset
	symbols := make([]string, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status == "TRADING" && s.QuoteAsset == quote {
			symbols = append(symbols, s.Symbol)
		}
	}
	if len(symbols) == 0 {
		return nil, fmt.Errorf("exchange info returned no tradable %s symbols", quote)
	}
	return symbols, nil
}

type openInterestResponse struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

// OpenInterest returns the current open interest in contracts, or nil.
func (c *Client) OpenInterest(ctx context.Context, symbol string) *model.OpenInterest {
	body := c.get(ctx, pathOpenInterest, symbol, nil)
	if body == nil {
		return nil
	}
	var resp openInterestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.warnDecode(pathOpenInterest, symbol, err)
		return nil
	}
	oi, err := strconv.ParseFloat(resp.OpenInterest, 64)
	if err != nil {
		return nil
	}
	return &model.OpenInterest{Symbol: resp.Symbol, OpenInterest: oi, Time: resp.Time}
}

type tickerPriceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Price returns the latest traded price. ok is false when the price is
// unavailable.
func (c *Client) Price(ctx context.Context, symbol string) (float64, bool) {
	body := c.get(ctx, pathTickerPrice, symbol, nil)
	if body == nil {
		return 0, false
	}
	var resp tickerPriceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.warnDecode(pathTickerPrice, symbol, err)
		return 0, false
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

type oiHistResponse struct {
	SumOpenInterest      string `json:"sumOpenInterest"`
	SumOpenInterestValue string `json:"sumOpenInterestValue"`
	Timestamp            int64  `json:"timestamp"`
}

// OpenInterestHist returns the open-interest history at the given period
// and limit, or nil.
func (c *Client) OpenInterestHist(ctx context.Context, symbol, period string, limit int) []model.OIPoint {
	params := url.Values{}
	params.Set("period", period)
	params.Set("limit", strconv.Itoa(limit))

	body := c.get(ctx, pathOIHist, symbol, params)
	if body == nil {
		return nil
	}
	var resp []oiHistResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.warnDecode(pathOIHist, symbol, err)
		return nil
	}

	points := make([]model.OIPoint, 0, len(resp))
	for _, r := range resp {
		sum, err1 := strconv.ParseFloat(r.SumOpenInterest, 64)
		value, err2 := strconv.ParseFloat(r.SumOpenInterestValue, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		points = append(points, model.OIPoint{
			Timestamp:            r.Timestamp,
			SumOpenInterest:      sum,
			SumOpenInterestValue: value,
		})
	}
	return points
}

type ratioResponse struct {
	LongShortRatio string `json:"longShortRatio"`
	Timestamp      int64  `json:"timestamp"`
}

func (c *Client) ratioSeries(ctx context.Context, path, symbol, period string, limit int) []model.SeriesPoint {
	params := url.Values{}
	params.Set("period", period)
	params.Set("limit", strconv.Itoa(limit))

	body := c.get(ctx, path, symbol, params)
	if body == nil {
		return nil
	}
	var resp []ratioResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.warnDecode(path, symbol, err)
		return nil
	}

	points := make([]model.SeriesPoint, 0, len(resp))
	for _, r := range resp {
		ratio, err := strconv.ParseFloat(r.LongShortRatio, 64)
		if err != nil {
			continue
		}
		points = append(points, model.SeriesPoint{Timestamp: r.Timestamp, Value: ratio})
	}
	return points
}

// TopLongShortRatio returns the "top trader position" ratio history.
func (c *Client) TopLongShortRatio(ctx context.Context, symbol, period string, limit int) []model.SeriesPoint {
	return c.ratioSeries(ctx, pathTopLSRatio, symbol, period, limit)
}

// GlobalLongShortRatio returns the "global account" ratio history.
func (c *Client) GlobalLongShortRatio(ctx context.Context, symbol, period string, limit int) []model.SeriesPoint {
	return c.ratioSeries(ctx, pathGlobalLSRatio, symbol, period, limit)
}

// Klines returns OHLCV candles at the given interval, or nil. The wire
// format is a fixed-position array per candle.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) []model.Candle {
	params := url.Values{}
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body := c.get(ctx, pathKlines, symbol, params)
	if body == nil {
		return nil
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		c.warnDecode(pathKlines, symbol, err)
		return nil
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 8 {
			continue
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			continue
		}
		open, ok1 := parseStringCell(row[1])
		high, ok2 := parseStringCell(row[2])
		low, ok3 := parseStringCell(row[3])
		closePrice, ok4 := parseStringCell(row[4])
		volume, ok5 := parseStringCell(row[5])
		quoteVolume, ok6 := parseStringCell(row[7])
		if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 || !ok6 {
			continue
		}
		candles = append(candles, model.Candle{
			OpenTime:    openTime,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       closePrice,
			Volume:      volume,
			QuoteVolume: quoteVolume,
		})
	}
	return candles
}

func parseStringCell(raw json.RawMessage) (float64, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

type premiumIndexResponse struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
}

// PremiumIndex returns the current funding state, or nil.
func (c *Client) PremiumIndex(ctx context.Context, symbol string) *model.PremiumIndex {
	body := c.get(ctx, pathPremiumIndex, symbol, nil)
	if body == nil {
		return nil
	}
	var resp premiumIndexResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.warnDecode(pathPremiumIndex, symbol, err)
		return nil
	}
	rate, err := strconv.ParseFloat(resp.LastFundingRate, 64)
	if err != nil {
		return nil
	}
	mark, _ := strconv.ParseFloat(resp.MarkPrice, 64)
	return &model.PremiumIndex{
		Symbol:          resp.Symbol,
		MarkPrice:       mark,
		LastFundingRate: rate,
		NextFundingTime: resp.NextFundingTime,
	}
}

type fundingRateResponse struct {
	FundingRate string `json:"fundingRate"`
	FundingTime int64  `json:"fundingTime"`
}

// FundingRateHistory returns past funding settlements, or nil.
func (c *Client) FundingRateHistory(ctx context.Context, symbol string, limit int) []model.FundingPoint {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))

	body := c.get(ctx, pathFundingRate, symbol, params)
	if body == nil {
		return nil
	}
	var resp []fundingRateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		c.warnDecode(pathFundingRate, symbol, err)
		return nil
	}

	points := make([]model.FundingPoint, 0, len(resp))
	for _, r := range resp {
		rate, err := strconv.ParseFloat(r.FundingRate, 64)
		if err != nil {
			continue
		}
		points = append(points, model.FundingPoint{FundingTime: r.FundingTime, FundingRate: rate})
	}
	return points
}

func (c *Client) warnDecode(path, symbol string, err error) {
	c.log.WithComponent("binance_client").WithFields(logger.Fields{
		"endpoint": path,
		"symbol":   symbol,
	}).WithError(err).Warn("failed to decode upstream response")
}
