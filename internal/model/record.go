package model

// Record is the per-symbol output of one processing pass. All derived
// fields are pre-formatted strings so every consumer (websocket clients,
// the data API, the signal log) sees a single representation; values
// that could not be computed render as the literal "N/A".
type Record struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	OpenInterest  float64 `json:"oi"`
	OI24hNotional string  `json:"oi24hNotional"`
	Volume24h     string  `json:"volume24h"`
	MarketCap     string  `json:"marketCap"`
	Timestamp     string  `json:"timestamp"`

	AIScore                 int     `json:"aiScore"`
	Alpha7Score             float64 `json:"alpha7Score"`
	AlphaDivergenceScore15m string  `json:"alphaDivergenceScore15m"`

	OIConvictionScore        int `json:"oiConvictionScore"`
	LSConvictionScore        int `json:"lsConvictionScore"`
	DivVectorConvictionScore int `json:"divVectorConvictionScore"`

	DivergenceVector24h string `json:"divergenceVector24h"`
	DivergenceVector4h  string `json:"divergenceVector4h"`
	DivergenceVector1h  string `json:"divergenceVector1h"`
	DivergenceVector15m string `json:"divergenceVector15m"`
	DivergenceVector5m  string `json:"divergenceVector5m"`

	TopTraderTrend24h string `json:"topTraderTrend24h"`

	LSTopPositionRatio          string `json:"lsTopPositionRatio"`
	LSTopPositionRatioChange5m  string `json:"lsTopPositionRatioChange5m"`
	LSTopPositionRatioChange15m string `json:"lsTopPositionRatioChange15m"`
	LSTopPositionRatioChange30m string `json:"lsTopPositionRatioChange30m"`
	LSTopPositionRatioChange1h  string `json:"lsTopPositionRatioChange1h"`
	LSTopPositionRatioChange4h  string `json:"lsTopPositionRatioChange4h"`

	LSGlobalAccountRatio          string `json:"lsGlobalAccountRatio"`
	LSGlobalAccountRatioChange5m  string `json:"lsGlobalAccountRatioChange5m"`
	LSGlobalAccountRatioChange15m string `json:"lsGlobalAccountRatioChange15m"`
	LSGlobalAccountRatioChange30m string `json:"lsGlobalAccountRatioChange30m"`
	LSGlobalAccountRatioChange1h  string `json:"lsGlobalAccountRatioChange1h"`
	LSGlobalAccountRatioChange4h  string `json:"lsGlobalAccountRatioChange4h"`

	VWAPDeviation15m string `json:"vwapDeviation15m"`
	VWAPDeviation4h  string `json:"vwapDeviation4h"`
	VWAPDeviation1d  string `json:"vwapDeviation1d"`

	OpenInterestChange1m  string `json:"openInterestChange1m"`
	OpenInterestChange5m  string `json:"openInterestChange5m"`
	OpenInterestChange15m string `json:"openInterestChange15m"`
	OpenInterestChange1h  string `json:"openInterestChange1h"`
	OpenInterestChange4h  string `json:"openInterestChange4h"`
	OpenInterestChange12h string `json:"openInterestChange12h"`
	OpenInterestChange24h string `json:"openInterestChange24h"`
	OpenInterestChange48h string `json:"openInterestChange48h"`

	OpenInterestPercent1m  string `json:"openInterestPercent1m"`
	OpenInterestPercent5m  string `json:"openInterestPercent5m"`
	OpenInterestPercent15m string `json:"openInterestPercent15m"`
	OpenInterestPercent1h  string `json:"openInterestPercent1h"`
	OpenInterestPercent4h  string `json:"openInterestPercent4h"`
	OpenInterestPercent12h string `json:"openInterestPercent12h"`
	OpenInterestPercent24h string `json:"openInterestPercent24h"`
	OpenInterestPercent48h string `json:"openInterestPercent48h"`

	VolumeChange5m  string `json:"volumeChange5m"`
	VolumeChange15m string `json:"volumeChange15m"`
	VolumeChange1h  string `json:"volumeChange1h"`
	VolumeChange4h  string `json:"volumeChange4h"`
	VolumeChange12h string `json:"volumeChange12h"`
	VolumeChange24h string `json:"volumeChange24h"`

	PriceChange1h  string `json:"priceChange1h"`
	PriceChange24h string `json:"priceChange24h"`

	FundingRate           string `json:"fundingRate"`
	FundingRateChange15m  string `json:"fundingRateChange15m"`
	FundingRateChange1h   string `json:"fundingRateChange1h"`
	FundingRateChange4h   string `json:"fundingRateChange4h"`
	FundingRateChange24h  string `json:"fundingRateChange24h"`
	FundingRateChange48h  string `json:"fundingRateChange48h"`
	FundingRateSuggestion string `json:"fundingRateSuggestion"`

	MA15m string `json:"ma15m"`
	MA1h  string `json:"ma1h"`
	MA4h  string `json:"ma4h"`

	RelativeStrength24h string `json:"relativeStrength24h"`
}

// ErrorRecord is broadcast when a cycle cannot obtain the symbol
// universe at all.
type ErrorRecord struct {
	Error string `json:"error"`
}

// SentimentRecord is the synthetic end-of-cycle aggregate.
type SentimentRecord struct {
	Symbol         string `json:"symbol"`
	BTCSentiment   string `json:"btcSentiment"`
	ETHSentiment   string `json:"ethSentiment"`
	WhaleSentiment string `json:"whaleSentiment"`
	Timestamp      string `json:"timestamp"`
}
