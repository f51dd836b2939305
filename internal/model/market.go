package model

// SeriesPoint is one sample of a historical ratio series. Upstream
// responses carry ratios as strings; the reader parses them into floats
// before anything downstream sees them.
type SeriesPoint struct {
	Timestamp int64
	Value     float64
}

// OIPoint is one sample of the open-interest history. SumOpenInterest is
// denominated in contracts, SumOpenInterestValue in quote currency.
type OIPoint struct {
	Timestamp            int64
	SumOpenInterest      float64
	SumOpenInterestValue float64
}

// Candle is a single OHLCV kline. QuoteVolume is the quote-asset volume
// field the exchange reports alongside the base volume.
type Candle struct {
	OpenTime    int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
}

// FundingPoint is one historical funding-rate settlement.
type FundingPoint struct {
	FundingTime int64
	FundingRate float64
}

// PremiumIndex carries the current funding state of a perpetual contract.
type PremiumIndex struct {
	Symbol          string
	MarkPrice       float64
	LastFundingRate float64
	NextFundingTime int64
}

// OpenInterest is the current open interest of a symbol in contracts.
type OpenInterest struct {
	Symbol       string
	OpenInterest float64
	Time         int64
}
