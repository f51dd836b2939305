// Package scheduler drives the refresh loop: fetch the symbol universe,
// walk it at a pace that spreads one full pass over the cycle budget,
// and publish every derived record. Cycles never overlap; a cycle that
// is still running when the next one is due simply absorbs it.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	appconfig "signalflow/config"
	"signalflow/internal/cache"
	"signalflow/internal/model"
	"signalflow/internal/retry"
	"signalflow/logger"
)

// Upstream is the slice of the exchange client the scheduler itself
// needs: the universe, raw open interest for pre-warm ranking, and the
// reference asset's candles.
type Upstream interface {
	Symbols(ctx context.Context) ([]string, error)
	OpenInterest(ctx context.Context, symbol string) *model.OpenInterest
	Klines(ctx context.Context, symbol, interval string, limit int) []model.Candle
}

// SymbolProcessor derives one record per symbol.
type SymbolProcessor interface {
	Process(ctx context.Context, symbol string) (*model.Record, error)
	SetReference(candles []model.Candle)
}

// Publisher fans a value out to all connected consumers.
type Publisher interface {
	Publish(v interface{})
}

// RecordSink receives every freshly derived record. Alerting and the
// paper trader hang off this.
type RecordSink interface {
	OnRecord(record *model.Record)
}

const (
	sentimentBullish = "Bullish"
	sentimentBearish = "Bearish"
	sentimentNeutral = "Neutral"
)

// Scheduler owns the refresh loop.
type Scheduler struct {
	config    *appconfig.Config
	upstream  Upstream
	processor SymbolProcessor
	store     *cache.Store
	publisher Publisher
	sinks     []RecordSink
	log       *logger.Log

	mu      sync.Mutex
	running bool

	btcSentiment string
	ethSentiment string
}

// New builds a scheduler. sinks may be empty.
func New(cfg *appconfig.Config, upstream Upstream, processor SymbolProcessor, store *cache.Store, publisher Publisher, sinks ...RecordSink) *Scheduler {
	return &Scheduler{
		config:       cfg,
		upstream:     upstream,
		processor:    processor,
		store:        store,
		publisher:    publisher,
		sinks:        sinks,
		log:          logger.GetLogger(),
		btcSentiment: sentimentNeutral,
		ethSentiment: sentimentNeutral,
	}
}

// Run pre-warms the cache, then repeats full cycles until the context is
// cancelled, pausing briefly between them.
func (s *Scheduler) Run(ctx context.Context) {
	s.PreWarm(ctx)

	for {
		s.RunCycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.Scanner.InterCycleDelay()):
		}
	}
}

func (s *Scheduler) retryPolicy() retry.Policy {
	policy := retry.DefaultPolicy()
	r := s.config.Scanner.Retry
	if r.MaxAttempts > 0 {
		policy.MaxAttempts = r.MaxAttempts
	}
	if r.BaseDelaySeconds > 0 {
		policy.BaseDelay = time.Duration(r.BaseDelaySeconds) * time.Second
	}
	if r.MaxDelaySeconds > 0 {
		policy.MaxDelay = time.Duration(r.MaxDelaySeconds) * time.Second
	}
	if r.BackoffMultiplier > 1 {
		policy.Multiplier = r.BackoffMultiplier
	}
	return policy
}

func (s *Scheduler) fetchUniverse(ctx context.Context) ([]string, error) {
	var symbols []string
	err := s.retryPolicy().Do(ctx, func(ctx context.Context) error {
		var err error
		symbols, err = s.upstream.Symbols(ctx)
		return err
	}, nil)
	return symbols, err
}

// RunCycle walks the whole universe once. A second call while a cycle is
// in flight returns immediately.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.WithComponent("scheduler").Debug("cycle already in flight, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log := s.log.WithComponent("scheduler")
	start := time.Now()

	symbols, err := s.fetchUniverse(ctx)
	if err != nil {
		log.WithError(err).Error("could not fetch symbol universe, cycle abandoned")
		s.publisher.Publish(&model.ErrorRecord{
			Error: "could not fetch symbol universe after multiple retries",
		})
		return
	}

	if len(symbols) == 0 {
		log.Warn("universe fetch returned no symbols, cycle abandoned")
		return
	}

	if ref := s.upstream.Klines(ctx, s.config.Scanner.ReferenceSymbol, "1d", 2); ref != nil {
		s.processor.SetReference(ref)
	}

	pace := s.config.Scanner.CycleBudget() / time.Duration(len(symbols))

	var processed, cached, failed, bullish, bearish int
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}

		if _, fresh := s.store.Get(symbol); fresh {
			logger.IncrementCacheHit()
			cached++
			continue
		}

		record, err := s.processor.Process(ctx, symbol)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Warn("failed to process symbol")
			failed++
		} else if record != nil {
			s.store.Put(record)
			s.publisher.Publish(record)
			logger.IncrementPublished()
			for _, sink := range s.sinks {
				sink.OnRecord(record)
			}

			s.noteSentiment(record)
			if record.AIScore > 50 {
				bullish++
			} else if record.AIScore < -50 {
				bearish++
			}
			processed++
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(pace):
		}
	}

	s.publishSentiment(bullish, bearish)
	logger.IncrementCycle()

	log.WithFields(logger.Fields{
		"symbols":   len(symbols),
		"processed": processed,
		"cached":    cached,
		"failed":    failed,
		"elapsed":   time.Since(start).String(),
	}).Info("cycle complete")
}

func (s *Scheduler) noteSentiment(record *model.Record) {
	sentiment := sentimentNeutral
	if record.AIScore > 50 {
		sentiment = sentimentBullish
	} else if record.AIScore < -50 {
		sentiment = sentimentBearish
	}

	switch record.Symbol {
	case "BTCUSDT":
		s.btcSentiment = sentiment
	case "ETHUSDT":
		s.ethSentiment = sentiment
	}
}

func (s *Scheduler) publishSentiment(bullish, bearish int) {
	whale := sentimentNeutral
	if bullish > bearish {
		whale = sentimentBullish
	} else if bearish > bullish {
		whale = sentimentBearish
	}

	s.publisher.Publish(&model.SentimentRecord{
		Symbol:         "MARKET_SENTIMENT",
		BTCSentiment:   s.btcSentiment,
		ETHSentiment:   s.ethSentiment,
		WhaleSentiment: whale,
		Timestamp:      time.Now().Format("15:04:05"),
	})
}

// PreWarm processes the largest contracts by raw open interest before the
// first full cycle, so early subscribers see the liquid names first.
func (s *Scheduler) PreWarm(ctx context.Context) {
	top := s.config.Scanner.PrewarmTopSymbols
	if top <= 0 {
		return
	}

	log := s.log.WithComponent("scheduler")

	symbols, err := s.fetchUniverse(ctx)
	if err != nil {
		log.WithError(err).Warn("could not fetch symbols for pre-warming")
		return
	}

	type ranked struct {
		symbol string
		oi     float64
	}
	rankings := make([]ranked, 0, len(symbols))
	for _, symbol := range symbols {
		if ctx.Err() != nil {
			return
		}
		if oi := s.upstream.OpenInterest(ctx, symbol); oi != nil {
			rankings = append(rankings, ranked{symbol: oi.Symbol, oi: oi.OpenInterest})
		}
	}
	sort.Slice(rankings, func(i, j int) bool { return rankings[i].oi > rankings[j].oi })
	if len(rankings) > top {
		rankings = rankings[:top]
	}

	if ref := s.upstream.Klines(ctx, s.config.Scanner.ReferenceSymbol, "1d", 2); ref != nil {
		s.processor.SetReference(ref)
	}

	for _, r := range rankings {
		if ctx.Err() != nil {
			return
		}
		record, err := s.processor.Process(ctx, r.symbol)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": r.symbol}).Warn("pre-warm failed for symbol")
			continue
		}
		if record != nil {
			s.store.Put(record)
			s.publisher.Publish(record)
			for _, sink := range s.sinks {
				sink.OnRecord(record)
			}
		}
	}

	log.WithFields(logger.Fields{"symbols": len(rankings)}).Info("cache pre-warm complete")
}
