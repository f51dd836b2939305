package binance

import (
	"context"
	"strconv"

	futures "github.com/adshao/go-binance/v2/futures"

	"signalflow/logger"
)

// FetchRequestWeightLimit queries the exchangeInfo endpoint through the
// official SDK to retrieve the REQUEST_WEIGHT per minute limit. It
// returns 0 if the limit cannot be determined.
func FetchRequestWeightLimit(ctx context.Context, client *futures.Client) (int64, error) {
	info, err := client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return 0, err
	}
	for _, rl := range info.RateLimits {
		if rl.RateLimitType == "REQUEST_WEIGHT" && rl.Interval == "MINUTE" {
			return rl.Limit, nil
		}
	}
	return 0, nil
}

// DiscoverWeightLimit resolves the per-minute request weight budget and
// records it on the client, so get() can warn when usage approaches it.
// Discovery failures are non-fatal; the client runs without the guard.
func (c *Client) DiscoverWeightLimit(ctx context.Context) {
	log := c.log.WithComponent("binance_client")

	limit, err := FetchRequestWeightLimit(ctx, futures.NewClient("", ""))
	if err != nil {
		log.WithError(err).Warn("could not discover request weight limit")
		return
	}
	if limit <= 0 {
		return
	}

	c.weightLimit = limit
	log.LogMetric("binance_client", "request_weight_limit", limit, "gauge", logger.Fields{
		"limit": strconv.FormatInt(limit, 10),
	})
}
