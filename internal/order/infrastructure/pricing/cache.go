package pricing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/dmehra2102/Order-Fulfillment-Saga/internal/order/application"
)

// CachedProvider keeps prices in Redis and collapses concurrent lookups of
// the same sku into one upstream call. Redis failures fall through to the
// upstream provider.
type CachedProvider struct {
	log      *slog.Logger
	rdb      *redis.Client
	upstream application.PriceProvider
	ttl      time.Duration
	group    singleflight.Group
}

func NewCachedProvider(log *slog.Logger, rdb *redis.Client, upstream application.PriceProvider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{log: log, rdb: rdb, upstream: upstream, ttl: ttl}
}

func cacheKey(sku string) string {
	return "price:" + sku
}

func (p *CachedProvider) UnitPrice(ctx context.Context, sku string) (decimal.Decimal, error) {
	key := cacheKey(sku)
	cached, err := p.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		if price, perr := decimal.NewFromString(cached); perr == nil {
			return price, nil
		}
		p.log.Warn("discarding unparsable cached price", "sku", sku, "value", cached)
	case !errors.Is(err, redis.Nil):
		p.log.Warn("price cache read failed", "sku", sku, "err", err)
	}

	v, err, _ := p.group.Do(sku, func() (any, error) {
		price, err := p.upstream.UnitPrice(ctx, sku)
		if err != nil {
			return nil, err
		}
		if err := p.rdb.Set(ctx, key, price.String(), p.ttl).Err(); err != nil {
			p.log.Warn("price cache write failed", "sku", sku, "err", err)
		}
		return price, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}
