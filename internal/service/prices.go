package service

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/transborda/cargo-booking/internal/repository"
)

// Service price keys in the system configuration store.  Label prices are
// keyed by label dimension, e.g. price_label_2x2.
const (
	labelPriceKeyPrefix = "price_label_"
	defaultLabelKey     = "price_label_1x1"
	bondFeeKey          = "price_bond_service"
	pickupFeeKey        = "price_pickup_service"
)

// Fallbacks used when a price key is missing from the store.
var (
	defaultLabelPrice = decimal.NewFromInt(1)
	defaultBondFee    = decimal.NewFromInt(500)
	defaultPickupFee  = decimal.NewFromInt(300)
)

// PriceStore resolves service prices from the system configuration store
// through an optional Redis read-through cache.  A nil Redis client disables
// caching; the store then reads the database directly, exactly like the
// degraded mode of the response cache it is modeled on.
type PriceStore struct {
	cfg *repository.SystemConfigRepo
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceStore builds a PriceStore.  rdb may be nil.
func NewPriceStore(cfg *repository.SystemConfigRepo, rdb *redis.Client, ttl time.Duration) *PriceStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PriceStore{cfg: cfg, rdb: rdb, ttl: ttl}
}

// get resolves one key to a decimal, consulting the cache first.  Missing
// or malformed values fall back to the provided default; config mistakes
// must not break pricing.
func (p *PriceStore) get(ctx context.Context, key string, fallback decimal.Decimal) decimal.Decimal {
	cacheKey := "cfgprice:" + key
	if p.rdb != nil {
		if cached, err := p.rdb.Get(ctx, cacheKey).Result(); err == nil {
			if d, err := decimal.NewFromString(cached); err == nil {
				return d
			}
		}
	}
	raw, err := p.cfg.Get(ctx, key)
	if err != nil {
		return fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Printf("prices: non-decimal value for %s: %q", key, raw)
		return fallback
	}
	if p.rdb != nil {
		if err := p.rdb.Set(ctx, cacheKey, d.String(), p.ttl).Err(); err != nil {
			log.Printf("prices: cache set failed for %s: %v", key, err)
		}
	}
	return d
}

// LabelPrice returns the per-label price for a label dimension such as
// "2x2".  Unknown dimensions fall back to the 1x1 price.
func (p *PriceStore) LabelPrice(ctx context.Context, dimensions *string) decimal.Decimal {
	if dimensions != nil && *dimensions != "" {
		key := labelPriceKeyPrefix + *dimensions
		d := p.get(ctx, key, decimal.NewFromInt(-1))
		if !d.IsNegative() {
			return d
		}
	}
	return p.get(ctx, defaultLabelKey, defaultLabelPrice)
}

// BondFee returns the flat bond service fee.
func (p *PriceStore) BondFee(ctx context.Context) decimal.Decimal {
	return p.get(ctx, bondFeeKey, defaultBondFee)
}

// PickupFee returns the default pickup service fee, used when the trip has
// no pickup-cost override.
func (p *PriceStore) PickupFee(ctx context.Context) decimal.Decimal {
	return p.get(ctx, pickupFeeKey, defaultPickupFee)
}
